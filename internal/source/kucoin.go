package source

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"marketgrid/internal/market"
	"marketgrid/internal/protocol"
	"marketgrid/logger"

	sdkapi "github.com/Kucoin/kucoin-universal-sdk/sdk/golang/pkg/api"
	futuresmarket "github.com/Kucoin/kucoin-universal-sdk/sdk/golang/pkg/generate/futures/market"
	sdktype "github.com/Kucoin/kucoin-universal-sdk/sdk/golang/pkg/types"
)

const (
	kucoinDefaultSpotURL    = "https://api.kucoin.com"
	kucoinDefaultFuturesURL = "https://api-futures.kucoin.com"
)

// kucoinFuturesAliases renames bases in the futures symbol scheme
// (XBTUSDTM, ETHUSDTM).
var kucoinFuturesAliases = map[string]string{"BTC": "XBT"}

// KuCoin serves spot data from the public REST API and perpetual data
// through the universal SDK's futures service. Spot candles arrive with
// second-resolution timestamps, unlike every other exchange here.
type KuCoin struct {
	spotBaseURL string
	client      *http.Client
	marketAPI   futuresmarket.MarketAPI
	log         *logger.Entry
}

// NewKuCoin builds the KuCoin adapter. Empty base URLs select the public
// endpoints.
func NewKuCoin(client *http.Client, spotBaseURL, futuresBaseURL string) *KuCoin {
	if spotBaseURL == "" {
		spotBaseURL = kucoinDefaultSpotURL
	}
	if futuresBaseURL == "" {
		futuresBaseURL = kucoinDefaultFuturesURL
	}
	if client == nil {
		client = NewHTTPClient(0, "")
	}

	transportOpt := sdktype.NewTransportOptionBuilder().
		SetMaxIdleConns(64).
		SetMaxIdleConnsPerHost(16).
		SetMaxConnsPerHost(32).
		SetIdleConnTimeout(90 * time.Second).
		SetTimeout(client.Timeout).
		Build()
	option := sdktype.NewClientOptionBuilder().
		WithFuturesEndpoint(futuresBaseURL).
		WithTransportOption(transportOpt).
		Build()
	sdk := sdkapi.NewClient(option)

	return &KuCoin{
		spotBaseURL: spotBaseURL,
		client:      client,
		marketAPI:   sdk.RestService().GetFuturesService().GetMarketAPI(),
		log:         logger.GetLogger().WithComponent("kucoin_adapter"),
	}
}

func (k *KuCoin) Name() string { return "kucoin" }

func (k *KuCoin) Metadata() market.SourceMetadata {
	return market.SourceMetadata{
		Name:        "kucoin",
		DisplayName: "KuCoin",
		Kind:        market.KindExchange,
		Website:     "https://www.kucoin.com",
		APIBaseURL:  k.spotBaseURL,
		Active:      true,
	}
}

func (k *KuCoin) Capability() market.Capability {
	return market.Capability{
		Candles: true,
		Granularities: []string{
			"1m", "3m", "5m", "15m", "30m",
			"1h", "2h", "4h", "6h", "8h", "12h",
			"1d", "1w",
		},
		// Contract candles are not exposed; funding, basis and ticker are.
		ContractGranularities: []string{},
		CandleLimit:           1500,
		Ticker:                true,
		Modes:                 []market.Mode{market.ModeSpot, market.ModeContract},
		RateLimitPerMinute:    180,
		Funding: market.FundingCapability{
			Supported:     true,
			IntervalHours: 8,
			QuoteCurrency: "USDT",
		},
		Basis: market.BasisCapability{
			Supported:     true,
			ContractTypes: []market.ContractType{market.ContractPerpetual},
			QuoteCurrency: "USDT",
		},
	}
}

func (k *KuCoin) Format() protocol.Format {
	return protocol.Format{
		Separator: "-",
		TimeUnit:  protocol.UnitSeconds,
		Granularities: map[string]string{
			"1m": "1min", "3m": "3min", "5m": "5min", "15m": "15min", "30m": "30min",
			"1h": "1hour", "2h": "2hour", "4h": "4hour", "6h": "6hour",
			"8h": "8hour", "12h": "12hour",
			"1d": "1day", "1w": "1week",
		},
	}
}

// futuresSymbol renders the futures instrument id: aliased base + quote + M.
func futuresSymbol(p protocol.Pair) string {
	base := p.Base
	if alias, ok := kucoinFuturesAliases[base]; ok {
		base = alias
	}
	return base + p.Quote + "M"
}

// getSpot unwraps the {code, data} envelope around every spot response.
func (k *KuCoin) getSpot(ctx context.Context, path string, params map[string]string, data interface{}) error {
	var env struct {
		Code string          `json:"code"`
		Msg  string          `json:"msg"`
		Data json.RawMessage `json:"data"`
	}
	if err := getJSON(ctx, k.client, "kucoin", query(k.spotBaseURL+path, params), &env); err != nil {
		k.log.WithError(err).Warn("upstream request failed")
		return err
	}
	if env.Code != "200000" {
		err := market.Errorf(market.ErrUpstreamProtocol, "kucoin", "upstream code %s: %s", env.Code, env.Msg)
		k.log.WithError(err).Warn("upstream rejected the request")
		return err
	}
	if err := json.Unmarshal(env.Data, data); err != nil {
		return market.WrapError(market.ErrUpstreamProtocol, "kucoin", err, "decoding data payload")
	}
	return nil
}

func (k *KuCoin) Candles(ctx context.Context, req CandleRequest) (market.CandleResult, error) {
	res, err := protocol.ValidateRequest(req.Symbol, req.Bar, req.Mode, k.Capability(), k.Format())
	if err != nil {
		return market.CandleResult{}, err
	}

	params := map[string]string{
		"symbol": res.SourceSymbol,
		"type":   res.SourceBar,
	}
	if req.After > 0 {
		params["startAt"] = strconv.FormatInt(req.After, 10)
	}
	if req.Before > 0 {
		params["endAt"] = strconv.FormatInt(req.Before, 10)
	}

	// Row layout is time, open, close, high, low, volume, turnover.
	var rows [][]string
	if err := k.getSpot(ctx, "/api/v1/market/candles", params, &rows); err != nil {
		return market.CandleResult{}, err
	}

	candles := make([]market.CandleRecord, 0, len(rows))
	for _, row := range rows {
		if len(row) < 6 {
			return market.CandleResult{}, market.Errorf(market.ErrUpstreamProtocol, "kucoin", "candle row has %d columns", len(row))
		}
		candles = append(candles, market.CandleRecord{
			Time:   atoi64(row[0]),
			Open:   atof(row[1]),
			Close:  atof(row[2]),
			High:   atof(row[3]),
			Low:    atof(row[4]),
			Volume: atof(row[5]),
		})
	}
	normalized := protocol.NormalizeCandles(candles, protocol.UnitSeconds)
	if req.Limit > 0 && len(normalized) > req.Limit {
		normalized = normalized[len(normalized)-req.Limit:]
	}

	return market.CandleResult{
		Candles:  normalized,
		Bar:      req.Bar,
		BarUsed:  res.Bar,
		Degraded: res.Degraded,
		Advisory: res.Advisory,
	}, nil
}

// getFuturesSymbol fetches the live futures contract snapshot, the single
// endpoint behind contract ticker, funding and basis.
func (k *KuCoin) getFuturesSymbol(ctx context.Context, symbol string) (*futuresmarket.GetSymbolResp, protocol.Pair, error) {
	res, err := protocol.ValidateSymbol(symbol, market.ModeContract, k.Capability(), k.Format())
	if err != nil {
		return nil, protocol.Pair{}, err
	}

	req := futuresmarket.NewGetSymbolReqBuilder().SetSymbol(futuresSymbol(res.Pair)).Build()
	resp, err := k.marketAPI.GetSymbol(req, ctx)
	if err != nil {
		k.log.WithError(err).Warn("upstream request failed")
		return nil, protocol.Pair{}, market.WrapError(market.ErrUpstreamUnavailable, "kucoin", err, "futures symbol request failed")
	}
	if resp == nil {
		return nil, protocol.Pair{}, market.Errorf(market.ErrUpstreamProtocol, "kucoin", "empty futures payload for %s", futuresSymbol(res.Pair))
	}
	return resp, res.Pair, nil
}

func (k *KuCoin) Ticker(ctx context.Context, symbol string, mode market.Mode) (market.TickerRecord, error) {
	if mode == market.ModeContract {
		resp, pair, err := k.getFuturesSymbol(ctx, symbol)
		if err != nil {
			return market.TickerRecord{}, err
		}
		return market.TickerRecord{
			InstID:    pair.Canonical(),
			Last:      float64(resp.LastTradePrice),
			High24h:   market.Float(float64(resp.HighPrice)),
			Low24h:    market.Float(float64(resp.LowPrice)),
			Volume24h: market.Float(float64(resp.VolumeOf24h)),
		}, nil
	}

	res, err := protocol.ValidateSymbol(symbol, mode, k.Capability(), k.Format())
	if err != nil {
		return market.TickerRecord{}, err
	}

	var stats struct {
		Symbol      string `json:"symbol"`
		Buy         string `json:"buy"`
		Sell        string `json:"sell"`
		High        string `json:"high"`
		Low         string `json:"low"`
		Last        string `json:"last"`
		Vol         string `json:"vol"`
		ChangeRate  string `json:"changeRate"`
		ChangePrice string `json:"changePrice"`
	}
	if err := k.getSpot(ctx, "/api/v1/market/stats", map[string]string{"symbol": res.SourceSymbol}, &stats); err != nil {
		return market.TickerRecord{}, err
	}

	rec := market.TickerRecord{InstID: res.Pair.Canonical(), Last: atof(stats.Last)}
	if v, ok := atofOK(stats.Buy); ok {
		rec.Bid = market.Float(v)
	}
	if v, ok := atofOK(stats.Sell); ok {
		rec.Ask = market.Float(v)
	}
	if v, ok := atofOK(stats.High); ok {
		rec.High24h = market.Float(v)
	}
	if v, ok := atofOK(stats.Low); ok {
		rec.Low24h = market.Float(v)
	}
	if v, ok := atofOK(stats.Vol); ok {
		rec.Volume24h = market.Float(v)
	}
	if v, ok := atofOK(stats.ChangePrice); ok {
		rec.Change24h = market.Float(v)
	}
	if v, ok := atofOK(stats.ChangeRate); ok {
		rec.Change24hPct = market.Float(v * 100)
	}
	return rec, nil
}

func (k *KuCoin) FundingRate(ctx context.Context, symbol string) (market.FundingRateRecord, error) {
	resp, pair, err := k.getFuturesSymbol(ctx, symbol)
	if err != nil {
		return market.FundingRateRecord{}, err
	}

	// NextFundingRateTime is the countdown to the next settlement in
	// milliseconds, not an absolute time.
	rec := market.FundingRateRecord{
		InstID:          pair.Canonical(),
		Rate:            float64(resp.FundingFeeRate),
		Timestamp:       nowSeconds(),
		IntervalHours:   8,
		NextFundingTime: nowSeconds() + int64(resp.NextFundingRateTime)/1000,
		IndexPrice:      market.Float(float64(resp.IndexPrice)),
		QuoteCurrency:   pair.Quote,
	}

	piReq := futuresmarket.NewGetPremiumIndexReqBuilder().
		SetSymbol(futuresSymbol(pair)).
		SetMaxCount(1).
		Build()
	if pi, err := k.marketAPI.GetPremiumIndex(piReq, ctx); err == nil && pi != nil && len(pi.DataList) > 0 {
		rec.Premium = market.Float(pi.DataList[0].Value)
		rec.Timestamp = protocol.FromSourceTimestamp(pi.DataList[0].TimePoint, protocol.UnitMillis)
	}
	return rec, nil
}

func (k *KuCoin) ContractBasis(ctx context.Context, req BasisRequest) (market.ContractBasisRecord, error) {
	if req.ContractType != "" && req.ContractType != market.ContractPerpetual {
		return market.ContractBasisRecord{}, market.Errorf(market.ErrSymbolNotSupported, "kucoin", "contract type %s not supported", req.ContractType)
	}
	resp, pair, err := k.getFuturesSymbol(ctx, req.Symbol)
	if err != nil {
		return market.ContractBasisRecord{}, err
	}

	mark := float64(resp.MarkPrice)
	index := float64(resp.IndexPrice)
	if index == 0 {
		return market.ContractBasisRecord{}, market.Errorf(market.ErrUpstreamProtocol, "kucoin", "zero index price for %s", futuresSymbol(pair))
	}

	basis := mark - index
	return market.ContractBasisRecord{
		InstID:          pair.Canonical(),
		ContractType:    market.ContractPerpetual,
		Basis:           basis,
		BasisRate:       basis / index * 100,
		ContractPrice:   mark,
		ReferenceSymbol: pair.Canonical(),
		ReferencePrice:  index,
		Timestamp:       nowSeconds(),
		QuoteCurrency:   pair.Quote,
	}, nil
}
