package source

import (
	"context"
	"encoding/json"
	"net/http"

	"marketgrid/internal/market"
	"marketgrid/internal/protocol"
	"marketgrid/logger"

	bybit "github.com/bybit-exchange/bybit.go.api"
)

// Bybit serves spot and linear-perpetual data from the Bybit v5 unified API.
// One client covers both; the category parameter selects the market.
type Bybit struct {
	client *bybit.Client
	log    *logger.Entry
}

// NewBybit builds the Bybit adapter.
func NewBybit(httpClient *http.Client, baseURL string) *Bybit {
	var client *bybit.Client
	if baseURL != "" {
		client = bybit.NewBybitHttpClient("", "", bybit.WithBaseURL(baseURL))
	} else {
		client = bybit.NewBybitHttpClient("", "")
	}
	if httpClient != nil {
		client.HTTPClient = httpClient
	}
	return &Bybit{
		client: client,
		log:    logger.GetLogger().WithComponent("bybit_adapter"),
	}
}

func (b *Bybit) Name() string { return "bybit" }

func (b *Bybit) Metadata() market.SourceMetadata {
	return market.SourceMetadata{
		Name:        "bybit",
		DisplayName: "Bybit",
		Kind:        market.KindExchange,
		Website:     "https://www.bybit.com",
		APIBaseURL:  "https://api.bybit.com",
		Active:      true,
	}
}

func (b *Bybit) Capability() market.Capability {
	return market.Capability{
		Candles: true,
		Granularities: []string{
			"1m", "3m", "5m", "15m", "30m",
			"1h", "2h", "4h", "6h", "12h",
			"1d", "1w", "1M",
		},
		CandleLimit:        1000,
		Ticker:             true,
		Modes:              []market.Mode{market.ModeSpot, market.ModeContract},
		RateLimitPerMinute: 600,
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

func (b *Bybit) Format() protocol.Format {
	return protocol.Format{
		Separator: "",
		TimeUnit:  protocol.UnitMillis,
		Granularities: map[string]string{
			"1m": "1", "3m": "3", "5m": "5", "15m": "15", "30m": "30",
			"1h": "60", "2h": "120", "4h": "240", "6h": "360", "12h": "720",
			"1d": "D", "1w": "W", "1M": "M",
		},
	}
}

func category(mode market.Mode) string {
	if mode == market.ModeContract {
		return "linear"
	}
	return "spot"
}

// decodeResult maps a unified-API response into the taxonomy and decodes
// Result into out through a marshal round trip, since the SDK types Result
// as interface{}.
func (b *Bybit) decodeResult(resp *bybit.ServerResponse, err error, out interface{}) error {
	if err != nil {
		b.log.WithError(err).Warn("upstream request failed")
		return market.WrapError(market.ErrUpstreamUnavailable, "bybit", err, "upstream request failed")
	}
	if resp == nil {
		return market.NewError(market.ErrUpstreamProtocol, "bybit", "empty response")
	}
	if resp.RetCode != 0 {
		var rerr error
		if resp.RetCode == 10006 {
			rerr = market.Errorf(market.ErrRateLimited, "bybit", "upstream throttled: %s", resp.RetMsg)
		} else {
			rerr = market.Errorf(market.ErrUpstreamProtocol, "bybit", "upstream code %d: %s", resp.RetCode, resp.RetMsg)
		}
		b.log.WithError(rerr).Warn("upstream rejected the request")
		return rerr
	}
	payload, err := json.Marshal(resp.Result)
	if err != nil {
		return market.WrapError(market.ErrUpstreamProtocol, "bybit", err, "marshaling result")
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return market.WrapError(market.ErrUpstreamProtocol, "bybit", err, "decoding result")
	}
	return nil
}

func (b *Bybit) Candles(ctx context.Context, req CandleRequest) (market.CandleResult, error) {
	res, err := protocol.ValidateRequest(req.Symbol, req.Bar, req.Mode, b.Capability(), b.Format())
	if err != nil {
		return market.CandleResult{}, err
	}

	params := map[string]interface{}{
		"category": category(req.Mode),
		"symbol":   res.SourceSymbol,
		"interval": res.SourceBar,
	}
	if req.Limit > 0 {
		params["limit"] = req.Limit
	}
	if req.After > 0 {
		params["start"] = protocol.ToSourceTimestamp(req.After, protocol.UnitMillis)
	}
	if req.Before > 0 {
		params["end"] = protocol.ToSourceTimestamp(req.Before, protocol.UnitMillis)
	}

	var result struct {
		List [][]string `json:"list"`
	}
	resp, err := b.client.NewUtaBybitServiceWithParams(params).GetMarketKline(ctx)
	if err := b.decodeResult(resp, err, &result); err != nil {
		return market.CandleResult{}, err
	}

	candles := make([]market.CandleRecord, 0, len(result.List))
	for _, row := range result.List {
		if len(row) < 6 {
			return market.CandleResult{}, market.Errorf(market.ErrUpstreamProtocol, "bybit", "kline row has %d columns", len(row))
		}
		candles = append(candles, market.CandleRecord{
			Time:   atoi64(row[0]),
			Open:   atof(row[1]),
			High:   atof(row[2]),
			Low:    atof(row[3]),
			Close:  atof(row[4]),
			Volume: atof(row[5]),
		})
	}

	return market.CandleResult{
		Candles:  protocol.NormalizeCandles(candles, protocol.UnitMillis),
		Bar:      req.Bar,
		BarUsed:  res.Bar,
		Degraded: res.Degraded,
		Advisory: res.Advisory,
	}, nil
}

// bybitTicker is the shared shape of spot and linear ticker rows; linear
// rows additionally carry mark/index prices and funding fields.
type bybitTicker struct {
	Symbol          string `json:"symbol"`
	LastPrice       string `json:"lastPrice"`
	Bid1Price       string `json:"bid1Price"`
	Ask1Price       string `json:"ask1Price"`
	HighPrice24h    string `json:"highPrice24h"`
	LowPrice24h     string `json:"lowPrice24h"`
	PrevPrice24h    string `json:"prevPrice24h"`
	Price24hPcnt    string `json:"price24hPcnt"`
	Volume24h       string `json:"volume24h"`
	MarkPrice       string `json:"markPrice"`
	IndexPrice      string `json:"indexPrice"`
	FundingRate     string `json:"fundingRate"`
	NextFundingTime string `json:"nextFundingTime"`
}

func (b *Bybit) fetchTicker(ctx context.Context, srcSymbol string, mode market.Mode) (bybitTicker, error) {
	params := map[string]interface{}{
		"category": category(mode),
		"symbol":   srcSymbol,
	}
	var result struct {
		List []bybitTicker `json:"list"`
	}
	resp, err := b.client.NewUtaBybitServiceWithParams(params).GetMarketTickers(ctx)
	if err := b.decodeResult(resp, err, &result); err != nil {
		return bybitTicker{}, err
	}
	if len(result.List) == 0 {
		return bybitTicker{}, market.Errorf(market.ErrUpstreamProtocol, "bybit", "empty ticker payload for %s", srcSymbol)
	}
	return result.List[0], nil
}

func (b *Bybit) Ticker(ctx context.Context, symbol string, mode market.Mode) (market.TickerRecord, error) {
	res, err := protocol.ValidateSymbol(symbol, mode, b.Capability(), b.Format())
	if err != nil {
		return market.TickerRecord{}, err
	}
	t, err := b.fetchTicker(ctx, res.SourceSymbol, mode)
	if err != nil {
		return market.TickerRecord{}, err
	}

	rec := market.TickerRecord{InstID: res.Pair.Canonical(), Last: atof(t.LastPrice)}
	if v, ok := atofOK(t.Bid1Price); ok {
		rec.Bid = market.Float(v)
	}
	if v, ok := atofOK(t.Ask1Price); ok {
		rec.Ask = market.Float(v)
	}
	if v, ok := atofOK(t.HighPrice24h); ok {
		rec.High24h = market.Float(v)
	}
	if v, ok := atofOK(t.LowPrice24h); ok {
		rec.Low24h = market.Float(v)
	}
	if v, ok := atofOK(t.Volume24h); ok {
		rec.Volume24h = market.Float(v)
	}
	if pct, ok := atofOK(t.Price24hPcnt); ok {
		rec.Change24hPct = market.Float(pct * 100)
		if prev, ok2 := atofOK(t.PrevPrice24h); ok2 {
			rec.Change24h = market.Float(rec.Last - prev)
		}
	}
	return rec, nil
}

// fundingFromTicker derives the funding record from a linear ticker row.
// The payload carries no funding time, so the record is stamped with the
// sample time.
func fundingFromTicker(pair protocol.Pair, t bybitTicker, sampledAt int64) market.FundingRateRecord {
	rec := market.FundingRateRecord{
		InstID:          pair.Canonical(),
		Rate:            atof(t.FundingRate),
		Timestamp:       sampledAt,
		NextFundingTime: atoi64(t.NextFundingTime),
		IntervalHours:   8,
		QuoteCurrency:   pair.Quote,
	}
	if v, ok := atofOK(t.IndexPrice); ok {
		rec.IndexPrice = market.Float(v)
		if mark, ok2 := atofOK(t.MarkPrice); ok2 && v != 0 {
			rec.Premium = market.Float((mark - v) / v)
		}
	}
	return protocol.NormalizeFundingRate(rec, protocol.UnitMillis)
}

func (b *Bybit) FundingRate(ctx context.Context, symbol string) (market.FundingRateRecord, error) {
	res, err := protocol.ValidateSymbol(symbol, market.ModeContract, b.Capability(), b.Format())
	if err != nil {
		return market.FundingRateRecord{}, err
	}
	t, err := b.fetchTicker(ctx, res.SourceSymbol, market.ModeContract)
	if err != nil {
		return market.FundingRateRecord{}, err
	}
	return fundingFromTicker(res.Pair, t, nowSeconds()), nil
}

func (b *Bybit) FundingHistory(ctx context.Context, symbol string, limit int) ([]market.FundingRateRecord, error) {
	res, err := protocol.ValidateSymbol(symbol, market.ModeContract, b.Capability(), b.Format())
	if err != nil {
		return nil, err
	}

	params := map[string]interface{}{
		"category": "linear",
		"symbol":   res.SourceSymbol,
	}
	if limit > 0 {
		params["limit"] = limit
	}
	var result struct {
		List []bybitFundingRow `json:"list"`
	}
	resp, err := b.client.NewUtaBybitServiceWithParams(params).GetFundingRateHistory(ctx)
	if err := b.decodeResult(resp, err, &result); err != nil {
		return nil, err
	}
	return fundingHistoryRecords(res.Pair, result.List), nil
}

// bybitFundingRow is one settled funding entry from the history endpoint.
type bybitFundingRow struct {
	FundingRate          string `json:"fundingRate"`
	FundingRateTimestamp string `json:"fundingRateTimestamp"`
}

func fundingHistoryRecords(pair protocol.Pair, rows []bybitFundingRow) []market.FundingRateRecord {
	out := make([]market.FundingRateRecord, 0, len(rows))
	for _, f := range rows {
		out = append(out, protocol.NormalizeFundingRate(market.FundingRateRecord{
			InstID:        pair.Canonical(),
			Rate:          atof(f.FundingRate),
			Timestamp:     atoi64(f.FundingRateTimestamp),
			IntervalHours: 8,
			QuoteCurrency: pair.Quote,
		}, protocol.UnitMillis))
	}
	return out
}

func (b *Bybit) ContractBasis(ctx context.Context, req BasisRequest) (market.ContractBasisRecord, error) {
	if req.ContractType != "" && req.ContractType != market.ContractPerpetual {
		return market.ContractBasisRecord{}, market.Errorf(market.ErrSymbolNotSupported, "bybit", "contract type %s not supported", req.ContractType)
	}
	res, err := protocol.ValidateSymbol(req.Symbol, market.ModeContract, b.Capability(), b.Format())
	if err != nil {
		return market.ContractBasisRecord{}, err
	}
	t, err := b.fetchTicker(ctx, res.SourceSymbol, market.ModeContract)
	if err != nil {
		return market.ContractBasisRecord{}, err
	}

	mark := atof(t.MarkPrice)
	index := atof(t.IndexPrice)
	if index == 0 {
		return market.ContractBasisRecord{}, market.Errorf(market.ErrUpstreamProtocol, "bybit", "zero index price for %s", res.SourceSymbol)
	}

	basis := mark - index
	return market.ContractBasisRecord{
		InstID:          res.Pair.Canonical(),
		ContractType:    market.ContractPerpetual,
		Basis:           basis,
		BasisRate:       basis / index * 100,
		ContractPrice:   mark,
		ReferenceSymbol: res.Pair.Canonical(),
		ReferencePrice:  index,
		Timestamp:       nowSeconds(),
		QuoteCurrency:   res.Pair.Quote,
	}, nil
}
