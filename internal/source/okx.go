package source

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"marketgrid/internal/market"
	"marketgrid/internal/protocol"
	"marketgrid/logger"
)

const okxDefaultBaseURL = "https://www.okx.com"

// OKX serves spot and perpetual-swap data from the OKX v5 REST API. Swap
// instruments are addressed by appending -SWAP to the spot instrument id.
type OKX struct {
	baseURL string
	client  *http.Client
	log     *logger.Entry
}

// NewOKX builds the OKX adapter. An empty baseURL selects the public
// endpoint.
func NewOKX(client *http.Client, baseURL string) *OKX {
	if baseURL == "" {
		baseURL = okxDefaultBaseURL
	}
	if client == nil {
		client = NewHTTPClient(0, "")
	}
	return &OKX{
		baseURL: baseURL,
		client:  client,
		log:     logger.GetLogger().WithComponent("okx_adapter"),
	}
}

func (o *OKX) Name() string { return "okx" }

func (o *OKX) Metadata() market.SourceMetadata {
	return market.SourceMetadata{
		Name:        "okx",
		DisplayName: "OKX",
		Kind:        market.KindExchange,
		Website:     "https://www.okx.com",
		APIBaseURL:  o.baseURL,
		Active:      true,
	}
}

func (o *OKX) Capability() market.Capability {
	return market.Capability{
		Candles: true,
		Granularities: []string{
			"1s", "1m", "3m", "5m", "15m", "30m",
			"1h", "2h", "4h", "6h", "12h", "1d", "1w", "1M",
		},
		CandleLimit:        300,
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

func (o *OKX) Format() protocol.Format {
	return protocol.Format{
		Separator: "-",
		TimeUnit:  protocol.UnitMillis,
		Granularities: map[string]string{
			"1s": "1s", "1m": "1m", "3m": "3m", "5m": "5m",
			"15m": "15m", "30m": "30m",
			"1h": "1H", "2h": "2H", "4h": "4H", "6h": "6H", "12h": "12H",
			"1d": "1D", "1w": "1W", "1M": "1M",
		},
	}
}

// instID renders the native instrument id for a mode.
func (o *OKX) instID(srcSymbol string, mode market.Mode) string {
	if mode == market.ModeContract {
		return srcSymbol + "-SWAP"
	}
	return srcSymbol
}

// get unwraps the uniform v5 envelope around every OKX response.
func (o *OKX) get(ctx context.Context, path string, params map[string]string, data interface{}) error {
	var env struct {
		Code string          `json:"code"`
		Msg  string          `json:"msg"`
		Data json.RawMessage `json:"data"`
	}
	if err := getJSON(ctx, o.client, "okx", query(o.baseURL+path, params), &env); err != nil {
		o.log.WithError(err).Warn("upstream request failed")
		return err
	}
	if env.Code != "0" {
		err := market.Errorf(market.ErrUpstreamProtocol, "okx", "upstream code %s: %s", env.Code, env.Msg)
		o.log.WithError(err).Warn("upstream rejected the request")
		return err
	}
	if err := json.Unmarshal(env.Data, data); err != nil {
		return market.WrapError(market.ErrUpstreamProtocol, "okx", err, "decoding data payload")
	}
	return nil
}

func (o *OKX) Candles(ctx context.Context, req CandleRequest) (market.CandleResult, error) {
	res, err := protocol.ValidateRequest(req.Symbol, req.Bar, req.Mode, o.Capability(), o.Format())
	if err != nil {
		return market.CandleResult{}, err
	}

	params := map[string]string{
		"instId": o.instID(res.SourceSymbol, req.Mode),
		"bar":    res.SourceBar,
	}
	if req.Limit > 0 {
		params["limit"] = strconv.Itoa(req.Limit)
	}
	// OKX paginates backwards: "after" returns rows older than the cursor
	// and "before" rows newer, so the canonical bounds swap names here.
	if req.Before > 0 {
		params["after"] = strconv.FormatInt(protocol.ToSourceTimestamp(req.Before, protocol.UnitMillis), 10)
	}
	if req.After > 0 {
		params["before"] = strconv.FormatInt(protocol.ToSourceTimestamp(req.After, protocol.UnitMillis), 10)
	}

	var rows [][]string
	if err := o.get(ctx, "/api/v5/market/candles", params, &rows); err != nil {
		return market.CandleResult{}, err
	}

	candles := make([]market.CandleRecord, 0, len(rows))
	for _, row := range rows {
		if len(row) < 6 {
			return market.CandleResult{}, market.Errorf(market.ErrUpstreamProtocol, "okx", "candle row has %d columns", len(row))
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

func (o *OKX) Ticker(ctx context.Context, symbol string, mode market.Mode) (market.TickerRecord, error) {
	res, err := protocol.ValidateSymbol(symbol, mode, o.Capability(), o.Format())
	if err != nil {
		return market.TickerRecord{}, err
	}
	instID := o.instID(res.SourceSymbol, mode)

	var rows []struct {
		InstID  string `json:"instId"`
		Last    string `json:"last"`
		BidPx   string `json:"bidPx"`
		AskPx   string `json:"askPx"`
		High24h string `json:"high24h"`
		Low24h  string `json:"low24h"`
		Open24h string `json:"open24h"`
		Vol24h  string `json:"vol24h"`
	}
	if err := o.get(ctx, "/api/v5/market/ticker", map[string]string{"instId": instID}, &rows); err != nil {
		return market.TickerRecord{}, err
	}
	if len(rows) == 0 {
		return market.TickerRecord{}, market.Errorf(market.ErrUpstreamProtocol, "okx", "empty ticker payload for %s", instID)
	}
	t := rows[0]

	rec := market.TickerRecord{InstID: res.Pair.Canonical(), Last: atof(t.Last)}
	if v, ok := atofOK(t.BidPx); ok {
		rec.Bid = market.Float(v)
	}
	if v, ok := atofOK(t.AskPx); ok {
		rec.Ask = market.Float(v)
	}
	if v, ok := atofOK(t.High24h); ok {
		rec.High24h = market.Float(v)
	}
	if v, ok := atofOK(t.Low24h); ok {
		rec.Low24h = market.Float(v)
	}
	if v, ok := atofOK(t.Vol24h); ok {
		rec.Volume24h = market.Float(v)
	}
	if open, ok := atofOK(t.Open24h); ok && open != 0 {
		change := rec.Last - open
		rec.Change24h = market.Float(change)
		rec.Change24hPct = market.Float(change / open * 100)
	}
	return rec, nil
}

func (o *OKX) FundingRate(ctx context.Context, symbol string) (market.FundingRateRecord, error) {
	res, err := protocol.ValidateSymbol(symbol, market.ModeContract, o.Capability(), o.Format())
	if err != nil {
		return market.FundingRateRecord{}, err
	}
	instID := o.instID(res.SourceSymbol, market.ModeContract)

	var rows []struct {
		FundingRate     string `json:"fundingRate"`
		NextFundingRate string `json:"nextFundingRate"`
		FundingTime     string `json:"fundingTime"`
		NextFundingTime string `json:"nextFundingTime"`
	}
	if err := o.get(ctx, "/api/v5/public/funding-rate", map[string]string{"instId": instID}, &rows); err != nil {
		return market.FundingRateRecord{}, err
	}
	if len(rows) == 0 {
		return market.FundingRateRecord{}, market.Errorf(market.ErrUpstreamProtocol, "okx", "empty funding payload for %s", instID)
	}
	f := rows[0]

	rec := market.FundingRateRecord{
		InstID:          res.Pair.Canonical(),
		Rate:            atof(f.FundingRate),
		Timestamp:       atoi64(f.FundingTime),
		IntervalHours:   8,
		NextFundingTime: atoi64(f.NextFundingTime),
		QuoteCurrency:   res.Pair.Quote,
	}
	if v, ok := atofOK(f.NextFundingRate); ok {
		rec.PredictedRate = market.Float(v)
	}
	return protocol.NormalizeFundingRate(rec, protocol.UnitMillis), nil
}

func (o *OKX) FundingHistory(ctx context.Context, symbol string, limit int) ([]market.FundingRateRecord, error) {
	res, err := protocol.ValidateSymbol(symbol, market.ModeContract, o.Capability(), o.Format())
	if err != nil {
		return nil, err
	}
	instID := o.instID(res.SourceSymbol, market.ModeContract)

	params := map[string]string{"instId": instID}
	if limit > 0 {
		params["limit"] = strconv.Itoa(limit)
	}
	var rows []struct {
		FundingRate  string `json:"fundingRate"`
		RealizedRate string `json:"realizedRate"`
		FundingTime  string `json:"fundingTime"`
	}
	if err := o.get(ctx, "/api/v5/public/funding-rate-history", params, &rows); err != nil {
		return nil, err
	}

	out := make([]market.FundingRateRecord, 0, len(rows))
	for _, f := range rows {
		out = append(out, protocol.NormalizeFundingRate(market.FundingRateRecord{
			InstID:        res.Pair.Canonical(),
			Rate:          atof(f.FundingRate),
			Timestamp:     atoi64(f.FundingTime),
			IntervalHours: 8,
			QuoteCurrency: res.Pair.Quote,
		}, protocol.UnitMillis))
	}
	return out, nil
}

func (o *OKX) ContractBasis(ctx context.Context, req BasisRequest) (market.ContractBasisRecord, error) {
	if req.ContractType != "" && req.ContractType != market.ContractPerpetual {
		return market.ContractBasisRecord{}, market.Errorf(market.ErrSymbolNotSupported, "okx", "contract type %s not supported", req.ContractType)
	}
	res, err := protocol.ValidateSymbol(req.Symbol, market.ModeContract, o.Capability(), o.Format())
	if err != nil {
		return market.ContractBasisRecord{}, err
	}

	swap, err := o.Ticker(ctx, req.Symbol, market.ModeContract)
	if err != nil {
		return market.ContractBasisRecord{}, err
	}

	var rows []struct {
		IdxPx string `json:"idxPx"`
		Ts    string `json:"ts"`
	}
	if err := o.get(ctx, "/api/v5/market/index-tickers", map[string]string{"instId": res.SourceSymbol}, &rows); err != nil {
		return market.ContractBasisRecord{}, err
	}
	if len(rows) == 0 {
		return market.ContractBasisRecord{}, market.Errorf(market.ErrUpstreamProtocol, "okx", "empty index ticker for %s", res.SourceSymbol)
	}
	index := atof(rows[0].IdxPx)
	if index == 0 {
		return market.ContractBasisRecord{}, market.Errorf(market.ErrUpstreamProtocol, "okx", "zero index price for %s", res.SourceSymbol)
	}

	basis := swap.Last - index
	return protocol.NormalizeBasis(market.ContractBasisRecord{
		InstID:          res.Pair.Canonical(),
		ContractType:    market.ContractPerpetual,
		Basis:           basis,
		BasisRate:       basis / index * 100,
		ContractPrice:   swap.Last,
		ReferenceSymbol: res.Pair.Canonical(),
		ReferencePrice:  index,
		Timestamp:       atoi64(rows[0].Ts),
		QuoteCurrency:   res.Pair.Quote,
	}, protocol.UnitMillis), nil
}
