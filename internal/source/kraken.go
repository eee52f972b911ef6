package source

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"marketgrid/internal/market"
	"marketgrid/internal/protocol"
	"marketgrid/logger"
)

const krakenDefaultBaseURL = "https://api.kraken.com"

// Kraken serves spot data from the Kraken public API. Kraken spells bitcoin
// XBT and keys results by its own normalized pair names, so result maps are
// scanned rather than indexed.
type Kraken struct {
	baseURL string
	client  *http.Client
	log     *logger.Entry
}

func NewKraken(client *http.Client, baseURL string) *Kraken {
	if baseURL == "" {
		baseURL = krakenDefaultBaseURL
	}
	if client == nil {
		client = NewHTTPClient(0, "")
	}
	return &Kraken{
		baseURL: baseURL,
		client:  client,
		log:     logger.GetLogger().WithComponent("kraken_adapter"),
	}
}

func (k *Kraken) Name() string { return "kraken" }

func (k *Kraken) Metadata() market.SourceMetadata {
	return market.SourceMetadata{
		Name:        "kraken",
		DisplayName: "Kraken",
		Kind:        market.KindExchange,
		Website:     "https://www.kraken.com",
		APIBaseURL:  k.baseURL,
		Active:      true,
	}
}

func (k *Kraken) Capability() market.Capability {
	return market.Capability{
		Candles:            true,
		Granularities:      []string{"1m", "5m", "15m", "30m", "1h", "4h", "1d", "1w"},
		CandleLimit:        720,
		Ticker:             true,
		Modes:              []market.Mode{market.ModeSpot},
		RateLimitPerMinute: 60,
	}
}

func (k *Kraken) Format() protocol.Format {
	return protocol.Format{
		Separator:   "",
		TimeUnit:    protocol.UnitSeconds,
		BaseAliases: map[string]string{"BTC": "XBT"},
		Granularities: map[string]string{
			"1m": "1", "5m": "5", "15m": "15", "30m": "30",
			"1h": "60", "4h": "240", "1d": "1440", "1w": "10080",
		},
	}
}

// getPublic unwraps the {error, result} envelope and returns the single
// pair-keyed entry from result.
func (k *Kraken) getPublic(ctx context.Context, path string, params map[string]string) (json.RawMessage, error) {
	var env struct {
		Error  []string                   `json:"error"`
		Result map[string]json.RawMessage `json:"result"`
	}
	if err := getJSON(ctx, k.client, "kraken", query(k.baseURL+path, params), &env); err != nil {
		k.log.WithError(err).Warn("upstream request failed")
		return nil, err
	}
	if len(env.Error) > 0 {
		var err error
		if strings.Contains(env.Error[0], "Rate limit") {
			err = market.Errorf(market.ErrRateLimited, "kraken", "upstream throttled: %s", env.Error[0])
		} else {
			err = market.Errorf(market.ErrUpstreamProtocol, "kraken", "upstream error: %s", strings.Join(env.Error, "; "))
		}
		k.log.WithError(err).Warn("upstream rejected the request")
		return nil, err
	}
	for key, raw := range env.Result {
		if key == "last" {
			continue
		}
		return raw, nil
	}
	return nil, market.NewError(market.ErrUpstreamProtocol, "kraken", "empty result payload")
}

func (k *Kraken) Candles(ctx context.Context, req CandleRequest) (market.CandleResult, error) {
	res, err := protocol.ValidateRequest(req.Symbol, req.Bar, req.Mode, k.Capability(), k.Format())
	if err != nil {
		return market.CandleResult{}, err
	}

	params := map[string]string{
		"pair":     res.SourceSymbol,
		"interval": res.SourceBar,
	}
	if req.After > 0 {
		params["since"] = strconv.FormatInt(req.After, 10)
	}

	raw, err := k.getPublic(ctx, "/0/public/OHLC", params)
	if err != nil {
		return market.CandleResult{}, err
	}

	// Row layout is time(number), open, high, low, close, vwap, volume,
	// count; columns mix numbers and strings.
	var rows [][]json.RawMessage
	if err := json.Unmarshal(raw, &rows); err != nil {
		return market.CandleResult{}, market.WrapError(market.ErrUpstreamProtocol, "kraken", err, "decoding ohlc rows")
	}

	candles := make([]market.CandleRecord, 0, len(rows))
	for _, row := range rows {
		if len(row) < 7 {
			return market.CandleResult{}, market.Errorf(market.ErrUpstreamProtocol, "kraken", "ohlc row has %d columns", len(row))
		}
		var ts float64
		if err := json.Unmarshal(row[0], &ts); err != nil {
			return market.CandleResult{}, market.WrapError(market.ErrUpstreamProtocol, "kraken", err, "decoding ohlc timestamp")
		}
		var o, h, l, c, vol string
		for i, dst := range []*string{&o, &h, &l, &c} {
			if err := json.Unmarshal(row[i+1], dst); err != nil {
				return market.CandleResult{}, market.WrapError(market.ErrUpstreamProtocol, "kraken", err, "decoding ohlc column")
			}
		}
		if err := json.Unmarshal(row[6], &vol); err != nil {
			return market.CandleResult{}, market.WrapError(market.ErrUpstreamProtocol, "kraken", err, "decoding ohlc volume")
		}
		candles = append(candles, market.CandleRecord{
			Time:   int64(ts),
			Open:   atof(o),
			High:   atof(h),
			Low:    atof(l),
			Close:  atof(c),
			Volume: atof(vol),
		})
	}
	normalized := protocol.NormalizeCandles(candles, protocol.UnitSeconds)
	if req.Before > 0 {
		trimmed := normalized[:0]
		for _, c := range normalized {
			if c.Time <= req.Before {
				trimmed = append(trimmed, c)
			}
		}
		normalized = trimmed
	}
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

func (k *Kraken) Ticker(ctx context.Context, symbol string, mode market.Mode) (market.TickerRecord, error) {
	res, err := protocol.ValidateSymbol(symbol, mode, k.Capability(), k.Format())
	if err != nil {
		return market.TickerRecord{}, err
	}

	raw, err := k.getPublic(ctx, "/0/public/Ticker", map[string]string{"pair": res.SourceSymbol})
	if err != nil {
		return market.TickerRecord{}, err
	}

	var t struct {
		C []string `json:"c"` // last trade [price, lot volume]
		B []string `json:"b"` // best bid [price, whole lot volume, lot volume]
		A []string `json:"a"` // best ask
		H []string `json:"h"` // high [today, last 24h]
		L []string `json:"l"` // low
		V []string `json:"v"` // volume
		O string   `json:"o"` // today's opening price
	}
	if err := json.Unmarshal(raw, &t); err != nil {
		return market.TickerRecord{}, market.WrapError(market.ErrUpstreamProtocol, "kraken", err, "decoding ticker")
	}
	if len(t.C) == 0 {
		return market.TickerRecord{}, market.NewError(market.ErrUpstreamProtocol, "kraken", "ticker has no last trade")
	}

	rec := market.TickerRecord{InstID: res.Pair.Canonical(), Last: atof(t.C[0])}
	if len(t.B) > 0 {
		if v, ok := atofOK(t.B[0]); ok {
			rec.Bid = market.Float(v)
		}
	}
	if len(t.A) > 0 {
		if v, ok := atofOK(t.A[0]); ok {
			rec.Ask = market.Float(v)
		}
	}
	if len(t.H) > 1 {
		if v, ok := atofOK(t.H[1]); ok {
			rec.High24h = market.Float(v)
		}
	}
	if len(t.L) > 1 {
		if v, ok := atofOK(t.L[1]); ok {
			rec.Low24h = market.Float(v)
		}
	}
	if len(t.V) > 1 {
		if v, ok := atofOK(t.V[1]); ok {
			rec.Volume24h = market.Float(v)
		}
	}
	if open, ok := atofOK(t.O); ok && open != 0 {
		change := rec.Last - open
		rec.Change24h = market.Float(change)
		rec.Change24hPct = market.Float(change / open * 100)
	}
	return rec, nil
}
