package source

import (
	"context"
	"net/http"
	"strconv"

	"marketgrid/internal/market"
	"marketgrid/internal/protocol"
	"marketgrid/logger"
)

const coinbaseDefaultBaseURL = "https://api.exchange.coinbase.com"

// Coinbase serves spot data from the Coinbase Exchange API. Timestamps are
// second-resolution and candle granularity is a duration in seconds.
type Coinbase struct {
	baseURL string
	client  *http.Client
	log     *logger.Entry
}

func NewCoinbase(client *http.Client, baseURL string) *Coinbase {
	if baseURL == "" {
		baseURL = coinbaseDefaultBaseURL
	}
	if client == nil {
		client = NewHTTPClient(0, "")
	}
	return &Coinbase{
		baseURL: baseURL,
		client:  client,
		log:     logger.GetLogger().WithComponent("coinbase_adapter"),
	}
}

func (c *Coinbase) Name() string { return "coinbase" }

func (c *Coinbase) Metadata() market.SourceMetadata {
	return market.SourceMetadata{
		Name:        "coinbase",
		DisplayName: "Coinbase Exchange",
		Kind:        market.KindExchange,
		Website:     "https://www.coinbase.com",
		APIBaseURL:  c.baseURL,
		Active:      true,
	}
}

func (c *Coinbase) Capability() market.Capability {
	return market.Capability{
		Candles:            true,
		Granularities:      []string{"1m", "5m", "15m", "1h", "6h", "1d"},
		CandleLimit:        300,
		Ticker:             true,
		Modes:              []market.Mode{market.ModeSpot},
		RateLimitPerMinute: 600,
	}
}

func (c *Coinbase) Format() protocol.Format {
	return protocol.Format{
		Separator:    "-",
		TimeUnit:     protocol.UnitSeconds,
		QuoteAliases: map[string]string{"USDT": "USD"},
		Granularities: map[string]string{
			"1m": "60", "5m": "300", "15m": "900",
			"1h": "3600", "6h": "21600", "1d": "86400",
		},
	}
}

func (c *Coinbase) Candles(ctx context.Context, req CandleRequest) (market.CandleResult, error) {
	res, err := protocol.ValidateRequest(req.Symbol, req.Bar, req.Mode, c.Capability(), c.Format())
	if err != nil {
		return market.CandleResult{}, err
	}

	params := map[string]string{"granularity": res.SourceBar}
	if req.After > 0 {
		params["start"] = strconv.FormatInt(req.After, 10)
	}
	if req.Before > 0 {
		params["end"] = strconv.FormatInt(req.Before, 10)
	}

	// Row layout is time, low, high, open, close, volume with numeric
	// columns, unlike the string-typed exchanges.
	var rows [][]float64
	if err := getJSON(ctx, c.client, "coinbase",
		query(c.baseURL+"/products/"+res.SourceSymbol+"/candles", params), &rows); err != nil {
		c.log.WithError(err).Warn("upstream request failed")
		return market.CandleResult{}, err
	}

	candles := make([]market.CandleRecord, 0, len(rows))
	for _, row := range rows {
		if len(row) < 6 {
			return market.CandleResult{}, market.Errorf(market.ErrUpstreamProtocol, "coinbase", "candle row has %d columns", len(row))
		}
		candles = append(candles, market.CandleRecord{
			Time:   int64(row[0]),
			Low:    row[1],
			High:   row[2],
			Open:   row[3],
			Close:  row[4],
			Volume: row[5],
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

func (c *Coinbase) Ticker(ctx context.Context, symbol string, mode market.Mode) (market.TickerRecord, error) {
	res, err := protocol.ValidateSymbol(symbol, mode, c.Capability(), c.Format())
	if err != nil {
		return market.TickerRecord{}, err
	}

	var tick struct {
		Price  string `json:"price"`
		Bid    string `json:"bid"`
		Ask    string `json:"ask"`
		Volume string `json:"volume"`
	}
	if err := getJSON(ctx, c.client, "coinbase", c.baseURL+"/products/"+res.SourceSymbol+"/ticker", &tick); err != nil {
		c.log.WithError(err).Warn("upstream request failed")
		return market.TickerRecord{}, err
	}

	var stats struct {
		Open string `json:"open"`
		High string `json:"high"`
		Low  string `json:"low"`
	}
	if err := getJSON(ctx, c.client, "coinbase", c.baseURL+"/products/"+res.SourceSymbol+"/stats", &stats); err != nil {
		c.log.WithError(err).Warn("upstream request failed")
		return market.TickerRecord{}, err
	}

	rec := market.TickerRecord{InstID: res.Pair.Canonical(), Last: atof(tick.Price)}
	if v, ok := atofOK(tick.Bid); ok {
		rec.Bid = market.Float(v)
	}
	if v, ok := atofOK(tick.Ask); ok {
		rec.Ask = market.Float(v)
	}
	if v, ok := atofOK(stats.High); ok {
		rec.High24h = market.Float(v)
	}
	if v, ok := atofOK(stats.Low); ok {
		rec.Low24h = market.Float(v)
	}
	if v, ok := atofOK(tick.Volume); ok {
		rec.Volume24h = market.Float(v)
	}
	if open, ok := atofOK(stats.Open); ok && open != 0 {
		change := rec.Last - open
		rec.Change24h = market.Float(change)
		rec.Change24hPct = market.Float(change / open * 100)
	}
	return rec, nil
}
