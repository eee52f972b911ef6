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

const tradingViewDefaultFeedURL = "https://api.binance.com"

// TradingView is a charting source: it mirrors the BINANCE: feed that
// TradingView charts resolve crypto symbols against, over the exchange's
// public REST endpoints. It exists so chart-style consumers can pin their
// requests to the feed a chart displays.
type TradingView struct {
	feedURL string
	client  *http.Client
	log     *logger.Entry
}

func NewTradingView(client *http.Client, feedURL string) *TradingView {
	if feedURL == "" {
		feedURL = tradingViewDefaultFeedURL
	}
	if client == nil {
		client = NewHTTPClient(0, "")
	}
	return &TradingView{
		feedURL: feedURL,
		client:  client,
		log:     logger.GetLogger().WithComponent("tradingview_adapter"),
	}
}

func (t *TradingView) Name() string { return "tradingview" }

func (t *TradingView) Metadata() market.SourceMetadata {
	return market.SourceMetadata{
		Name:         "tradingview",
		DisplayName:  "TradingView (BINANCE feed)",
		Kind:         market.KindCharting,
		Website:      "https://www.tradingview.com",
		APIBaseURL:   t.feedURL,
		Active:       true,
		Experimental: true,
	}
}

func (t *TradingView) Capability() market.Capability {
	return market.Capability{
		Candles: true,
		// Chart resolutions; no sub-minute bars.
		Granularities: []string{
			"1m", "3m", "5m", "15m", "30m",
			"1h", "2h", "4h", "1d", "1w", "1M",
		},
		CandleLimit:        1000,
		Ticker:             true,
		Modes:              []market.Mode{market.ModeSpot},
		RateLimitPerMinute: 120,
	}
}

func (t *TradingView) Format() protocol.Format {
	return protocol.Format{
		Separator: "",
		TimeUnit:  protocol.UnitMillis,
		Granularities: map[string]string{
			"1m": "1m", "3m": "3m", "5m": "5m", "15m": "15m", "30m": "30m",
			"1h": "1h", "2h": "2h", "4h": "4h",
			"1d": "1d", "1w": "1w", "1M": "1M",
		},
	}
}

func (t *TradingView) Candles(ctx context.Context, req CandleRequest) (market.CandleResult, error) {
	res, err := protocol.ValidateRequest(req.Symbol, req.Bar, req.Mode, t.Capability(), t.Format())
	if err != nil {
		return market.CandleResult{}, err
	}

	params := map[string]string{
		"symbol":   res.SourceSymbol,
		"interval": res.SourceBar,
	}
	if req.Limit > 0 {
		params["limit"] = strconv.Itoa(req.Limit)
	}
	if req.After > 0 {
		params["startTime"] = strconv.FormatInt(protocol.ToSourceTimestamp(req.After, protocol.UnitMillis), 10)
	}
	if req.Before > 0 {
		params["endTime"] = strconv.FormatInt(protocol.ToSourceTimestamp(req.Before, protocol.UnitMillis), 10)
	}

	// Kline rows mix numeric timestamps with string-typed prices.
	var rows [][]json.RawMessage
	if err := getJSON(ctx, t.client, "tradingview", query(t.feedURL+"/api/v3/klines", params), &rows); err != nil {
		t.log.WithError(err).Warn("upstream request failed")
		return market.CandleResult{}, err
	}

	candles := make([]market.CandleRecord, 0, len(rows))
	for _, row := range rows {
		if len(row) < 6 {
			return market.CandleResult{}, market.Errorf(market.ErrUpstreamProtocol, "tradingview", "kline row has %d columns", len(row))
		}
		var openTime int64
		if err := json.Unmarshal(row[0], &openTime); err != nil {
			return market.CandleResult{}, market.WrapError(market.ErrUpstreamProtocol, "tradingview", err, "decoding kline timestamp")
		}
		var o, h, l, c, vol string
		for i, dst := range []*string{&o, &h, &l, &c, &vol} {
			if err := json.Unmarshal(row[i+1], dst); err != nil {
				return market.CandleResult{}, market.WrapError(market.ErrUpstreamProtocol, "tradingview", err, "decoding kline column")
			}
		}
		candles = append(candles, market.CandleRecord{
			Time:   openTime,
			Open:   atof(o),
			High:   atof(h),
			Low:    atof(l),
			Close:  atof(c),
			Volume: atof(vol),
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

func (t *TradingView) Ticker(ctx context.Context, symbol string, mode market.Mode) (market.TickerRecord, error) {
	res, err := protocol.ValidateSymbol(symbol, mode, t.Capability(), t.Format())
	if err != nil {
		return market.TickerRecord{}, err
	}

	var s struct {
		LastPrice          string `json:"lastPrice"`
		BidPrice           string `json:"bidPrice"`
		AskPrice           string `json:"askPrice"`
		HighPrice          string `json:"highPrice"`
		LowPrice           string `json:"lowPrice"`
		PriceChange        string `json:"priceChange"`
		PriceChangePercent string `json:"priceChangePercent"`
		Volume             string `json:"volume"`
	}
	if err := getJSON(ctx, t.client, "tradingview",
		query(t.feedURL+"/api/v3/ticker/24hr", map[string]string{"symbol": res.SourceSymbol}), &s); err != nil {
		t.log.WithError(err).Warn("upstream request failed")
		return market.TickerRecord{}, err
	}

	rec := market.TickerRecord{InstID: res.Pair.Canonical(), Last: atof(s.LastPrice)}
	if v, ok := atofOK(s.BidPrice); ok {
		rec.Bid = market.Float(v)
	}
	if v, ok := atofOK(s.AskPrice); ok {
		rec.Ask = market.Float(v)
	}
	if v, ok := atofOK(s.HighPrice); ok {
		rec.High24h = market.Float(v)
	}
	if v, ok := atofOK(s.LowPrice); ok {
		rec.Low24h = market.Float(v)
	}
	if v, ok := atofOK(s.PriceChange); ok {
		rec.Change24h = market.Float(v)
	}
	if v, ok := atofOK(s.PriceChangePercent); ok {
		rec.Change24hPct = market.Float(v)
	}
	if v, ok := atofOK(s.Volume); ok {
		rec.Volume24h = market.Float(v)
	}
	return rec, nil
}
