package source

import (
	"context"
	"net/http"

	"marketgrid/internal/market"
	"marketgrid/internal/protocol"
	"marketgrid/logger"
)

const coingeckoDefaultBaseURL = "https://api.coingecko.com"

// coingeckoVsCurrencies maps canonical quotes onto CoinGecko vs_currency
// identifiers.
var coingeckoVsCurrencies = map[string]string{
	"USDT": "usd",
	"USDC": "usd",
	"USD":  "usd",
	"EUR":  "eur",
	"GBP":  "gbp",
	"BTC":  "btc",
	"ETH":  "eth",
}

// CoinGecko is an aggregator serving index-style tickers only; it addresses
// assets by opaque coin ids rather than pair symbols and has no candle feed.
type CoinGecko struct {
	baseURL string
	client  *http.Client
	log     *logger.Entry
}

func NewCoinGecko(client *http.Client, baseURL string) *CoinGecko {
	if baseURL == "" {
		baseURL = coingeckoDefaultBaseURL
	}
	if client == nil {
		client = NewHTTPClient(0, "")
	}
	return &CoinGecko{
		baseURL: baseURL,
		client:  client,
		log:     logger.GetLogger().WithComponent("coingecko_adapter"),
	}
}

func (g *CoinGecko) Name() string { return "coingecko" }

func (g *CoinGecko) Metadata() market.SourceMetadata {
	return market.SourceMetadata{
		Name:        "coingecko",
		DisplayName: "CoinGecko",
		Kind:        market.KindAggregator,
		Website:     "https://www.coingecko.com",
		APIBaseURL:  g.baseURL,
		Active:      true,
	}
}

func (g *CoinGecko) Capability() market.Capability {
	return market.Capability{
		Candles: false,
		Ticker:  true,
		Symbols: []string{
			"BTCUSDT", "BTCUSD", "ETHUSDT", "ETHUSD",
			"SOLUSDT", "XRPUSDT", "DOGEUSDT", "ADAUSDT",
			"LTCUSDT", "DOTUSDT",
		},
		Modes:              []market.Mode{market.ModeSpot},
		RateLimitPerMinute: 30,
	}
}

func (g *CoinGecko) Format() protocol.Format {
	return protocol.Format{
		TimeUnit: protocol.UnitSeconds,
		CoinIDs: map[string]string{
			"BTC": "bitcoin", "ETH": "ethereum", "SOL": "solana",
			"XRP": "ripple", "DOGE": "dogecoin", "ADA": "cardano",
			"LTC": "litecoin", "DOT": "polkadot",
		},
	}
}

// Candles always fails: the aggregator has no candlestick feed, which the
// capability already declares.
func (g *CoinGecko) Candles(ctx context.Context, req CandleRequest) (market.CandleResult, error) {
	_, err := protocol.ValidateRequest(req.Symbol, req.Bar, req.Mode, g.Capability(), g.Format())
	if err != nil {
		return market.CandleResult{}, err
	}
	return market.CandleResult{}, market.NewError(market.ErrUnsupportedGranularity, "coingecko", "source does not provide candlesticks")
}

func (g *CoinGecko) Ticker(ctx context.Context, symbol string, mode market.Mode) (market.TickerRecord, error) {
	res, err := protocol.ValidateSymbol(symbol, mode, g.Capability(), g.Format())
	if err != nil {
		return market.TickerRecord{}, err
	}
	coinID := res.SourceSymbol
	vs, ok := coingeckoVsCurrencies[res.Pair.Quote]
	if !ok {
		return market.TickerRecord{}, market.Errorf(market.ErrSymbolNotSupported, "coingecko", "no vs_currency for quote %s", res.Pair.Quote)
	}

	var prices map[string]map[string]float64
	u := query(g.baseURL+"/api/v3/simple/price", map[string]string{
		"ids":                 coinID,
		"vs_currencies":       vs,
		"include_24hr_vol":    "true",
		"include_24hr_change": "true",
	})
	if err := getJSON(ctx, g.client, "coingecko", u, &prices); err != nil {
		g.log.WithError(err).Warn("upstream request failed")
		return market.TickerRecord{}, err
	}

	entry, ok := prices[coinID]
	if !ok {
		return market.TickerRecord{}, market.Errorf(market.ErrUpstreamProtocol, "coingecko", "no price entry for %s", coinID)
	}
	last, ok := entry[vs]
	if !ok {
		return market.TickerRecord{}, market.Errorf(market.ErrUpstreamProtocol, "coingecko", "no %s price for %s", vs, coinID)
	}

	rec := market.TickerRecord{InstID: res.Pair.Canonical(), Last: last}
	if vol, ok := entry[vs+"_24h_vol"]; ok {
		rec.Volume24h = market.Float(vol)
	}
	if pct, ok := entry[vs+"_24h_change"]; ok {
		rec.Change24hPct = market.Float(pct)
		if pct != -100 {
			open := last / (1 + pct/100)
			rec.Change24h = market.Float(last - open)
		}
	}
	return rec, nil
}
