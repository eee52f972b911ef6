package source

import (
	"context"
	"net/http"

	"marketgrid/internal/market"
	"marketgrid/internal/protocol"
	"marketgrid/logger"

	binance "github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	futures "github.com/adshao/go-binance/v2/futures"
)

// Binance serves spot data through the binance-go spot client and perpetual
// data through its futures client. Both markets spell symbols and intervals
// identically; only sub-second bars differ (spot-only).
type Binance struct {
	spot    *binance.Client
	futures *futures.Client
	log     *logger.Entry
}

// NewBinance builds the Binance adapter. Base URLs are only overridden when
// non-empty, for test servers.
func NewBinance(client *http.Client, spotBaseURL, futuresBaseURL string) *Binance {
	spot := binance.NewClient("", "")
	fut := futures.NewClient("", "")
	if client != nil {
		spot.HTTPClient = client
		fut.HTTPClient = client
	}
	if spotBaseURL != "" {
		spot.BaseURL = spotBaseURL
	}
	if futuresBaseURL != "" {
		fut.SetApiEndpoint(futuresBaseURL)
	}
	return &Binance{
		spot:    spot,
		futures: fut,
		log:     logger.GetLogger().WithComponent("binance_adapter"),
	}
}

func (b *Binance) Name() string { return "binance" }

func (b *Binance) Metadata() market.SourceMetadata {
	return market.SourceMetadata{
		Name:        "binance",
		DisplayName: "Binance",
		Kind:        market.KindExchange,
		Website:     "https://www.binance.com",
		APIBaseURL:  b.spot.BaseURL,
		Active:      true,
	}
}

func (b *Binance) Capability() market.Capability {
	return market.Capability{
		Candles: true,
		Granularities: []string{
			"1s", "1m", "3m", "5m", "15m", "30m",
			"1h", "2h", "4h", "6h", "8h", "12h",
			"1d", "3d", "1w", "1M",
		},
		// Futures klines start at one minute.
		ContractGranularities: []string{
			"1m", "3m", "5m", "15m", "30m",
			"1h", "2h", "4h", "6h", "8h", "12h",
			"1d", "3d", "1w", "1M",
		},
		CandleLimit:        1000,
		Ticker:             true,
		Modes:              []market.Mode{market.ModeSpot, market.ModeContract},
		RateLimitPerMinute: 1200,
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

func (b *Binance) Format() protocol.Format {
	return protocol.Format{
		Separator: "",
		TimeUnit:  protocol.UnitMillis,
		Granularities: map[string]string{
			"1s": "1s", "1m": "1m", "3m": "3m", "5m": "5m",
			"15m": "15m", "30m": "30m",
			"1h": "1h", "2h": "2h", "4h": "4h", "6h": "6h",
			"8h": "8h", "12h": "12h",
			"1d": "1d", "3d": "3d", "1w": "1w", "1M": "1M",
		},
	}
}

// wrapErr maps a binance-go error into the taxonomy. The SDK surfaces
// HTTP 429 as an APIError with code -1003.
func (b *Binance) wrapErr(err error) error {
	b.log.WithError(err).Warn("upstream request failed")
	if apiErr, ok := err.(*common.APIError); ok {
		if apiErr.Code == -1003 {
			return market.WrapError(market.ErrRateLimited, "binance", err, "upstream throttled the request")
		}
		return market.WrapError(market.ErrUpstreamProtocol, "binance", err, "upstream rejected the request")
	}
	return market.WrapError(market.ErrUpstreamUnavailable, "binance", err, "upstream request failed")
}

func (b *Binance) Candles(ctx context.Context, req CandleRequest) (market.CandleResult, error) {
	res, err := protocol.ValidateRequest(req.Symbol, req.Bar, req.Mode, b.Capability(), b.Format())
	if err != nil {
		return market.CandleResult{}, err
	}

	var candles []market.CandleRecord
	if req.Mode == market.ModeContract {
		svc := b.futures.NewKlinesService().Symbol(res.SourceSymbol).Interval(res.SourceBar)
		if req.Limit > 0 {
			svc = svc.Limit(req.Limit)
		}
		if req.After > 0 {
			svc = svc.StartTime(protocol.ToSourceTimestamp(req.After, protocol.UnitMillis))
		}
		if req.Before > 0 {
			svc = svc.EndTime(protocol.ToSourceTimestamp(req.Before, protocol.UnitMillis))
		}
		rows, err := svc.Do(ctx)
		if err != nil {
			return market.CandleResult{}, b.wrapErr(err)
		}
		for _, k := range rows {
			candles = append(candles, market.CandleRecord{
				Time:   k.OpenTime,
				Open:   atof(k.Open),
				High:   atof(k.High),
				Low:    atof(k.Low),
				Close:  atof(k.Close),
				Volume: atof(k.Volume),
			})
		}
	} else {
		svc := b.spot.NewKlinesService().Symbol(res.SourceSymbol).Interval(res.SourceBar)
		if req.Limit > 0 {
			svc = svc.Limit(req.Limit)
		}
		if req.After > 0 {
			svc = svc.StartTime(protocol.ToSourceTimestamp(req.After, protocol.UnitMillis))
		}
		if req.Before > 0 {
			svc = svc.EndTime(protocol.ToSourceTimestamp(req.Before, protocol.UnitMillis))
		}
		rows, err := svc.Do(ctx)
		if err != nil {
			return market.CandleResult{}, b.wrapErr(err)
		}
		for _, k := range rows {
			candles = append(candles, market.CandleRecord{
				Time:   k.OpenTime,
				Open:   atof(k.Open),
				High:   atof(k.High),
				Low:    atof(k.Low),
				Close:  atof(k.Close),
				Volume: atof(k.Volume),
			})
		}
	}

	return market.CandleResult{
		Candles:  protocol.NormalizeCandles(candles, protocol.UnitMillis),
		Bar:      req.Bar,
		BarUsed:  res.Bar,
		Degraded: res.Degraded,
		Advisory: res.Advisory,
	}, nil
}

func (b *Binance) Ticker(ctx context.Context, symbol string, mode market.Mode) (market.TickerRecord, error) {
	res, err := protocol.ValidateSymbol(symbol, mode, b.Capability(), b.Format())
	if err != nil {
		return market.TickerRecord{}, err
	}

	stats, err := b.spot.NewListPriceChangeStatsService().Symbol(res.SourceSymbol).Do(ctx)
	if err != nil {
		return market.TickerRecord{}, b.wrapErr(err)
	}
	if len(stats) == 0 {
		return market.TickerRecord{}, market.Errorf(market.ErrUpstreamProtocol, "binance", "empty ticker payload for %s", res.SourceSymbol)
	}
	s := stats[0]

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

func (b *Binance) FundingRate(ctx context.Context, symbol string) (market.FundingRateRecord, error) {
	res, err := protocol.ValidateSymbol(symbol, market.ModeContract, b.Capability(), b.Format())
	if err != nil {
		return market.FundingRateRecord{}, err
	}

	rows, err := b.futures.NewPremiumIndexService().Symbol(res.SourceSymbol).Do(ctx)
	if err != nil {
		return market.FundingRateRecord{}, b.wrapErr(err)
	}
	if len(rows) == 0 {
		return market.FundingRateRecord{}, market.Errorf(market.ErrUpstreamProtocol, "binance", "empty premium index for %s", res.SourceSymbol)
	}
	p := rows[0]

	rec := market.FundingRateRecord{
		InstID:          res.Pair.Canonical(),
		Rate:            atof(p.LastFundingRate),
		Timestamp:       p.Time,
		IntervalHours:   8,
		NextFundingTime: p.NextFundingTime,
		QuoteCurrency:   res.Pair.Quote,
	}
	if v, ok := atofOK(p.IndexPrice); ok {
		rec.IndexPrice = market.Float(v)
	}
	if mark, ok := atofOK(p.MarkPrice); ok {
		if index, ok2 := atofOK(p.IndexPrice); ok2 && index != 0 {
			rec.Premium = market.Float((mark - index) / index)
		}
	}
	return protocol.NormalizeFundingRate(rec, protocol.UnitMillis), nil
}

func (b *Binance) FundingHistory(ctx context.Context, symbol string, limit int) ([]market.FundingRateRecord, error) {
	res, err := protocol.ValidateSymbol(symbol, market.ModeContract, b.Capability(), b.Format())
	if err != nil {
		return nil, err
	}

	svc := b.futures.NewFundingRateService().Symbol(res.SourceSymbol)
	if limit > 0 {
		svc = svc.Limit(limit)
	}
	rows, err := svc.Do(ctx)
	if err != nil {
		return nil, b.wrapErr(err)
	}

	out := make([]market.FundingRateRecord, 0, len(rows))
	for _, f := range rows {
		out = append(out, protocol.NormalizeFundingRate(market.FundingRateRecord{
			InstID:        res.Pair.Canonical(),
			Rate:          atof(f.FundingRate),
			Timestamp:     f.FundingTime,
			IntervalHours: 8,
			QuoteCurrency: res.Pair.Quote,
		}, protocol.UnitMillis))
	}
	return out, nil
}

func (b *Binance) ContractBasis(ctx context.Context, req BasisRequest) (market.ContractBasisRecord, error) {
	if req.ContractType != "" && req.ContractType != market.ContractPerpetual {
		return market.ContractBasisRecord{}, market.Errorf(market.ErrSymbolNotSupported, "binance", "contract type %s not supported", req.ContractType)
	}
	res, err := protocol.ValidateSymbol(req.Symbol, market.ModeContract, b.Capability(), b.Format())
	if err != nil {
		return market.ContractBasisRecord{}, err
	}

	rows, err := b.futures.NewPremiumIndexService().Symbol(res.SourceSymbol).Do(ctx)
	if err != nil {
		return market.ContractBasisRecord{}, b.wrapErr(err)
	}
	if len(rows) == 0 {
		return market.ContractBasisRecord{}, market.Errorf(market.ErrUpstreamProtocol, "binance", "empty premium index for %s", res.SourceSymbol)
	}
	p := rows[0]

	mark := atof(p.MarkPrice)
	index := atof(p.IndexPrice)
	if index == 0 {
		return market.ContractBasisRecord{}, market.Errorf(market.ErrUpstreamProtocol, "binance", "zero index price for %s", res.SourceSymbol)
	}

	basis := mark - index
	return protocol.NormalizeBasis(market.ContractBasisRecord{
		InstID:          res.Pair.Canonical(),
		ContractType:    market.ContractPerpetual,
		Basis:           basis,
		BasisRate:       basis / index * 100,
		ContractPrice:   mark,
		ReferenceSymbol: res.Pair.Canonical(),
		ReferencePrice:  index,
		Timestamp:       p.Time,
		QuoteCurrency:   res.Pair.Quote,
	}, protocol.UnitMillis), nil
}
