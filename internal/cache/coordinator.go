package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"marketgrid/internal/market"
	"marketgrid/internal/protocol"
	"marketgrid/internal/registry"
	"marketgrid/internal/source"
	"marketgrid/logger"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// maxSeriesLen caps the rolling history series built from sampled values
// for sources without a native history endpoint.
const maxSeriesLen = 500

// TTLSet carries the per-data-type cache lifetimes.
type TTLSet struct {
	Candles        time.Duration
	Ticker         time.Duration
	FundingRate    time.Duration
	FundingHistory time.Duration
	Basis          time.Duration
	BasisHistory   time.Duration
}

// DefaultTTLs mirrors the lifetimes the data naturally has: candles close
// and never change, tickers go stale in seconds.
func DefaultTTLs() TTLSet {
	return TTLSet{
		Candles:        24 * time.Hour,
		Ticker:         30 * time.Second,
		FundingRate:    time.Hour,
		FundingHistory: 24 * time.Hour,
		Basis:          30 * time.Minute,
		BasisHistory:   time.Hour,
	}
}

// Options configures a Coordinator.
type Options struct {
	Store Store
	// UpstreamTimeout bounds one coalesced fetch. The fetch deliberately
	// does not inherit the caller's context: a caller abandoning its wait
	// must not cancel the fetch other coalesced callers share.
	UpstreamTimeout time.Duration
	// LimiterWait bounds how long a fetch may queue for a rate-limit token.
	LimiterWait time.Duration
	TTL         TTLSet
	// RateLimitOverrides replaces a source's declared per-minute ceiling.
	RateLimitOverrides map[string]int
}

// Coordinator fronts the registry with caching, request coalescing and
// per-source rate limiting. It is safe for concurrent use.
type Coordinator struct {
	reg   *registry.Registry
	store Store
	opts  Options
	group singleflight.Group

	mu       sync.Mutex
	limiters map[string]*rate.Limiter

	log *logger.Entry
}

func NewCoordinator(reg *registry.Registry, opts Options) *Coordinator {
	if opts.Store == nil {
		opts.Store = NewMemoryStore()
	}
	if opts.UpstreamTimeout <= 0 {
		opts.UpstreamTimeout = 15 * time.Second
	}
	if opts.LimiterWait <= 0 {
		opts.LimiterWait = 2 * time.Second
	}
	zero := TTLSet{}
	if opts.TTL == zero {
		opts.TTL = DefaultTTLs()
	}
	return &Coordinator{
		reg:      reg,
		store:    opts.Store,
		opts:     opts,
		limiters: make(map[string]*rate.Limiter),
		log:      logger.GetLogger().WithComponent("cache_coordinator"),
	}
}

// limiter returns the token bucket for a source, creating it on first use.
// The bucket refills at the per-minute ceiling and allows a full minute's
// burst, matching how exchanges meter their windows.
func (c *Coordinator) limiter(name string, perMinute int) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	if l, ok := c.limiters[name]; ok {
		return l
	}
	if override, ok := c.opts.RateLimitOverrides[name]; ok && override > 0 {
		perMinute = override
	}
	if perMinute <= 0 {
		perMinute = 60
	}
	l := rate.NewLimiter(rate.Limit(float64(perMinute))/60, perMinute)
	c.limiters[name] = l
	return l
}

func (c *Coordinator) acquire(name string, perMinute int) error {
	wctx, cancel := context.WithTimeout(context.Background(), c.opts.LimiterWait)
	defer cancel()
	if err := c.limiter(name, perMinute).Wait(wctx); err != nil {
		logger.IncrementRateLimited(name)
		return market.NewError(market.ErrRateLimited, name, "rate limit ceiling reached")
	}
	return nil
}

// lookup serves out from the cache or runs fn under singleflight. The
// caller's context cancels only its own wait; the fetch itself runs to
// completion for the other coalesced callers. A failed fetch stores nothing.
func (c *Coordinator) lookup(ctx context.Context, adapter source.Adapter, key Key, ttl time.Duration,
	out interface{}, fn func(fctx context.Context) (interface{}, int64, int64, error)) (bool, error) {

	name := adapter.Name()
	keyStr := key.String()

	if entry, ok, err := c.store.Get(ctx, keyStr); err == nil && ok {
		if err := json.Unmarshal(entry.Payload, out); err == nil {
			logger.IncrementCacheHit(name)
			return true, nil
		}
		// Undecodable entry: fall through and refetch over it.
	}
	logger.IncrementCacheMiss(name)

	ch := c.group.DoChan(keyStr, func() (interface{}, error) {
		if err := c.acquire(name, adapter.Capability().RateLimitPerMinute); err != nil {
			return nil, err
		}

		fctx, cancel := context.WithTimeout(context.Background(), c.opts.UpstreamTimeout)
		defer cancel()

		logger.IncrementUpstreamCall(name)
		value, start, end, err := fn(fctx)
		if err != nil {
			return nil, err
		}
		payload, err := json.Marshal(value)
		if err != nil {
			return nil, market.WrapError(market.ErrUpstreamProtocol, name, err, "encoding cache payload")
		}

		entry := Entry{Payload: payload, StoredAt: time.Now().UTC(), RangeStart: start, RangeEnd: end}
		if err := c.store.Set(context.Background(), keyStr, entry, ttl); err != nil {
			c.log.WithFields(logger.Fields{"key": keyStr}).WithError(err).Warn("cache store failed")
		}
		return payload, nil
	})

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return false, res.Err
		}
		if err := json.Unmarshal(res.Val.([]byte), out); err != nil {
			return false, market.WrapError(market.ErrUpstreamProtocol, name, err, "decoding cache payload")
		}
		return false, nil
	}
}

// Candles serves a candlestick window. Keys carry the granularity actually
// served, so a degraded request and a direct request for the same bar share
// one entry; a cached entry satisfies a request only when it covers the
// requested window and row count.
func (c *Coordinator) Candles(ctx context.Context, sourceName string, req source.CandleRequest) (market.CandleResult, error) {
	adapter, err := c.reg.Resolve(sourceName)
	if err != nil {
		return market.CandleResult{}, err
	}
	if req.Mode == "" {
		req.Mode = market.ModeSpot
	}
	resolved, err := protocol.ValidateRequest(req.Symbol, req.Bar, req.Mode, adapter.Capability(), adapter.Format())
	if err != nil {
		return market.CandleResult{}, err
	}

	key := Key{
		Type:   TypeCandles,
		Source: sourceName,
		Symbol: resolved.Pair.Canonical(),
		Mode:   req.Mode,
		Bar:    resolved.Bar,
	}

	if entry, ok, err := c.store.Get(ctx, key.String()); err == nil && ok {
		var cached market.CandleResult
		if err := json.Unmarshal(entry.Payload, &cached); err == nil {
			if sub, ok := subsetCandles(cached, entry, req); ok {
				logger.IncrementCacheHit(sourceName)
				sub.Bar = req.Bar
				sub.BarUsed = resolved.Bar
				sub.Degraded = resolved.Degraded
				sub.Advisory = resolved.Advisory
				sub.Cached = true
				return sub, nil
			}
		}
	}
	logger.IncrementCacheMiss(sourceName)

	keyStr := key.String()
	ch := c.group.DoChan(keyStr, func() (interface{}, error) {
		if err := c.acquire(sourceName, adapter.Capability().RateLimitPerMinute); err != nil {
			return nil, err
		}

		fctx, cancel := context.WithTimeout(context.Background(), c.opts.UpstreamTimeout)
		defer cancel()

		logger.IncrementUpstreamCall(sourceName)
		result, err := adapter.Candles(fctx, req)
		if err != nil {
			return nil, err
		}
		payload, err := json.Marshal(result)
		if err != nil {
			return nil, market.WrapError(market.ErrUpstreamProtocol, sourceName, err, "encoding cache payload")
		}

		entry := Entry{Payload: payload, StoredAt: time.Now().UTC()}
		if n := len(result.Candles); n > 0 {
			entry.RangeStart = result.Candles[0].Time
			entry.RangeEnd = result.Candles[n-1].Time
		}
		if err := c.store.Set(context.Background(), keyStr, entry, c.opts.TTL.Candles); err != nil {
			c.log.WithFields(logger.Fields{"key": keyStr}).WithError(err).Warn("cache store failed")
		}
		return result, nil
	})

	select {
	case <-ctx.Done():
		return market.CandleResult{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return market.CandleResult{}, res.Err
		}
		// Coalesced callers share one fetch but not one resolution: a
		// degraded request riding on a direct fetch for the resolved bar
		// still reports its own degradation.
		result := res.Val.(market.CandleResult)
		result.Bar = req.Bar
		result.BarUsed = resolved.Bar
		result.Degraded = resolved.Degraded
		result.Advisory = resolved.Advisory
		return result, nil
	}
}

// subsetCandles tries to satisfy req from a cached result. It reports false
// when the cached coverage cannot prove sufficiency, forcing a refetch.
func subsetCandles(cached market.CandleResult, entry Entry, req source.CandleRequest) (market.CandleResult, bool) {
	if req.After > 0 && req.After < entry.RangeStart {
		return market.CandleResult{}, false
	}
	if req.Before > 0 && req.Before > entry.RangeEnd {
		return market.CandleResult{}, false
	}

	out := make([]market.CandleRecord, 0, len(cached.Candles))
	for _, cd := range cached.Candles {
		if req.After > 0 && cd.Time < req.After {
			continue
		}
		if req.Before > 0 && cd.Time > req.Before {
			continue
		}
		out = append(out, cd)
	}
	if req.Limit > 0 {
		if len(out) < req.Limit && !(req.After > 0 && req.Before > 0) {
			// Not enough rows and no closed window proving there are no
			// more upstream.
			return market.CandleResult{}, false
		}
		if len(out) > req.Limit {
			out = out[len(out)-req.Limit:]
		}
	}
	cached.Candles = out
	return cached, true
}

// Ticker serves the latest quote for one instrument.
func (c *Coordinator) Ticker(ctx context.Context, sourceName, symbol string, mode market.Mode) (market.TickerRecord, bool, error) {
	adapter, err := c.reg.Resolve(sourceName)
	if err != nil {
		return market.TickerRecord{}, false, err
	}
	if mode == "" {
		mode = market.ModeSpot
	}
	resolved, err := protocol.ValidateSymbol(symbol, mode, adapter.Capability(), adapter.Format())
	if err != nil {
		return market.TickerRecord{}, false, err
	}
	if !adapter.Capability().Ticker {
		return market.TickerRecord{}, false, market.NewError(market.ErrSymbolNotSupported, sourceName, "ticker not supported by source")
	}

	key := Key{Type: TypeTicker, Source: sourceName, Symbol: resolved.Pair.Canonical(), Mode: mode}
	var rec market.TickerRecord
	cached, err := c.lookup(ctx, adapter, key, c.opts.TTL.Ticker, &rec,
		func(fctx context.Context) (interface{}, int64, int64, error) {
			r, err := adapter.Ticker(fctx, symbol, mode)
			return r, 0, 0, err
		})
	return rec, cached, err
}

// fundingProvider gates funding operations on both the declared capability
// and the adapter actually implementing the interface.
func (c *Coordinator) fundingProvider(sourceName string) (source.Adapter, source.FundingProvider, error) {
	adapter, err := c.reg.Resolve(sourceName)
	if err != nil {
		return nil, nil, err
	}
	fp, ok := adapter.(source.FundingProvider)
	if !ok || !adapter.Capability().Funding.Supported {
		return nil, nil, market.NewError(market.ErrSymbolNotSupported, sourceName, "funding rate not supported by source")
	}
	return adapter, fp, nil
}

// FundingRate serves the current funding state of a perpetual contract.
func (c *Coordinator) FundingRate(ctx context.Context, sourceName, symbol string) (market.FundingRateRecord, bool, error) {
	adapter, fp, err := c.fundingProvider(sourceName)
	if err != nil {
		return market.FundingRateRecord{}, false, err
	}
	resolved, err := protocol.ValidateSymbol(symbol, market.ModeContract, adapter.Capability(), adapter.Format())
	if err != nil {
		return market.FundingRateRecord{}, false, err
	}

	key := Key{Type: TypeFundingRate, Source: sourceName, Symbol: resolved.Pair.Canonical(), Mode: market.ModeContract}
	var rec market.FundingRateRecord
	cached, err := c.lookup(ctx, adapter, key, c.opts.TTL.FundingRate, &rec,
		func(fctx context.Context) (interface{}, int64, int64, error) {
			r, err := fp.FundingRate(fctx, symbol)
			return r, 0, 0, err
		})
	return rec, cached, err
}

// FundingHistory serves settled funding rates, newest first. Sources with a
// native history endpoint are queried directly; for the rest the
// coordinator accumulates a rolling series from sampled current values.
func (c *Coordinator) FundingHistory(ctx context.Context, sourceName, symbol string, limit int) ([]market.FundingRateRecord, bool, error) {
	adapter, _, err := c.fundingProvider(sourceName)
	if err != nil {
		return nil, false, err
	}
	resolved, err := protocol.ValidateSymbol(symbol, market.ModeContract, adapter.Capability(), adapter.Format())
	if err != nil {
		return nil, false, err
	}
	if limit <= 0 {
		limit = 50
	}

	key := Key{Type: TypeFundingHistory, Source: sourceName, Symbol: resolved.Pair.Canonical(), Mode: market.ModeContract}

	if hp, ok := adapter.(source.FundingHistoryProvider); ok {
		keyStr := key.String()
		// A cached series only satisfies the request when it holds enough
		// rows; a later, larger limit refetches instead of silently
		// truncating.
		if entry, ok, err := c.store.Get(ctx, keyStr); err == nil && ok {
			var series []market.FundingRateRecord
			if json.Unmarshal(entry.Payload, &series) == nil && len(series) >= limit {
				logger.IncrementCacheHit(sourceName)
				return series[:limit], true, nil
			}
		}
		logger.IncrementCacheMiss(sourceName)

		ch := c.group.DoChan(keyStr, func() (interface{}, error) {
			if err := c.acquire(sourceName, adapter.Capability().RateLimitPerMinute); err != nil {
				return nil, err
			}

			fctx, cancel := context.WithTimeout(context.Background(), c.opts.UpstreamTimeout)
			defer cancel()

			logger.IncrementUpstreamCall(sourceName)
			rows, err := hp.FundingHistory(fctx, symbol, limit)
			if err != nil {
				return nil, err
			}
			payload, err := json.Marshal(rows)
			if err != nil {
				return nil, market.WrapError(market.ErrUpstreamProtocol, sourceName, err, "encoding cache payload")
			}
			entry := Entry{Payload: payload, StoredAt: time.Now().UTC()}
			if err := c.store.Set(context.Background(), keyStr, entry, c.opts.TTL.FundingHistory); err != nil {
				c.log.WithFields(logger.Fields{"key": keyStr}).WithError(err).Warn("cache store failed")
			}
			return rows, nil
		})

		select {
		case <-ctx.Done():
			return nil, false, ctx.Err()
		case res := <-ch:
			if res.Err != nil {
				return nil, false, res.Err
			}
			series := res.Val.([]market.FundingRateRecord)
			if len(series) > limit {
				series = series[:limit]
			}
			return series, false, nil
		}
	}

	// Rolling series: append the sampled current value when it represents a
	// new settlement.
	var series []market.FundingRateRecord
	if entry, ok, err := c.store.Get(ctx, key.String()); err == nil && ok {
		_ = json.Unmarshal(entry.Payload, &series)
	}

	current, _, err := c.FundingRate(ctx, sourceName, symbol)
	if err != nil {
		return nil, false, err
	}
	if len(series) == 0 || series[0].Timestamp != current.Timestamp {
		series = append([]market.FundingRateRecord{current}, series...)
		if len(series) > maxSeriesLen {
			series = series[:maxSeriesLen]
		}
		if payload, err := json.Marshal(series); err == nil {
			entry := Entry{Payload: payload, StoredAt: time.Now().UTC()}
			if err := c.store.Set(context.Background(), key.String(), entry, c.opts.TTL.FundingHistory); err != nil {
				c.log.WithFields(logger.Fields{"key": key.String()}).WithError(err).Warn("cache store failed")
			}
		}
	}
	if len(series) > limit {
		series = series[:limit]
	}
	return series, false, nil
}

func (c *Coordinator) basisProvider(sourceName string) (source.Adapter, source.BasisProvider, error) {
	adapter, err := c.reg.Resolve(sourceName)
	if err != nil {
		return nil, nil, err
	}
	bp, ok := adapter.(source.BasisProvider)
	if !ok || !adapter.Capability().Basis.Supported {
		return nil, nil, market.NewError(market.ErrSymbolNotSupported, sourceName, "contract basis not supported by source")
	}
	return adapter, bp, nil
}

// ContractBasis serves the current basis of one contract series.
func (c *Coordinator) ContractBasis(ctx context.Context, sourceName string, req source.BasisRequest) (market.ContractBasisRecord, bool, error) {
	adapter, bp, err := c.basisProvider(sourceName)
	if err != nil {
		return market.ContractBasisRecord{}, false, err
	}
	resolved, err := protocol.ValidateSymbol(req.Symbol, market.ModeContract, adapter.Capability(), adapter.Format())
	if err != nil {
		return market.ContractBasisRecord{}, false, err
	}
	if req.ContractType != "" && !adapter.Capability().SupportsContractType(req.ContractType) {
		return market.ContractBasisRecord{}, false, market.Errorf(market.ErrSymbolNotSupported, sourceName, "contract type %s not supported", req.ContractType)
	}

	key := Key{
		Type:         TypeBasis,
		Source:       sourceName,
		Symbol:       resolved.Pair.Canonical(),
		Mode:         market.ModeContract,
		ContractType: req.ContractType,
		Tenor:        req.Tenor,
	}
	var rec market.ContractBasisRecord
	cached, err := c.lookup(ctx, adapter, key, c.opts.TTL.Basis, &rec,
		func(fctx context.Context) (interface{}, int64, int64, error) {
			r, err := bp.ContractBasis(fctx, req)
			return r, 0, 0, err
		})
	return rec, cached, err
}

// BasisHistory serves a rolling series of sampled basis observations,
// newest first. No upstream here exposes a native basis history feed.
func (c *Coordinator) BasisHistory(ctx context.Context, sourceName string, req source.BasisRequest, limit int) ([]market.ContractBasisRecord, error) {
	adapter, _, err := c.basisProvider(sourceName)
	if err != nil {
		return nil, err
	}
	resolved, err := protocol.ValidateSymbol(req.Symbol, market.ModeContract, adapter.Capability(), adapter.Format())
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}

	key := Key{
		Type:         TypeBasisHistory,
		Source:       sourceName,
		Symbol:       resolved.Pair.Canonical(),
		Mode:         market.ModeContract,
		ContractType: req.ContractType,
		Tenor:        req.Tenor,
	}

	var series []market.ContractBasisRecord
	if entry, ok, err := c.store.Get(ctx, key.String()); err == nil && ok {
		_ = json.Unmarshal(entry.Payload, &series)
	}

	current, _, err := c.ContractBasis(ctx, sourceName, req)
	if err != nil {
		return nil, err
	}
	if len(series) == 0 || series[0].Timestamp != current.Timestamp {
		series = append([]market.ContractBasisRecord{current}, series...)
		if len(series) > maxSeriesLen {
			series = series[:maxSeriesLen]
		}
		if payload, err := json.Marshal(series); err == nil {
			entry := Entry{Payload: payload, StoredAt: time.Now().UTC()}
			if err := c.store.Set(context.Background(), key.String(), entry, c.opts.TTL.BasisHistory); err != nil {
				c.log.WithFields(logger.Fields{"key": key.String()}).WithError(err).Warn("cache store failed")
			}
		}
	}
	if len(series) > limit {
		series = series[:limit]
	}
	return series, nil
}

// Invalidate drops cached entries for one source, optionally restricted to
// specific data types. It returns the number of entries removed.
func (c *Coordinator) Invalidate(ctx context.Context, sourceName string, types ...DataType) (int, error) {
	if _, err := c.reg.Resolve(sourceName); err != nil {
		return 0, err
	}
	if len(types) == 0 {
		types = []DataType{TypeCandles, TypeTicker, TypeFundingRate, TypeFundingHistory, TypeBasis, TypeBasisHistory}
	}
	total := 0
	for _, dt := range types {
		n, err := c.store.DeletePrefix(ctx, SourcePrefix(dt, sourceName))
		if err != nil {
			return total, err
		}
		total += n
	}
	c.log.WithFields(logger.Fields{"source": sourceName, "entries": total}).Info("cache invalidated")
	return total, nil
}
