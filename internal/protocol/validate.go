package protocol

import (
	"marketgrid/internal/market"
)

// Resolved is the outcome of validating a request against a source: the
// parsed pair plus the native spellings an adapter needs to build its
// upstream call.
type Resolved struct {
	Pair         Pair
	SourceSymbol string
	// Bar is the canonical granularity actually served, after degradation.
	Bar       string
	SourceBar string
	Degraded  bool
	Advisory  string
}

// ValidateRequest checks a canonical candle request against a source's
// capability and format, resolving symbol and granularity into their native
// spellings. Validation is ordered so callers get the most specific error:
// symbol shape, then symbol support, then mode, then granularity.
func ValidateRequest(symbol, bar string, mode market.Mode, cap market.Capability, f Format) (Resolved, error) {
	pair, err := ParseSymbol(symbol)
	if err != nil {
		return Resolved{}, err
	}
	if !cap.SupportsSymbol(pair.Canonical()) {
		return Resolved{}, market.Errorf(market.ErrSymbolNotSupported, "", "symbol %s not in supported list", pair.Canonical())
	}
	if !cap.SupportsMode(mode) {
		return Resolved{}, market.Errorf(market.ErrSymbolNotSupported, "", "mode %s not supported", mode)
	}
	if !cap.Candles {
		return Resolved{}, market.Errorf(market.ErrUnsupportedGranularity, "", "source does not provide candlesticks")
	}
	if !IsValidGranularity(bar) {
		return Resolved{}, market.Errorf(market.ErrUnsupportedGranularity, "", "unknown granularity %q", bar)
	}

	srcSymbol, err := ToSourceSymbol(symbol, f, cap)
	if err != nil {
		return Resolved{}, err
	}

	used, degraded, err := ResolveGranularity(bar, cap.GranularitiesFor(mode))
	if err != nil {
		return Resolved{}, err
	}
	srcBar, err := ToSourceGranularity(used, f)
	if err != nil {
		return Resolved{}, err
	}

	res := Resolved{
		Pair:         pair,
		SourceSymbol: srcSymbol,
		Bar:          used,
		SourceBar:    srcBar,
		Degraded:     degraded,
	}
	if degraded {
		res.Advisory = DegradationAdvisory(bar, used)
	}
	return res, nil
}

// ValidateSymbol resolves just the symbol against a source, for operations
// that take no granularity (ticker, funding, basis).
func ValidateSymbol(symbol string, mode market.Mode, cap market.Capability, f Format) (Resolved, error) {
	pair, err := ParseSymbol(symbol)
	if err != nil {
		return Resolved{}, err
	}
	if !cap.SupportsSymbol(pair.Canonical()) {
		return Resolved{}, market.Errorf(market.ErrSymbolNotSupported, "", "symbol %s not in supported list", pair.Canonical())
	}
	if !cap.SupportsMode(mode) {
		return Resolved{}, market.Errorf(market.ErrSymbolNotSupported, "", "mode %s not supported", mode)
	}
	srcSymbol, err := ToSourceSymbol(symbol, f, cap)
	if err != nil {
		return Resolved{}, err
	}
	return Resolved{Pair: pair, SourceSymbol: srcSymbol}, nil
}
