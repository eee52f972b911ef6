// Package source implements the per-exchange adapters behind the canonical
// market-data contract. An adapter translates canonical symbols and
// granularities into the upstream's native spelling, calls the upstream, and
// returns normalized records. Adapters never cache, rate-limit or retry;
// the cache coordinator is their only caller.
package source

import (
	"context"

	"marketgrid/internal/market"
	"marketgrid/internal/protocol"
)

// CandleRequest is a validated, canonical candlestick query. Before and
// After bound the window in canonical Unix seconds; zero means unbounded.
type CandleRequest struct {
	Symbol string
	Bar    string
	Limit  int
	Before int64
	After  int64
	Mode   market.Mode
}

// BasisRequest selects one contract-basis series.
type BasisRequest struct {
	Symbol       string
	ContractType market.ContractType
	Tenor        string
}

// Adapter is the contract every data source implements. Candles and Ticker
// are universal; funding and basis support is feature-detected through the
// optional provider interfaces below, gated by the declared capability.
type Adapter interface {
	Name() string
	Metadata() market.SourceMetadata
	Capability() market.Capability
	Format() protocol.Format

	Candles(ctx context.Context, req CandleRequest) (market.CandleResult, error)
	Ticker(ctx context.Context, symbol string, mode market.Mode) (market.TickerRecord, error)
}

// FundingProvider serves the current funding state of a perpetual contract.
type FundingProvider interface {
	FundingRate(ctx context.Context, symbol string) (market.FundingRateRecord, error)
}

// FundingHistoryProvider serves settled historical funding rates, newest
// first. Sources without a history endpoint omit this; the coordinator then
// builds a rolling series from sampled current values.
type FundingHistoryProvider interface {
	FundingHistory(ctx context.Context, symbol string, limit int) ([]market.FundingRateRecord, error)
}

// BasisProvider serves the current spread between a contract and its
// reference price.
type BasisProvider interface {
	ContractBasis(ctx context.Context, req BasisRequest) (market.ContractBasisRecord, error)
}
