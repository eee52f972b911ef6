// Package cache is the single entry point for market-data reads: it owns
// the response cache, collapses concurrent fetches for the same key into one
// upstream call, and enforces each source's rate-limit ceiling. Adapters are
// only ever called from here.
package cache

import (
	"strings"

	"marketgrid/internal/market"
)

// DataType partitions the keyspace by record type; each type carries its
// own TTL.
type DataType string

const (
	TypeCandles        DataType = "candles"
	TypeTicker         DataType = "ticker"
	TypeFundingRate    DataType = "funding_rate"
	TypeFundingHistory DataType = "funding_history"
	TypeBasis          DataType = "basis"
	TypeBasisHistory   DataType = "basis_history"
)

// Key identifies one cache entry. Candle keys carry the granularity that
// was actually served, so degraded requests share the entry of the bar they
// resolve to. Basis keys extend the tuple with contract type and tenor.
type Key struct {
	Type         DataType
	Source       string
	Symbol       string
	Mode         market.Mode
	Bar          string
	ContractType market.ContractType
	Tenor        string
}

func (k Key) String() string {
	parts := []string{string(k.Type), k.Source, k.Symbol, string(k.Mode)}
	if k.Bar != "" {
		parts = append(parts, k.Bar)
	}
	if k.ContractType != "" {
		parts = append(parts, string(k.ContractType))
	}
	if k.Tenor != "" {
		parts = append(parts, k.Tenor)
	}
	return strings.Join(parts, ":")
}

// SourcePrefix returns the prefix covering every entry of one source, for
// invalidation.
func SourcePrefix(dataType DataType, sourceName string) string {
	return string(dataType) + ":" + sourceName + ":"
}
