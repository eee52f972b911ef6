// Package market defines the canonical record types, source metadata and
// capability descriptors shared by every data-source adapter. All timestamps
// inside the core are Unix seconds (UTC); milliseconds only appear at the
// HTTP boundary.
package market

import "fmt"

// SourceKind classifies a registered data source.
type SourceKind string

const (
	KindExchange   SourceKind = "exchange"
	KindAggregator SourceKind = "aggregator"
	KindCharting   SourceKind = "charting"
)

// Mode is the symbol mode a request targets.
type Mode string

const (
	ModeSpot     Mode = "spot"
	ModeContract Mode = "contract"
)

// ContractType distinguishes perpetual swaps from dated futures.
type ContractType string

const (
	ContractPerpetual ContractType = "perpetual"
	ContractFutures   ContractType = "futures"
)

// CandleRecord is a single candlestick in canonical form.
type CandleRecord struct {
	Time   int64   `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// Validate checks the OHLC invariant: low <= open,close <= high.
func (c CandleRecord) Validate() error {
	if c.Time <= 0 {
		return fmt.Errorf("candle has non-positive time %d", c.Time)
	}
	if c.Low > c.Open || c.Low > c.Close || c.Open > c.High || c.Close > c.High {
		return fmt.Errorf("candle at %d violates low <= open,close <= high", c.Time)
	}
	return nil
}

// TickerRecord is the latest quote for one instrument. Optional fields are
// pointers so absent values are omitted from JSON rather than zeroed.
type TickerRecord struct {
	InstID       string   `json:"inst_id"`
	Last         float64  `json:"last"`
	Bid          *float64 `json:"bid,omitempty"`
	Ask          *float64 `json:"ask,omitempty"`
	High24h      *float64 `json:"high_24h,omitempty"`
	Low24h       *float64 `json:"low_24h,omitempty"`
	Change24h    *float64 `json:"change_24h,omitempty"`
	Change24hPct *float64 `json:"change_24h_pct,omitempty"`
	Volume24h    *float64 `json:"volume_24h,omitempty"`
}

// FundingRateRecord describes the current funding state of a perpetual
// contract. Rate is a decimal fraction: 0.0005 means 0.05%.
type FundingRateRecord struct {
	InstID          string   `json:"inst_id"`
	Rate            float64  `json:"rate"`
	Timestamp       int64    `json:"timestamp"`
	IntervalHours   int      `json:"interval_hours"`
	NextFundingTime int64    `json:"next_funding_time"`
	PredictedRate   *float64 `json:"predicted_rate,omitempty"`
	IndexPrice      *float64 `json:"index_price,omitempty"`
	Premium         *float64 `json:"premium,omitempty"`
	QuoteCurrency   string   `json:"quote_currency"`
}

// ContractBasisRecord captures the spread between a contract price and its
// reference (index) price at one point in time.
type ContractBasisRecord struct {
	InstID          string       `json:"inst_id"`
	ContractType    ContractType `json:"contract_type"`
	Tenor           string       `json:"tenor,omitempty"`
	Basis           float64      `json:"basis"`
	BasisRate       float64      `json:"basis_rate"`
	ContractPrice   float64      `json:"contract_price"`
	ReferenceSymbol string       `json:"reference_symbol"`
	ReferencePrice  float64      `json:"reference_price"`
	Timestamp       int64        `json:"timestamp"`
	QuoteCurrency   string       `json:"quote_currency"`
}

// SourceMetadata identifies a data source. Created at registration time and
// never mutated afterwards.
type SourceMetadata struct {
	Name         string     `json:"name"`
	DisplayName  string     `json:"display_name"`
	Kind         SourceKind `json:"kind"`
	Website      string     `json:"website,omitempty"`
	APIBaseURL   string     `json:"api_base_url,omitempty"`
	Active       bool       `json:"active"`
	Experimental bool       `json:"experimental"`
}

// FundingCapability declares funding-rate support and its parameters.
type FundingCapability struct {
	Supported     bool   `json:"supported"`
	IntervalHours int    `json:"interval_hours,omitempty"`
	QuoteCurrency string `json:"quote_currency,omitempty"`
}

// BasisCapability declares contract-basis support and its parameters.
type BasisCapability struct {
	Supported     bool           `json:"supported"`
	ContractTypes []ContractType `json:"contract_types,omitempty"`
	Tenors        []string       `json:"tenors,omitempty"`
	QuoteCurrency string         `json:"quote_currency,omitempty"`
}

// Capability declares what a source can serve. Declared once per source and
// read-only after registration.
type Capability struct {
	Candles bool `json:"candles"`
	// Granularities lists supported canonical granularities ordered from
	// finest to coarsest.
	Granularities []string `json:"granularities,omitempty"`
	// ContractGranularities overrides Granularities for contract-mode
	// requests. Nil means contract mode supports the same set.
	ContractGranularities []string `json:"contract_granularities,omitempty"`
	CandleLimit           int      `json:"candle_limit,omitempty"`
	Ticker                bool     `json:"ticker"`
	// Symbols restricts the canonical symbols this source serves. An empty
	// list means unrestricted; validity is checked lazily upstream.
	Symbols            []string          `json:"symbols,omitempty"`
	Modes              []Mode            `json:"modes"`
	RateLimitPerMinute int               `json:"rate_limit_per_minute"`
	Funding            FundingCapability `json:"funding"`
	Basis              BasisCapability   `json:"basis"`
}

// SupportsMode reports whether the capability lists the given mode.
func (c Capability) SupportsMode(m Mode) bool {
	for _, v := range c.Modes {
		if v == m {
			return true
		}
	}
	return false
}

// SupportsSymbol reports whether the canonical symbol is allowed. An empty
// symbol list means unrestricted.
func (c Capability) SupportsSymbol(symbol string) bool {
	if len(c.Symbols) == 0 {
		return true
	}
	for _, s := range c.Symbols {
		if s == symbol {
			return true
		}
	}
	return false
}

// GranularitiesFor returns the granularity set that applies to a mode.
func (c Capability) GranularitiesFor(m Mode) []string {
	if m == ModeContract && c.ContractGranularities != nil {
		return c.ContractGranularities
	}
	return c.Granularities
}

// SupportsContractType reports whether basis data covers the contract type.
func (c Capability) SupportsContractType(ct ContractType) bool {
	for _, v := range c.Basis.ContractTypes {
		if v == ct {
			return true
		}
	}
	return false
}

// Float returns a pointer to v, for optional record fields.
func Float(v float64) *float64 {
	return &v
}

// CandleResult is the envelope a candlestick query resolves to. BarUsed
// differs from Bar when the granularity was degraded to a supported one.
type CandleResult struct {
	Candles  []CandleRecord `json:"candles"`
	Bar      string         `json:"bar"`
	BarUsed  string         `json:"bar_used"`
	Degraded bool           `json:"degraded"`
	Advisory string         `json:"advisory,omitempty"`
	Cached   bool           `json:"cached"`
}
