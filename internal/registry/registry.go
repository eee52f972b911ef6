// Package registry holds the set of registered data sources. The registry
// is populated during startup and read-only afterwards, so request-path
// lookups never contend.
package registry

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"marketgrid/internal/market"
	"marketgrid/internal/source"
	"marketgrid/logger"
)

// Registry maps source names to adapters. Construct with New and inject it
// where needed; there is no package-level instance.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]source.Adapter
	order   []string
	log     *logger.Entry
}

func New() *Registry {
	return &Registry{
		entries: make(map[string]source.Adapter),
		log:     logger.GetLogger().WithComponent("registry"),
	}
}

// Register adds an adapter under its own name. Re-registering a name
// replaces the previous adapter (last wins, keeping its original position)
// and reports DuplicateSource so accidental collisions surface; callers that
// replace deliberately may ignore the error.
func (r *Registry) Register(a source.Adapter) error {
	name := a.Name()
	if name == "" {
		return market.NewError(market.ErrDuplicateSource, "", "adapter has empty name")
	}

	r.mu.Lock()
	_, existed := r.entries[name]
	r.entries[name] = a
	if !existed {
		r.order = append(r.order, name)
	}
	r.mu.Unlock()

	if existed {
		r.log.WithFields(logger.Fields{"source": name}).Warn("source re-registered, previous adapter replaced")
		return market.Errorf(market.ErrDuplicateSource, name, "source %s was already registered", name)
	}
	return nil
}

// Resolve returns the adapter registered under name.
func (r *Registry) Resolve(name string) (source.Adapter, error) {
	r.mu.RLock()
	a, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return nil, market.Errorf(market.ErrUnknownSource, name, "no source registered as %q", name)
	}
	return a, nil
}

// List returns all adapters in registration order.
func (r *Registry) List() []source.Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]source.Adapter, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.entries[name])
	}
	return out
}

// Names returns the registered source names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Description is the introspection view of one source.
type Description struct {
	Metadata   market.SourceMetadata `json:"metadata"`
	Capability market.Capability     `json:"capability"`
	Operations []string              `json:"operations"`
}

// Describe renders a source's metadata, capability and a human-readable
// operations summary.
func (r *Registry) Describe(name string) (Description, error) {
	a, err := r.Resolve(name)
	if err != nil {
		return Description{}, err
	}
	cap := a.Capability()
	return Description{
		Metadata:   a.Metadata(),
		Capability: cap,
		Operations: describeOperations(a, cap),
	}, nil
}

func describeOperations(a source.Adapter, cap market.Capability) []string {
	var ops []string

	modes := make([]string, 0, len(cap.Modes))
	for _, m := range cap.Modes {
		modes = append(modes, string(m))
	}

	if cap.Candles {
		line := fmt.Sprintf("candlesticks: %s", strings.Join(cap.Granularities, ", "))
		if cap.CandleLimit > 0 {
			line += fmt.Sprintf(" (up to %d rows per request)", cap.CandleLimit)
		}
		ops = append(ops, line)
	}
	if cap.Ticker {
		ops = append(ops, fmt.Sprintf("ticker: %s", strings.Join(modes, ", ")))
	}
	if cap.Funding.Supported {
		line := fmt.Sprintf("funding rate: settles every %dh", cap.Funding.IntervalHours)
		if _, ok := a.(source.FundingHistoryProvider); ok {
			line += ", with settled history"
		}
		ops = append(ops, line)
	}
	if cap.Basis.Supported {
		kinds := make([]string, 0, len(cap.Basis.ContractTypes))
		for _, ct := range cap.Basis.ContractTypes {
			kinds = append(kinds, string(ct))
		}
		sort.Strings(kinds)
		ops = append(ops, fmt.Sprintf("contract basis: %s", strings.Join(kinds, ", ")))
	}
	if len(cap.Symbols) > 0 {
		ops = append(ops, fmt.Sprintf("restricted to %d symbols", len(cap.Symbols)))
	}
	if cap.RateLimitPerMinute > 0 {
		ops = append(ops, fmt.Sprintf("rate limit: %d requests/minute", cap.RateLimitPerMinute))
	}
	return ops
}
