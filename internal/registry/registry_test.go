package registry

import (
	"context"
	"testing"

	"marketgrid/config"
	"marketgrid/internal/market"
	"marketgrid/internal/protocol"
	"marketgrid/internal/source"
)

// stubAdapter is the minimal Adapter used to exercise registry semantics.
type stubAdapter struct {
	name string
	tag  string
}

func (s *stubAdapter) Name() string { return s.name }
func (s *stubAdapter) Metadata() market.SourceMetadata {
	return market.SourceMetadata{Name: s.name, DisplayName: s.tag, Kind: market.KindExchange, Active: true}
}
func (s *stubAdapter) Capability() market.Capability {
	return market.Capability{
		Candles:            true,
		Granularities:      []string{"1m", "1h"},
		Ticker:             true,
		Modes:              []market.Mode{market.ModeSpot},
		RateLimitPerMinute: 60,
	}
}
func (s *stubAdapter) Format() protocol.Format { return protocol.Format{} }
func (s *stubAdapter) Candles(ctx context.Context, req source.CandleRequest) (market.CandleResult, error) {
	return market.CandleResult{}, nil
}
func (s *stubAdapter) Ticker(ctx context.Context, symbol string, mode market.Mode) (market.TickerRecord, error) {
	return market.TickerRecord{}, nil
}

func TestRegisterResolveList(t *testing.T) {
	reg := New()
	for _, name := range []string{"alpha", "beta", "gamma"} {
		if err := reg.Register(&stubAdapter{name: name}); err != nil {
			t.Fatalf("Register(%s): %v", name, err)
		}
	}

	a, err := reg.Resolve("beta")
	if err != nil {
		t.Fatal(err)
	}
	if a.Name() != "beta" {
		t.Fatalf("resolved %s", a.Name())
	}

	names := reg.Names()
	want := []string{"alpha", "beta", "gamma"}
	for i, n := range want {
		if names[i] != n {
			t.Fatalf("names = %v, want %v", names, want)
		}
	}
}

func TestResolveUnknown(t *testing.T) {
	reg := New()
	_, err := reg.Resolve("nope")
	if !market.IsKind(err, market.ErrUnknownSource) {
		t.Fatalf("err = %v, want unknown_source", err)
	}
}

func TestRegisterDuplicateLastWins(t *testing.T) {
	reg := New()
	if err := reg.Register(&stubAdapter{name: "okx", tag: "first"}); err != nil {
		t.Fatal(err)
	}
	err := reg.Register(&stubAdapter{name: "okx", tag: "second"})
	if !market.IsKind(err, market.ErrDuplicateSource) {
		t.Fatalf("err = %v, want duplicate_source", err)
	}

	a, err := reg.Resolve("okx")
	if err != nil {
		t.Fatal(err)
	}
	if a.Metadata().DisplayName != "second" {
		t.Fatalf("last registration did not win: %s", a.Metadata().DisplayName)
	}
	if len(reg.Names()) != 1 {
		t.Fatalf("names = %v", reg.Names())
	}
}

func TestDescribe(t *testing.T) {
	reg := New()
	if err := reg.Register(&stubAdapter{name: "alpha"}); err != nil {
		t.Fatal(err)
	}
	desc, err := reg.Describe("alpha")
	if err != nil {
		t.Fatal(err)
	}
	if len(desc.Operations) == 0 {
		t.Fatal("expected generated operation docs")
	}
	if !desc.Capability.Candles {
		t.Fatal("capability lost in description")
	}
}

func TestBootstrapHonorsDisabledSources(t *testing.T) {
	cfg := config.Default()
	disabled := false
	cfg.Sources = map[string]config.SourceConfig{
		"kraken": {Enabled: &disabled},
	}

	reg, client := Bootstrap(cfg)
	if client == nil {
		t.Fatal("expected shared http client")
	}
	if _, err := reg.Resolve("kraken"); !market.IsKind(err, market.ErrUnknownSource) {
		t.Fatalf("kraken should be absent, got %v", err)
	}
	for _, name := range []string{"okx", "binance", "bybit", "kucoin", "coinbase", "coingecko", "tradingview"} {
		if _, err := reg.Resolve(name); err != nil {
			t.Fatalf("Resolve(%s): %v", name, err)
		}
	}
}
