package protocol

import (
	"testing"

	"marketgrid/internal/market"
)

func TestParseSymbolVariants(t *testing.T) {
	cases := []struct {
		in    string
		base  string
		quote string
	}{
		{"BTCUSDT", "BTC", "USDT"},
		{"BTC-USDT", "BTC", "USDT"},
		{"btc/usdt", "BTC", "USDT"},
		{"ETH_USD", "ETH", "USD"},
		{"SOLUSDC", "SOL", "USDC"},
		{"ETHBTC", "ETH", "BTC"},
	}
	for _, tc := range cases {
		pair, err := ParseSymbol(tc.in)
		if err != nil {
			t.Fatalf("ParseSymbol(%q): %v", tc.in, err)
		}
		if pair.Base != tc.base || pair.Quote != tc.quote {
			t.Fatalf("ParseSymbol(%q) = %s/%s, want %s/%s", tc.in, pair.Base, pair.Quote, tc.base, tc.quote)
		}
	}
}

func TestParseSymbolLongestQuoteWins(t *testing.T) {
	// USDT must be tried before USD, otherwise BTCUSDT splits as BTCU/SDT.
	pair, err := ParseSymbol("BTCUSDT")
	if err != nil {
		t.Fatal(err)
	}
	if pair.Quote != "USDT" {
		t.Fatalf("quote = %s, want USDT", pair.Quote)
	}
}

func TestParseSymbolUnparsable(t *testing.T) {
	for _, in := range []string{"", "USDT", "FOOBAR", "---"} {
		_, err := ParseSymbol(in)
		if !market.IsKind(err, market.ErrUnparsableSymbol) {
			t.Fatalf("ParseSymbol(%q) err = %v, want unparsable_symbol", in, err)
		}
	}
}

func TestToSourceSymbolSeparatorAndAliases(t *testing.T) {
	cap := market.Capability{Modes: []market.Mode{market.ModeSpot}}

	plain := Format{Separator: ""}
	got, err := ToSourceSymbol("BTC-USDT", plain, cap)
	if err != nil || got != "BTCUSDT" {
		t.Fatalf("plain: got %q, %v", got, err)
	}

	dashed := Format{Separator: "-"}
	got, err = ToSourceSymbol("BTCUSDT", dashed, cap)
	if err != nil || got != "BTC-USDT" {
		t.Fatalf("dashed: got %q, %v", got, err)
	}

	kraken := Format{Separator: "", BaseAliases: map[string]string{"BTC": "XBT"}}
	got, err = ToSourceSymbol("BTCUSD", kraken, cap)
	if err != nil || got != "XBTUSD" {
		t.Fatalf("base alias: got %q, %v", got, err)
	}

	coinbase := Format{Separator: "-", QuoteAliases: map[string]string{"USDT": "USD"}}
	got, err = ToSourceSymbol("ETHUSDT", coinbase, cap)
	if err != nil || got != "ETH-USD" {
		t.Fatalf("quote alias: got %q, %v", got, err)
	}
}

func TestToSourceSymbolCoinID(t *testing.T) {
	gecko := Format{Separator: "-", CoinIDs: map[string]string{"BTC": "bitcoin"}}
	got, err := ToSourceSymbol("BTCUSDT", gecko, market.Capability{})
	if err != nil || got != "bitcoin" {
		t.Fatalf("coin id: got %q, %v", got, err)
	}
}

func TestToSourceSymbolRestrictedList(t *testing.T) {
	cap := market.Capability{Symbols: []string{"BTCUSDT"}}
	if _, err := ToSourceSymbol("ETHUSDT", Format{}, cap); !market.IsKind(err, market.ErrSymbolNotSupported) {
		t.Fatalf("err = %v, want symbol_not_supported", err)
	}
	if _, err := ToSourceSymbol("BTC-USDT", Format{}, cap); err != nil {
		t.Fatalf("listed symbol rejected: %v", err)
	}
}
