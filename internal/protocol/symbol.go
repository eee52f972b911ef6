package protocol

import (
	"strings"

	"marketgrid/internal/market"
)

// quoteCurrencies is the fixed priority-ordered candidate list used to split
// a symbol into base and quote. Longer, more specific quotes come before
// their prefixes (USDT before USD) so the longest match wins.
var quoteCurrencies = []string{
	"USDT", "USDC", "BUSD", "USD", "EUR", "GBP", "BTC", "ETH",
}

// Pair is a parsed canonical symbol.
type Pair struct {
	Base  string
	Quote string
}

// Canonical returns the canonical no-separator spelling, e.g. BTCUSDT.
func (p Pair) Canonical() string {
	return p.Base + p.Quote
}

// ParseSymbol splits a symbol into base and quote currency. It accepts the
// canonical form (BTCUSDT) as well as hyphen, slash and underscore separated
// variants. The quote is matched against the fixed candidate list; symbols
// without a known quote suffix fail with ErrUnparsableSymbol.
func ParseSymbol(symbol string) (Pair, error) {
	clean := strings.ToUpper(symbol)
	for _, sep := range []string{"-", "/", "_"} {
		clean = strings.ReplaceAll(clean, sep, "")
	}
	if clean == "" {
		return Pair{}, market.Errorf(market.ErrUnparsableSymbol, "", "empty symbol")
	}

	for _, quote := range quoteCurrencies {
		if strings.HasSuffix(clean, quote) && len(clean) > len(quote) {
			return Pair{Base: strings.TrimSuffix(clean, quote), Quote: quote}, nil
		}
	}
	return Pair{}, market.Errorf(market.ErrUnparsableSymbol, "", "no known quote currency in %q", symbol)
}

// ToSourceSymbol converts a canonical symbol into the source's native
// spelling: alias tables first, then the declared separator. When the
// capability restricts symbols and the canonical symbol is not listed it
// fails with ErrSymbolNotSupported before any conversion.
func ToSourceSymbol(symbol string, f Format, c market.Capability) (string, error) {
	pair, err := ParseSymbol(symbol)
	if err != nil {
		return "", err
	}
	if !c.SupportsSymbol(pair.Canonical()) {
		return "", market.Errorf(market.ErrSymbolNotSupported, "", "symbol %s not in supported list", pair.Canonical())
	}

	base := pair.Base
	if alias, ok := f.BaseAliases[base]; ok {
		base = alias
	}
	if id, ok := f.CoinIDs[pair.Base]; ok {
		return id, nil
	}
	quote := pair.Quote
	if alias, ok := f.QuoteAliases[quote]; ok {
		quote = alias
	}
	return base + f.Separator + quote, nil
}
