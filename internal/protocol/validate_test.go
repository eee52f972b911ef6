package protocol

import (
	"testing"

	"marketgrid/internal/market"
)

func testCapability() market.Capability {
	return market.Capability{
		Candles:       true,
		Granularities: []string{"1m", "1h", "1d"},
		Ticker:        true,
		Modes:         []market.Mode{market.ModeSpot},
	}
}

func testFormat() Format {
	return Format{
		Separator: "-",
		TimeUnit:  UnitMillis,
		Granularities: map[string]string{
			"1m": "1min", "1h": "1hour", "1d": "1day",
		},
	}
}

func TestValidateRequestResolves(t *testing.T) {
	res, err := ValidateRequest("btc/usdt", "1h", market.ModeSpot, testCapability(), testFormat())
	if err != nil {
		t.Fatal(err)
	}
	if res.SourceSymbol != "BTC-USDT" {
		t.Fatalf("source symbol = %q", res.SourceSymbol)
	}
	if res.Bar != "1h" || res.SourceBar != "1hour" || res.Degraded {
		t.Fatalf("resolved = %+v", res)
	}
}

func TestValidateRequestDegrades(t *testing.T) {
	res, err := ValidateRequest("BTCUSDT", "4h", market.ModeSpot, testCapability(), testFormat())
	if err != nil {
		t.Fatal(err)
	}
	if res.Bar != "1h" || !res.Degraded || res.Advisory == "" {
		t.Fatalf("resolved = %+v, want degraded to 1h with advisory", res)
	}
}

func TestValidateRequestContractOverride(t *testing.T) {
	cap := testCapability()
	cap.Granularities = []string{"1s", "1m", "1h"}
	cap.ContractGranularities = []string{"1m", "1h"}
	cap.Modes = []market.Mode{market.ModeSpot, market.ModeContract}
	f := testFormat()
	f.Granularities["1s"] = "1sec"

	res, err := ValidateRequest("BTCUSDT", "1s", market.ModeSpot, cap, f)
	if err != nil || res.Bar != "1s" || res.Degraded {
		t.Fatalf("spot 1s: %+v, %v", res, err)
	}
	res, err = ValidateRequest("BTCUSDT", "1s", market.ModeContract, cap, f)
	if err != nil {
		t.Fatal(err)
	}
	if res.Bar != "1m" || !res.Degraded {
		t.Fatalf("contract 1s should degrade to 1m, got %+v", res)
	}
}

func TestValidateRequestErrors(t *testing.T) {
	cap := testCapability()
	f := testFormat()

	if _, err := ValidateRequest("NOPE", "1h", market.ModeSpot, cap, f); !market.IsKind(err, market.ErrUnparsableSymbol) {
		t.Fatalf("unparsable: %v", err)
	}
	if _, err := ValidateRequest("BTCUSDT", "1h", market.ModeContract, cap, f); !market.IsKind(err, market.ErrSymbolNotSupported) {
		t.Fatalf("mode: %v", err)
	}
	if _, err := ValidateRequest("BTCUSDT", "9h", market.ModeSpot, cap, f); !market.IsKind(err, market.ErrUnsupportedGranularity) {
		t.Fatalf("bad bar: %v", err)
	}

	noCandles := cap
	noCandles.Candles = false
	if _, err := ValidateRequest("BTCUSDT", "1h", market.ModeSpot, noCandles, f); !market.IsKind(err, market.ErrUnsupportedGranularity) {
		t.Fatalf("no candles: %v", err)
	}
}

func TestValidateSymbol(t *testing.T) {
	res, err := ValidateSymbol("eth-usdt", market.ModeSpot, testCapability(), testFormat())
	if err != nil {
		t.Fatal(err)
	}
	if res.SourceSymbol != "ETH-USDT" || res.Pair.Canonical() != "ETHUSDT" {
		t.Fatalf("resolved = %+v", res)
	}
}
