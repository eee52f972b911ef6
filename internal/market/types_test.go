package market

import (
	"encoding/json"
	"testing"
)

func TestCandleValidate(t *testing.T) {
	good := CandleRecord{Time: 1700000000, Open: 100, High: 110, Low: 95, Close: 105, Volume: 1.5}
	if err := good.Validate(); err != nil {
		t.Fatalf("valid candle rejected: %v", err)
	}

	bad := CandleRecord{Time: 1700000000, Open: 120, High: 110, Low: 95, Close: 105}
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected error for open above high")
	}

	bad = CandleRecord{Time: 1700000000, Open: 100, High: 110, Low: 101, Close: 105}
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected error for low above open")
	}

	bad = CandleRecord{Time: 0, Open: 100, High: 110, Low: 95, Close: 105}
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected error for zero time")
	}
}

func TestTickerOptionalFieldsOmitted(t *testing.T) {
	rec := TickerRecord{InstID: "BTCUSDT", Last: 50000}
	data, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := m["bid"]; ok {
		t.Fatalf("nil bid should be omitted: %s", data)
	}

	rec.Bid = Float(49999)
	data, _ = json.Marshal(rec)
	m = nil
	_ = json.Unmarshal(data, &m)
	if m["bid"] != 49999.0 {
		t.Fatalf("bid not serialized: %s", data)
	}
}

func TestCapabilitySymbolAndMode(t *testing.T) {
	c := Capability{
		Modes:   []Mode{ModeSpot},
		Symbols: []string{"BTCUSDT", "ETHUSDT"},
	}
	if !c.SupportsMode(ModeSpot) || c.SupportsMode(ModeContract) {
		t.Fatalf("mode check wrong")
	}
	if !c.SupportsSymbol("BTCUSDT") {
		t.Fatalf("listed symbol rejected")
	}
	if c.SupportsSymbol("ZZZUSDT") {
		t.Fatalf("unlisted symbol accepted")
	}

	open := Capability{}
	if !open.SupportsSymbol("ANYTHING") {
		t.Fatalf("empty symbol list must mean unrestricted")
	}
}

func TestCapabilityGranularitiesFor(t *testing.T) {
	c := Capability{
		Granularities:         []string{"1s", "1m", "1h"},
		ContractGranularities: []string{"1m", "1h"},
	}
	spot := c.GranularitiesFor(ModeSpot)
	if len(spot) != 3 {
		t.Fatalf("spot set wrong: %v", spot)
	}
	contract := c.GranularitiesFor(ModeContract)
	if len(contract) != 2 || contract[0] != "1m" {
		t.Fatalf("contract override not applied: %v", contract)
	}

	same := Capability{Granularities: []string{"1m"}}
	if got := same.GranularitiesFor(ModeContract); len(got) != 1 {
		t.Fatalf("nil override should fall back: %v", got)
	}
}
