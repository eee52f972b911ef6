package protocol

import (
	"testing"

	"marketgrid/internal/market"
)

func TestTimestampRoundTrip(t *testing.T) {
	const sec = int64(1724400000)
	ms := ToSourceTimestamp(sec, UnitMillis)
	if ms != sec*1000 {
		t.Fatalf("to millis: got %d", ms)
	}
	if back := FromSourceTimestamp(ms, UnitMillis); back != sec {
		t.Fatalf("round trip: got %d, want %d", back, sec)
	}
	if got := FromSourceTimestamp(sec, UnitSeconds); got != sec {
		t.Fatalf("seconds passthrough: got %d", got)
	}
}

func TestFromSourceTimestampIdempotent(t *testing.T) {
	const sec = int64(1724400000)
	once := FromSourceTimestamp(sec*1000, UnitMillis)
	twice := FromSourceTimestamp(once, UnitMillis)
	if once != twice || twice != sec {
		t.Fatalf("normalize twice: %d then %d, want %d", once, twice, sec)
	}
}

func TestNormalizeCandlesSortsAndDeduplicates(t *testing.T) {
	in := []market.CandleRecord{
		{Time: 1724400060000, Close: 2},
		{Time: 1724400000000, Close: 1},
		{Time: 1724400060000, Close: 3}, // later duplicate wins
	}
	out := NormalizeCandles(in, UnitMillis)
	if len(out) != 2 {
		t.Fatalf("len = %d, want 2", len(out))
	}
	if out[0].Time != 1724400000 || out[1].Time != 1724400060 {
		t.Fatalf("times = %d, %d", out[0].Time, out[1].Time)
	}
	if out[1].Close != 3 {
		t.Fatalf("duplicate resolution kept close=%v, want 3", out[1].Close)
	}

	// Normalizing the already-canonical output changes nothing.
	again := NormalizeCandles(out, UnitMillis)
	for i := range again {
		if again[i] != out[i] {
			t.Fatalf("second pass mutated candle %d: %+v != %+v", i, again[i], out[i])
		}
	}
}

func TestNormalizeTimestampsWalksNested(t *testing.T) {
	payload := map[string]interface{}{
		"timestamp": float64(1724400000000),
		"data": []interface{}{
			map[string]interface{}{"time": float64(1724400060000), "close": float64(5)},
		},
	}
	out := NormalizeTimestamps(payload, UnitMillis).(map[string]interface{})
	if got := out["timestamp"].(float64); got != 1724400000 {
		t.Fatalf("top-level timestamp = %v", got)
	}
	row := out["data"].([]interface{})[0].(map[string]interface{})
	if got := row["time"].(float64); got != 1724400060 {
		t.Fatalf("nested time = %v", got)
	}
	if got := row["close"].(float64); got != 5 {
		t.Fatalf("non-timestamp field touched: %v", got)
	}
}
