package protocol

import (
	"sort"

	"marketgrid/internal/market"
)

// timestampKeys names the fields rewritten by NormalizeTimestamps when
// walking untyped payloads.
var timestampKeys = map[string]bool{
	"time":              true,
	"timestamp":         true,
	"ts":                true,
	"funding_time":      true,
	"next_funding_time": true,
}

// NormalizeCandles re-expresses candle timestamps in canonical seconds,
// sorts by time and drops duplicate timestamps (keeping the later entry, as
// exchanges emit the freshest row last for a repeated bar). Idempotent:
// already-canonical input comes back unchanged.
func NormalizeCandles(candles []market.CandleRecord, u TimeUnit) []market.CandleRecord {
	out := make([]market.CandleRecord, 0, len(candles))
	for _, c := range candles {
		c.Time = FromSourceTimestamp(c.Time, u)
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time < out[j].Time })

	dedup := out[:0]
	for _, c := range out {
		if n := len(dedup); n > 0 && dedup[n-1].Time == c.Time {
			dedup[n-1] = c
			continue
		}
		dedup = append(dedup, c)
	}
	return dedup
}

// NormalizeFundingRate rewrites the record's timestamps into canonical
// seconds.
func NormalizeFundingRate(rec market.FundingRateRecord, u TimeUnit) market.FundingRateRecord {
	rec.Timestamp = FromSourceTimestamp(rec.Timestamp, u)
	rec.NextFundingTime = FromSourceTimestamp(rec.NextFundingTime, u)
	return rec
}

// NormalizeBasis rewrites the record's timestamp into canonical seconds.
func NormalizeBasis(rec market.ContractBasisRecord, u TimeUnit) market.ContractBasisRecord {
	rec.Timestamp = FromSourceTimestamp(rec.Timestamp, u)
	return rec
}

// NormalizeTimestamps recursively walks maps and slices, re-expressing every
// timestamp-named numeric field in canonical seconds. It is idempotent;
// normalizing already-canonical data is a no-op.
func NormalizeTimestamps(v interface{}, u TimeUnit) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, inner := range val {
			if timestampKeys[k] {
				out[k] = normalizeScalar(inner, u)
				continue
			}
			out[k] = NormalizeTimestamps(inner, u)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, inner := range val {
			out[i] = NormalizeTimestamps(inner, u)
		}
		return out
	default:
		return v
	}
}

func normalizeScalar(v interface{}, u TimeUnit) interface{} {
	switch ts := v.(type) {
	case int64:
		return FromSourceTimestamp(ts, u)
	case int:
		return FromSourceTimestamp(int64(ts), u)
	case float64:
		// JSON numbers decode as float64
		return float64(FromSourceTimestamp(int64(ts), u))
	default:
		return v
	}
}
