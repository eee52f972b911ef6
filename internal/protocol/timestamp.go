package protocol

// minMillis separates second-resolution from millisecond-resolution Unix
// timestamps: anything below it is already seconds. Seconds stay below 1e11
// until the year 5138; milliseconds passed 1e11 back in 1973.
const minMillis = int64(100_000_000_000)

// ToSourceTimestamp converts a canonical timestamp (seconds) into the
// source's declared unit. Zero passes through so optional parameters stay
// optional.
func ToSourceTimestamp(sec int64, u TimeUnit) int64 {
	if sec == 0 {
		return 0
	}
	if u == UnitMillis {
		return sec * 1000
	}
	return sec
}

// FromSourceTimestamp converts a timestamp in the source's declared unit
// back to canonical seconds. The conversion is idempotent: a value that is
// already in seconds is returned unchanged even when the declared unit is
// milliseconds.
func FromSourceTimestamp(ts int64, u TimeUnit) int64 {
	if u == UnitMillis && ts >= minMillis {
		return ts / 1000
	}
	return ts
}
