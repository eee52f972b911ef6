package protocol

import (
	"fmt"

	"marketgrid/internal/market"
)

// granularitySeconds defines every canonical granularity and its duration.
// 1M is a 30-day approximation.
var granularitySeconds = map[string]int64{
	"1s":  1,
	"1m":  60,
	"3m":  180,
	"5m":  300,
	"15m": 900,
	"30m": 1800,
	"1h":  3600,
	"2h":  7200,
	"4h":  14400,
	"6h":  21600,
	"8h":  28800,
	"12h": 43200,
	"1d":  86400,
	"3d":  259200,
	"1w":  604800,
	"1M":  2592000,
}

// granularityPriority orders canonical granularities from finest to
// coarsest, used when degrading an unsupported request.
var granularityPriority = []string{
	"1s", "1m", "3m", "5m", "15m", "30m",
	"1h", "2h", "4h", "6h", "8h", "12h",
	"1d", "3d", "1w", "1M",
}

// IsValidGranularity reports whether bar is a canonical granularity.
func IsValidGranularity(bar string) bool {
	_, ok := granularitySeconds[bar]
	return ok
}

// GranularitySeconds returns the duration of a canonical granularity.
func GranularitySeconds(bar string) (int64, bool) {
	sec, ok := granularitySeconds[bar]
	return sec, ok
}

// ResolveGranularity maps a requested canonical granularity onto the
// supported set. An exact match is returned as-is. Otherwise the nearest
// supported granularity that is finer than (<=) the request is chosen;
// only when no finer option exists does it fall back to the closest coarser
// one. Between two equidistant candidates the finer one wins. The degraded
// flag is set whenever the returned bar differs from the request.
func ResolveGranularity(requested string, supported []string) (string, bool, error) {
	want, ok := granularitySeconds[requested]
	if !ok {
		return "", false, market.Errorf(market.ErrUnsupportedGranularity, "", "unknown granularity %q", requested)
	}
	if len(supported) == 0 {
		return "", false, market.Errorf(market.ErrUnsupportedGranularity, "", "source supports no granularities")
	}

	set := make(map[string]bool, len(supported))
	for _, s := range supported {
		set[s] = true
	}
	if set[requested] {
		return requested, false, nil
	}

	var finer, coarser string
	for _, bar := range granularityPriority {
		if !set[bar] {
			continue
		}
		if granularitySeconds[bar] <= want {
			// priority order guarantees the last finer hit is the
			// largest one below the request
			finer = bar
		} else if coarser == "" {
			coarser = bar
		}
	}

	// A coarser bar is only acceptable when nothing finer is supported;
	// ties between equidistant options therefore always land on the finer
	// side.
	if finer != "" {
		return finer, true, nil
	}
	if coarser != "" {
		return coarser, true, nil
	}
	return "", false, market.Errorf(market.ErrUnsupportedGranularity, "", "no supported granularity near %q", requested)
}

// ToSourceGranularity converts a canonical granularity (already resolved
// against the capability) into the source's native spelling.
func ToSourceGranularity(bar string, f Format) (string, error) {
	if native, ok := f.Granularities[bar]; ok {
		return native, nil
	}
	return "", market.Errorf(market.ErrUnsupportedGranularity, "", "no native mapping for granularity %q", bar)
}

// DegradationAdvisory renders the human-readable advisory attached to a
// degraded result.
func DegradationAdvisory(requested, used string) string {
	return fmt.Sprintf("granularity %s is not supported; served %s instead", requested, used)
}
