package source

import (
	"strconv"
	"time"
)

// nowSeconds stamps records built from responses that carry no timestamp of
// their own.
func nowSeconds() int64 {
	return time.Now().UTC().Unix()
}

// atof parses the string-encoded decimals exchanges put in JSON. Malformed
// or empty values become zero; callers that must distinguish use atofOK.
func atof(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}

func atofOK(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	return v, err == nil
}

func atoi64(s string) int64 {
	v, _ := strconv.ParseInt(s, 10, 64)
	return v
}
