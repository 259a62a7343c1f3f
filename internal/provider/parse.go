package provider

import (
	"math"
	"strconv"
)

// parseFinite parses s as a float64 and reports whether it is finite
// (not NaN, not +/-Inf, and not a parse failure). Trailing gaps in a
// provider series are typically encoded as "NaN" or omitted entirely;
// this is the boundary that rejects them.
func parseFinite(s string) (float64, bool) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
