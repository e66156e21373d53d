package crawler

import (
	"math"
	"strconv"
	"strings"
)

// ParseMetric decodes an engagement count such as "1,234", "2.5K" or "3M".
// The second result is false when text is not a count.
func ParseMetric(text string) (int64, bool) {
	txt := strings.TrimSpace(strings.ReplaceAll(text, ",", ""))
	if txt == "" {
		return 0, false
	}

	multiplier := 0.0
	switch txt[len(txt)-1] {
	case 'k', 'K':
		multiplier = 1_000
	case 'm', 'M':
		multiplier = 1_000_000
	}

	if multiplier == 0 {
		n, err := strconv.ParseInt(txt, 10, 64)
		if err != nil {
			return 0, false
		}
		return n, true
	}

	f, err := strconv.ParseFloat(strings.TrimSpace(txt[:len(txt)-1]), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	// Round so binary fractions like 0.29 do not lose a unit
	v := math.Round(f * multiplier)
	// float64(math.MaxInt64) is 2^63, which no longer fits
	if v >= math.MaxInt64 || v < math.MinInt64 {
		return 0, false
	}
	return int64(v), true
}
