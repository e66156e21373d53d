package crawler

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseMetric(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want int64
		ok   bool
	}{
		{"plain", "42", 42, true},
		{"thousands separator", "1,234", 1234, true},
		{"surrounding whitespace", "  7 ", 7, true},
		{"kilo", "2.5K", 2500, true},
		{"lower kilo", "12k", 12000, true},
		{"mega", "3M", 3000000, true},
		{"fractional mega", "1.2m", 1200000, true},
		{"binary fraction rounds", "0.29K", 290, true},
		{"zero", "0", 0, true},
		{"empty", "", 0, false},
		{"blank", "   ", 0, false},
		{"word", "abc", 0, false},
		{"suffix only", "K", 0, false},
		{"nan", "NaNK", 0, false},
		{"inf", "InfM", 0, false},
		{"overflow", "99999999999999999999", 0, false},
		{"overflow with suffix", "1e300M", 0, false},
		{"exactly 2^63 mega", "9223372036854.775808M", 0, false},
		{"exactly 2^63 kilo", "9223372036854775.808K", 0, false},
		{"large but representable", "9000000000000M", 9_000_000_000_000_000_000, true},
		{"unknown suffix", "5B", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseMetric(tt.in)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}
