// Package factor aggregates signed ticks into bars carrying the order flow
// imbalance (OFI) factor, standardizes it causally and derives the ATR used
// to normalize trade results.
package factor

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseTimeframe converts a bar size such as "5m", "30T", "4H", "1D", "90s"
// or "15min" into a duration.
func ParseTimeframe(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 0 || i == len(s) {
		return 0, fmt.Errorf("invalid timeframe %q", s)
	}

	n, err := strconv.Atoi(s[:i])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid timeframe %q", s)
	}

	var unit time.Duration
	switch s[i:] {
	case "s", "S", "sec":
		unit = time.Second
	case "m", "T", "min":
		unit = time.Minute
	case "h", "H":
		unit = time.Hour
	case "d", "D":
		unit = 24 * time.Hour
	default:
		return 0, fmt.Errorf("invalid timeframe %q: unknown unit %q", s, s[i:])
	}
	return time.Duration(n) * unit, nil
}
