package factor

import (
	"fmt"
	"math"
)

// ATR smoothing methods.
const (
	ATRRollingMean = "rolling_mean"
	ATREMA         = "ema"
)

// ATR computes the average true range of each bar. The first bar's true range
// is its high-low span. rolling_mean averages the trailing period true ranges,
// using fewer while the series is shorter than period; ema uses
// alpha = 2/(period+1) seeded with the first true range.
func ATR(bars []Bar, period int, method string) ([]float64, error) {
	if period < 1 {
		return nil, fmt.Errorf("invalid ATR period %d", period)
	}
	if method != ATRRollingMean && method != ATREMA {
		return nil, fmt.Errorf("unknown ATR method %q", method)
	}

	out := make([]float64, len(bars))
	tr := make([]float64, len(bars))
	var sum float64
	alpha := 2.0 / float64(period+1)

	for i, b := range bars {
		tr[i] = b.High - b.Low
		if i > 0 {
			prev := bars[i-1].Close
			tr[i] = math.Max(tr[i], math.Max(math.Abs(b.High-prev), math.Abs(b.Low-prev)))
		}

		switch method {
		case ATRRollingMean:
			sum += tr[i]
			n := i + 1
			if i >= period {
				sum -= tr[i-period]
				n = period
			}
			out[i] = sum / float64(n)
		case ATREMA:
			if i == 0 {
				out[i] = tr[i]
			} else {
				out[i] = alpha*tr[i] + (1-alpha)*out[i-1]
			}
		}
	}
	return out, nil
}
