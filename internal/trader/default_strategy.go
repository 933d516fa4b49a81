package trader

import (
	"fmt"
	"math"

	"ofi-factor-lab/internal/factor"
)

// QuantileStrategy thresholds z at quantiles of the whole series.
//
// The thresholds see every bar of the sample, including bars after the one
// being signaled. Sweep results are comparable with earlier research runs
// only under this mode; ExpandingQuantileStrategy is the causal variant.
type QuantileStrategy struct {
	Mode  EntryMode
	QHigh float64
	QLow  float64
}

func (s *QuantileStrategy) Name() string {
	return fmt.Sprintf("global-%s", s.Mode)
}

// Thresholds returns the (high, low) z thresholds of the series. Both are NaN
// when no bar has a finite z.
func (s *QuantileStrategy) Thresholds(bars []factor.Bar) (float64, float64) {
	z := finiteZ(bars)
	return quantileSorted(z, s.QHigh), quantileSorted(z, s.QLow)
}

func (s *QuantileStrategy) Signals(bars []factor.Bar) []int {
	out := make([]int, len(bars))
	hi, lo := s.Thresholds(bars)
	if math.IsNaN(hi) || math.IsNaN(lo) {
		return out
	}
	for i, b := range bars {
		out[i] = signalFor(s.Mode, b.Z, hi, lo)
	}
	return out
}
