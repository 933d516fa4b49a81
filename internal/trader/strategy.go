package trader

import (
	"fmt"

	"ofi-factor-lab/internal/factor"
)

// EntryMode is the polarity mapping factor extremes to trade directions.
type EntryMode string

const (
	// EntryTrend goes long on high z and short on low z.
	EntryTrend EntryMode = "trend"
	// EntryReversal goes short on high z and long on low z.
	EntryReversal EntryMode = "reversal"
)

// Threshold modes.
const (
	ThresholdGlobal    = "global"
	ThresholdExpanding = "expanding"
)

// SignalStrategy turns a standardized bar series into one entry signal per
// bar: +1 long, -1 short, 0 none.
type SignalStrategy interface {
	// Name returns the unique name of the strategy.
	Name() string

	// Signals returns a new slice the same length as bars.
	Signals(bars []factor.Bar) []int
}

// BuildStrategy returns the strategy for the given threshold mode.
func BuildStrategy(mode EntryMode, thresholdMode string, qHigh, qLow float64, minHistory int) (SignalStrategy, error) {
	if mode != EntryTrend && mode != EntryReversal {
		return nil, fmt.Errorf("unknown entry mode %q", mode)
	}
	if !(qLow > 0 && qLow < qHigh && qHigh < 1) {
		return nil, fmt.Errorf("invalid quantiles q_high=%g q_low=%g", qHigh, qLow)
	}

	switch thresholdMode {
	case ThresholdGlobal, "":
		return &QuantileStrategy{Mode: mode, QHigh: qHigh, QLow: qLow}, nil
	case ThresholdExpanding:
		return &ExpandingQuantileStrategy{Mode: mode, QHigh: qHigh, QLow: qLow, MinHistory: minHistory}, nil
	default:
		return nil, fmt.Errorf("unknown threshold mode %q", thresholdMode)
	}
}

// signalFor maps one z value to a direction. Long is assigned before short in
// trend mode and short before long in reversal mode, so when both thresholds
// match the later assignment wins. NaN z or thresholds give no signal.
func signalFor(mode EntryMode, z, hi, lo float64) int {
	s := 0
	if mode == EntryTrend {
		if z >= hi {
			s = 1
		}
		if z <= lo {
			s = -1
		}
		return s
	}
	if z >= hi {
		s = -1
	}
	if z <= lo {
		s = 1
	}
	return s
}
