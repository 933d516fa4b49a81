package trader

import (
	"fmt"
	"math"
	"time"

	"ofi-factor-lab/internal/factor"
)

// ExitReason is the terminal condition that closed a trade.
type ExitReason string

const (
	ExitTakeProfit ExitReason = "tp_hit"
	ExitStop       ExitReason = "stop"
	ExitHMax       ExitReason = "hmax"
	ExitEndOfData  ExitReason = "end_of_data"
)

// SimConfig parameterizes one simulation run.
type SimConfig struct {
	HMax         int
	TakeProfitR  float64 // <= 0 disables the take-profit exit
	PositionSize float64 // 0 is treated as 1
	SavePaths    bool
}

// PathPoint is the state of an open trade after one bar.
type PathPoint struct {
	Index int
	Time  time.Time
	Close float64
	R     float64
	MFER  float64
	MAER  float64
}

// Trade is one completed round trip. It is immutable once returned.
type Trade struct {
	EntryIndex   int
	EntryTime    time.Time
	EntryPrice   float64
	Direction    int
	ATR          float64
	PositionSize float64

	BarsHeld int
	MFE      float64
	MAE      float64
	MFER     float64
	MAER     float64
	TMFE     int
	TMAE     int

	ExitIndex  int
	ExitTime   time.Time
	ExitPrice  float64
	ExitReason ExitReason
	FinalR     float64
	FinalPnL   float64

	Path []PathPoint
}

// position is the simulator state: flat when open is nil.
type position struct {
	open *Trade
}

// Simulate folds the position state machine over the bar series and returns
// the trades in the order they closed.
//
// Each bar first updates and possibly exits the open trade, in priority
// take-profit, giveback stop, max holding period, end of data. A flat
// position then enters at the bar's close when the signal is nonzero and the
// ATR is positive, which allows re-entry on the bar a trade exited. No trade
// is opened on the final bar since it could never be closed.
func Simulate(bars []factor.Bar, signals []int, atr []float64, cfg SimConfig) ([]Trade, error) {
	if len(signals) != len(bars) || len(atr) != len(bars) {
		return nil, fmt.Errorf("series length mismatch: bars=%d signals=%d atr=%d", len(bars), len(signals), len(atr))
	}
	if cfg.HMax < 1 {
		return nil, fmt.Errorf("invalid hmax %d", cfg.HMax)
	}
	if cfg.PositionSize == 0 {
		cfg.PositionSize = 1
	}

	var trades []Trade
	var pos position
	last := len(bars) - 1
	for i := range bars {
		var closed *Trade
		pos, closed = step(pos, i, i == last, bars[i], signals[i], atr[i], cfg)
		if closed != nil {
			trades = append(trades, *closed)
		}
	}
	return trades, nil
}

// step advances the state machine by one bar.
func step(pos position, i int, isLast bool, bar factor.Bar, signal int, atr float64, cfg SimConfig) (position, *Trade) {
	var closed *Trade

	if t := pos.open; t != nil {
		r := t.update(i, bar, cfg.SavePaths)
		if reason, ok := exitReason(t, r, isLast, cfg); ok {
			t.close(i, bar, reason)
			closed = t
			pos = position{}
		}
	}

	if pos.open == nil && signal != 0 && !isLast && validATR(atr) {
		pos = position{open: &Trade{
			EntryIndex:   i,
			EntryTime:    bar.End,
			EntryPrice:   bar.Close,
			Direction:    sign(signal),
			ATR:          atr,
			PositionSize: cfg.PositionSize,
		}}
	}
	return pos, closed
}

func exitReason(t *Trade, r float64, isLast bool, cfg SimConfig) (ExitReason, bool) {
	switch {
	case cfg.TakeProfitR > 0 && r >= cfg.TakeProfitR:
		return ExitTakeProfit, true
	case t.MFER > 0 && r-t.MFER <= -t.MFER:
		return ExitStop, true
	case t.BarsHeld >= cfg.HMax:
		return ExitHMax, true
	case isLast:
		return ExitEndOfData, true
	}
	return "", false
}

// update applies one bar to the open trade and returns its current R.
func (t *Trade) update(i int, bar factor.Bar, savePath bool) float64 {
	t.BarsHeld++

	var favorable, adverse float64
	if t.Direction > 0 {
		favorable = bar.High - t.EntryPrice
		adverse = bar.Low - t.EntryPrice
	} else {
		favorable = t.EntryPrice - bar.Low
		adverse = t.EntryPrice - bar.High
	}

	if favorable > t.MFE {
		t.MFE = favorable
		t.MFER = favorable / t.ATR
		t.TMFE = t.BarsHeld
	}
	if adverse < t.MAE {
		t.MAE = adverse
		t.MAER = adverse / t.ATR
		t.TMAE = t.BarsHeld
	}

	r := (bar.Close - t.EntryPrice) * float64(t.Direction) / t.ATR
	if savePath {
		t.Path = append(t.Path, PathPoint{Index: i, Time: bar.End, Close: bar.Close, R: r, MFER: t.MFER, MAER: t.MAER})
	}
	return r
}

func (t *Trade) close(i int, bar factor.Bar, reason ExitReason) {
	t.ExitIndex = i
	t.ExitTime = bar.End
	t.ExitPrice = bar.Close
	t.ExitReason = reason
	t.FinalPnL = (t.ExitPrice - t.EntryPrice) * float64(t.Direction) * t.PositionSize
	t.FinalR = t.FinalPnL / (t.ATR * t.PositionSize)
}

func validATR(atr float64) bool {
	return !math.IsNaN(atr) && !math.IsInf(atr, 0) && atr > 0
}

func sign(v int) int {
	if v > 0 {
		return 1
	}
	return -1
}
