package factor

import (
	"fmt"
	"math"
	"time"

	"ofi-factor-lab/internal/ticks"
)

// DefaultEpsilon keeps the raw factor defined when a bar's volume is zero.
const DefaultEpsilon = 1e-8

// Bar is one fixed-width time bar keyed by its end time.
type Bar struct {
	End time.Time

	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64

	BuyVolume   float64
	SellVolume  float64
	TotalVolume float64
	Raw         float64 // (buy - sell) / (total + eps)

	// Filled by Standardize; NaN until the window is satisfied.
	Mean float64
	Std  float64
	Z    float64

	TickCount int
}

// Aggregate resamples time-ordered signed ticks into bars of the given width.
// A tick at t belongs to the bar ending at floor(t, interval)+interval. Bars
// with zero total volume are dropped. Returns ticks.ErrInsufficientData when
// no bar survives.
func Aggregate(signed []ticks.SignedTick, interval time.Duration, eps float64) ([]Bar, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("invalid bar interval %s", interval)
	}

	var bars []Bar
	var cur *Bar
	for _, t := range signed {
		end := barEnd(t.Time, interval)
		if cur == nil || !end.Equal(cur.End) {
			if cur != nil {
				bars = append(bars, *cur)
			}
			cur = &Bar{
				End:  end,
				Open: t.Mid, High: t.Mid, Low: t.Mid,
				Mean: math.NaN(), Std: math.NaN(), Z: math.NaN(),
			}
		}

		cur.High = math.Max(cur.High, t.Mid)
		cur.Low = math.Min(cur.Low, t.Mid)
		cur.Close = t.Mid
		cur.TotalVolume += t.Volume
		if t.Sign > 0 {
			cur.BuyVolume += t.Volume
		} else {
			cur.SellVolume += t.Volume
		}
		cur.TickCount++
	}
	if cur != nil {
		bars = append(bars, *cur)
	}

	out := bars[:0]
	for _, b := range bars {
		if b.TotalVolume == 0 {
			continue
		}
		b.Volume = b.TotalVolume
		b.Raw = (b.BuyVolume - b.SellVolume) / (b.TotalVolume + eps)
		out = append(out, b)
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("no bars with volume: %w", ticks.ErrInsufficientData)
	}
	return out, nil
}

func barEnd(t time.Time, interval time.Duration) time.Time {
	ns := t.UnixNano()
	step := int64(interval)
	floor := ns - ns%step
	if ns%step < 0 {
		floor -= step
	}
	return time.Unix(0, floor+step).UTC()
}
