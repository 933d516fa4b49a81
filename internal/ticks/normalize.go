package ticks

import (
	"math"
	"sort"
)

// Normalize derives a mid price and a volume for every tick of the batch.
//
// The mid is (bid+ask)/2 when both bid and ask columns exist, the price column
// otherwise. Volume comes from the volume column, else bid_size+ask_size, else
// 1.0. The result is sorted by timestamp with duplicate timestamps collapsed to
// their first occurrence; rows without a usable mid are dropped. The batch is
// not modified.
func Normalize(b Batch) ([]Tick, Mode, error) {
	var missing []string
	if !b.Schema.Timestamp {
		missing = append(missing, "timestamp")
	}
	mode, ok := b.Schema.Mode()
	if !ok {
		missing = append(missing, "bid+ask or price")
	}
	if len(missing) > 0 {
		return nil, "", &SchemaError{Symbol: b.Symbol, Missing: missing}
	}

	volume := volumeFunc(b.Schema)

	out := make([]Tick, 0, len(b.Ticks))
	for _, r := range b.Ticks {
		var mid float64
		if mode == ModeBidAsk {
			mid = (r.Bid + r.Ask) / 2.0
		} else {
			mid = r.Price
		}
		if math.IsNaN(mid) || math.IsInf(mid, 0) || r.Time.IsZero() {
			continue
		}
		out = append(out, Tick{Time: r.Time.UTC(), Mid: mid, Volume: volume(r)})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })

	// Collapse duplicate timestamps in place, keeping the first occurrence.
	deduped := out[:0]
	for i, t := range out {
		if i > 0 && t.Time.Equal(deduped[len(deduped)-1].Time) {
			continue
		}
		deduped = append(deduped, t)
	}

	return deduped, mode, nil
}

func volumeFunc(s Schema) func(RawTick) float64 {
	switch {
	case s.Volume:
		return func(r RawTick) float64 { return r.Volume }
	case s.BidSize && s.AskSize:
		return func(r RawTick) float64 { return r.BidSize + r.AskSize }
	default:
		return func(RawTick) float64 { return 1.0 }
	}
}
