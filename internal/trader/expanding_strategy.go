package trader

import (
	"fmt"
	"math"
	"sort"

	"ofi-factor-lab/internal/factor"
)

// ExpandingQuantileStrategy thresholds the z of bar t at quantiles of the
// finite z values up to and including t. No signal is emitted until
// MinHistory finite values have been seen.
type ExpandingQuantileStrategy struct {
	Mode       EntryMode
	QHigh      float64
	QLow       float64
	MinHistory int
}

func (s *ExpandingQuantileStrategy) Name() string {
	return fmt.Sprintf("expanding-%s", s.Mode)
}

// Signals runs in O(n log n): every finite z gets a slot in the sorted order
// of the whole series and the history is a Fenwick tree over those slots.
func (s *ExpandingQuantileStrategy) Signals(bars []factor.Bar) []int {
	out := make([]int, len(bars))
	minHistory := s.MinHistory
	if minHistory < 1 {
		minHistory = 1
	}

	idx := make([]int, 0, len(bars))
	for i, b := range bars {
		if !math.IsNaN(b.Z) && !math.IsInf(b.Z, 0) {
			idx = append(idx, i)
		}
	}
	order := make([]int, len(idx))
	copy(order, idx)
	sort.SliceStable(order, func(a, b int) bool { return bars[order[a]].Z < bars[order[b]].Z })

	sorted := make([]float64, len(order))
	slot := make(map[int]int, len(order))
	for r, i := range order {
		sorted[r] = bars[i].Z
		slot[i] = r
	}

	seen := newRankTree(len(sorted))
	for _, i := range idx {
		seen.add(slot[i])
		if seen.n < minHistory {
			continue
		}
		hi := seen.quantile(sorted, s.QHigh)
		lo := seen.quantile(sorted, s.QLow)
		out[i] = signalFor(s.Mode, bars[i].Z, hi, lo)
	}
	return out
}

// rankTree counts occupied slots of a sorted value table.
type rankTree struct {
	tree []int
	n    int
	step int
}

func newRankTree(size int) *rankTree {
	step := 1
	for step*2 <= size {
		step *= 2
	}
	return &rankTree{tree: make([]int, size+1), step: step}
}

func (t *rankTree) add(slot int) {
	t.n++
	for i := slot + 1; i < len(t.tree); i += i & -i {
		t.tree[i]++
	}
}

// kth returns the slot of the k-th (0-based) smallest occupied value.
func (t *rankTree) kth(k int) int {
	pos, rem := 0, k+1
	for step := t.step; step > 0; step /= 2 {
		next := pos + step
		if next < len(t.tree) && t.tree[next] < rem {
			pos = next
			rem -= t.tree[next]
		}
	}
	return pos
}

// quantile matches quantileSorted over the occupied values.
func (t *rankTree) quantile(sorted []float64, q float64) float64 {
	if t.n == 0 {
		return math.NaN()
	}
	if t.n == 1 {
		return sorted[t.kth(0)]
	}
	pos := q * float64(t.n-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo < 0 {
		lo = 0
	}
	if hi >= t.n {
		hi = t.n - 1
	}
	vLo := sorted[t.kth(lo)]
	vHi := sorted[t.kth(hi)]
	return vLo + (vHi-vLo)*(pos-float64(lo))
}
