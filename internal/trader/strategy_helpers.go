package trader

import (
	"math"
	"sort"

	"ofi-factor-lab/internal/factor"
)

// finiteZ returns the sorted finite z values of the series.
func finiteZ(bars []factor.Bar) []float64 {
	z := make([]float64, 0, len(bars))
	for _, b := range bars {
		if !math.IsNaN(b.Z) && !math.IsInf(b.Z, 0) {
			z = append(z, b.Z)
		}
	}
	sort.Float64s(z)
	return z
}

// quantileSorted returns the q-quantile of sorted values using linear
// interpolation between closest ranks. NaN for an empty slice.
func quantileSorted(sorted []float64, q float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	if n == 1 {
		return sorted[0]
	}
	pos := q * float64(n-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo < 0 {
		lo = 0
	}
	if hi >= n {
		hi = n - 1
	}
	return sorted[lo] + (sorted[hi]-sorted[lo])*(pos-float64(lo))
}

// quantile sorts a copy of values, dropping NaN, and returns the q-quantile.
func quantile(values []float64, q float64) float64 {
	return quantileSorted(sortedFinite(values), q)
}

func sortedFinite(values []float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	sort.Float64s(out)
	return out
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func median(values []float64) float64 {
	return quantile(values, 0.5)
}

// sampleStd is the n-1 standard deviation; NaN with fewer than two values.
func sampleStd(values []float64) float64 {
	n := len(values)
	if n < 2 {
		return math.NaN()
	}
	m := mean(values)
	var ss float64
	for _, v := range values {
		d := v - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(n-1))
}

// sharpe is mean/std, undefined when std is zero or undefined.
func sharpe(values []float64) float64 {
	std := sampleStd(values)
	if math.IsNaN(std) || std == 0 {
		return math.NaN()
	}
	return mean(values) / std
}

// share is the fraction of values matching pred; NaN for an empty slice.
func share[T any](values []T, pred func(T) bool) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	n := 0
	for _, v := range values {
		if pred(v) {
			n++
		}
	}
	return float64(n) / float64(len(values))
}
