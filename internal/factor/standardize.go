package factor

import "math"

// Standardize returns a copy of bars with the trailing mean, sample standard
// deviation and z-score of the raw factor over the last window bars, current
// bar included. Bars before the window fills carry NaN, as does any z-score
// whose standard deviation is zero.
func Standardize(bars []Bar, window int) []Bar {
	out := make([]Bar, len(bars))
	copy(out, bars)

	for i := range out {
		out[i].Mean, out[i].Std, out[i].Z = math.NaN(), math.NaN(), math.NaN()
		if window < 2 || i+1 < window {
			continue
		}

		vals := bars[i+1-window : i+1]
		var sum float64
		for _, b := range vals {
			sum += b.Raw
		}
		mean := sum / float64(window)

		var ss float64
		for _, b := range vals {
			d := b.Raw - mean
			ss += d * d
		}
		std := math.Sqrt(ss / float64(window-1))

		out[i].Mean = mean
		out[i].Std = std
		if std > 0 && !math.IsNaN(std) {
			out[i].Z = (bars[i].Raw - mean) / std
		}
	}
	return out
}
