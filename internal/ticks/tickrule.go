package ticks

// Label assigns a trade direction to every tick with the tick rule:
// an uptick is +1, a downtick is -1 and an unchanged mid inherits the
// previous sign. The first tick is +1. Ticks must be in time order.
func Label(ticks []Tick) []SignedTick {
	out := make([]SignedTick, len(ticks))
	sign := 1
	for i, t := range ticks {
		if i > 0 {
			prev := ticks[i-1].Mid
			switch {
			case t.Mid > prev:
				sign = 1
			case t.Mid < prev:
				sign = -1
			}
		}
		out[i] = SignedTick{Tick: t, Sign: sign}
	}
	return out
}
