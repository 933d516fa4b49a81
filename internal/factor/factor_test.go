package factor

import (
	"errors"
	"math"
	"testing"
	"time"

	"ofi-factor-lab/internal/ticks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

func signedTick(offset time.Duration, mid, vol float64, sign int) ticks.SignedTick {
	return ticks.SignedTick{Tick: ticks.Tick{Time: t0.Add(offset), Mid: mid, Volume: vol}, Sign: sign}
}

func TestParseTimeframe(t *testing.T) {
	testCases := []struct {
		in          string
		expect      time.Duration
		expectError bool
	}{
		{in: "5m", expect: 5 * time.Minute},
		{in: "30T", expect: 30 * time.Minute},
		{in: "15min", expect: 15 * time.Minute},
		{in: "4H", expect: 4 * time.Hour},
		{in: "1h", expect: time.Hour},
		{in: "1D", expect: 24 * time.Hour},
		{in: "1d", expect: 24 * time.Hour},
		{in: "90s", expect: 90 * time.Second},
		{in: "H", expectError: true},
		{in: "10", expectError: true},
		{in: "0H", expectError: true},
		{in: "3W", expectError: true},
	}

	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			d, err := ParseTimeframe(tc.in)
			if tc.expectError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expect, d)
		})
	}
}

func TestAggregate(t *testing.T) {
	signed := []ticks.SignedTick{
		signedTick(0, 100, 1, 1),
		signedTick(time.Minute, 102, 2, 1),
		signedTick(2*time.Minute, 99, 1, -1),
		signedTick(3*time.Minute, 101, 0, -1),
		// next bar has no volume and is dropped
		signedTick(65*time.Minute, 50, 0, 1),
		signedTick(2*time.Hour+time.Second, 105, 2, -1),
	}

	bars, err := Aggregate(signed, time.Hour, DefaultEpsilon)

	require.NoError(t, err)
	require.Len(t, bars, 2)

	b := bars[0]
	assert.Equal(t, t0.Add(time.Hour), b.End)
	assert.Equal(t, 100.0, b.Open)
	assert.Equal(t, 102.0, b.High)
	assert.Equal(t, 99.0, b.Low)
	assert.Equal(t, 101.0, b.Close)
	assert.Equal(t, 3.0, b.BuyVolume)
	assert.Equal(t, 1.0, b.SellVolume)
	assert.Equal(t, 4.0, b.TotalVolume)
	assert.Equal(t, 4.0, b.Volume)
	assert.InDelta(t, 0.5, b.Raw, 1e-8)
	assert.Equal(t, 4, b.TickCount)
	assert.True(t, math.IsNaN(b.Z))

	assert.Equal(t, t0.Add(3*time.Hour), bars[1].End)
	assert.InDelta(t, -1.0, bars[1].Raw, 1e-8)

	for _, b := range bars {
		assert.GreaterOrEqual(t, b.Raw, -1.0)
		assert.LessOrEqual(t, b.Raw, 1.0)
		assert.InDelta(t, b.TotalVolume, b.BuyVolume+b.SellVolume, 1e-12)
	}
}

func TestAggregate_Empty(t *testing.T) {
	_, err := Aggregate(nil, time.Hour, DefaultEpsilon)
	assert.True(t, errors.Is(err, ticks.ErrInsufficientData))

	_, err = Aggregate([]ticks.SignedTick{signedTick(0, 1, 0, 1)}, time.Hour, DefaultEpsilon)
	assert.True(t, errors.Is(err, ticks.ErrInsufficientData))
}

func barsWithRaw(raw ...float64) []Bar {
	out := make([]Bar, len(raw))
	for i, r := range raw {
		out[i] = Bar{End: t0.Add(time.Duration(i) * time.Hour), Raw: r}
	}
	return out
}

func TestStandardize(t *testing.T) {
	in := barsWithRaw(0.1, 0.3, 0.2, 0.5, 0.5, 0.5)

	out := Standardize(in, 3)

	require.Len(t, out, len(in))
	for i := 0; i < 2; i++ {
		assert.True(t, math.IsNaN(out[i].Mean))
		assert.True(t, math.IsNaN(out[i].Std))
		assert.True(t, math.IsNaN(out[i].Z))
	}

	// window {0.1, 0.3, 0.2}: mean 0.2, sample std 0.1
	assert.InDelta(t, 0.2, out[2].Mean, 1e-12)
	assert.InDelta(t, 0.1, out[2].Std, 1e-12)
	assert.InDelta(t, 0.0, out[2].Z, 1e-9)
	assert.False(t, math.IsNaN(out[3].Z))

	// constant window has zero std
	assert.Equal(t, 0.0, out[5].Std)
	assert.True(t, math.IsNaN(out[5].Z))

	// input untouched
	assert.Equal(t, 0.0, in[2].Mean)
}

func TestStandardize_NoLookahead(t *testing.T) {
	a := barsWithRaw(0.1, -0.2, 0.4, 0.0, 0.3)
	b := barsWithRaw(0.1, -0.2, 0.4, 0.0, 0.9)

	za := Standardize(a, 2)
	zb := Standardize(b, 2)

	for i := 1; i < 4; i++ {
		assert.Equal(t, za[i].Z, zb[i].Z)
	}
}

func TestATR(t *testing.T) {
	bars := []Bar{
		{High: 11, Low: 9, Close: 10},
		{High: 14, Low: 12, Close: 13}, // TR = |14-10| = 4
		{High: 13, Low: 10, Close: 11}, // TR = 3
	}

	t.Run("Rolling mean", func(t *testing.T) {
		atr, err := ATR(bars, 2, ATRRollingMean)
		require.NoError(t, err)
		assert.InDeltaSlice(t, []float64{2, 3, 3.5}, atr, 1e-12)
	})

	t.Run("EMA", func(t *testing.T) {
		atr, err := ATR(bars, 3, ATREMA)
		require.NoError(t, err)
		// alpha = 0.5
		assert.InDeltaSlice(t, []float64{2, 3, 3}, atr, 1e-12)
	})

	t.Run("Invalid", func(t *testing.T) {
		_, err := ATR(bars, 0, ATRRollingMean)
		assert.Error(t, err)
		_, err = ATR(bars, 3, "wilder")
		assert.Error(t, err)
	})
}
