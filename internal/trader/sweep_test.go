package trader

import (
	"context"
	"math"
	"testing"
	"time"

	"ofi-factor-lab/internal/factor"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParamCombo_ID(t *testing.T) {
	testCases := []struct {
		combo  ParamCombo
		expect string
	}{
		{combo: ParamCombo{QHigh: 0.8, QLow: 0.2, HMax: 150}, expect: "qh0.80_ql0.20_hmax150_tpNone"},
		{combo: ParamCombo{QHigh: 0.85, QLow: 0.15, HMax: 100, TakeProfitR: 2}, expect: "qh0.85_ql0.15_hmax100_tp2.0"},
		{combo: ParamCombo{QHigh: 0.9, QLow: 0.1, HMax: 50, TakeProfitR: 1.5}, expect: "qh0.90_ql0.10_hmax50_tp1.5"},
		{combo: ParamCombo{QHigh: 0.9, QLow: 0.1, HMax: 50, TakeProfitR: -1}, expect: "qh0.90_ql0.10_hmax50_tpNone"},
	}

	for _, tc := range testCases {
		t.Run(tc.expect, func(t *testing.T) {
			assert.Equal(t, tc.expect, tc.combo.ID())
		})
	}
}

func TestBuildGrid(t *testing.T) {
	grid := BuildGrid(
		[][]float64{{0.8, 0.2}, {0.9, 0.1}, {0.8, 0.2}, {0.7}},
		[]int{50, 100},
		[]float64{0, 2, -1},
	)

	ids := make([]string, len(grid))
	for i, c := range grid {
		ids[i] = c.ID()
	}
	assert.Equal(t, []string{
		"qh0.80_ql0.20_hmax50_tpNone",
		"qh0.80_ql0.20_hmax50_tp2.0",
		"qh0.80_ql0.20_hmax100_tpNone",
		"qh0.80_ql0.20_hmax100_tp2.0",
		"qh0.90_ql0.10_hmax50_tpNone",
		"qh0.90_ql0.10_hmax50_tp2.0",
		"qh0.90_ql0.10_hmax100_tpNone",
		"qh0.90_ql0.10_hmax100_tp2.0",
	}, ids)

	assert.Len(t, BuildGrid([][]float64{{0.8, 0.2}}, []int{10}, nil), 1)
}

// syntheticSeries returns a standardized bar series with its ATR.
func syntheticSeries(t *testing.T, n int) ([]factor.Bar, []float64) {
	t.Helper()
	bars := make([]factor.Bar, n)
	for i := range bars {
		c := 100 + 10*math.Sin(float64(i)/7) + float64(i%5)
		bars[i] = factor.Bar{
			End:   t0.Add(time.Duration(i) * time.Hour),
			Open:  c - 0.5,
			High:  c + 1,
			Low:   c - 1.5,
			Close: c,
			Raw:   math.Sin(float64(i) / 3),
		}
	}
	bars = factor.Standardize(bars, 10)
	atr, err := factor.ATR(bars, 14, factor.ATRRollingMean)
	require.NoError(t, err)
	return bars, atr
}

func TestRunSweep_MatchesSequential(t *testing.T) {
	bars, atr := syntheticSeries(t, 300)
	combos := BuildGrid([][]float64{{0.8, 0.2}, {0.9, 0.1}}, []int{5, 20}, []float64{0, 1.5})
	opts := SweepOptions{
		EntryMode:     EntryTrend,
		ThresholdMode: ThresholdGlobal,
		Scenarios:     []CostScenario{{Name: "low_cost", PerSideRate: 0.0001}},
		KeepTrades:    true,
	}

	results, err := RunSweep(context.Background(), bars, atr, combos, opts, 4)

	require.NoError(t, err)
	require.Len(t, results, len(combos))
	for i, c := range combos {
		want, err := RunCombo(bars, atr, c, opts)
		require.NoError(t, err)
		assert.Equal(t, c.ID(), results[i].Combo.ID())
		assert.Equal(t, want.Metrics.NTrades, results[i].Metrics.NTrades)
		assert.Equal(t, len(want.Trades), len(results[i].Trades))
		assert.Greater(t, results[i].Metrics.NTrades, 0)
	}
}

func TestRunSweep_Idempotent(t *testing.T) {
	bars, atr := syntheticSeries(t, 200)
	combos := BuildGrid([][]float64{{0.8, 0.2}}, []int{10}, []float64{0, 2})
	opts := SweepOptions{EntryMode: EntryReversal, ThresholdMode: ThresholdExpanding, MinHistory: 20, KeepTrades: true}

	a, err := RunSweep(context.Background(), bars, atr, combos, opts, 2)
	require.NoError(t, err)
	b, err := RunSweep(context.Background(), bars, atr, combos, opts, 3)
	require.NoError(t, err)

	for i := range a {
		assert.Equal(t, a[i].Trades, b[i].Trades)
	}
}

func TestRunSweep_Errors(t *testing.T) {
	bars, atr := syntheticSeries(t, 50)

	_, err := RunSweep(context.Background(), bars, atr, []ParamCombo{{QHigh: 0.8, QLow: 0.2, HMax: 0}}, SweepOptions{EntryMode: EntryTrend}, 2)
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = RunSweep(ctx, bars, atr, BuildGrid([][]float64{{0.8, 0.2}}, []int{10}, nil), SweepOptions{EntryMode: EntryTrend}, 1)
	assert.ErrorIs(t, err, context.Canceled)
}
