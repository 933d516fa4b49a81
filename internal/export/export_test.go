package export

import (
	"bytes"
	"encoding/csv"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"ofi-factor-lab/internal/factor"
	"ofi-factor-lab/internal/trader"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var t0 = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

var scenarios = []trader.CostScenario{
	{Name: "low_cost", PerSideRate: 0.00003},
	{Name: "high_cost", PerSideRate: 0.0002},
}

func readCSV(t *testing.T, data string) [][]string {
	t.Helper()
	rows, err := csv.NewReader(strings.NewReader(data)).ReadAll()
	require.NoError(t, err)
	return rows
}

func sampleTrade() trader.CostedTrade {
	return trader.CostedTrade{
		Trade: trader.Trade{
			EntryIndex: 3, EntryTime: t0, EntryPrice: 100, Direction: 1, ATR: 2, PositionSize: 1,
			BarsHeld: 2, MFE: 3, MAE: -1, MFER: 1.5, MAER: -0.5, TMFE: 2, TMAE: 1,
			ExitIndex: 5, ExitTime: t0.Add(2 * time.Hour), ExitPrice: 103, ExitReason: trader.ExitTakeProfit,
			FinalR: 1.5, FinalPnL: 3,
			Path: []trader.PathPoint{
				{Index: 4, Time: t0.Add(time.Hour), Close: 99, R: -0.5, MFER: 0, MAER: -0.5},
				{Index: 5, Time: t0.Add(2 * time.Hour), Close: 103, R: 1.5, MFER: 1.5, MAER: -0.5},
			},
		},
		Costs: []trader.ScenarioCost{
			{Scenario: "low_cost", CostR: 0.003, NetR: 1.497},
			{Scenario: "high_cost", CostR: 0.02, NetR: 1.48},
		},
	}
}

func sampleUnit() trader.UnitResult {
	combo := trader.ParamCombo{QHigh: 0.8, QLow: 0.2, HMax: 50, TakeProfitR: 1.5}
	return trader.UnitResult{
		Unit:    trader.Unit{Symbol: "BTCUSD", Timeframe: "1H", Interval: time.Hour},
		Status:  trader.StatusOK,
		Ticks:   1000,
		NumBars: 2,
		Bars: []factor.Bar{
			{End: t0.Add(time.Hour), Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 10, BuyVolume: 6, SellVolume: 4,
				TotalVolume: 10, Raw: 0.2, Mean: math.NaN(), Std: math.NaN(), Z: math.NaN(), TickCount: 5},
			{End: t0.Add(2 * time.Hour), Open: 1.5, High: 1.6, Low: 1.4, Close: 1.45, Volume: 4, BuyVolume: 1, SellVolume: 3,
				TotalVolume: 4, Raw: -0.5, Mean: -0.15, Std: 0.49, Z: -0.71, TickCount: 3},
		},
		Combos: []trader.ComboResult{{
			Combo: combo,
			Metrics: trader.ComboMetrics{
				Version: trader.MetricsVersion, NTrades: 1, NLong: 1,
				MeanRGross: 1.5, MedianRGross: 1.5, StdRGross: math.NaN(), SharpeRGross: math.NaN(), WinRateGross: 1,
				Scenarios: []trader.ScenarioMetrics{
					{Scenario: "low_cost", PerSideRate: 0.00003, MeanCostR: 0.003, MeanNetR: 1.497, MedianNetR: 1.497,
						StdNetR: math.NaN(), SharpeNetR: math.NaN(), WinRateNet: 1},
					{Scenario: "high_cost", PerSideRate: 0.0002, MeanCostR: 0.02, MeanNetR: 1.48, MedianNetR: 1.48,
						StdNetR: math.NaN(), SharpeNetR: math.NaN(), WinRateNet: 1},
				},
				MedianMFER: 1.5, P75MFER: 1.5, P90MFER: 1.5, MedianMAER: -0.5,
				MedianBarsHeld: 2, MeanBarsHeld: 2, PctTPHit: 1,
				Long:  trader.LegMetrics{NTrades: 1, MeanRGross: 1.5, SharpeR: math.NaN(), WinRate: 1},
				Short: trader.LegMetrics{MeanRGross: math.NaN(), SharpeR: math.NaN(), WinRate: math.NaN()},
			},
			Trades: []trader.CostedTrade{sampleTrade()},
		}},
	}
}

func TestFormatFloat(t *testing.T) {
	assert.Equal(t, "", formatFloat(math.NaN()))
	assert.Equal(t, "0.1", formatFloat(0.1))
	assert.Equal(t, "3", formatFloat(3))
	assert.Equal(t, "1e-08", formatFloat(1e-8))
}

func TestWriteBars(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteBars(&buf, sampleUnit().Bars))

	rows := readCSV(t, buf.String())
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"timestamp", "open", "high", "low", "close", "volume",
		"OFI_raw", "OFI_buy_vol", "OFI_sell_vol", "OFI_tot_vol", "OFI_mean", "OFI_std", "OFI_z"}, rows[0])
	assert.Equal(t, "2024-01-02T01:00:00Z", rows[1][0])
	assert.Equal(t, "0.2", rows[1][6])
	assert.Equal(t, "", rows[1][12], "undefined z is empty")
	assert.Equal(t, "-0.71", rows[2][12])
}

func TestWriteTrades(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteTrades(&buf, []trader.CostedTrade{sampleTrade()}, scenarios))

	rows := readCSV(t, buf.String())
	require.Len(t, rows, 2)
	header := rows[0]
	assert.Equal(t, TradeColumns, header[:len(TradeColumns)])
	assert.Equal(t, []string{"cost_R_low_cost", "final_R_net_low_cost", "cost_R_high_cost", "final_R_net_high_cost"},
		header[len(TradeColumns):])

	row := rows[1]
	assert.Equal(t, "1", row[2])
	assert.Equal(t, "tp_hit", row[13])
	assert.Equal(t, "1.5", row[14])
	assert.Equal(t, "1.48", row[len(row)-1])

	err := WriteTrades(&buf, []trader.CostedTrade{sampleTrade()}, scenarios[:1])
	assert.Error(t, err, "cost columns must match the scenarios")
}

func TestWritePaths(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WritePaths(&buf, []trader.CostedTrade{sampleTrade()}))

	rows := readCSV(t, buf.String())
	require.Len(t, rows, 3)
	assert.Equal(t, "4", rows[1][1])
	assert.Equal(t, "1.5", rows[2][4])
}

func TestWriteSweep(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteSweep(&buf, []trader.UnitResult{sampleUnit()}, scenarios))

	rows := readCSV(t, buf.String())
	require.Len(t, rows, 2)
	header, row := rows[0], rows[1]
	require.Len(t, row, len(header))

	col := func(name string) string {
		for i, h := range header {
			if h == name {
				return row[i]
			}
		}
		t.Fatalf("missing column %s", name)
		return ""
	}
	assert.Equal(t, "BTCUSD", col("symbol"))
	assert.Equal(t, "qh0.80_ql0.20_hmax50_tp1.5", col("param_combo_id"))
	assert.Equal(t, "1.5", col("tp_R"))
	assert.Equal(t, "1", col("n_trades"))
	assert.Equal(t, "", col("std_final_R_gross"))
	assert.Equal(t, "1.497", col("mean_final_R_net_low_cost"))
	assert.Equal(t, "0.02", col("mean_cost_R_high_cost"))
	assert.Equal(t, "1", col("pct_tp_hit"))
	assert.Equal(t, "1", col("n_trades_long"))
	assert.Equal(t, "1.5", col("mean_final_R_gross_long"))
	assert.Equal(t, "", col("sharpe_R_gross_long"))
	assert.Equal(t, "0", col("n_trades_short"))
	assert.Equal(t, "", col("win_rate_gross_short"))
	assert.Equal(t, "2", col("metrics_version"))
}

func TestWriter_WritesRunOutputs(t *testing.T) {
	dir := t.TempDir()
	var console bytes.Buffer
	w, err := NewWriter(dir, Options{WriteBars: true, WriteTrades: true, TopN: 5, RankScenario: "high_cost"}, &console, zap.NewNop())
	require.NoError(t, err)

	unit := sampleUnit()
	require.NoError(t, w.WriteUnit(&unit))

	empty := trader.UnitResult{
		Unit:   trader.Unit{Symbol: "ETHUSD", Timeframe: "4H"},
		Status: trader.StatusEmpty,
		Error:  "insufficient data",
	}
	unit.Bars, unit.Combos[0].Trades = nil, nil
	summary := &trader.RunSummary{
		RunID:      "run-1",
		StartedAt:  t0,
		FinishedAt: t0.Add(time.Minute),
		Combos:     []trader.ParamCombo{unit.Combos[0].Combo},
		Scenarios:  scenarios,
		Units:      []trader.UnitResult{unit, empty},
	}
	require.NoError(t, w.WriteRun(summary))

	for _, name := range []string{
		"bars_BTCUSD_1H.csv",
		"trades_BTCUSD_1H_qh0.80_ql0.20_hmax50_tp1.5.csv",
		"paths_BTCUSD_1H_qh0.80_ql0.20_hmax50_tp1.5.csv",
		"sweep_BTCUSD_1H.csv",
		"sweep_all.csv",
		"units.csv",
		"manifest.yaml",
	} {
		assert.FileExists(t, filepath.Join(dir, name))
	}

	units, err := os.ReadFile(filepath.Join(dir, "units.csv"))
	require.NoError(t, err)
	rows := readCSV(t, string(units))
	require.Len(t, rows, 3)
	assert.Equal(t, "empty", rows[2][2])

	m, err := ReadManifest(filepath.Join(dir, "manifest.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "run-1", m.RunID)
	assert.Equal(t, []string{"qh0.80_ql0.20_hmax50_tp1.5"}, m.Combos)
	assert.Len(t, m.Units, 2)
	assert.Contains(t, m.Files, "sweep_all.csv")
	assert.Equal(t, trader.MetricsVersion, m.MetricsVersion)

	out := console.String()
	assert.Contains(t, out, "run-1")
	assert.Contains(t, out, "qh0.80_ql0.20_hmax50_tp1.5")
	assert.Contains(t, out, "high_cost")
}

func TestTopCombos(t *testing.T) {
	a := sampleUnit()
	b := sampleUnit()
	b.Symbol = "ETHUSD"
	b.Combos[0].Metrics.MeanRGross = 2
	b.Combos[0].Metrics.Scenarios[1].MeanNetR = 0.1
	c := sampleUnit()
	c.Symbol = "SOLUSD"
	c.Combos[0].Metrics.MeanRGross = math.NaN()

	s := &trader.RunSummary{Units: []trader.UnitResult{a, b, c}}

	gross := TopCombos(s, "", 0)
	require.Len(t, gross, 2)
	assert.Equal(t, "ETHUSD", gross[0].Unit.Symbol)

	net := TopCombos(s, "high_cost", 1)
	require.Len(t, net, 1)
	assert.Equal(t, "BTCUSD", net[0].Unit.Symbol)

	assert.Empty(t, TopCombos(s, "unknown", 0))
}
