// Package export writes sweep results as CSV tables, a YAML manifest and a
// console summary.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"time"

	"ofi-factor-lab/internal/factor"
	"ofi-factor-lab/internal/trader"
)

const timeLayout = "2006-01-02T15:04:05Z07:00"

// BarColumns is the header of the bar table after the timestamp index.
var BarColumns = []string{
	"open", "high", "low", "close", "volume",
	"OFI_raw", "OFI_buy_vol", "OFI_sell_vol", "OFI_tot_vol", "OFI_mean", "OFI_std", "OFI_z",
}

// TradeColumns is the header of the gross trade table.
var TradeColumns = []string{
	"entry_time", "entry_price", "direction", "atr", "bars_held",
	"mfe", "mae", "mfe_r", "mae_r", "t_mfe", "t_mae",
	"exit_time", "exit_price", "exit_reason", "final_r", "final_pnl",
}

// formatFloat renders the shortest representation that round-trips. NaN is
// written as an empty cell.
func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// WriteBars writes one row per bar indexed by the bar end time.
func WriteBars(w io.Writer, bars []factor.Bar) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(append([]string{"timestamp"}, BarColumns...)); err != nil {
		return err
	}
	for _, b := range bars {
		row := []string{
			formatTime(b.End),
			formatFloat(b.Open), formatFloat(b.High), formatFloat(b.Low), formatFloat(b.Close), formatFloat(b.Volume),
			formatFloat(b.Raw), formatFloat(b.BuyVolume), formatFloat(b.SellVolume), formatFloat(b.TotalVolume),
			formatFloat(b.Mean), formatFloat(b.Std), formatFloat(b.Z),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteTrades writes the trade table with cost_R_<s> and final_R_net_<s>
// columns for every scenario the trades were costed with.
func WriteTrades(w io.Writer, trades []trader.CostedTrade, scenarios []trader.CostScenario) error {
	header := append([]string{}, TradeColumns...)
	for _, s := range scenarios {
		header = append(header, "cost_R_"+s.Name, "final_R_net_"+s.Name)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, t := range trades {
		row := []string{
			formatTime(t.EntryTime), formatFloat(t.EntryPrice), strconv.Itoa(t.Direction), formatFloat(t.ATR),
			strconv.Itoa(t.BarsHeld),
			formatFloat(t.MFE), formatFloat(t.MAE), formatFloat(t.MFER), formatFloat(t.MAER),
			strconv.Itoa(t.TMFE), strconv.Itoa(t.TMAE),
			formatTime(t.ExitTime), formatFloat(t.ExitPrice), string(t.ExitReason),
			formatFloat(t.FinalR), formatFloat(t.FinalPnL),
		}
		if len(t.Costs) != len(scenarios) {
			return fmt.Errorf("trade at %s has %d cost columns, want %d", formatTime(t.EntryTime), len(t.Costs), len(scenarios))
		}
		for _, c := range t.Costs {
			row = append(row, formatFloat(c.CostR), formatFloat(c.NetR))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WritePaths writes the per-bar path of every trade that recorded one.
func WritePaths(w io.Writer, trades []trader.CostedTrade) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"entry_time", "bar_index", "timestamp", "close", "current_r", "mfe_r", "mae_r"}); err != nil {
		return err
	}
	for _, t := range trades {
		for _, p := range t.Path {
			row := []string{
				formatTime(t.EntryTime), strconv.Itoa(p.Index), formatTime(p.Time),
				formatFloat(p.Close), formatFloat(p.R), formatFloat(p.MFER), formatFloat(p.MAER),
			}
			if err := cw.Write(row); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

func sweepHeader(scenarios []string) []string {
	h := []string{
		"symbol", "timeframe", "param_combo_id", "entry_q_high", "entry_q_low", "hmax_bars", "tp_R",
		"n_trades", "n_long", "n_short",
		"mean_final_R_gross", "median_final_R_gross", "std_final_R_gross", "sharpe_R_gross", "win_rate_gross",
	}
	for _, s := range scenarios {
		h = append(h,
			"mean_cost_R_"+s, "mean_final_R_net_"+s, "median_final_R_net_"+s,
			"std_final_R_net_"+s, "sharpe_R_net_"+s, "win_rate_net_"+s)
	}
	return append(h,
		"median_MFE_R", "p75_MFE_R", "p90_MFE_R", "median_MAE_R",
		"median_bars_held", "mean_bars_held",
		"pct_stop", "pct_tp_hit", "pct_hmax", "pct_end_of_data",
		"n_trades_long", "mean_final_R_gross_long", "sharpe_R_gross_long", "win_rate_gross_long",
		"n_trades_short", "mean_final_R_gross_short", "sharpe_R_gross_short", "win_rate_gross_short",
		"metrics_version",
	)
}

func sweepRow(u trader.Unit, c trader.ComboResult) []string {
	m := c.Metrics
	tp := ""
	if c.Combo.HasTakeProfit() {
		tp = formatFloat(c.Combo.TakeProfitR)
	}
	row := []string{
		u.Symbol, u.Timeframe, c.Combo.ID(),
		formatFloat(c.Combo.QHigh), formatFloat(c.Combo.QLow), strconv.Itoa(c.Combo.HMax), tp,
		strconv.Itoa(m.NTrades), strconv.Itoa(m.NLong), strconv.Itoa(m.NShort),
		formatFloat(m.MeanRGross), formatFloat(m.MedianRGross), formatFloat(m.StdRGross),
		formatFloat(m.SharpeRGross), formatFloat(m.WinRateGross),
	}
	for _, s := range m.Scenarios {
		row = append(row,
			formatFloat(s.MeanCostR), formatFloat(s.MeanNetR), formatFloat(s.MedianNetR),
			formatFloat(s.StdNetR), formatFloat(s.SharpeNetR), formatFloat(s.WinRateNet))
	}
	return append(row,
		formatFloat(m.MedianMFER), formatFloat(m.P75MFER), formatFloat(m.P90MFER), formatFloat(m.MedianMAER),
		formatFloat(m.MedianBarsHeld), formatFloat(m.MeanBarsHeld),
		formatFloat(m.PctStop), formatFloat(m.PctTPHit), formatFloat(m.PctHMax), formatFloat(m.PctEndOfData),
		strconv.Itoa(m.Long.NTrades), formatFloat(m.Long.MeanRGross), formatFloat(m.Long.SharpeR), formatFloat(m.Long.WinRate),
		strconv.Itoa(m.Short.NTrades), formatFloat(m.Short.MeanRGross), formatFloat(m.Short.SharpeR), formatFloat(m.Short.WinRate),
		strconv.Itoa(m.Version),
	)
}

// WriteSweep writes one metrics row per combo of every given unit, in order.
func WriteSweep(w io.Writer, units []trader.UnitResult, scenarios []trader.CostScenario) error {
	names := make([]string, len(scenarios))
	for i, s := range scenarios {
		names[i] = s.Name
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(sweepHeader(names)); err != nil {
		return err
	}
	for _, u := range units {
		for _, c := range u.Combos {
			if err := cw.Write(sweepRow(u.Unit, c)); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteUnits writes the status table of a run.
func WriteUnits(w io.Writer, units []trader.UnitResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"symbol", "timeframe", "status", "error", "mode", "ticks", "bars", "combos"}); err != nil {
		return err
	}
	for _, u := range units {
		row := []string{
			u.Symbol, u.Timeframe, string(u.Status), u.Error, string(u.Mode),
			strconv.Itoa(u.Ticks), strconv.Itoa(u.NumBars), strconv.Itoa(len(u.Combos)),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// writeFile creates path and streams fn's output into it.
func writeFile(path string, fn func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := fn(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}
