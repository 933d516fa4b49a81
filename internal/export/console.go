package export

import (
	"fmt"
	"io"
	"math"
	"sort"

	"ofi-factor-lab/internal/trader"

	"github.com/olekukonko/tablewriter"
)

// RankedCombo is one combo of a unit with its ranking score.
type RankedCombo struct {
	Unit  trader.Unit
	Combo trader.ComboResult
	Score float64
}

// TopCombos ranks every combo of the run by the scenario's mean net R, or by
// gross mean R when scenario is empty. Undefined scores are left out.
func TopCombos(s *trader.RunSummary, scenario string, n int) []RankedCombo {
	var ranked []RankedCombo
	for _, u := range s.Units {
		for _, c := range u.Combos {
			score := c.Metrics.MeanRGross
			if scenario != "" {
				sm, ok := c.Metrics.Scenario(scenario)
				if !ok {
					continue
				}
				score = sm.MeanNetR
			}
			if math.IsNaN(score) {
				continue
			}
			ranked = append(ranked, RankedCombo{Unit: u.Unit, Combo: c, Score: score})
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })
	if n > 0 && len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

// PrintTopCombos renders the best combos of the run as a table.
func PrintTopCombos(w io.Writer, s *trader.RunSummary, scenario string, n int) {
	label := "gross"
	if scenario != "" {
		label = scenario
	}
	fmt.Fprintf(w, "\nRun %s: %d ok, %d empty, %d failed units. Top %d combos by mean R (%s)\n",
		s.RunID, s.Count(trader.StatusOK), s.Count(trader.StatusEmpty), s.Count(trader.StatusFailed), n, label)

	table := tablewriter.NewWriter(w)
	table.Header("#", "Symbol", "TF", "Combo", "Trades", "Mean R", "Win%", "Sharpe", "Score")
	for i, r := range TopCombos(s, scenario, n) {
		m := r.Combo.Metrics
		table.Append(
			fmt.Sprintf("%d", i+1),
			r.Unit.Symbol,
			r.Unit.Timeframe,
			r.Combo.Combo.ID(),
			fmt.Sprintf("%d", m.NTrades),
			fmt.Sprintf("%.3f", m.MeanRGross),
			fmt.Sprintf("%.1f", m.WinRateGross*100),
			fmt.Sprintf("%.3f", m.SharpeRGross),
			fmt.Sprintf("%.3f", r.Score),
		)
	}
	table.Render()
}
