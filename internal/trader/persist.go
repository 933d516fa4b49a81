package trader

import (
	"math"

	"ofi-factor-lab/internal/database"
	"ofi-factor-lab/internal/models"

	"gopkg.in/yaml.v3"
)

func (e *Engine) createRun() (*models.SweepRun, error) {
	if e.db == nil {
		return nil, nil
	}

	cfgYAML, err := yaml.Marshal(e.cfg)
	if err != nil {
		return nil, err
	}
	run := &models.SweepRun{
		RunID:      e.UUID,
		StartedAt:  e.StartTime,
		EntryMode:  e.cfg.TradePath.EntryMode,
		Threshold:  e.cfg.TradePath.ThresholdMode,
		Window:     e.cfg.Factor.Window,
		ConfigYAML: string(cfgYAML),
	}

	e.dbMu.Lock()
	defer e.dbMu.Unlock()
	if err := database.CreateRun(e.db, run); err != nil {
		return nil, err
	}
	return run, nil
}

func (e *Engine) finishRun(run *models.SweepRun, s *RunSummary) error {
	if e.db == nil || run == nil {
		return nil
	}
	run.FinishedAt = s.FinishedAt
	run.UnitsOK = s.Count(StatusOK)
	run.UnitsEmpty = s.Count(StatusEmpty)
	run.UnitsFail = s.Count(StatusFailed)

	e.dbMu.Lock()
	defer e.dbMu.Unlock()
	return database.FinishRun(e.db, run)
}

// saveUnit writes the unit status and its combo metrics. SQLite takes one
// writer at a time so writes are serialized.
func (e *Engine) saveUnit(res *UnitResult) error {
	if e.db == nil {
		return nil
	}

	status := &models.UnitStatus{
		RunID:      e.UUID,
		Symbol:     res.Symbol,
		Timeframe:  res.Timeframe,
		Status:     string(res.Status),
		Error:      res.Error,
		Mode:       string(res.Mode),
		Ticks:      res.Ticks,
		Bars:       res.NumBars,
		Combos:     len(res.Combos),
		DurationMS: res.Duration.Milliseconds(),
	}
	if best, ok := BestCombo(res.Combos); ok {
		status.TopCombo = best.Combo.ID()
		status.TopMeanR = nullable(best.Metrics.MeanRGross)
	}

	rows := make([]models.ComboResult, len(res.Combos))
	for i, c := range res.Combos {
		rows[i] = comboModel(e.UUID, res.Unit, c)
	}

	e.dbMu.Lock()
	defer e.dbMu.Unlock()
	return database.SaveUnit(e.db, status, rows)
}

func comboModel(runID string, u Unit, c ComboResult) models.ComboResult {
	m := c.Metrics
	row := models.ComboResult{
		RunID:     runID,
		Symbol:    u.Symbol,
		Timeframe: u.Timeframe,
		ComboID:   c.Combo.ID(),

		QHigh: c.Combo.QHigh,
		QLow:  c.Combo.QLow,
		HMax:  c.Combo.HMax,

		MetricsVersion: m.Version,
		NTrades:        m.NTrades,
		NLong:          m.NLong,
		NShort:         m.NShort,

		MeanRGross:     nullable(m.MeanRGross),
		MedianRGross:   nullable(m.MedianRGross),
		StdRGross:      nullable(m.StdRGross),
		SharpeRGross:   nullable(m.SharpeRGross),
		WinRateGross:   nullable(m.WinRateGross),
		MedianMFER:     nullable(m.MedianMFER),
		P75MFER:        nullable(m.P75MFER),
		P90MFER:        nullable(m.P90MFER),
		MedianMAER:     nullable(m.MedianMAER),
		MedianBarsHeld: nullable(m.MedianBarsHeld),
		MeanBarsHeld:   nullable(m.MeanBarsHeld),
		PctStop:        nullable(m.PctStop),
		PctTPHit:       nullable(m.PctTPHit),
		PctHMax:        nullable(m.PctHMax),
		PctEndOfData:   nullable(m.PctEndOfData),

		NTradesLong:  m.Long.NTrades,
		MeanRLong:    nullable(m.Long.MeanRGross),
		WinRateLong:  nullable(m.Long.WinRate),
		NTradesShort: m.Short.NTrades,
		MeanRShort:   nullable(m.Short.MeanRGross),
		WinRateShort: nullable(m.Short.WinRate),
	}
	if c.Combo.HasTakeProfit() {
		row.TakeProfitR = nullable(c.Combo.TakeProfitR)
	}
	for _, s := range m.Scenarios {
		row.Costs = append(row.Costs, models.ComboCost{
			Scenario:    s.Scenario,
			PerSideRate: s.PerSideRate,
			MeanCostR:   nullable(s.MeanCostR),
			MeanNetR:    nullable(s.MeanNetR),
			MedianNetR:  nullable(s.MedianNetR),
			StdNetR:     nullable(s.StdNetR),
			SharpeNetR:  nullable(s.SharpeNetR),
			WinRateNet:  nullable(s.WinRateNet),
		})
	}
	return row
}

// BestCombo returns the combo with the highest defined gross mean R. Ties
// keep the earlier combo.
func BestCombo(combos []ComboResult) (ComboResult, bool) {
	best, found := ComboResult{}, false
	for _, c := range combos {
		if math.IsNaN(c.Metrics.MeanRGross) {
			continue
		}
		if !found || c.Metrics.MeanRGross > best.Metrics.MeanRGross {
			best, found = c, true
		}
	}
	return best, found
}

func nullable(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
