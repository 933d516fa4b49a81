package trader

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"ofi-factor-lab/internal/factor"
)

// ParamCombo is one point of the parameter grid.
type ParamCombo struct {
	QHigh       float64
	QLow        float64
	HMax        int
	TakeProfitR float64 // <= 0 means no take-profit
}

// HasTakeProfit reports whether the combo carries a take-profit level.
func (p ParamCombo) HasTakeProfit() bool {
	return p.TakeProfitR > 0
}

// ID is the deterministic key of the combo, e.g. qh0.80_ql0.20_hmax150_tpNone
// or qh0.85_ql0.15_hmax100_tp2.0.
func (p ParamCombo) ID() string {
	tp := "None"
	if p.HasTakeProfit() {
		tp = strconv.FormatFloat(p.TakeProfitR, 'f', -1, 64)
		if !strings.Contains(tp, ".") {
			tp += ".0"
		}
	}
	return fmt.Sprintf("qh%.2f_ql%.2f_hmax%d_tp%s", p.QHigh, p.QLow, p.HMax, tp)
}

// BuildGrid returns the cartesian product quantile sets x hmax x take-profit
// in configuration order. Combos with an ID already produced are dropped.
func BuildGrid(quantileSets [][]float64, hmax []int, takeProfits []float64) []ParamCombo {
	if len(takeProfits) == 0 {
		takeProfits = []float64{0}
	}

	var out []ParamCombo
	seen := make(map[string]struct{})
	for _, qs := range quantileSets {
		if len(qs) != 2 {
			continue
		}
		for _, h := range hmax {
			for _, tp := range takeProfits {
				if tp < 0 {
					tp = 0
				}
				c := ParamCombo{QHigh: qs[0], QLow: qs[1], HMax: h, TakeProfitR: tp}
				if _, dup := seen[c.ID()]; dup {
					continue
				}
				seen[c.ID()] = struct{}{}
				out = append(out, c)
			}
		}
	}
	return out
}

// SweepOptions holds the simulation settings shared by every combo.
type SweepOptions struct {
	EntryMode     EntryMode
	ThresholdMode string
	MinHistory    int
	PositionSize  float64
	SavePaths     bool
	Scenarios     []CostScenario
	KeepTrades    bool
}

// ComboResult is the outcome of one combo on one bar series.
type ComboResult struct {
	Combo   ParamCombo
	Metrics ComboMetrics
	Stats   TradeStats
	Trades  []CostedTrade // only populated with KeepTrades
}

// RunCombo signals, simulates and costs one combo. bars and atr are read only.
func RunCombo(bars []factor.Bar, atr []float64, combo ParamCombo, opts SweepOptions) (ComboResult, error) {
	strategy, err := BuildStrategy(opts.EntryMode, opts.ThresholdMode, combo.QHigh, combo.QLow, opts.MinHistory)
	if err != nil {
		return ComboResult{}, err
	}

	signals := strategy.Signals(bars)
	trades, err := Simulate(bars, signals, atr, SimConfig{
		HMax:         combo.HMax,
		TakeProfitR:  combo.TakeProfitR,
		PositionSize: opts.PositionSize,
		SavePaths:    opts.SavePaths,
	})
	if err != nil {
		return ComboResult{}, fmt.Errorf("combo %s: %w", combo.ID(), err)
	}

	costed := ApplyCosts(trades, opts.Scenarios)
	res := ComboResult{
		Combo:   combo,
		Metrics: ComputeComboMetrics(costed, opts.Scenarios),
		Stats:   ComputeTradeStats(trades),
	}
	if opts.KeepTrades {
		res.Trades = costed
	}
	return res, nil
}

// RunSweep evaluates every combo on a pool of workers. Results are returned
// in combo order regardless of completion order.
func RunSweep(ctx context.Context, bars []factor.Bar, atr []float64, combos []ParamCombo, opts SweepOptions, workers int) ([]ComboResult, error) {
	if workers < 1 {
		workers = 1
	}

	results := make([]ComboResult, len(combos))
	errs := make([]error, len(combos))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i], errs[i] = RunCombo(bars, atr, combos[i], opts)
			}
		}()
	}

feed:
	for i := range combos {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return results, nil
}
