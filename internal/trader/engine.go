package trader

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"ofi-factor-lab/internal/config"
	"ofi-factor-lab/internal/factor"
	"ofi-factor-lab/internal/metrics"
	"ofi-factor-lab/internal/ticks"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Status is the final state of a unit.
type Status string

const (
	StatusOK     Status = "ok"
	StatusEmpty  Status = "empty"
	StatusFailed Status = "failed"
)

// Unit is one symbol/timeframe pair of the sweep.
type Unit struct {
	Symbol    string
	Timeframe string
	Interval  time.Duration
}

// UnitResult is the outcome of one unit. Bars, ATR and combo trades are
// released once the result has been handed to the sink.
type UnitResult struct {
	Unit
	Status   Status
	Error    string
	Mode     ticks.Mode
	Ticks    int
	NumBars  int
	Bars     []factor.Bar
	ATR      []float64
	Combos   []ComboResult
	Duration time.Duration
}

// RunSummary describes a finished run.
type RunSummary struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Combos     []ParamCombo
	Scenarios  []CostScenario
	Units      []UnitResult
}

// Count returns the number of units that ended with the given status.
func (s *RunSummary) Count(status Status) int {
	n := 0
	for _, u := range s.Units {
		if u.Status == status {
			n++
		}
	}
	return n
}

// ResultSink receives unit results as they finish and the run summary at the end.
type ResultSink interface {
	WriteUnit(res *UnitResult) error
	WriteRun(summary *RunSummary) error
}

// Engine runs the sweep over every configured symbol and timeframe.
type Engine struct {
	logger  *zap.Logger
	cfg     *config.Config
	source  ticks.Source
	db      *gorm.DB
	metrics *metrics.Collector
	sink    ResultSink

	grid      []ParamCombo
	scenarios []CostScenario

	UUID      string
	StartTime time.Time

	total  atomic.Int64
	done   atomic.Int64
	failed atomic.Int64

	dbMu sync.Mutex
}

// NewEngine creates a new sweep engine. db, collector and sink may be nil.
func NewEngine(logger *zap.Logger, cfg *config.Config, source ticks.Source, db *gorm.DB, collector *metrics.Collector, sink ResultSink) *Engine {
	scenarios := make([]CostScenario, len(cfg.Sweep.CostScenarios))
	for i, s := range cfg.Sweep.CostScenarios {
		scenarios[i] = CostScenario{Name: s.Name, PerSideRate: s.PerSideRate}
	}

	return &Engine{
		logger:    logger.Named("engine"),
		cfg:       cfg,
		source:    source,
		db:        db,
		metrics:   collector,
		sink:      sink,
		grid:      BuildGrid(cfg.Sweep.QuantileSets, cfg.Sweep.HMaxCandidates, cfg.Sweep.TakeProfitLevels),
		scenarios: scenarios,
		UUID:      uuid.NewString(),
		StartTime: time.Now().UTC(),
	}
}

// Grid returns the parameter combos every unit is swept over.
func (e *Engine) Grid() []ParamCombo {
	return e.grid
}

// Progress returns the number of units planned, finished and failed.
func (e *Engine) Progress() (total, done, failed int64) {
	return e.total.Load(), e.done.Load(), e.failed.Load()
}

// Units expands the configured symbols and timeframes in configuration order.
func (e *Engine) Units() ([]Unit, error) {
	var units []Unit
	for _, sym := range e.cfg.Sweep.Symbols {
		for _, tf := range e.cfg.Sweep.Timeframes {
			d, err := factor.ParseTimeframe(tf)
			if err != nil {
				return nil, err
			}
			units = append(units, Unit{Symbol: sym, Timeframe: tf, Interval: d})
		}
	}
	return units, nil
}

// Run processes every unit on a bounded worker pool. A unit that fails is
// recorded and does not stop its siblings. The returned summary lists units
// in configuration order.
func (e *Engine) Run(ctx context.Context) (*RunSummary, error) {
	units, err := e.Units()
	if err != nil {
		return nil, err
	}
	if len(e.grid) == 0 {
		return nil, errors.New("parameter grid is empty")
	}

	e.total.Store(int64(len(units)))
	l := e.logger.With(zap.String("run_id", e.UUID))
	l.Info("Starting sweep",
		zap.Int("units", len(units)),
		zap.Int("combos", len(e.grid)),
		zap.Int("scenarios", len(e.scenarios)))

	run, err := e.createRun()
	if err != nil {
		return nil, err
	}

	workers := e.cfg.Sweep.Workers
	if workers < 1 {
		workers = 1
	}

	results := make([]UnitResult, len(units))
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = e.runUnit(ctx, units[i])
			}
		}()
	}

feed:
	for i := range units {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	summary := &RunSummary{
		RunID:      e.UUID,
		StartedAt:  e.StartTime,
		FinishedAt: time.Now().UTC(),
		Combos:     e.grid,
		Scenarios:  e.scenarios,
		Units:      results,
	}

	if err := ctx.Err(); err != nil {
		// Close the run row with the units that were reached before cancellation.
		summary.Units = startedUnits(results)
		if ferr := e.finishRun(run, summary); ferr != nil {
			l.Error("Failed to close cancelled run", zap.Error(ferr))
		}
		l.Warn("Sweep cancelled",
			zap.Int("units_reached", len(summary.Units)),
			zap.Int("units_planned", len(units)))
		return nil, err
	}

	if e.sink != nil {
		if err := e.sink.WriteRun(summary); err != nil {
			return summary, fmt.Errorf("failed to write run outputs: %w", err)
		}
	}
	if err := e.finishRun(run, summary); err != nil {
		return summary, err
	}

	l.Info("Sweep complete",
		zap.Int("ok", summary.Count(StatusOK)),
		zap.Int("empty", summary.Count(StatusEmpty)),
		zap.Int("failed", summary.Count(StatusFailed)),
		zap.Duration("elapsed", summary.FinishedAt.Sub(summary.StartedAt)))
	return summary, nil
}

func startedUnits(results []UnitResult) []UnitResult {
	var out []UnitResult
	for _, r := range results {
		if r.Status != "" {
			out = append(out, r)
		}
	}
	return out
}

// runUnit processes one unit and hands it to the sink and the database.
func (e *Engine) runUnit(ctx context.Context, u Unit) UnitResult {
	l := e.logger.With(zap.String("symbol", u.Symbol), zap.String("timeframe", u.Timeframe))
	start := time.Now()

	res := UnitResult{Unit: u}
	err := e.processUnit(ctx, &res)
	res.Duration = time.Since(start)

	switch {
	case err == nil:
		res.Status = StatusOK
	case errors.Is(err, ticks.ErrInsufficientData):
		res.Status = StatusEmpty
		res.Error = err.Error()
		l.Warn("No usable data for unit", zap.Error(err))
	default:
		res.Status = StatusFailed
		res.Error = err.Error()
		var schemaErr *ticks.SchemaError
		kind := "other"
		if errors.As(err, &schemaErr) {
			kind = "schema"
		}
		if e.metrics != nil {
			e.metrics.SourceErrors.WithLabelValues(kind).Inc()
		}
		e.failed.Add(1)
		l.Error("Unit failed", zap.String("kind", kind), zap.Error(err))
	}

	if res.Status == StatusOK && e.sink != nil {
		if err := e.sink.WriteUnit(&res); err != nil {
			res.Status = StatusFailed
			res.Error = err.Error()
			e.failed.Add(1)
			l.Error("Failed to write unit outputs", zap.Error(err))
		}
	}

	if err := e.saveUnit(&res); err != nil {
		l.Error("Failed to persist unit", zap.Error(err))
	}

	if e.metrics != nil {
		e.metrics.ObserveUnit(u.Timeframe, string(res.Status), res.Duration)
	}
	e.done.Add(1)
	l.Info("Unit finished",
		zap.String("status", string(res.Status)),
		zap.Int("bars", res.NumBars),
		zap.Duration("duration", res.Duration))

	// Keep only the metrics in memory for the run summary.
	res.Bars, res.ATR = nil, nil
	for i := range res.Combos {
		res.Combos[i].Trades = nil
	}
	return res
}

func (e *Engine) processUnit(ctx context.Context, res *UnitResult) error {
	batch, err := e.source.Load(ctx, res.Symbol)
	if err != nil {
		return err
	}
	batch.Symbol = res.Symbol

	normalized, mode, err := ticks.Normalize(batch)
	if err != nil {
		return err
	}
	res.Mode = mode
	res.Ticks = len(normalized)
	if len(normalized) == 0 {
		return fmt.Errorf("no ticks for %s: %w", res.Symbol, ticks.ErrInsufficientData)
	}
	if e.metrics != nil {
		e.metrics.TicksLoaded.WithLabelValues(res.Symbol).Add(float64(len(normalized)))
	}

	bars, err := factor.Aggregate(ticks.Label(normalized), res.Interval, e.cfg.Factor.Epsilon)
	if err != nil {
		return err
	}
	bars = factor.Standardize(bars, e.cfg.Factor.Window)
	atr, err := factor.ATR(bars, e.cfg.TradePath.ATRPeriod, e.cfg.TradePath.ATRMethod)
	if err != nil {
		return err
	}
	res.Bars, res.ATR, res.NumBars = bars, atr, len(bars)

	opts := SweepOptions{
		EntryMode:     EntryMode(e.cfg.TradePath.EntryMode),
		ThresholdMode: e.cfg.TradePath.ThresholdMode,
		MinHistory:    e.cfg.TradePath.MinHistory,
		PositionSize:  e.cfg.TradePath.PositionSize,
		SavePaths:     e.cfg.TradePath.SavePaths,
		Scenarios:     e.scenarios,
		KeepTrades:    e.cfg.Output.WriteTrades,
	}
	combos, err := RunSweep(ctx, bars, atr, e.grid, opts, e.cfg.Sweep.ComboWorkers)
	if err != nil {
		return err
	}
	res.Combos = combos

	if e.metrics != nil {
		e.metrics.Combos.Add(float64(len(combos)))
		for _, c := range combos {
			e.metrics.Trades.Add(float64(c.Metrics.NTrades))
		}
	}
	return nil
}
