package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"ofi-factor-lab/internal/trader"

	"go.uber.org/zap"
)

// Options selects the optional tables.
type Options struct {
	WriteBars   bool
	WriteTrades bool
	TopN        int
	// RankScenario ranks the console summary; empty ranks by gross R.
	RankScenario string
	// Config is embedded into the manifest when set.
	Config any
}

// Writer writes run outputs into one directory. It is safe for concurrent
// WriteUnit calls.
type Writer struct {
	dir     string
	opts    Options
	console io.Writer
	logger  *zap.Logger

	mu    sync.Mutex
	files []string
}

var _ trader.ResultSink = (*Writer)(nil)

// NewWriter creates dir if needed. console receives the summary table and
// may be nil.
func NewWriter(dir string, opts Options, console io.Writer, logger *zap.Logger) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output dir %s: %w", dir, err)
	}
	return &Writer{dir: dir, opts: opts, console: console, logger: logger.Named("export")}, nil
}

// fileName makes a table name safe for the file system.
func fileName(parts ...string) string {
	r := strings.NewReplacer("/", "-", "\\", "-", " ", "_", ":", "-")
	return r.Replace(strings.Join(parts, "_")) + ".csv"
}

func (w *Writer) write(name string, fn func(io.Writer) error) error {
	if err := writeFile(filepath.Join(w.dir, name), fn); err != nil {
		return err
	}
	w.mu.Lock()
	w.files = append(w.files, name)
	w.mu.Unlock()
	return nil
}

// WriteUnit writes the bar, trade and sweep tables of one unit.
func (w *Writer) WriteUnit(res *trader.UnitResult) error {
	if w.opts.WriteBars {
		if err := w.write(fileName("bars", res.Symbol, res.Timeframe), func(out io.Writer) error {
			return WriteBars(out, res.Bars)
		}); err != nil {
			return err
		}
	}

	var scenarios []trader.CostScenario
	if len(res.Combos) > 0 {
		for _, s := range res.Combos[0].Metrics.Scenarios {
			scenarios = append(scenarios, trader.CostScenario{Name: s.Scenario, PerSideRate: s.PerSideRate})
		}
	}

	if w.opts.WriteTrades {
		for _, c := range res.Combos {
			if c.Trades == nil {
				continue
			}
			if err := w.write(fileName("trades", res.Symbol, res.Timeframe, c.Combo.ID()), func(out io.Writer) error {
				return WriteTrades(out, c.Trades, scenarios)
			}); err != nil {
				return err
			}
			if len(c.Trades) > 0 && c.Trades[0].Path != nil {
				if err := w.write(fileName("paths", res.Symbol, res.Timeframe, c.Combo.ID()), func(out io.Writer) error {
					return WritePaths(out, c.Trades)
				}); err != nil {
					return err
				}
			}
		}
	}

	if err := w.write(fileName("sweep", res.Symbol, res.Timeframe), func(out io.Writer) error {
		return WriteSweep(out, []trader.UnitResult{*res}, scenarios)
	}); err != nil {
		return err
	}

	w.logger.Debug("Wrote unit outputs", zap.String("symbol", res.Symbol), zap.String("timeframe", res.Timeframe))
	return nil
}

// WriteRun writes the combined sweep, the unit status table, the manifest and
// prints the top combos.
func (w *Writer) WriteRun(s *trader.RunSummary) error {
	if err := w.write("sweep_all.csv", func(out io.Writer) error {
		return WriteSweep(out, s.Units, s.Scenarios)
	}); err != nil {
		return err
	}
	if err := w.write("units.csv", func(out io.Writer) error {
		return WriteUnits(out, s.Units)
	}); err != nil {
		return err
	}

	w.mu.Lock()
	files := append([]string(nil), w.files...)
	w.mu.Unlock()
	sort.Strings(files)

	path := filepath.Join(w.dir, "manifest.yaml")
	if err := WriteManifest(path, NewManifest(s, files, w.opts.Config)); err != nil {
		return err
	}

	if w.console != nil {
		PrintTopCombos(w.console, s, w.opts.RankScenario, w.opts.TopN)
	}
	w.logger.Info("Wrote run outputs", zap.String("dir", w.dir), zap.Int("files", len(files)+1))
	return nil
}
