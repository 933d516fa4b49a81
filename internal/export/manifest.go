package export

import (
	"fmt"
	"os"
	"time"

	"ofi-factor-lab/internal/trader"

	"gopkg.in/yaml.v3"
)

// Manifest describes the outputs of one run.
type Manifest struct {
	RunID          string          `yaml:"run_id"`
	StartedAt      time.Time       `yaml:"started_at"`
	FinishedAt     time.Time       `yaml:"finished_at"`
	MetricsVersion int             `yaml:"metrics_version"`
	Combos         []string        `yaml:"combos"`
	Scenarios      []ScenarioEntry `yaml:"cost_scenarios"`
	Units          []UnitEntry     `yaml:"units"`
	Files          []string        `yaml:"files"`
	Config         any             `yaml:"config,omitempty"`
}

type ScenarioEntry struct {
	Name        string  `yaml:"name"`
	PerSideRate float64 `yaml:"per_side_rate"`
}

type UnitEntry struct {
	Symbol     string `yaml:"symbol"`
	Timeframe  string `yaml:"timeframe"`
	Status     string `yaml:"status"`
	Error      string `yaml:"error,omitempty"`
	Ticks      int    `yaml:"ticks"`
	Bars       int    `yaml:"bars"`
	DurationMS int64  `yaml:"duration_ms"`
}

// NewManifest builds the manifest of a finished run.
func NewManifest(s *trader.RunSummary, files []string, cfg any) Manifest {
	m := Manifest{
		RunID:          s.RunID,
		StartedAt:      s.StartedAt,
		FinishedAt:     s.FinishedAt,
		MetricsVersion: trader.MetricsVersion,
		Files:          files,
		Config:         cfg,
	}
	for _, c := range s.Combos {
		m.Combos = append(m.Combos, c.ID())
	}
	for _, sc := range s.Scenarios {
		m.Scenarios = append(m.Scenarios, ScenarioEntry{Name: sc.Name, PerSideRate: sc.PerSideRate})
	}
	for _, u := range s.Units {
		m.Units = append(m.Units, UnitEntry{
			Symbol:     u.Symbol,
			Timeframe:  u.Timeframe,
			Status:     string(u.Status),
			Error:      u.Error,
			Ticks:      u.Ticks,
			Bars:       u.NumBars,
			DurationMS: u.Duration.Milliseconds(),
		})
	}
	return m
}

// WriteManifest writes m as YAML to path.
func WriteManifest(path string, m Manifest) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}

// ReadManifest loads a manifest written by WriteManifest.
func ReadManifest(path string) (Manifest, error) {
	var m Manifest
	data, err := os.ReadFile(path)
	if err != nil {
		return m, err
	}
	if err := yaml.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("failed to decode manifest %s: %w", path, err)
	}
	return m, nil
}
