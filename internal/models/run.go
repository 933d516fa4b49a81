package models

import (
	"time"

	"gorm.io/gorm"
)

// SweepRun is one execution of the batch pipeline.
type SweepRun struct {
	gorm.Model
	RunID      string    `gorm:"uniqueIndex;not null" json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	EntryMode  string    `json:"entry_mode"`
	Threshold  string    `json:"threshold_mode"`
	Window     int       `json:"window"`
	UnitsOK    int       `json:"units_ok"`
	UnitsEmpty int       `json:"units_empty"`
	UnitsFail  int       `json:"units_failed"`
	ConfigYAML string    `json:"-"`
}

// UnitStatus records how one symbol/timeframe unit of a run ended.
type UnitStatus struct {
	gorm.Model
	RunID      string   `gorm:"index;not null" json:"run_id"`
	Symbol     string   `json:"symbol"`
	Timeframe  string   `json:"timeframe"`
	Status     string   `json:"status"` // "ok", "empty" or "failed"
	Error      string   `json:"error,omitempty"`
	Mode       string   `json:"mode,omitempty"`
	Ticks      int      `json:"ticks"`
	Bars       int      `json:"bars"`
	Combos     int      `json:"combos"`
	DurationMS int64    `json:"duration_ms"`
	TopCombo   string   `json:"top_combo,omitempty"`
	TopMeanR   *float64 `json:"top_mean_r,omitempty"`
}
