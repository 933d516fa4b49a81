package database

import (
	"fmt"

	"ofi-factor-lab/internal/models"

	"gorm.io/gorm"
)

// CreateRun inserts a new run row.
func CreateRun(db *gorm.DB, run *models.SweepRun) error {
	if err := db.Create(run).Error; err != nil {
		return fmt.Errorf("failed to create run %s: %w", run.RunID, err)
	}
	return nil
}

// FinishRun stores the final counters of a run.
func FinishRun(db *gorm.DB, run *models.SweepRun) error {
	if err := db.Save(run).Error; err != nil {
		return fmt.Errorf("failed to update run %s: %w", run.RunID, err)
	}
	return nil
}

// SaveUnit stores a unit's status together with its combo results in one
// transaction.
func SaveUnit(db *gorm.DB, status *models.UnitStatus, results []models.ComboResult) error {
	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(status).Error; err != nil {
			return fmt.Errorf("failed to save unit %s/%s: %w", status.Symbol, status.Timeframe, err)
		}
		if len(results) == 0 {
			return nil
		}
		// Costs are created through the association.
		if err := tx.CreateInBatches(results, 100).Error; err != nil {
			return fmt.Errorf("failed to save results for %s/%s: %w", status.Symbol, status.Timeframe, err)
		}
		return nil
	})
}

// ListRuns returns runs, newest first.
func ListRuns(db *gorm.DB, limit int) ([]models.SweepRun, error) {
	var runs []models.SweepRun
	q := db.Order("started_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

// ListUnits returns the unit statuses of a run.
func ListUnits(db *gorm.DB, runID string) ([]models.UnitStatus, error) {
	var units []models.UnitStatus
	if err := db.Where("run_id = ?", runID).Order("symbol, timeframe").Find(&units).Error; err != nil {
		return nil, fmt.Errorf("failed to list units of run %s: %w", runID, err)
	}
	return units, nil
}

// TopResults returns the best combos of a run. With a scenario they are
// ranked by that scenario's mean net R, otherwise by gross mean R. Rows with
// an undefined score sort last.
func TopResults(db *gorm.DB, runID, scenario string, limit int) ([]models.ComboResult, error) {
	var results []models.ComboResult
	q := db.Model(&models.ComboResult{}).
		Preload("Costs").
		Where("combo_results.run_id = ?", runID)

	if scenario != "" {
		q = q.Joins("JOIN combo_costs ON combo_costs.combo_result_id = combo_results.id AND combo_costs.scenario = ? AND combo_costs.deleted_at IS NULL", scenario).
			Order("combo_costs.mean_net_r IS NULL, combo_costs.mean_net_r DESC")
	} else {
		q = q.Order("combo_results.mean_r_gross IS NULL, combo_results.mean_r_gross DESC")
	}
	q = q.Order("combo_results.id")
	if limit > 0 {
		q = q.Limit(limit)
	}

	if err := q.Find(&results).Error; err != nil {
		return nil, fmt.Errorf("failed to query results of run %s: %w", runID, err)
	}
	return results, nil
}
