package main

import (
	"encoding/json"
	"net/http"
	"strconv"

	"ofi-factor-lab/internal/database"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// APIHandler holds dependencies for the API endpoints.
type APIHandler struct {
	log *zap.Logger
	db  *gorm.DB
}

// NewAPIHandler creates a new APIHandler.
func NewAPIHandler(log *zap.Logger, db *gorm.DB) *APIHandler {
	return &APIHandler{log: log, db: db}
}

func (h *APIHandler) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Warn("Failed to encode response", zap.Error(err))
	}
}

func intParam(r *http.Request, name string, def int) int {
	if v, err := strconv.Atoi(r.URL.Query().Get(name)); err == nil && v > 0 {
		return v
	}
	return def
}

// RunsHandler returns recorded sweep runs, newest first.
func (h *APIHandler) RunsHandler(w http.ResponseWriter, r *http.Request) {
	runs, err := database.ListRuns(h.db, intParam(r, "limit", 50))
	if err != nil {
		h.log.Error("Failed to get runs from database", zap.Error(err))
		http.Error(w, "Failed to get runs", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, runs)
}

// runID resolves the run_id parameter, defaulting to the latest run.
func (h *APIHandler) runID(w http.ResponseWriter, r *http.Request) (string, bool) {
	if id := r.URL.Query().Get("run_id"); id != "" {
		return id, true
	}
	runs, err := database.ListRuns(h.db, 1)
	if err != nil {
		h.log.Error("Failed to get latest run", zap.Error(err))
		http.Error(w, "Failed to get runs", http.StatusInternalServerError)
		return "", false
	}
	if len(runs) == 0 {
		http.Error(w, "No runs recorded", http.StatusNotFound)
		return "", false
	}
	return runs[0].RunID, true
}

// UnitsHandler returns the unit statuses of a run.
func (h *APIHandler) UnitsHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.runID(w, r)
	if !ok {
		return
	}
	units, err := database.ListUnits(h.db, id)
	if err != nil {
		h.log.Error("Failed to get units", zap.String("run_id", id), zap.Error(err))
		http.Error(w, "Failed to get units", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, units)
}

// ResultsHandler returns the best combos of a run, optionally ranked by a
// cost scenario's net R.
func (h *APIHandler) ResultsHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.runID(w, r)
	if !ok {
		return
	}
	results, err := database.TopResults(h.db, id, r.URL.Query().Get("scenario"), intParam(r, "limit", 20))
	if err != nil {
		h.log.Error("Failed to get results", zap.String("run_id", id), zap.Error(err))
		http.Error(w, "Failed to get results", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, results)
}
