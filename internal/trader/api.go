package trader

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"ofi-factor-lab/internal/metrics"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// APIServer exposes the progress of a running sweep over HTTP.
type APIServer struct {
	server *http.Server
	engine *Engine
	logger *zap.Logger
}

// NewAPIServer creates a new APIServer listening on port.
func NewAPIServer(engine *Engine, collector *metrics.Collector, port int, logger *zap.Logger) *APIServer {
	s := &APIServer{
		engine: engine,
		logger: logger.Named("api-server"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.statusHandler)
	mux.HandleFunc("/health", s.healthHandler)
	if collector != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(collector.Registry(), promhttp.HandlerOpts{}))
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the server's routes.
func (s *APIServer) Handler() http.Handler {
	return s.server.Handler
}

// Start runs the HTTP server in a new goroutine.
func (s *APIServer) Start() {
	s.logger.Info("Starting API server", zap.String("address", s.server.Addr))
	go func() {
		if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
			s.logger.Error("API server failed", zap.Error(err))
		}
	}()
}

// Stop gracefully shuts down the server.
func (s *APIServer) Stop(ctx context.Context) error {
	s.logger.Info("Stopping API server...")
	return s.server.Shutdown(ctx)
}

func (s *APIServer) statusHandler(w http.ResponseWriter, r *http.Request) {
	total, done, failed := s.engine.Progress()
	status := struct {
		UUID        string `json:"uuid"`
		StartTime   string `json:"start_time"`
		Uptime      string `json:"uptime"`
		Combos      int    `json:"combos"`
		UnitsTotal  int64  `json:"units_total"`
		UnitsDone   int64  `json:"units_done"`
		UnitsFailed int64  `json:"units_failed"`
	}{
		UUID:        s.engine.UUID,
		Combos:      len(s.engine.Grid()),
		UnitsTotal:  total,
		UnitsDone:   done,
		UnitsFailed: failed,
	}
	if !s.engine.StartTime.IsZero() {
		status.StartTime = s.engine.StartTime.Format(time.RFC3339)
		status.Uptime = time.Since(s.engine.StartTime).Round(time.Second).String()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(status); err != nil {
		s.logger.Error("Failed to write status response", zap.Error(err))
		http.Error(w, "Failed to encode status", http.StatusInternalServerError)
	}
}

func (s *APIServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}
