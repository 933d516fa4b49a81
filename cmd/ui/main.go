package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"ofi-factor-lab/internal/config"
	"ofi-factor-lab/internal/database"
	"ofi-factor-lab/internal/logger"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newMux(log *zap.Logger, db *gorm.DB) *http.ServeMux {
	mux := http.NewServeMux()
	apiHandler := NewAPIHandler(log, db)

	mux.HandleFunc("/api/runs", apiHandler.RunsHandler)
	mux.HandleFunc("/api/units", apiHandler.UnitsHandler)
	mux.HandleFunc("/api/results", apiHandler.ResultsHandler)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		http.Redirect(w, r, "/api/runs", http.StatusFound)
	})
	return mux
}

func main() {
	configDir := flag.String("config", "./configs", "directory holding config.yml")
	port := flag.Int("port", 8081, "listen port")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig(*configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Logger.Level, cfg.Logger.Format, cfg.Logger.File)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Connect to the database
	db, err := database.NewDatabase(cfg.Database.DSN)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", *port),
		Handler:           newMux(log, db),
		ReadHeaderTimeout: 5 * time.Second,
	}
	log.Info("Starting results server", zap.String("address", server.Addr))

	if err := server.ListenAndServe(); err != nil {
		log.Fatal("Results server failed", zap.Error(err))
	}
}
