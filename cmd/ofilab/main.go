package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ofi-factor-lab/internal/config"
	"ofi-factor-lab/internal/database"
	"ofi-factor-lab/internal/export"
	"ofi-factor-lab/internal/logger"
	"ofi-factor-lab/internal/metrics"
	"ofi-factor-lab/internal/ticks"
	"ofi-factor-lab/internal/trader"

	"go.uber.org/zap"
)

func main() {
	configDir := flag.String("config", "./configs", "directory holding config.yml")
	flag.Parse()

	// Load application configuration
	cfg, err := config.LoadConfig(*configDir)
	if err != nil {
		// We can't use the logger here because it's not initialized yet.
		fmt.Fprintf(os.Stderr, "could not load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(cfg.Logger.Level, cfg.Logger.Format, cfg.Logger.File)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	log.Info("Configuration loaded",
		zap.Strings("symbols", cfg.Sweep.Symbols),
		zap.Strings("timeframes", cfg.Sweep.Timeframes))

	// Setup context for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	db, err := database.NewDatabase(cfg.Database.DSN)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	log.Info("Database connection successful and schema migrated.")

	source, err := newSource(ctx, &cfg, log)
	if err != nil {
		log.Fatal("Failed to open tick source", zap.Error(err))
	}

	writer, err := export.NewWriter(cfg.Output.Dir, export.Options{
		WriteBars:    cfg.Output.WriteBars,
		WriteTrades:  cfg.Output.WriteTrades,
		TopN:         cfg.Output.TopN,
		RankScenario: cfg.Output.RankScenario,
		Config:       cfg,
	}, os.Stdout, log)
	if err != nil {
		log.Fatal("Failed to prepare output directory", zap.Error(err))
	}

	collector := metrics.NewCollector()
	engine := trader.NewEngine(log, &cfg, source, db, collector, writer)

	var api *trader.APIServer
	if cfg.Server.Port > 0 {
		api = trader.NewAPIServer(engine, collector, cfg.Server.Port, log)
		api.Start()
	}

	summary, err := engine.Run(ctx)
	if api != nil {
		shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		if err := api.Stop(shutdownCtx); err != nil {
			log.Warn("API server shutdown failed", zap.Error(err))
		}
		stop()
	}
	if err != nil {
		log.Fatal("Sweep failed", zap.Error(err))
	}

	log.Info("Sweep finished",
		zap.String("run_id", summary.RunID),
		zap.Int("failed_units", summary.Count(trader.StatusFailed)),
		zap.String("output_dir", cfg.Output.Dir))
}

// newSource builds the configured tick source, cached across timeframes.
func newSource(ctx context.Context, cfg *config.Config, log *zap.Logger) (ticks.Source, error) {
	var src ticks.Source
	switch cfg.Ticks.Source {
	case "store", "":
		src = ticks.NewStore(cfg.Ticks.Dir, cfg.Ticks.StartDate, cfg.Ticks.EndDate, log)
	case "clickhouse":
		ch, err := ticks.NewClickHouseSource(ctx, ticks.ClickHouseConfig{
			Host:      cfg.ClickHouse.Host,
			Port:      cfg.ClickHouse.Port,
			Database:  cfg.ClickHouse.Database,
			Username:  cfg.ClickHouse.Username,
			Password:  cfg.ClickHouse.Password,
			Table:     cfg.ClickHouse.Table,
			StartDate: cfg.Ticks.StartDate,
			EndDate:   cfg.Ticks.EndDate,
		}, log)
		if err != nil {
			return nil, err
		}
		src = ch
	default:
		return nil, fmt.Errorf("unknown tick source %q", cfg.Ticks.Source)
	}

	if cfg.Ticks.Cache {
		src = ticks.NewCache(src)
	}
	return src, nil
}
