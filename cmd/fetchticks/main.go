package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"ofi-factor-lab/internal/binance"
	"ofi-factor-lab/internal/config"
	"ofi-factor-lab/internal/logger"
	"ofi-factor-lab/internal/ticks"

	"go.uber.org/zap"
)

func main() {
	configDir := flag.String("config", "./configs", "directory holding config.yml")
	symbols := flag.String("symbol", "", "comma separated Binance symbols, e.g. BTCUSDT")
	from := flag.String("from", "", "first UTC day to fetch (YYYY-MM-DD)")
	to := flag.String("to", "", "last UTC day to fetch (YYYY-MM-DD), defaults to -from")
	flag.Parse()

	if *symbols == "" || *from == "" {
		flag.Usage()
		os.Exit(2)
	}
	if *to == "" {
		*to = *from
	}
	start, err := time.Parse(time.DateOnly, *from)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid -from: %v\n", err)
		os.Exit(2)
	}
	end, err := time.Parse(time.DateOnly, *to)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid -to: %v\n", err)
		os.Exit(2)
	}

	cfg, err := config.LoadConfig(*configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(cfg.Logger.Level, cfg.Logger.Format, cfg.Logger.File)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client := binance.NewRestClient(&cfg.Binance, log)
	if _, err := client.GetServerTime(ctx); err != nil {
		log.Fatal("Failed to connect to Binance API", zap.Error(err))
	}

	store := ticks.NewStore(cfg.Ticks.Dir, "", "", log)
	backfiller := binance.NewBackfiller(client, store, log)

	for _, sym := range strings.Split(*symbols, ",") {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		if sym == "" {
			continue
		}
		n, err := backfiller.Backfill(ctx, sym, start, end)
		if err != nil {
			log.Fatal("Backfill failed", zap.String("symbol", sym), zap.Error(err))
		}
		log.Info("Backfill complete", zap.String("symbol", sym), zap.Int("ticks", n), zap.String("dir", cfg.Ticks.Dir))
	}
}
