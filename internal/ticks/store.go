package ticks

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	symbolPrefix = "symbol="
	datePrefix   = "date="
	dateLayout   = "2006-01-02"
)

// Store reads and writes ticks partitioned on disk as
// <dir>/symbol=<SYM>/date=<YYYY-MM-DD>/*.{parquet,csv}.
type Store struct {
	dir       string
	startDate string
	endDate   string
	logger    *zap.Logger
}

var _ Source = (*Store)(nil)

// NewStore creates a store rooted at dir. startDate and endDate are optional
// inclusive YYYY-MM-DD bounds on the date partitions that are read.
func NewStore(dir, startDate, endDate string, logger *zap.Logger) *Store {
	return &Store{
		dir:       dir,
		startDate: startDate,
		endDate:   endDate,
		logger:    logger.Named("tick-store"),
	}
}

// Load reads every shard of the symbol's selected date partitions into one batch.
// Shards that cannot be read are logged and skipped.
func (s *Store) Load(ctx context.Context, symbol string) (Batch, error) {
	dates, err := s.partitions(symbol)
	if err != nil {
		return Batch{}, err
	}

	l := s.logger.With(zap.String("symbol", symbol))
	l.Info("Loading tick partitions",
		zap.Int("partitions", len(dates)),
		zap.String("first", dates[0]),
		zap.String("last", dates[len(dates)-1]))

	batch := Batch{Symbol: symbol}
	shards := 0
	for _, date := range dates {
		if err := ctx.Err(); err != nil {
			return Batch{}, err
		}

		files, err := shardFiles(s.datePath(symbol, date))
		if err != nil {
			return Batch{}, err
		}
		for _, f := range files {
			var part Batch
			switch strings.ToLower(filepath.Ext(f)) {
			case ".parquet":
				part, err = readParquetShard(f)
			case ".csv":
				part, err = readCSVShard(f)
			}
			if err != nil {
				l.Warn("Failed to read tick shard, skipping", zap.String("file", f), zap.Error(err))
				continue
			}
			batch.Schema = batch.Schema.Merge(part.Schema)
			batch.Ticks = append(batch.Ticks, part.Ticks...)
			shards++
		}
	}

	if shards == 0 {
		return Batch{}, fmt.Errorf("no readable tick shards for %s: %w", symbol, ErrInsufficientData)
	}

	l.Info("Loaded ticks", zap.Int("shards", shards), zap.Int("ticks", len(batch.Ticks)))
	return batch, nil
}

// WriteDay writes one parquet shard holding the given ticks into the
// symbol/date partition, replacing a previous shard of the same name.
func (s *Store) WriteDay(symbol string, day time.Time, schema Schema, rows []RawTick) (string, error) {
	dir := s.datePath(symbol, day.UTC().Format(dateLayout))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create partition %s: %w", dir, err)
	}
	path := filepath.Join(dir, "part-0000.parquet")
	if err := writeParquetShard(path, schema, rows); err != nil {
		return "", err
	}
	return path, nil
}

// partitions lists the symbol's date partitions inside the configured range.
func (s *Store) partitions(symbol string) ([]string, error) {
	symbolDir := filepath.Join(s.dir, symbolPrefix+symbol)
	entries, err := os.ReadDir(symbolDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("no tick data for %s in %s: %w", symbol, s.dir, ErrInsufficientData)
		}
		return nil, fmt.Errorf("failed to list %s: %w", symbolDir, err)
	}

	var dates []string
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), datePrefix) {
			continue
		}
		date := strings.TrimPrefix(e.Name(), datePrefix)
		if s.startDate != "" && date < s.startDate {
			continue
		}
		if s.endDate != "" && date > s.endDate {
			continue
		}
		dates = append(dates, date)
	}
	sort.Strings(dates)

	if len(dates) == 0 {
		return nil, fmt.Errorf("no date partitions for %s between %q and %q: %w",
			symbol, s.startDate, s.endDate, ErrInsufficientData)
	}
	return dates, nil
}

func (s *Store) datePath(symbol, date string) string {
	return filepath.Join(s.dir, symbolPrefix+symbol, datePrefix+date)
}

func shardFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".parquet", ".csv":
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}
