package binance

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"ofi-factor-lab/internal/ticks"

	"go.uber.org/zap"
)

// tradeSchema is the column set of a backfilled trade shard.
var tradeSchema = ticks.Schema{Timestamp: true, Price: true, Volume: true}

// DayWriter stores one day of ticks for a symbol.
type DayWriter interface {
	WriteDay(symbol string, day time.Time, schema ticks.Schema, rows []ticks.RawTick) (string, error)
}

// Backfiller pages aggregate trades day by day into a tick store.
type Backfiller struct {
	client RestClientInterface
	store  DayWriter
	logger *zap.Logger
}

// NewBackfiller creates a backfiller writing into store.
func NewBackfiller(client RestClientInterface, store DayWriter, logger *zap.Logger) *Backfiller {
	return &Backfiller{client: client, store: store, logger: logger.Named("backfill")}
}

// FetchDay returns every aggregate trade of the UTC day containing day, in
// trade id order, as price ticks.
func (b *Backfiller) FetchDay(ctx context.Context, symbol string, day time.Time) ([]ticks.RawTick, error) {
	start := day.UTC().Truncate(24 * time.Hour)
	end := start.Add(24 * time.Hour)

	var rows []ticks.RawTick
	q := AggTradesQuery{Symbol: symbol, StartTime: start, Limit: MaxAggTradesLimit}
	for {
		page, err := b.client.GetAggTrades(ctx, q)
		if err != nil {
			return nil, err
		}
		for _, t := range page {
			ts := time.UnixMilli(t.Time).UTC()
			if !ts.Before(end) {
				return rows, nil
			}
			price, err := strconv.ParseFloat(t.Price, 64)
			if err != nil {
				return nil, fmt.Errorf("agg trade %d: bad price %q: %w", t.ID, t.Price, err)
			}
			qty, err := strconv.ParseFloat(t.Quantity, 64)
			if err != nil {
				return nil, fmt.Errorf("agg trade %d: bad quantity %q: %w", t.ID, t.Quantity, err)
			}
			rows = append(rows, ticks.RawTick{Time: ts, Price: price, Volume: qty})
		}
		if len(page) < MaxAggTradesLimit {
			return rows, nil
		}
		q = AggTradesQuery{Symbol: symbol, FromID: page[len(page)-1].ID + 1, Limit: MaxAggTradesLimit}
	}
}

// Backfill fetches every UTC day in [from, to] and writes one shard per day.
// Days without trades are skipped. It returns the number of ticks written.
func (b *Backfiller) Backfill(ctx context.Context, symbol string, from, to time.Time) (int, error) {
	from = from.UTC().Truncate(24 * time.Hour)
	to = to.UTC().Truncate(24 * time.Hour)
	if to.Before(from) {
		return 0, fmt.Errorf("backfill range ends before it starts: %s > %s", from.Format(time.DateOnly), to.Format(time.DateOnly))
	}

	l := b.logger.With(zap.String("symbol", symbol))
	total := 0
	for day := from; !day.After(to); day = day.Add(24 * time.Hour) {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		rows, err := b.FetchDay(ctx, symbol, day)
		if err != nil {
			return total, fmt.Errorf("failed to fetch %s %s: %w", symbol, day.Format(time.DateOnly), err)
		}
		if len(rows) == 0 {
			l.Warn("No trades for day, skipping", zap.String("date", day.Format(time.DateOnly)))
			continue
		}
		path, err := b.store.WriteDay(symbol, day, tradeSchema, rows)
		if err != nil {
			return total, err
		}
		total += len(rows)
		l.Info("Wrote day", zap.String("date", day.Format(time.DateOnly)), zap.Int("ticks", len(rows)), zap.String("file", path))
	}
	return total, nil
}
