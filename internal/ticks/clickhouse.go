package ticks

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"go.uber.org/zap"
)

// ClickHouseConfig holds the connection settings of the ClickHouse tick source.
type ClickHouseConfig struct {
	Host      string
	Port      int
	Database  string
	Username  string
	Password  string
	Table     string
	StartDate string // optional inclusive YYYY-MM-DD
	EndDate   string // optional inclusive YYYY-MM-DD
}

// selecter is the part of a ClickHouse connection the source needs.
type selecter interface {
	Select(ctx context.Context, dest any, query string, args ...any) error
}

// clickHouseTick mirrors one row of a market_ticks style table.
type clickHouseTick struct {
	Timestamp time.Time `ch:"timestamp"`
	BidPrice  float64   `ch:"bid_price"`
	AskPrice  float64   `ch:"ask_price"`
	LastPrice float64   `ch:"last_price"`
	Volume    int64     `ch:"volume"`
}

// ClickHouseSource loads tick batches from a ClickHouse table.
type ClickHouseSource struct {
	conn   selecter
	table  string
	start  string
	end    string
	logger *zap.Logger
}

var _ Source = (*ClickHouseSource)(nil)

// NewClickHouseSource opens a native-protocol connection and verifies it.
func NewClickHouseSource(ctx context.Context, cfg ClickHouseConfig, logger *zap.Logger) (*ClickHouseSource, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Protocol: clickhouse.Native,
		Settings: clickhouse.Settings{
			"max_execution_time": 300,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}
	return newClickHouseSource(conn, cfg, logger), nil
}

func newClickHouseSource(conn selecter, cfg ClickHouseConfig, logger *zap.Logger) *ClickHouseSource {
	table := cfg.Table
	if table == "" {
		table = "market_ticks"
	}
	return &ClickHouseSource{
		conn:   conn,
		table:  table,
		start:  cfg.StartDate,
		end:    cfg.EndDate,
		logger: logger.Named("clickhouse"),
	}
}

// Load selects every row of the symbol inside the configured date range.
// The batch is in bid/ask mode when every row carries a positive bid and ask,
// in price mode otherwise.
func (s *ClickHouseSource) Load(ctx context.Context, symbol string) (Batch, error) {
	query, args := s.query(symbol)

	var rows []clickHouseTick
	if err := s.conn.Select(ctx, &rows, query, args...); err != nil {
		return Batch{}, fmt.Errorf("failed to query ticks for %s: %w", symbol, err)
	}
	if len(rows) == 0 {
		return Batch{}, fmt.Errorf("no ticks for %s in %s: %w", symbol, s.table, ErrInsufficientData)
	}

	quoted := true
	for _, r := range rows {
		if r.BidPrice <= 0 || r.AskPrice <= 0 {
			quoted = false
			break
		}
	}

	batch := Batch{
		Symbol: symbol,
		Schema: Schema{Timestamp: true, Volume: true},
		Ticks:  make([]RawTick, len(rows)),
	}
	if quoted {
		batch.Schema.Bid, batch.Schema.Ask = true, true
	} else {
		batch.Schema.Price = true
	}
	for i, r := range rows {
		batch.Ticks[i] = RawTick{
			Time:   r.Timestamp.UTC(),
			Bid:    r.BidPrice,
			Ask:    r.AskPrice,
			Price:  r.LastPrice,
			Volume: float64(r.Volume),
		}
	}

	s.logger.Info("Loaded ticks from ClickHouse",
		zap.String("symbol", symbol),
		zap.Int("ticks", len(rows)),
		zap.Bool("bid_ask", quoted))
	return batch, nil
}

func (s *ClickHouseSource) query(symbol string) (string, []any) {
	query := fmt.Sprintf(
		"SELECT timestamp, bid_price, ask_price, last_price, volume FROM %s WHERE symbol = ?", s.table)
	args := []any{symbol}
	if s.start != "" {
		query += " AND toDate(timestamp) >= toDate(?)"
		args = append(args, s.start)
	}
	if s.end != "" {
		query += " AND toDate(timestamp) <= toDate(?)"
		args = append(args, s.end)
	}
	query += " ORDER BY timestamp"
	return query, args
}
