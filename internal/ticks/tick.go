// Package ticks loads historical tick batches and turns them into signed,
// volumed ticks ready for bar aggregation.
package ticks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Mode is the price representation detected in a tick batch.
type Mode string

const (
	ModeBidAsk Mode = "bid_ask"
	ModePrice  Mode = "price"
)

// ErrInsufficientData is returned when a batch holds no usable ticks or bars.
// Callers treat it as "no trades", not as a failure.
var ErrInsufficientData = errors.New("insufficient data")

// SchemaError reports a batch that lacks the columns needed to price a tick.
type SchemaError struct {
	Symbol  string
	Missing []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("tick schema for %s is missing columns: %s", e.Symbol, strings.Join(e.Missing, ", "))
}

// Schema records which columns a batch carries.
type Schema struct {
	Timestamp bool
	Bid       bool
	Ask       bool
	Price     bool
	BidSize   bool
	AskSize   bool
	Volume    bool
}

// Merge returns the columns present in either schema.
func (s Schema) Merge(o Schema) Schema {
	return Schema{
		Timestamp: s.Timestamp || o.Timestamp,
		Bid:       s.Bid || o.Bid,
		Ask:       s.Ask || o.Ask,
		Price:     s.Price || o.Price,
		BidSize:   s.BidSize || o.BidSize,
		AskSize:   s.AskSize || o.AskSize,
		Volume:    s.Volume || o.Volume,
	}
}

// Mode detects the price representation, preferring bid/ask when both exist.
func (s Schema) Mode() (Mode, bool) {
	switch {
	case s.Bid && s.Ask:
		return ModeBidAsk, true
	case s.Price:
		return ModePrice, true
	default:
		return "", false
	}
}

// RawTick is one row as loaded from storage. Missing or null bid, ask and
// price cells are NaN; missing size and volume cells are zero.
type RawTick struct {
	Time    time.Time
	Bid     float64
	Ask     float64
	Price   float64
	BidSize float64
	AskSize float64
	Volume  float64
}

// Batch is a complete, fully buffered set of ticks for one symbol.
type Batch struct {
	Symbol string
	Schema Schema
	Ticks  []RawTick
}

// Tick is a normalized tick: UTC timestamp, mid price and volume.
type Tick struct {
	Time   time.Time
	Mid    float64
	Volume float64
}

// SignedTick is a normalized tick labeled with a trade direction.
type SignedTick struct {
	Tick
	Sign int // +1 buyer-initiated, -1 seller-initiated
}

// Source loads the tick batch of a symbol.
type Source interface {
	Load(ctx context.Context, symbol string) (Batch, error)
}
