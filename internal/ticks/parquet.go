package ticks

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/format"
)

// shardRow is the read-side view of a tick shard. Every column is optional so
// that price-only and bid/ask shards decode through the same type.
type shardRow struct {
	TS        *int64   `parquet:"ts,optional"`
	Timestamp *int64   `parquet:"timestamp,optional"`
	Bid       *float64 `parquet:"bid,optional"`
	Ask       *float64 `parquet:"ask,optional"`
	Price     *float64 `parquet:"price,optional"`
	BidSize   *float64 `parquet:"bid_size,optional"`
	AskSize   *float64 `parquet:"ask_size,optional"`
	Volume    *float64 `parquet:"volume,optional"`
}

// priceRow and quoteRow are the write-side layouts. ts is epoch nanoseconds.
type priceRow struct {
	TS     int64   `parquet:"ts"`
	Price  float64 `parquet:"price"`
	Volume float64 `parquet:"volume"`
}

type quoteRow struct {
	TS      int64   `parquet:"ts"`
	Bid     float64 `parquet:"bid"`
	Ask     float64 `parquet:"ask"`
	BidSize float64 `parquet:"bid_size"`
	AskSize float64 `parquet:"ask_size"`
}

const readBatchSize = 4096

func readParquetShard(path string) (Batch, error) {
	f, err := os.Open(path)
	if err != nil {
		return Batch{}, err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return Batch{}, err
	}
	pf, err := parquet.OpenFile(f, st.Size())
	if err != nil {
		return Batch{}, fmt.Errorf("failed to open parquet file %s: %w", path, err)
	}

	schema, tsColumn, unit := parquetSchema(pf.Schema())
	if !schema.Timestamp {
		return Batch{Schema: schema}, nil
	}

	reader := parquet.NewGenericReader[shardRow](f)
	defer reader.Close()

	batch := Batch{Schema: schema}
	buf := make([]shardRow, readBatchSize)
	for {
		n, err := reader.Read(buf)
		for _, r := range buf[:n] {
			ts := r.TS
			if tsColumn == "timestamp" {
				ts = r.Timestamp
			}
			if ts == nil {
				continue
			}
			batch.Ticks = append(batch.Ticks, RawTick{
				Time:    epochTime(*ts, unit),
				Bid:     deref(r.Bid, math.NaN()),
				Ask:     deref(r.Ask, math.NaN()),
				Price:   deref(r.Price, math.NaN()),
				BidSize: deref(r.BidSize, 0),
				AskSize: deref(r.AskSize, 0),
				Volume:  deref(r.Volume, 0),
			})
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return Batch{}, fmt.Errorf("failed to read %s: %w", path, err)
		}
		if n == 0 {
			break
		}
	}
	return batch, nil
}

// parquetSchema reports the columns present in the file, which column holds
// the timestamp and its declared unit (zero when the column is a plain int64).
func parquetSchema(s *parquet.Schema) (Schema, string, time.Duration) {
	has := func(name string) bool {
		_, ok := s.Lookup(name)
		return ok
	}
	schema := Schema{
		Bid:     has("bid"),
		Ask:     has("ask"),
		Price:   has("price"),
		BidSize: has("bid_size"),
		AskSize: has("ask_size"),
		Volume:  has("volume"),
	}

	for _, name := range []string{"ts", "timestamp"} {
		leaf, ok := s.Lookup(name)
		if !ok {
			continue
		}
		schema.Timestamp = true
		return schema, name, timestampUnit(leaf.Node.Type().LogicalType())
	}
	return schema, "", 0
}

func timestampUnit(lt *format.LogicalType) time.Duration {
	if lt == nil || lt.Timestamp == nil {
		return 0
	}
	switch {
	case lt.Timestamp.Unit.Millis != nil:
		return time.Millisecond
	case lt.Timestamp.Unit.Micros != nil:
		return time.Microsecond
	case lt.Timestamp.Unit.Nanos != nil:
		return time.Nanosecond
	}
	return 0
}

func writeParquetShard(path string, schema Schema, rows []RawTick) error {
	mode, ok := schema.Mode()
	if !ok {
		return &SchemaError{Missing: []string{"bid+ask or price"}}
	}

	var err error
	if mode == ModeBidAsk {
		out := make([]quoteRow, len(rows))
		for i, r := range rows {
			out[i] = quoteRow{TS: r.Time.UnixNano(), Bid: r.Bid, Ask: r.Ask, BidSize: r.BidSize, AskSize: r.AskSize}
		}
		err = parquet.WriteFile(path, out)
	} else {
		out := make([]priceRow, len(rows))
		for i, r := range rows {
			out[i] = priceRow{TS: r.Time.UnixNano(), Price: r.Price, Volume: r.Volume}
		}
		err = parquet.WriteFile(path, out)
	}
	if err != nil {
		return fmt.Errorf("failed to write parquet file %s: %w", path, err)
	}
	return nil
}

// epochTime converts an integer epoch to UTC. With no declared unit the unit
// is inferred from the magnitude of the value.
func epochTime(v int64, unit time.Duration) time.Time {
	if unit == 0 {
		abs := v
		if abs < 0 {
			abs = -abs
		}
		switch {
		case abs >= 1e17:
			unit = time.Nanosecond
		case abs >= 1e14:
			unit = time.Microsecond
		case abs >= 1e11:
			unit = time.Millisecond
		default:
			unit = time.Second
		}
	}
	return time.Unix(0, v*int64(unit)).UTC()
}

// deref returns *p, or null when the cell is null or the column is absent.
func deref(p *float64, null float64) float64 {
	if p == nil {
		return null
	}
	return *p
}
