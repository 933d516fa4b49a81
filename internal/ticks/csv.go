package ticks

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"
)

// readCSVShard reads a headered CSV shard. The timestamp column may be named
// ts or timestamp and hold either RFC3339 text or an integer epoch.
func readCSVShard(path string) (Batch, error) {
	f, err := os.Open(path)
	if err != nil {
		return Batch{}, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.ReuseRecord = true
	header, err := r.Read()
	if err != nil {
		return Batch{}, fmt.Errorf("failed to read header of %s: %w", path, err)
	}

	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	col := func(name string) int {
		if i, ok := idx[name]; ok {
			return i
		}
		return -1
	}

	tsCol := col("ts")
	if tsCol < 0 {
		tsCol = col("timestamp")
	}
	bidCol, askCol, priceCol := col("bid"), col("ask"), col("price")
	bidSizeCol, askSizeCol, volCol := col("bid_size"), col("ask_size"), col("volume")

	batch := Batch{Schema: Schema{
		Timestamp: tsCol >= 0,
		Bid:       bidCol >= 0,
		Ask:       askCol >= 0,
		Price:     priceCol >= 0,
		BidSize:   bidSizeCol >= 0,
		AskSize:   askSizeCol >= 0,
		Volume:    volCol >= 0,
	}}
	if tsCol < 0 {
		return batch, nil
	}

	line := 1
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return Batch{}, fmt.Errorf("%s line %d: %w", path, line, err)
		}

		ts, err := parseTimestamp(rec[tsCol])
		if err != nil {
			return Batch{}, fmt.Errorf("%s line %d: %w", path, line, err)
		}
		// Missing quotes stay NaN so Normalize drops the row; missing sizes are 0.
		tick := RawTick{Time: ts, Bid: math.NaN(), Ask: math.NaN(), Price: math.NaN()}
		fields := []struct {
			col   int
			dst   *float64
			empty float64
		}{
			{bidCol, &tick.Bid, math.NaN()}, {askCol, &tick.Ask, math.NaN()}, {priceCol, &tick.Price, math.NaN()},
			{bidSizeCol, &tick.BidSize, 0}, {askSizeCol, &tick.AskSize, 0}, {volCol, &tick.Volume, 0},
		}
		for _, fld := range fields {
			if fld.col < 0 || fld.col >= len(rec) {
				continue
			}
			v, err := parseFloat(rec[fld.col], fld.empty)
			if err != nil {
				return Batch{}, fmt.Errorf("%s line %d: %w", path, line, err)
			}
			*fld.dst = v
		}
		batch.Ticks = append(batch.Ticks, tick)
	}
	return batch, nil
}

func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return epochTime(n, 0), nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999999", "2006-01-02T15:04:05.999999999"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}

// parseFloat parses a numeric cell; an empty cell yields empty.
func parseFloat(s string, empty float64) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return empty, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", s)
	}
	return v, nil
}
