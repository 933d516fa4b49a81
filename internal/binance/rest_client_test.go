package binance

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"ofi-factor-lab/internal/config"
	"ofi-factor-lab/internal/ticks"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// setupTestServer creates a new test server and a RestClient configured to use it.
func setupTestServer(handler http.Handler) (*RestClient, *httptest.Server) {
	server := httptest.NewServer(handler)
	logger := zap.NewNop()

	rc := &RestClient{
		client:        resty.New().SetBaseURL(server.URL),
		logger:        logger,
		limiter:       rate.NewLimiter(rate.Inf, 1),
		breaker:       newBreaker(logger),
		maxRetries:    3,
		retryInterval: time.Millisecond,
	}
	return rc, server
}

func TestGetServerTime(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		expectedTime := time.Now().UnixMilli()
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/time", r.URL.Path)
			w.Header().Set("Content-Type", "application/json")
			_, _ = fmt.Fprintf(w, `{"serverTime": %d}`, expectedTime)
		})

		rc, server := setupTestServer(handler)
		defer server.Close()

		serverTime, err := rc.GetServerTime(context.Background())

		assert.NoError(t, err)
		assert.Equal(t, expectedTime, serverTime)
	})

	t.Run("RetriesServerError", func(t *testing.T) {
		var calls atomic.Int32
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) < 3 {
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(`{"code": -1001, "msg": "Internal error"}`))
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"serverTime": 42}`))
		})

		rc, server := setupTestServer(handler)
		defer server.Close()

		serverTime, err := rc.GetServerTime(context.Background())

		require.NoError(t, err)
		assert.Equal(t, int64(42), serverTime)
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("GivesUpAfterMaxRetries", func(t *testing.T) {
		var calls atomic.Int32
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"code": -1001, "msg": "Internal error"}`))
		})

		rc, server := setupTestServer(handler)
		defer server.Close()

		serverTime, err := rc.GetServerTime(context.Background())

		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to get server time")
		assert.Contains(t, err.Error(), "request failed")
		assert.Equal(t, int64(0), serverTime)
		assert.Equal(t, int32(4), calls.Load())
	})

	t.Run("ClientErrorIsNotRetried", func(t *testing.T) {
		var calls atomic.Int32
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"code": -1121, "msg": "Invalid symbol."}`))
		})

		rc, server := setupTestServer(handler)
		defer server.Close()

		_, err := rc.GetServerTime(context.Background())

		require.Error(t, err)
		assert.Contains(t, err.Error(), "Invalid symbol")
		assert.Equal(t, int32(1), calls.Load())
	})
}

func TestGetAggTrades_Params(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/aggTrades", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "BTCUSDT", q.Get("symbol"))
		assert.Equal(t, "1000", q.Get("limit"))
		assert.Equal(t, strconv.FormatInt(start.UnixMilli(), 10), q.Get("startTime"))
		assert.Empty(t, q.Get("fromId"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"a":7,"p":"100.5","q":"0.25","f":1,"l":2,"T":1709251200000,"m":true}]`))
	})

	rc, server := setupTestServer(handler)
	defer server.Close()

	trades, err := rc.GetAggTrades(context.Background(), AggTradesQuery{Symbol: "BTCUSDT", StartTime: start})

	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, int64(7), trades[0].ID)
	assert.Equal(t, "100.5", trades[0].Price)
	assert.True(t, trades[0].IsBuyerMaker)
}

func TestAggTradesQuery_FromIDWins(t *testing.T) {
	p := AggTradesQuery{Symbol: "X", FromID: 5, StartTime: time.Now(), Limit: 5000}.params()
	assert.Equal(t, "5", p["fromId"])
	assert.Equal(t, "1000", p["limit"])
	assert.NotContains(t, p, "startTime")
}

// pagedServer serves n trades one second apart starting at start, in pages.
func pagedServer(t *testing.T, start time.Time, n int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		first := int64(1)
		if id := q.Get("fromId"); id != "" {
			v, err := strconv.ParseInt(id, 10, 64)
			assert.NoError(t, err)
			first = v
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("["))
		for i := 0; i < MaxAggTradesLimit && first+int64(i) <= int64(n); i++ {
			id := first + int64(i)
			if i > 0 {
				_, _ = w.Write([]byte(","))
			}
			ts := start.Add(time.Duration(id-1) * time.Minute).UnixMilli()
			_, _ = fmt.Fprintf(w, `{"a":%d,"p":"%d","q":"1","f":%d,"l":%d,"T":%d,"m":false}`, id, 100+id%7, id, id, ts)
		}
		_, _ = w.Write([]byte("]"))
	})
}

type memStore struct {
	days map[string][]ticks.RawTick
}

func (m *memStore) WriteDay(symbol string, day time.Time, schema ticks.Schema, rows []ticks.RawTick) (string, error) {
	key := symbol + "/" + day.Format(time.DateOnly)
	m.days[key] = rows
	return key, nil
}

func TestBackfiller_FetchDayPaginates(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	// 1500 minutes spans the whole first day and part of the next.
	rc, server := setupTestServer(pagedServer(t, start, 1500))
	defer server.Close()

	b := NewBackfiller(rc, &memStore{days: map[string][]ticks.RawTick{}}, zap.NewNop())
	rows, err := b.FetchDay(context.Background(), "BTCUSDT", start.Add(5*time.Hour))

	require.NoError(t, err)
	assert.Len(t, rows, 1440)
	assert.Equal(t, start, rows[0].Time)
	assert.Equal(t, start.Add(1439*time.Minute), rows[len(rows)-1].Time)
	for i := 1; i < len(rows); i++ {
		assert.True(t, rows[i].Time.After(rows[i-1].Time))
	}
}

func TestBackfiller_Backfill(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		ms, _ := strconv.ParseInt(r.URL.Query().Get("startTime"), 10, 64)
		day := time.UnixMilli(ms).UTC()
		if day.Day() == 2 {
			_, _ = w.Write([]byte("[]"))
			return
		}
		_, _ = fmt.Fprintf(w, `[{"a":1,"p":"10","q":"2","f":1,"l":1,"T":%d,"m":false}]`, day.Add(time.Hour).UnixMilli())
	})
	rc, server := setupTestServer(handler)
	defer server.Close()

	store := &memStore{days: map[string][]ticks.RawTick{}}
	b := NewBackfiller(rc, store, zap.NewNop())
	n, err := b.Backfill(context.Background(), "ETHUSDT", start, start.Add(48*time.Hour))

	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, store.days, 2)
	assert.Contains(t, store.days, "ETHUSDT/2024-03-01")
	assert.Contains(t, store.days, "ETHUSDT/2024-03-03")
	assert.Equal(t, 10.0, store.days["ETHUSDT/2024-03-01"][0].Price)
	assert.Equal(t, 2.0, store.days["ETHUSDT/2024-03-01"][0].Volume)

	_, err = b.Backfill(context.Background(), "ETHUSDT", start.Add(48*time.Hour), start)
	assert.Error(t, err)
}

func TestNewRestClient(t *testing.T) {
	t.Run("Testnet", func(t *testing.T) {
		rc := NewRestClient(&config.Binance{Testnet: true, RateLimit: 10, RateLimitBurst: 5}, zap.NewNop())
		require.NotNil(t, rc)
		assert.Equal(t, testnetBaseURL, rc.client.BaseURL)
	})

	t.Run("Production", func(t *testing.T) {
		rc := NewRestClient(&config.Binance{RateLimit: 10, RateLimitBurst: 5, MaxRetries: 2}, zap.NewNop())
		require.NotNil(t, rc)
		assert.Equal(t, baseURL, rc.client.BaseURL)
		assert.Equal(t, uint64(2), rc.maxRetries)
	})

	t.Run("CustomURL", func(t *testing.T) {
		rc := NewRestClient(&config.Binance{BaseURL: "http://localhost:1234", Testnet: true}, zap.NewNop())
		assert.Equal(t, "http://localhost:1234", rc.client.BaseURL)
	})
}
