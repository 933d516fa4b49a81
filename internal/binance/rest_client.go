// Package binance backfills historical aggregate trades from the Binance
// public REST API into the tick store.
package binance

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"ofi-factor-lab/internal/config"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	baseURL        = "https://api.binance.com/api/v3"
	testnetBaseURL = "https://testnet.binance.vision/api/v3"

	// MaxAggTradesLimit is the largest page /aggTrades returns.
	MaxAggTradesLimit = 1000
)

// RestClientInterface defines the calls the backfill needs.
type RestClientInterface interface {
	GetServerTime(ctx context.Context) (int64, error)
	GetAggTrades(ctx context.Context, q AggTradesQuery) ([]AggTrade, error)
}

// RestClient is a rate limited, retrying client for the public Binance REST API.
type RestClient struct {
	client        *resty.Client
	logger        *zap.Logger
	limiter       *rate.Limiter
	breaker       *gobreaker.CircuitBreaker
	maxRetries    uint64
	retryInterval time.Duration
}

var _ RestClientInterface = (*RestClient)(nil)

// NewRestClient creates a new Binance REST API client.
func NewRestClient(cfg *config.Binance, logger *zap.Logger) *RestClient {
	url := cfg.BaseURL
	switch {
	case url != "":
		logger.Info("Using custom Binance endpoint", zap.String("url", url))
	case cfg.Testnet:
		url = testnetBaseURL
		logger.Warn("Using Binance Testnet")
	default:
		url = baseURL
		logger.Info("Using Binance Production API")
	}

	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	return &RestClient{
		client:        resty.New().SetBaseURL(url).SetTimeout(30 * time.Second),
		logger:        logger,
		limiter:       rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimitBurst),
		breaker:       newBreaker(logger),
		maxRetries:    uint64(maxRetries),
		retryInterval: time.Second,
	}
}

func newBreaker(logger *zap.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "binance-rest",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
}

// GetServerTime fetches the current server time from Binance.
func (c *RestClient) GetServerTime(ctx context.Context) (int64, error) {
	type serverTimeResponse struct {
		ServerTime int64 `json:"serverTime"`
	}

	resp, err := c.doRequest(ctx, "/time", nil, &serverTimeResponse{})
	if err != nil {
		c.logger.Error("Failed to get server time", zap.Error(err))
		return 0, fmt.Errorf("failed to get server time: %w", err)
	}
	return resp.Result().(*serverTimeResponse).ServerTime, nil
}

// AggTrade is one row of /aggTrades. Prices and quantities are decimal strings.
type AggTrade struct {
	ID           int64  `json:"a"`
	Price        string `json:"p"`
	Quantity     string `json:"q"`
	FirstTradeID int64  `json:"f"`
	LastTradeID  int64  `json:"l"`
	Time         int64  `json:"T"`
	IsBuyerMaker bool   `json:"m"`
}

// AggTradesQuery selects a page of aggregate trades. FromID takes precedence
// over the time bounds when it is positive.
type AggTradesQuery struct {
	Symbol    string
	FromID    int64
	StartTime time.Time
	EndTime   time.Time
	Limit     int
}

func (q AggTradesQuery) params() map[string]string {
	p := map[string]string{"symbol": q.Symbol}
	limit := q.Limit
	if limit <= 0 || limit > MaxAggTradesLimit {
		limit = MaxAggTradesLimit
	}
	p["limit"] = strconv.Itoa(limit)
	if q.FromID > 0 {
		p["fromId"] = strconv.FormatInt(q.FromID, 10)
		return p
	}
	if !q.StartTime.IsZero() {
		p["startTime"] = strconv.FormatInt(q.StartTime.UnixMilli(), 10)
	}
	if !q.EndTime.IsZero() {
		p["endTime"] = strconv.FormatInt(q.EndTime.UnixMilli(), 10)
	}
	return p
}

// GetAggTrades fetches one page of aggregate trades.
func (c *RestClient) GetAggTrades(ctx context.Context, q AggTradesQuery) ([]AggTrade, error) {
	var trades []AggTrade
	resp, err := c.doRequest(ctx, "/aggTrades", q.params(), &trades)
	if err != nil {
		return nil, fmt.Errorf("failed to get agg trades for %s: %w", q.Symbol, err)
	}
	return *resp.Result().(*[]AggTrade), nil
}

// retryableError marks a response worth retrying.
type retryableError struct {
	status int
	body   string
}

func (e *retryableError) Error() string {
	return fmt.Sprintf("request failed with status %d: %s", e.status, e.body)
}

// doRequest executes a GET behind the rate limiter and circuit breaker,
// retrying throttling, server and network errors with exponential backoff.
func (c *RestClient) doRequest(ctx context.Context, path string, params map[string]string, result any) (*resty.Response, error) {
	var resp *resty.Response
	attempt := 0

	operation := func() error {
		attempt++
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(fmt.Errorf("rate limiter wait failed: %w", err))
		}

		out, err := c.breaker.Execute(func() (interface{}, error) {
			c.logger.Debug("Executing request", zap.String("url", c.client.BaseURL+path), zap.Int("attempt", attempt))
			r, err := c.client.R().
				SetContext(ctx).
				SetQueryParams(params).
				SetResult(result).
				Get(path)
			if err != nil {
				return nil, err
			}
			status := r.StatusCode()
			if status == http.StatusTooManyRequests || status == http.StatusTeapot || status >= 500 {
				return nil, &retryableError{status: status, body: r.String()}
			}
			// Other client errors do not count against the breaker.
			return r, nil
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return backoff.Permanent(err)
			}
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}

		r := out.(*resty.Response)
		if r.IsError() {
			return backoff.Permanent(fmt.Errorf("request failed with status %s: %s", r.Status(), r.String()))
		}
		resp = r
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryInterval
	b.MaxInterval = 30 * c.retryInterval
	b.Multiplier = 2.0
	b.RandomizationFactor = 0.1

	err := backoff.RetryNotify(operation,
		backoff.WithContext(backoff.WithMaxRetries(b, c.maxRetries), ctx),
		func(err error, wait time.Duration) {
			c.logger.Warn("Request failed, retrying...",
				zap.String("path", path),
				zap.Int("attempt", attempt),
				zap.Duration("retry_after", wait),
				zap.Error(err))
		})
	if err != nil {
		return nil, err
	}
	return resp, nil
}
