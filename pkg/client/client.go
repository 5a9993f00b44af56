// Package client provides the resilient HTTP transport used by the source
// clients: per-call timeouts, bounded retries with exponential backoff,
// an optional request rate ceiling and an optional response cache.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Sternrassler/city-data-fetch/pkg/cache"
	"github.com/Sternrassler/city-data-fetch/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for transport operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "citydata_requests_total",
		Help: "Total outbound requests by host and status",
	}, []string{"host", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "citydata_request_duration_seconds",
		Help:    "Outbound request duration in seconds by host",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"host"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "citydata_errors_total",
		Help: "Total outbound request errors by class",
	}, []string{"class"})

	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "citydata_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	retryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "citydata_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error class",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"error_class"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "citydata_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})
)

// ErrorClass represents a classification of request errors.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 Too Many Requests.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"
)

// maxErrorBody bounds how much of an error response is kept in HTTPError.
const maxErrorBody = 512

// Client performs GET requests against public data APIs.
type Client struct {
	httpClient *http.Client
	limiter    *ratelimit.Limiter
	cache      cache.Store
	config     Config
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// User-Agent header sent with every request
	UserAgent string

	// Timeout bounds each single attempt
	Timeout time.Duration

	// RateLimit caps requests per second (0 = unlimited)
	RateLimit float64

	// Cache is an optional response cache for identical GETs
	Cache cache.Store

	// CacheTTL is how long cached responses stay valid (0 = forever)
	CacheTTL time.Duration

	// Retry
	Retry RetryConfig
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(userAgent string) Config {
	return Config{
		UserAgent: userAgent,
		Timeout:   60 * time.Second,
		Retry:     DefaultRetryConfig(),
	}
}

// New creates a new client.
func New(cfg Config, logger zerolog.Logger) (*Client, error) {
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}
	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("timeout must be > 0 (got %s)", cfg.Timeout)
	}
	if cfg.Retry.MaxAttempts < 1 {
		return nil, fmt.Errorf("retry max attempts must be >= 1 (got %d)", cfg.Retry.MaxAttempts)
	}

	return &Client{
		httpClient: &http.Client{},
		limiter:    ratelimit.NewLimiter(cfg.RateLimit, 1),
		cache:      cfg.Cache,
		config:     cfg,
		logger:     logger.With().Str("component", "transport").Logger(),
	}, nil
}

// Get fetches rawURL and returns the response body of a 2xx response.
// Identical requests are answered from the cache when one is configured.
func (c *Client) Get(ctx context.Context, rawURL string, header http.Header) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	host := u.Host

	cacheKey := cache.KeyFromURL(u)
	if c.cache != nil {
		entry, err := c.cache.Get(ctx, cacheKey)
		switch {
		case err == nil:
			c.logger.Debug().Str("key", cacheKey.String()).Msg("Cache hit")
			requestsTotal.WithLabelValues(host, "cached").Inc()
			return entry.Data, nil
		case !errors.Is(err, cache.ErrCacheMiss):
			c.logger.Warn().Err(err).Str("key", cacheKey.String()).Msg("Cache get error")
		}
	}

	var body []byte
	attempt := func() error {
		var attemptErr error
		body, attemptErr = c.do(ctx, u, header)
		return attemptErr
	}

	if err := retryWithBackoff(ctx, c.config.Retry, attempt, classifyError); err != nil {
		return nil, err
	}

	if c.cache != nil {
		if err := c.cache.Set(ctx, cacheKey, cache.NewEntry(body, http.StatusOK, c.config.CacheTTL)); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to cache response")
		}
	}

	return body, nil
}

// do performs a single attempt bounded by the configured timeout.
func (c *Client) do(ctx context.Context, u *url.URL, header http.Header) ([]byte, error) {
	host := u.Host

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, &HTTPError{ErrorClass: ErrorClassClient, URL: u.Path, Message: "create request", Err: err}
	}
	for key, values := range header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(host).Observe(time.Since(startTime).Seconds())
	}()

	c.logger.Debug().
		Str("host", host).
		Str("path", u.Path).
		Msg("Executing request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn().Err(err).Str("host", host).Msg("HTTP request failed")
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		requestsTotal.WithLabelValues(host, "network_error").Inc()
		return nil, err
	}
	defer resp.Body.Close()

	requestsTotal.WithLabelValues(host, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode >= 400 {
		errClass := classifyStatus(resp.StatusCode)
		errorsTotal.WithLabelValues(string(errClass)).Inc()
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

		c.logger.Warn().
			Str("host", host).
			Int("status", resp.StatusCode).
			Str("error_class", string(errClass)).
			Msg("Request error")

		return nil, &HTTPError{
			StatusCode: resp.StatusCode,
			ErrorClass: errClass,
			URL:        u.Path,
			Message:    string(snippet),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		return nil, fmt.Errorf("read response body: %w", err)
	}

	return body, nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}
