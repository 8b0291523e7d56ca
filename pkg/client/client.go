// Package client provides the paginated customer API client with
// retry, backoff and rate-limit handling.
package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"customersync/pkg/ratelimit"
)

// Prometheus metrics for customer API client operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "customersync_requests_total",
		Help: "Total customer API requests by status",
	}, []string{"status"})

	requestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "customersync_request_duration_seconds",
		Help:    "Customer API request duration in seconds",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	})

	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "customersync_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "customersync_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})

	pagesFetchedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "customersync_pages_fetched_total",
		Help: "Total pages fetched successfully",
	})
)

// RawRecord is one customer record exactly as the API returned it.
type RawRecord map[string]any

// PageResponse is the decoded body of one API page.
type PageResponse struct {
	Page       int         `json:"page"`
	TotalPages int         `json:"total_pages"`
	Data       []RawRecord `json:"data"`
}

// Config holds the client configuration.
type Config struct {
	// BaseURL of the customer API, e.g. "https://reqres.in/api".
	BaseURL string

	// Resource is the collection path under BaseURL (default "users").
	Resource string

	// APIKey is attached as a Bearer token when non-empty. Optional.
	APIKey string

	// Timeout per individual request.
	Timeout time.Duration

	// MaxAttempts is the total number of attempts per page (including
	// the first).
	MaxAttempts int

	// BackoffBase is the wait before the second attempt; it doubles
	// after each further failure (1s, 2s, 4s with the default).
	BackoffBase time.Duration

	// RateLimitRPS paces requests client-side. <= 0 disables pacing.
	RateLimitRPS float64

	// Sleep performs the backoff waits. Tests substitute it to verify
	// the wait schedule without real elapsed time.
	Sleep func(time.Duration)

	// HTTPClient overrides the default transport (for testing).
	HTTPClient *http.Client

	// Logger for client events. Defaults to the global logger.
	Logger *zerolog.Logger
}

// DefaultConfig returns a safe default configuration for the given API.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:     baseURL,
		Resource:    "users",
		Timeout:     10 * time.Second,
		MaxAttempts: 3,
		BackoffBase: 1 * time.Second,
	}
}

// Client fetches customer pages from the remote API. It keeps no state
// between FetchAll calls.
type Client struct {
	httpClient *http.Client
	config     Config
	pacer      *ratelimit.Pacer
	sleep      func(time.Duration)
	logger     zerolog.Logger
}

// New creates a new customer API client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	if cfg.Resource == "" {
		cfg.Resource = "users"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 1 * time.Second
	}

	logger := log.With().Str("component", "client").Logger()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	sleep := cfg.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}

	return &Client{
		httpClient: httpClient,
		config:     cfg,
		pacer:      ratelimit.NewPacer(cfg.RateLimitRPS),
		sleep:      sleep,
		logger:     logger,
	}, nil
}

// FetchAll retrieves every page of the customer collection and returns
// the records concatenated in response order. Page 1 is fetched first to
// discover the total page count; pages 2..N follow strictly in order.
// Any page failing all retry attempts aborts the whole fetch.
func (c *Client) FetchAll(ctx context.Context) ([]RawRecord, error) {
	first, err := c.fetchPage(ctx, 1)
	if err != nil {
		return nil, err
	}

	totalPages := first.TotalPages
	if totalPages < 1 {
		totalPages = 1
	}

	records := make([]RawRecord, 0, len(first.Data)*totalPages)
	records = append(records, first.Data...)

	c.logger.Info().
		Int("total_pages", totalPages).
		Int("records", len(first.Data)).
		Msg("Discovered pagination from first page")

	for page := 2; page <= totalPages; page++ {
		resp, err := c.fetchPage(ctx, page)
		if err != nil {
			return nil, err
		}
		records = append(records, resp.Data...)

		c.logger.Info().
			Int("page", page).
			Int("records", len(resp.Data)).
			Msg("Fetched page")
	}

	c.logger.Info().
		Int("records", len(records)).
		Int("pages", totalPages).
		Msg("Fetch complete")

	return records, nil
}

// fetchPage retrieves a single page, applying the retry policy.
func (c *Client) fetchPage(ctx context.Context, page int) (*PageResponse, error) {
	pageURL := c.pageURL(page)

	resp, err := c.getWithRetry(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	pagesFetchedTotal.Inc()
	return resp, nil
}

// pageURL builds the request URL for a page.
func (c *Client) pageURL(page int) string {
	base := strings.TrimRight(c.config.BaseURL, "/")
	query := url.Values{"page": []string{strconv.Itoa(page)}}
	return fmt.Sprintf("%s/%s?%s", base, c.config.Resource, query.Encode())
}

// newRequest builds a GET request with standard headers.
func (c *Client) newRequest(ctx context.Context, rawURL string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}
	return req, nil
}
