package http

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"
)

// Client wraps resty.Client with the shared retry policy providers use for
// upstream calls: up to MaxAttempts per logical request, linear backoff,
// retrying only transport failures. Non-2xx responses are handed back to the
// caller untouched; the caller decides what counts as success.
type Client struct {
	resty       *resty.Client
	maxAttempts int
	timeout     time.Duration
}

// ClientConfig holds configuration for the HTTP client.
type ClientConfig struct {
	Timeout     time.Duration
	MaxAttempts int
	UserAgent   string
	Referer     string
	Debug       bool
	Logger      *slog.Logger
}

// DefaultClientConfig returns sensible defaults for provider traffic.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Timeout:     10 * time.Second,
		MaxAttempts: 3,
		UserAgent:   "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:109.0) Gecko/20100101 Firefox/121.0",
	}
}

const retryBackoffStep = 200 * time.Millisecond

// NewClient creates a new HTTP client with the given configuration.
func NewClient(config ClientConfig) *Client {
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.MaxAttempts == 0 {
		config.MaxAttempts = 3
	}
	if config.UserAgent == "" {
		config.UserAgent = DefaultClientConfig().UserAgent
	}

	restyClient := resty.New().
		SetTimeout(config.Timeout).
		SetRetryCount(config.MaxAttempts-1).
		SetHeader("User-Agent", config.UserAgent).
		SetHeader("Accept", "application/json, text/html, */*").
		SetHeader("Accept-Language", "en-US,en;q=0.9")

	if config.Referer != "" {
		restyClient.SetHeader("Referer", config.Referer)
	}

	// Only transport failures and attempt timeouts are retried. A response
	// that arrived, whatever its status, belongs to the caller.
	restyClient.AddRetryCondition(func(r *resty.Response, err error) bool {
		return err != nil
	})

	// Linear backoff: 200ms after the first failed attempt, 400ms after the
	// second, and so on.
	restyClient.SetRetryAfter(func(c *resty.Client, r *resty.Response) (time.Duration, error) {
		return time.Duration(r.Request.Attempt) * retryBackoffStep, nil
	})

	if config.Debug && config.Logger != nil {
		logger := config.Logger
		restyClient.OnAfterResponse(func(c *resty.Client, r *resty.Response) error {
			logger.Debug("http response",
				"method", r.Request.Method,
				"url", r.Request.URL,
				"status", r.StatusCode(),
				"time", r.Time(),
			)
			return nil
		})
	}

	return &Client{
		resty:       restyClient,
		maxAttempts: config.MaxAttempts,
		timeout:     config.Timeout,
	}
}

// Get performs a GET request with context support. The error is non-nil only
// when every attempt failed at the transport level or the context was
// cancelled; HTTP-level failures come back as the response itself.
func (c *Client) Get(ctx context.Context, url string, headers map[string]string) (*resty.Response, error) {
	req := c.resty.R().SetContext(ctx)
	for key, value := range headers {
		req.SetHeader(key, value)
	}

	resp, err := req.Get(url)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", url, err)
	}
	return resp, nil
}

// SetHeader sets a default header for all requests.
func (c *Client) SetHeader(key, value string) {
	c.resty.SetHeader(key, value)
}

// Timeout returns the configured per-attempt timeout.
func (c *Client) Timeout() time.Duration {
	return c.timeout
}

// MaxAttempts returns the configured attempt budget per logical request.
func (c *Client) MaxAttempts() int {
	return c.maxAttempts
}
