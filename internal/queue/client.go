// Package queue relays status, queue listing and run requests to the
// external automation queue service.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/bryanchriswhite/ScreenRelay/internal/logger"
	"github.com/bryanchriswhite/ScreenRelay/internal/metrics"
)

const maxResponseBytes = 1 << 20

// ErrNotConfigured is wrapped when no queue service URL was given.
var ErrNotConfigured = errors.New("queue service not configured")

// Response is the upstream JSON object merged with a "status" field.
type Response map[string]any

// Down is the degraded reply used when the service cannot be reached.
func Down() Response {
	return Response{"status": "down"}
}

// UnavailableError reports that the queue service could not serve a request.
type UnavailableError struct {
	Endpoint string
	Err      error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("queue service %s unavailable: %v", e.Endpoint, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// Client talks to the queue service over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
	queues  *ttlcache.Cache[string, Response]
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// WithCacheTTL caches queue listings for d; zero disables caching.
func WithCacheTTL(d time.Duration) Option {
	return func(c *Client) {
		if d <= 0 {
			c.queues = nil
			return
		}
		c.queues = ttlcache.New[string, Response](
			ttlcache.WithTTL[string, Response](d),
		)
	}
}

// NewClient returns a Client for the service at baseURL. An empty baseURL
// yields a client whose every call is unavailable.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 5 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Enabled reports whether a service URL is configured.
func (c *Client) Enabled() bool { return c.baseURL != "" }

// Status fetches the service health.
func (c *Client) Status(ctx context.Context) (Response, error) {
	return c.do(ctx, "status", http.MethodGet, "/status", nil)
}

// Queues lists the runnable queues, served from cache when fresh.
func (c *Client) Queues(ctx context.Context) (Response, error) {
	if c.queues != nil {
		if item := c.queues.Get("queues"); item != nil {
			metrics.RecordQueueRequest("queues", "cached")
			return item.Value(), nil
		}
	}
	resp, err := c.do(ctx, "queues", http.MethodGet, "/queues", nil)
	if err != nil {
		return nil, err
	}
	if c.queues != nil {
		c.queues.Set("queues", resp, ttlcache.DefaultTTL)
	}
	return resp, nil
}

// Run forwards a run request body verbatim.
func (c *Client) Run(ctx context.Context, body io.Reader) (Response, error) {
	return c.do(ctx, "run", http.MethodPost, "/run", body)
}

func (c *Client) do(ctx context.Context, endpoint, method, path string, body io.Reader) (Response, error) {
	resp, err := c.roundTrip(ctx, method, path, body)
	if err != nil {
		metrics.RecordQueueRequest(endpoint, "down")
		logger.WithComponent("queue").Warn().Err(err).Str("endpoint", endpoint).Msg("Queue service unavailable")
		return nil, &UnavailableError{Endpoint: endpoint, Err: err}
	}
	metrics.RecordQueueRequest(endpoint, "up")
	return resp, nil
}

func (c *Client) roundTrip(ctx context.Context, method, path string, body io.Reader) (Response, error) {
	if c.baseURL == "" {
		return nil, ErrNotConfigured
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var decoded any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	out, ok := decoded.(map[string]any)
	if !ok {
		out = map[string]any{"data": decoded}
	}
	out["status"] = "up"
	return Response(out), nil
}
