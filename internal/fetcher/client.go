// Package fetcher talks to the congress.gov API: listing daily Congressional
// Record issues, enumerating their articles, and downloading formatted text.
//
// The API is aggressively rate limited, so the client paces requests, rotates
// across multiple API keys, and backs off exponentially on 429 responses.
package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// DefaultBaseURL is the congress.gov API root.
const DefaultBaseURL = "https://api.congress.gov/v3"

const (
	// keyRotationInterval is how many requests each key serves before
	// rotating to the next one
	keyRotationInterval = 4

	// timeoutRetries is how many times a timed-out request is retried
	timeoutRetries = 3

	// pageLimit is the maximum page size the API allows
	pageLimit = 250
)

// ErrNoAPIKeys indicates the client was constructed without any API keys.
var ErrNoAPIKeys = errors.New("fetcher: no API keys provided")

// Client is a rate-limit-aware congress.gov API client.
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger

	keys     []string
	keyIndex int

	minInterval time.Duration
	lastRequest time.Time

	maxBackoff     time.Duration
	initialBackoff time.Duration

	requestCount int
}

// ClientOption configures a fetcher client.
type ClientOption func(*Client)

// WithBaseURL overrides the API root, used to point tests at a local server.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithMinInterval overrides the pacing between requests.
func WithMinInterval(d time.Duration) ClientOption {
	return func(c *Client) {
		c.minInterval = d
	}
}

// WithBackoff overrides the 429 backoff bounds.
func WithBackoff(initial, max time.Duration) ClientOption {
	return func(c *Client) {
		c.initialBackoff = initial
		c.maxBackoff = max
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a client rotating across the given API keys.
// Keys are held in memory only; they are never logged or written anywhere.
func NewClient(keys []string, opts ...ClientOption) (*Client, error) {
	if len(keys) == 0 {
		return nil, ErrNoAPIKeys
	}

	c := &Client{
		httpClient:     &http.Client{Timeout: 5 * time.Second},
		baseURL:        DefaultBaseURL,
		logger:         slog.Default(),
		keys:           keys,
		minInterval:    time.Second,
		initialBackoff: 2 * time.Second,
		maxBackoff:     60 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// RequestCount returns how many requests this client has issued.
func (c *Client) RequestCount() int {
	return c.requestCount
}

// currentKey returns the key in rotation, advancing every few requests so a
// long run spreads its quota across all keys.
func (c *Client) currentKey() string {
	if c.requestCount > 0 && c.requestCount%keyRotationInterval == 0 {
		c.rotateKey()
	}
	return c.keys[c.keyIndex]
}

// rotateKey advances to the next API key.
func (c *Client) rotateKey() {
	c.keyIndex = (c.keyIndex + 1) % len(c.keys)
}

// pace sleeps long enough to keep at least minInterval between requests.
func (c *Client) pace(ctx context.Context) error {
	if c.minInterval <= 0 {
		return nil
	}
	elapsed := time.Since(c.lastRequest)
	if elapsed >= c.minInterval {
		return nil
	}
	select {
	case <-time.After(c.minInterval - elapsed):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// getJSON performs a paced, authenticated GET and decodes the JSON response
// into out. 429 responses rotate the key when more than one is available and
// otherwise back off exponentially; timeouts are retried a few times.
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	body, err := c.get(ctx, c.baseURL+path, query, true)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", path, err)
	}
	return nil
}

// getRaw performs a paced GET against an absolute URL without adding an API
// key, used for the formatted-text URLs the API hands back.
func (c *Client) getRaw(ctx context.Context, rawURL string) ([]byte, error) {
	return c.get(ctx, rawURL, nil, false)
}

func (c *Client) get(ctx context.Context, rawURL string, query url.Values, authenticated bool) ([]byte, error) {
	timeouts := 0

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.initialBackoff
	bo.MaxInterval = c.maxBackoff
	bo.MaxElapsedTime = 0
	bo.Reset()

	for {
		if err := c.pace(ctx); err != nil {
			return nil, err
		}

		c.requestCount++
		u := rawURL
		if authenticated {
			q := url.Values{}
			for k, vs := range query {
				q[k] = vs
			}
			q.Set("api_key", c.currentKey())
			u = rawURL + "?" + q.Encode()
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to build request: %w", err)
		}

		c.lastRequest = time.Now()
		resp, err := c.httpClient.Do(req)
		if err != nil {
			if isTimeout(err) && timeouts < timeoutRetries {
				timeouts++
				c.logger.Warn("request timed out, retrying", "url", rawURL, "attempt", timeouts)
				continue
			}
			return nil, fmt.Errorf("request to %s failed: %w", rawURL, err)
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()

			if len(c.keys) > 1 {
				c.logger.Warn("rate limited, rotating API key")
				c.rotateKey()
				continue
			}

			wait := bo.NextBackOff()
			c.logger.Warn("rate limited, backing off", "wait", wait)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("request to %s returned status %d", rawURL, resp.StatusCode)
		}
		if readErr != nil {
			return nil, fmt.Errorf("failed to read response from %s: %w", rawURL, readErr)
		}

		return body, nil
	}
}

// isTimeout reports whether the error is a network timeout.
func isTimeout(err error) bool {
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return errors.Is(err, os.ErrDeadlineExceeded) || errors.Is(err, context.DeadlineExceeded)
}
