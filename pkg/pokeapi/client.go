// Package pokeapi provides a paginating, retrying client for the public PokéAPI.
package pokeapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/pokedex/pkg/retry"
)

const (
	// DefaultBaseURL is the public PokéAPI root.
	DefaultBaseURL = "https://pokeapi.co/api/v2"
	// DefaultTimeout is the maximum time to wait for a single response.
	DefaultTimeout = 30 * time.Second
	// DefaultPageSize is the list page size requested from the API.
	DefaultPageSize = 100

	maxBodyBytes = 8 << 20
	userAgent    = "pokedex-mirror/1.0"
)

// NamedResource is one entry of a list endpoint.
type NamedResource struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

type listPage struct {
	Count   int             `json:"count"`
	Next    *string         `json:"next"`
	Results []NamedResource `json:"results"`
}

// StatusError reports a non-200 response.
type StatusError struct {
	URL        string
	StatusCode int
	Body       string
	retryAfter time.Duration
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("pokeapi: GET %s returned status %d", e.URL, e.StatusCode)
}

// IsRetryable reports whether the status is transient (429 or 5xx).
// A 404 and other 4xx are permanent.
func (e *StatusError) IsRetryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// RetryAfter returns the server's Retry-After hint, if any.
func (e *StatusError) RetryAfter() time.Duration {
	return e.retryAfter
}

// Config configures the client. Zero values take the package defaults.
type Config struct {
	BaseURL  string
	Timeout  time.Duration
	PageSize int
	Retry    *retry.Config
}

// Client fetches PokéAPI resources.
type Client struct {
	httpClient *http.Client
	baseURL    string
	pageSize   int
	retryCfg   *retry.Config
	logger     *zap.Logger
}

// NewClient creates a new PokéAPI client.
func NewClient(cfg *Config, logger *zap.Logger) *Client {
	if cfg == nil {
		cfg = &Config{}
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	retryCfg := cfg.Retry
	if retryCfg == nil {
		retryCfg = retry.DefaultConfig()
	}

	c := &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL:  baseURL,
		pageSize: pageSize,
		logger:   logger.Named("pokeapi"),
	}

	// Copy so the logging hook does not leak into a shared config.
	rc := *retryCfg
	rc.OnRetry = func(attempt int, err error, delay time.Duration) {
		c.logger.Warn("Retrying PokéAPI request",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))
	}
	c.retryCfg = &rc

	return c
}

// BaseURL returns the API root the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ListURL returns the first page URL of a list endpoint.
func (c *Client) ListURL(resource string) (string, error) {
	endpoint, err := buildURL(c.baseURL, resource)
	if err != nil {
		return "", err
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid list URL: %w", err)
	}
	q := u.Query()
	q.Set("limit", strconv.Itoa(c.pageSize))
	q.Set("offset", "0")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// List follows the pagination of a list endpoint and returns every entry.
// A page that still fails after retries aborts the listing.
func (c *Client) List(ctx context.Context, resource string) ([]NamedResource, error) {
	next, err := c.ListURL(resource)
	if err != nil {
		return nil, fmt.Errorf("failed to build URL: %w", err)
	}

	var all []NamedResource
	for pageNum := 1; next != ""; pageNum++ {
		body, err := c.Fetch(ctx, next)
		if err != nil {
			return nil, fmt.Errorf("failed to list %s (page %d): %w", resource, pageNum, err)
		}

		var page listPage
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("failed to parse %s list page %d: %w", resource, pageNum, err)
		}
		all = append(all, page.Results...)

		next = ""
		if page.Next != nil {
			next = *page.Next
		}

		c.logger.Debug("Fetched list page",
			zap.String("resource", resource),
			zap.Int("page", pageNum),
			zap.Int("fetched", len(all)),
			zap.Int("count", page.Count))
	}

	return all, nil
}

// Fetch GETs rawURL, retrying transient failures, and returns the body.
func (c *Client) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	var body []byte
	err := retry.DoIfRetryable(ctx, c.retryCfg, func() error {
		b, err := c.get(ctx, rawURL)
		if err != nil {
			return err
		}
		body = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

func (c *Client) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call pokeapi: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		statusErr := &StatusError{
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			Body:       truncate(string(body), 200),
			retryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
		}
		c.logger.Debug("PokéAPI returned error",
			zap.String("url", rawURL),
			zap.Int("status", resp.StatusCode))
		return nil, statusErr
	}

	c.logger.Debug("Fetched resource",
		zap.String("url", rawURL),
		zap.Int("bytes", len(body)),
		zap.Duration("elapsed", time.Since(start)))

	return body, nil
}

// parseRetryAfter accepts delay-seconds or an HTTP date.
func parseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

// IDFromURL extracts the trailing numeric id of a resource URL such as
// https://pokeapi.co/api/v2/generation/1/. Returns 0 if there is none.
func IDFromURL(resourceURL string) int64 {
	trimmed := strings.TrimRight(resourceURL, "/")
	idx := strings.LastIndex(trimmed, "/")
	if idx < 0 {
		return 0
	}
	id, err := strconv.ParseInt(trimmed[idx+1:], 10, 64)
	if err != nil {
		return 0
	}
	return id
}

// buildURL constructs a URL by parsing the base and joining path segments.
func buildURL(baseURL string, pathSegments ...string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}

	segments := append([]string{u.Path}, pathSegments...)
	u.Path = path.Join(segments...) + "/"

	return u.String(), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
