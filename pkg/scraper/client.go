package scraper

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"time"

	"golang.org/x/net/html/charset"
)

// ClientOptions configures the retrying page fetcher.
type ClientOptions struct {
	UserAgent     string
	Timeout       time.Duration
	MaxRetries    int
	BackoffFactor float64
	BackoffUnit   time.Duration
}

// Client fetches pages over HTTP with retries and exponential backoff.
type Client struct {
	http          *http.Client
	userAgent     string
	maxRetries    int
	backoffFactor float64
	backoffUnit   time.Duration
	logger        *slog.Logger
}

// NewClient creates a fetcher. A nil logger discards output.
func NewClient(opts ClientOptions, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if opts.MaxRetries < 1 {
		opts.MaxRetries = 1
	}
	if opts.BackoffFactor <= 0 {
		opts.BackoffFactor = 2
	}
	return &Client{
		http:          &http.Client{Timeout: opts.Timeout},
		userAgent:     opts.UserAgent,
		maxRetries:    opts.MaxRetries,
		backoffFactor: opts.BackoffFactor,
		backoffUnit:   opts.BackoffUnit,
		logger:        logger,
	}
}

// Fetch returns the UTF-8 body of url. Each failed attempt except the last
// waits BackoffUnit * BackoffFactor^attempt before retrying.
func (c *Client) Fetch(ctx context.Context, url string) (string, error) {
	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		body, err := c.fetchOnce(ctx, url)
		if err == nil {
			return body, nil
		}
		lastErr = err

		if attempt == c.maxRetries-1 {
			break
		}
		wait := c.backoff(attempt)
		c.logger.Warn("fetch failed, retrying",
			"url", url,
			"attempt", attempt+1,
			"max_retries", c.maxRetries,
			"wait", wait,
			"error", err,
		)
		if err := sleep(ctx, wait); err != nil {
			return "", err
		}
	}

	c.logger.Error("fetch failed", "url", url, "attempts", c.maxRetries, "error", lastErr)
	return "", fmt.Errorf("fetch %s after %d attempts: %w", url, c.maxRetries, lastErr)
}

func (c *Client) fetchOnce(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	r, err := charset.NewReader(resp.Body, resp.Header.Get("Content-Type"))
	if err != nil {
		return "", fmt.Errorf("detect charset: %w", err)
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	return string(body), nil
}

func (c *Client) backoff(attempt int) time.Duration {
	return time.Duration(float64(c.backoffUnit) * math.Pow(c.backoffFactor, float64(attempt)))
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
