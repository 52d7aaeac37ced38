package source

import (
	"context"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/literature-crawler/internal/crawler"
)

// RetryPolicy decides whether a failed call is attempted again.
type RetryPolicy interface {
	ShouldRetry(err error, attempt int) bool
	Backoff(attempt int) time.Duration
}

// ClientConfig tunes the shared HTTP client.
type ClientConfig struct {
	UserAgent      string
	RequestTimeout time.Duration
	ArchivePrefix  string
}

// Client performs the single bounded HTTP GET each adapter needs.
// Limiter, retry, archive and ID generator are optional.
type Client struct {
	fetcher crawler.Fetcher
	limiter crawler.RateLimiter
	retry   RetryPolicy
	pauser  crawler.Pauser
	archive crawler.BlobStore
	ids     crawler.IDGenerator
	clock   crawler.Clock
	cfg     ClientConfig
	logger  *zap.Logger
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithRateLimiter throttles calls per host.
func WithRateLimiter(l crawler.RateLimiter) ClientOption {
	return func(c *Client) { c.limiter = l }
}

// WithRetryPolicy retries transient failures.
func WithRetryPolicy(p RetryPolicy) ClientOption {
	return func(c *Client) { c.retry = p }
}

// WithPauser overrides how backoff waits are performed.
func WithPauser(p crawler.Pauser) ClientOption {
	return func(c *Client) { c.pauser = p }
}

// WithArchive stores every successful response body.
func WithArchive(store crawler.BlobStore, ids crawler.IDGenerator, clock crawler.Clock) ClientOption {
	return func(c *Client) {
		c.archive = store
		c.ids = ids
		c.clock = clock
	}
}

// NewClient builds a Client around fetcher.
func NewClient(fetcher crawler.Fetcher, cfg ClientConfig, logger *zap.Logger, opts ...ClientOption) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	c := &Client{
		fetcher: fetcher,
		pauser:  crawler.TimerPauser{},
		cfg:     cfg,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get fetches rawURL on behalf of source. timeout <= 0 uses the configured request timeout.
// Non-2xx responses are returned as *StatusError.
func (c *Client) Get(ctx context.Context, source, rawURL string, timeout time.Duration) ([]byte, error) {
	if timeout <= 0 {
		timeout = c.cfg.RequestTimeout
	}
	var lastErr error
	for attempt := 1; ; attempt++ {
		body, err := c.getOnce(ctx, rawURL, timeout)
		if err == nil {
			c.archiveBody(ctx, source, rawURL, body)
			return body, nil
		}
		lastErr = err
		if c.retry == nil || !c.retry.ShouldRetry(err, attempt) {
			break
		}
		wait := c.retry.Backoff(attempt)
		c.logger.Debug("retrying source request",
			zap.String("source", source),
			zap.String("url", rawURL),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)
		c.pauser.Pause(ctx, wait)
		if ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}

// Probe issues a cheap request and reports whether it succeeded and the body
// contains marker. It never retries.
func (c *Client) Probe(ctx context.Context, rawURL string, timeout time.Duration, marker string) bool {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	body, err := c.getOnce(ctx, rawURL, timeout)
	if err != nil {
		c.logger.Warn("source probe failed", zap.String("url", rawURL), zap.Error(err))
		return false
	}
	return marker == "" || strings.Contains(string(body), marker)
}

func (c *Client) getOnce(ctx context.Context, rawURL string, timeout time.Duration) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, rawURL); err != nil {
			return nil, err
		}
	}
	headers := http.Header{}
	if c.cfg.UserAgent != "" {
		headers.Set("User-Agent", c.cfg.UserAgent)
	}
	resp, err := c.fetcher.Fetch(ctx, crawler.FetchRequest{URL: rawURL, Headers: headers, Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{URL: rawURL, StatusCode: resp.StatusCode}
	}
	return resp.Body, nil
}

func (c *Client) archiveBody(ctx context.Context, source, rawURL string, body []byte) {
	if c.archive == nil || len(body) == 0 {
		return
	}
	id := "response"
	if c.ids != nil {
		if generated, err := c.ids.NewID(); err == nil {
			id = generated
		}
	}
	now := time.Now().UTC()
	if c.clock != nil {
		now = c.clock.Now().UTC()
	}
	ext, contentType := archiveFormat(body)
	key := path.Join(
		c.cfg.ArchivePrefix,
		source,
		now.Format("2006"), now.Format("01"), now.Format("02"),
		id+ext,
	)
	uri, err := c.archive.PutObject(ctx, key, contentType, body)
	if err != nil {
		c.logger.Warn("archive response failed", zap.String("source", source), zap.String("url", rawURL), zap.Error(err))
		return
	}
	c.logger.Debug("archived response", zap.String("source", source), zap.String("uri", uri))
}

func archiveFormat(body []byte) (string, string) {
	trimmed := strings.TrimSpace(string(body[:min(len(body), 64)]))
	switch {
	case strings.HasPrefix(trimmed, "{"), strings.HasPrefix(trimmed, "["):
		return ".json", "application/json"
	case strings.HasPrefix(trimmed, "<"):
		return ".xml", "application/xml"
	default:
		return ".txt", "text/plain; charset=utf-8"
	}
}
