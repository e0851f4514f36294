// Package retryclient issues paced HTTP calls with bounded retries for
// rate-limited and transiently failing upstream APIs.
package retryclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/contactfinder/internal/logging"
	"github.com/JakeFAU/contactfinder/internal/metrics"
)

const maxResponseBytes = 8 << 20

var (
	// ErrRateLimitExhausted is returned when every attempt was rejected with HTTP 429.
	ErrRateLimitExhausted = errors.New("rate limit retries exhausted")
	// ErrRetriesExhausted is returned when every attempt failed transiently.
	ErrRetriesExhausted = errors.New("transient retries exhausted")
	// ErrNonRetryableStatus marks a non-2xx, non-429 response.
	ErrNonRetryableStatus = errors.New("non-retryable status")
)

// StatusError carries the status and a body excerpt of a rejected call.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// Unwrap lets errors.Is match ErrNonRetryableStatus.
func (e *StatusError) Unwrap() error {
	return ErrNonRetryableStatus
}

// Config tunes pacing and retries.
type Config struct {
	// MinInterval separates the start of consecutive calls. Zero disables pacing.
	MinInterval time.Duration
	// Timeout bounds each attempt.
	Timeout time.Duration
	// MaxAttempts includes the first attempt.
	MaxAttempts int
	// BaseDelay is the first transient-failure backoff; it doubles per attempt.
	BaseDelay time.Duration
	// RateLimitDelay is multiplied by the attempt number after a 429.
	RateLimitDelay time.Duration
	// MaxDelay caps any single backoff.
	MaxDelay time.Duration
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = time.Second
	}
	if c.RateLimitDelay <= 0 {
		c.RateLimitDelay = 2 * time.Second
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 30 * time.Second
	}
	return c
}

// RequestFunc builds a fresh request for each attempt.
type RequestFunc func(ctx context.Context) (*http.Request, error)

// Response is a fully read upstream response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Client wraps an http.Client with a shared Pacer and a retry schedule.
type Client struct {
	cfg        Config
	httpClient *http.Client
	pacer      *Pacer
	logger     *zap.Logger
	sleep      func(ctx context.Context, d time.Duration) error
}

// New builds a Client. A nil httpClient uses http.DefaultClient.
func New(cfg Config, httpClient *http.Client, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	logger = logging.OrNop(logger)
	cfg = cfg.withDefaults()
	return &Client{
		cfg:        cfg,
		httpClient: httpClient,
		pacer:      NewPacer(cfg.MinInterval),
		logger:     logger,
		sleep:      sleepContext,
	}
}

// Do runs build until it yields a 2xx response, a non-retryable failure, or
// the attempt budget is spent.
func (c *Client) Do(ctx context.Context, build RequestFunc) (*Response, error) {
	sched := &schedule{
		maxAttempts:    c.cfg.MaxAttempts,
		baseDelay:      c.cfg.BaseDelay,
		rateLimitDelay: c.cfg.RateLimitDelay,
		maxDelay:       c.cfg.MaxDelay,
	}
	for {
		if err := c.pacer.Wait(ctx); err != nil {
			return nil, err
		}
		req, err := build(ctx)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		resp, err := c.attempt(ctx, req)
		result := classify(ctx, resp, err)
		metrics.ObserveAIRequest(result.String())

		switch result {
		case outcomeSuccess:
			return resp, nil
		case outcomeFatal:
			if err != nil {
				return nil, fmt.Errorf("request %s: %w", req.URL.Redacted(), err)
			}
			return nil, &StatusError{StatusCode: resp.StatusCode, Body: excerpt(resp.Body)}
		}

		delay, retry := sched.record(result)
		if !retry {
			return nil, exhausted(result, sched.attempts, resp, err)
		}
		metrics.ObserveAIRetry(result.String())
		c.logger.Warn("upstream call failed; retrying",
			zap.String("url", req.URL.Redacted()),
			zap.String("reason", result.String()),
			zap.Int("attempt", sched.attempts),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if err := c.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}

// GetJSON issues a GET and decodes a 2xx JSON body into out.
func (c *Client) GetJSON(ctx context.Context, rawURL string, header http.Header, out any) error {
	resp, err := c.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, err
		}
		copyHeader(req.Header, header)
		return req, nil
	})
	if err != nil {
		return err
	}
	return decode(resp, out)
}

// PostJSON encodes in, POSTs it, and decodes a 2xx JSON body into out.
func (c *Client) PostJSON(ctx context.Context, rawURL string, header http.Header, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	resp, err := c.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		copyHeader(req.Header, header)
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return err
	}
	return decode(resp, out)
}

func (c *Client) attempt(ctx context.Context, req *http.Request) (*Response, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	httpResp, err := c.httpClient.Do(req.WithContext(attemptCtx))
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close() //nolint:errcheck // body fully read below
	body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return &Response{StatusCode: httpResp.StatusCode, Header: httpResp.Header.Clone(), Body: body}, nil
}

func classify(ctx context.Context, resp *Response, err error) outcome {
	if ctx.Err() != nil {
		return outcomeFatal
	}
	if err != nil {
		if isTransient(err) {
			return outcomeTransient
		}
		return outcomeFatal
	}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return outcomeRateLimited
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return outcomeSuccess
	default:
		return outcomeFatal
	}
}

// isTransient reports whether a transport error may clear up on retry:
// timeouts, refused or reset connections, failed dials and reads, and
// truncated responses. Certificate and scheme errors are permanent.
func isTransient(err error) bool {
	var certErr *tls.CertificateVerificationError
	if errors.As(err, &certErr) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.EOF) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		err = urlErr.Err
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Op == "dial" || opErr.Op == "read"
	}
	return false
}

func exhausted(result outcome, attempts int, resp *Response, err error) error {
	if result == outcomeRateLimited {
		return fmt.Errorf("%w after %d attempts: %w", ErrRateLimitExhausted,
			attempts, &StatusError{StatusCode: resp.StatusCode, Body: excerpt(resp.Body)})
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, attempts, err)
}

func decode(resp *Response, out any) error {
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func copyHeader(dst, src http.Header) {
	for key, values := range src {
		for _, v := range values {
			dst.Add(key, v)
		}
	}
}

func excerpt(body []byte) string {
	const limit = 512
	if len(body) > limit {
		return string(body[:limit]) + "..."
	}
	return string(body)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("retry backoff: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
