package acquire

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/policypulse/policypulse/internal/domain"
	"github.com/policypulse/policypulse/internal/metrics"
	"github.com/policypulse/policypulse/internal/platform/retry"
)

// maxBodyBytes caps how much of an upstream response we read.
const maxBodyBytes = 32 << 20

// Doer abstracts *http.Client for testing.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// StatusError is a non-200 upstream response.
type StatusError struct {
	Source     domain.Source
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned HTTP %d for %s", e.Source, e.StatusCode, e.URL)
}

// Client is the shared HTTP client for all upstream sources. Every request
// runs through a retry policy wrapped around a per-source circuit breaker,
// and sources with a configured rate limit wait for a token first.
type Client struct {
	http   Doer
	clock  clockwork.Clock
	policy retry.Policy

	mu       sync.Mutex
	breakers map[domain.Source]*gobreaker.CircuitBreaker
	limiters map[domain.Source]*rate.Limiter
}

type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(d Doer) ClientOption {
	return func(c *Client) { c.http = d }
}

// WithClock replaces the clock used for retry backoff and duration metrics.
func WithClock(clock clockwork.Clock) ClientOption {
	return func(c *Client) { c.clock = clock }
}

// WithRateLimit sets the request rate for one source. rate.Inf disables
// limiting for that source.
func WithRateLimit(source domain.Source, limit rate.Limit, burst int) ClientOption {
	return func(c *Client) { c.limiters[source] = rate.NewLimiter(limit, burst) }
}

func NewClient(timeout time.Duration, maxAttempts int, opts ...ClientOption) *Client {
	c := &Client{
		http:     &http.Client{Timeout: timeout},
		clock:    clockwork.NewRealClock(),
		breakers: make(map[domain.Source]*gobreaker.CircuitBreaker),
		limiters: make(map[domain.Source]*rate.Limiter),
	}

	// Reddit throttles unauthenticated clients aggressively, so pace it to
	// roughly one request per second. The other sources are one-shot fetches.
	c.limiters[domain.SourceReddit] = rate.NewLimiter(rate.Limit(1), 1)

	for _, opt := range opts {
		opt(c)
	}

	c.policy = retry.Policy{
		MaxAttempts:      maxAttempts,
		InitialBackoff:   500 * time.Millisecond,
		RateLimitBackoff: 5 * time.Second,
		Clock:            c.clock,
	}
	return c
}

// Clock returns the clock the client was built with so source fetchers can
// share it for timestamp fallbacks and token expiry.
func (c *Client) Clock() clockwork.Clock {
	return c.clock
}

// Get fetches url and returns the response body. Non-200 responses,
// network errors, and open breakers all come back as errors after the
// retry policy is exhausted.
func (c *Client) Get(ctx context.Context, source domain.Source, rawURL string, header http.Header) ([]byte, error) {
	return c.execute(ctx, source, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return nil, err
		}
		copyHeader(req, header)
		return req, nil
	})
}

// PostForm sends a form-encoded POST and returns the response body.
func (c *Client) PostForm(ctx context.Context, source domain.Source, rawURL string, form url.Values, header http.Header) ([]byte, error) {
	return c.execute(ctx, source, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(form.Encode()))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		copyHeader(req, header)
		return req, nil
	})
}

// execute runs one logical request through the rate limiter, retry policy,
// and circuit breaker. newRequest is called once per attempt so request
// bodies are fresh on every try.
func (c *Client) execute(ctx context.Context, source domain.Source, newRequest func() (*http.Request, error)) ([]byte, error) {
	if lim := c.limiter(source); lim != nil {
		if err := lim.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait for %s: %w", source, err)
		}
	}

	policy := c.policy
	policy.OnRetry = func(attempt int, err error, backoff time.Duration) {
		metrics.AcquisitionRetriesTotal.WithLabelValues(string(source)).Inc()
		slog.Warn("Retrying acquisition request",
			"source", source,
			"attempt", attempt,
			"backoff", backoff,
			"error", err)
	}

	return retry.Do(ctx, policy, classify, func() ([]byte, error) {
		result, err := c.breaker(source).Execute(func() (any, error) {
			return c.fetch(source, newRequest)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				metrics.AcquisitionRequestsTotal.WithLabelValues(string(source), "breaker_open").Inc()
			}
			return nil, err
		}
		return result.([]byte), nil
	})
}

func (c *Client) fetch(source domain.Source, newRequest func() (*http.Request, error)) ([]byte, error) {
	req, err := newRequest()
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	start := c.clock.Now()
	resp, err := c.http.Do(req)
	metrics.AcquisitionDuration.WithLabelValues(string(source)).Observe(c.clock.Since(start).Seconds())
	if err != nil {
		metrics.AcquisitionRequestsTotal.WithLabelValues(string(source), "network_error").Inc()
		return nil, fmt.Errorf("requesting %s: %w", req.URL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		metrics.AcquisitionRequestsTotal.WithLabelValues(string(source), "network_error").Inc()
		return nil, fmt.Errorf("reading response from %s: %w", req.URL, err)
	}

	if resp.StatusCode != http.StatusOK {
		metrics.AcquisitionRequestsTotal.WithLabelValues(string(source), "http_error").Inc()
		return nil, &StatusError{Source: source, StatusCode: resp.StatusCode, URL: req.URL.String()}
	}

	metrics.AcquisitionRequestsTotal.WithLabelValues(string(source), "ok").Inc()
	return body, nil
}

// classify maps request errors onto retry actions: rate limits wait longer,
// server errors and network errors retry, everything else is permanent.
func classify(err error) retry.Action {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		switch {
		case statusErr.StatusCode == http.StatusTooManyRequests:
			return retry.After
		case statusErr.StatusCode >= 500:
			return retry.Retry
		default:
			return retry.Stop
		}
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return retry.Stop
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return retry.Stop
	}
	return retry.Retry
}

func (c *Client) limiter(source domain.Source) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.limiters[source]
}

func (c *Client) breaker(source domain.Source) *gobreaker.CircuitBreaker {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cb, ok := c.breakers[source]; ok {
		return cb
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        string(source),
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRate := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRate >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("Circuit breaker state changed",
				"source", name,
				"from", from.String(),
				"to", to.String())
			metrics.CircuitBreakerStateChanges.WithLabelValues(name, to.String()).Inc()
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
	})
	c.breakers[source] = cb
	return cb
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func copyHeader(req *http.Request, header http.Header) {
	for key, values := range header {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
}
