package core

// rate_limiter.go implements the global gate in front of upstream calls.
//
// The limiter keeps a single "last request" timestamp shared by every
// caller in the process. A call is permitted only if at least minInterval
// has passed since the last permitted call. Denied callers are retried on a
// constant backoff up to a hard cap; once the cap is reached the caller gets
// ErrRateLimitExceeded instead of being dropped silently.

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/EmmanuelGava/SincroGoo-sub006/internal/metrics"
)

// DefaultMinInterval is the default spacing between upstream requests.
const DefaultMinInterval = 1 * time.Second

// DefaultMaxRetries is how many times a denied caller is retried.
const DefaultMaxRetries = 3

// errDeferred signals one denied attempt to the retry loop.
var errDeferred = errors.New("upstream request deferred by rate limiter")

// RateLimiter spaces upstream requests by a minimum interval.
type RateLimiter struct {
	minInterval time.Duration
	maxRetries  uint64
	now         func() time.Time

	mu        sync.Mutex
	last      time.Time
	permitted int
	deferred  int
	exhausted int
}

// NewRateLimiter creates a limiter permitting one request per minInterval.
// Denied callers of Wait are retried at most maxRetries times.
func NewRateLimiter(minInterval time.Duration, maxRetries int) *RateLimiter {
	if minInterval <= 0 {
		minInterval = DefaultMinInterval
	}
	if maxRetries < 0 {
		maxRetries = DefaultMaxRetries
	}
	return &RateLimiter{
		minInterval: minInterval,
		maxRetries:  uint64(maxRetries),
		now:         time.Now,
	}
}

// WithClock replaces the limiter's time source. Intended for tests.
func (l *RateLimiter) WithClock(now func() time.Time) *RateLimiter {
	l.mu.Lock()
	l.now = now
	l.mu.Unlock()
	return l
}

// Allow reports whether a request may be made now. A permitted call
// consumes the slot; a denied call returns how long until the next slot.
func (l *RateLimiter) Allow() (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if l.last.IsZero() || now.Sub(l.last) >= l.minInterval {
		l.last = now
		l.permitted++
		return true, 0
	}
	l.deferred++
	return false, l.minInterval - now.Sub(l.last)
}

// Wait blocks until a request is permitted, retrying denied attempts on a
// constant minInterval backoff. It returns ErrRateLimitExceeded after
// maxRetries denied retries, or the context error if ctx ends first.
func (l *RateLimiter) Wait(ctx context.Context) error {
	backoff := retry.WithMaxRetries(l.maxRetries, retry.NewConstant(l.minInterval))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if ok, _ := l.Allow(); ok {
			metrics.RateLimitWaits.WithLabelValues("permitted").Inc()
			return nil
		}
		metrics.RateLimitWaits.WithLabelValues("deferred").Inc()
		return retry.RetryableError(errDeferred)
	})

	switch {
	case err == nil:
		return nil
	case errors.Is(err, errDeferred):
		l.mu.Lock()
		l.exhausted++
		l.mu.Unlock()
		metrics.RateLimitWaits.WithLabelValues("exhausted").Inc()
		return &Error{Kind: KindRateLimited, Op: "ratelimit.wait", Retryable: true, Err: ErrRateLimitExceeded}
	default:
		return err
	}
}

// RateLimiterStatus is a snapshot of limiter activity.
type RateLimiterStatus struct {
	MinInterval time.Duration `json:"min_interval"`
	MaxRetries  int           `json:"max_retries"`
	Permitted   int           `json:"permitted"`
	Deferred    int           `json:"deferred"`
	Exhausted   int           `json:"exhausted"`
}

// Status returns the current limiter state for monitoring/debugging.
func (l *RateLimiter) Status() RateLimiterStatus {
	l.mu.Lock()
	defer l.mu.Unlock()

	return RateLimiterStatus{
		MinInterval: l.minInterval,
		MaxRetries:  int(l.maxRetries),
		Permitted:   l.permitted,
		Deferred:    l.deferred,
		Exhausted:   l.exhausted,
	}
}
