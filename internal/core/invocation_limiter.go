package core

// invocation_limiter.go caps how many job invocations run at once.
//
// Invocations come from the HTTP run endpoint and from the scheduler; both
// acquire a slot before claiming a job. When every slot is taken, callers
// wait up to maxWait before failing with ErrTooManyInvocations.
//
// WaitForDrain blocks until every active invocation has returned, which lets
// shutdown finish in-flight rows before the process exits.

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrTooManyInvocations is returned when every invocation slot stays
// occupied for the whole wait. Clients should retry after a short delay.
var ErrTooManyInvocations = errors.New("too many job invocations in progress, please try again later")

// DefaultMaxInvocations is the default limit for parallel job invocations.
const DefaultMaxInvocations = 4

// DefaultInvocationWait is how long to wait for a slot before rejecting.
const DefaultInvocationWait = 10 * time.Second

// InvocationLimiter is a semaphore over job invocations.
type InvocationLimiter struct {
	semaphore chan struct{}
	maxWait   time.Duration

	mu     sync.RWMutex
	active int
}

// NewInvocationLimiter allows at most maxConcurrent simultaneous invocations.
func NewInvocationLimiter(maxConcurrent int, maxWait time.Duration) *InvocationLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxInvocations
	}
	if maxWait <= 0 {
		maxWait = DefaultInvocationWait
	}
	return &InvocationLimiter{
		semaphore: make(chan struct{}, maxConcurrent),
		maxWait:   maxWait,
	}
}

// Acquire takes a slot, waiting up to maxWait.
// The caller must call Release when the invocation returns.
func (l *InvocationLimiter) Acquire(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, l.maxWait)
	defer cancel()

	select {
	case l.semaphore <- struct{}{}:
		l.mu.Lock()
		l.active++
		l.mu.Unlock()
		return nil
	case <-waitCtx.Done():
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrTooManyInvocations
	}
}

// TryAcquire takes a slot only if one is free right now.
func (l *InvocationLimiter) TryAcquire() bool {
	select {
	case l.semaphore <- struct{}{}:
		l.mu.Lock()
		l.active++
		l.mu.Unlock()
		return true
	default:
		return false
	}
}

// Release frees a slot taken by Acquire or TryAcquire.
func (l *InvocationLimiter) Release() {
	l.mu.Lock()
	l.active--
	l.mu.Unlock()
	<-l.semaphore
}

// ActiveCount returns the number of running invocations.
func (l *InvocationLimiter) ActiveCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.active
}

// WaitForDrain blocks until no invocation is active or ctx ends.
func (l *InvocationLimiter) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		if l.ActiveCount() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// InvocationLimiterStatus is a snapshot of limiter occupancy.
type InvocationLimiterStatus struct {
	Active        int `json:"active"`
	Available     int `json:"available"`
	MaxConcurrent int `json:"max_concurrent"`
}

// Status returns the current limiter state for monitoring.
func (l *InvocationLimiter) Status() InvocationLimiterStatus {
	l.mu.RLock()
	active := l.active
	l.mu.RUnlock()

	return InvocationLimiterStatus{
		Active:        active,
		Available:     cap(l.semaphore) - len(l.semaphore),
		MaxConcurrent: cap(l.semaphore),
	}
}
