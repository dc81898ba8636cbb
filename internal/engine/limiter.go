package engine

// limiter.go implements concurrency control for batch submissions.
//
// The limiter uses a semaphore pattern to restrict parallel imports to a
// configurable maximum. When all slots are occupied, new requests wait up
// to maxWait before failing with ErrTooManyImports.

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrTooManyImports is returned when all import slots are occupied and the
// wait timeout expires. Clients should retry after a short delay.
var ErrTooManyImports = errors.New("too many concurrent imports, please try again later")

// DefaultMaxConcurrentImports is the default limit for parallel imports.
const DefaultMaxConcurrentImports = 4

// DefaultMaxWaitTime is how long to wait for a slot before rejecting.
const DefaultMaxWaitTime = 30 * time.Second

// ImportLimiter controls concurrent batch submissions.
type ImportLimiter struct {
	semaphore chan struct{}
	maxWait   time.Duration

	mu     sync.RWMutex
	active int
}

// NewImportLimiter creates a limiter allowing at most maxConcurrent
// simultaneous runs. Requests that cannot acquire a slot within maxWait
// receive ErrTooManyImports.
func NewImportLimiter(maxConcurrent int, maxWait time.Duration) *ImportLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentImports
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWaitTime
	}
	return &ImportLimiter{
		semaphore: make(chan struct{}, maxConcurrent),
		maxWait:   maxWait,
	}
}

// Acquire attempts to acquire a run slot.
// The caller MUST call Release() when the run completes (use defer).
func (l *ImportLimiter) Acquire(ctx context.Context) error {
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
		return ErrTooManyImports
	}
}

// Release releases a previously acquired slot.
// Must be called exactly once for each successful Acquire.
func (l *ImportLimiter) Release() {
	select {
	case <-l.semaphore:
		l.mu.Lock()
		l.active--
		l.mu.Unlock()
	default:
		// Release without Acquire is a bug; keep the count sane.
	}
}

// Active returns the number of runs currently holding a slot.
func (l *ImportLimiter) Active() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.active
}
