package engine

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestImportLimiter_AcquireRelease(t *testing.T) {
	limiter := NewImportLimiter(2, time.Second)

	if got := limiter.Active(); got != 0 {
		t.Errorf("initial Active = %d, want 0", got)
	}

	ctx := context.Background()
	if err := limiter.Acquire(ctx); err != nil {
		t.Fatalf("first Acquire failed: %v", err)
	}
	if got := limiter.Active(); got != 1 {
		t.Errorf("after first Acquire, Active = %d, want 1", got)
	}

	if err := limiter.Acquire(ctx); err != nil {
		t.Fatalf("second Acquire failed: %v", err)
	}
	if got := limiter.Active(); got != 2 {
		t.Errorf("after second Acquire, Active = %d, want 2", got)
	}

	limiter.Release()
	if got := limiter.Active(); got != 1 {
		t.Errorf("after Release, Active = %d, want 1", got)
	}

	limiter.Release()
	if got := limiter.Active(); got != 0 {
		t.Errorf("after second Release, Active = %d, want 0", got)
	}
}

func TestImportLimiter_RejectsWhenFull(t *testing.T) {
	limiter := NewImportLimiter(1, 100*time.Millisecond)

	ctx := context.Background()
	if err := limiter.Acquire(ctx); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	start := time.Now()
	err := limiter.Acquire(ctx)
	elapsed := time.Since(start)

	if err != ErrTooManyImports {
		t.Errorf("expected ErrTooManyImports, got %v", err)
	}
	if elapsed < 90*time.Millisecond {
		t.Errorf("timeout too fast: %v", elapsed)
	}
	if elapsed > 300*time.Millisecond {
		t.Errorf("timeout too slow: %v", elapsed)
	}

	limiter.Release()
}

func TestImportLimiter_ConcurrentAccess(t *testing.T) {
	const maxConcurrent = 3
	const totalRequests = 10

	limiter := NewImportLimiter(maxConcurrent, time.Second)

	var wg sync.WaitGroup
	var mu sync.Mutex
	maxObserved := 0

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			if err := limiter.Acquire(context.Background()); err != nil {
				t.Errorf("Acquire failed: %v", err)
				return
			}
			defer limiter.Release()

			mu.Lock()
			if current := limiter.Active(); current > maxObserved {
				maxObserved = current
			}
			mu.Unlock()

			time.Sleep(10 * time.Millisecond)
		}()
	}

	wg.Wait()

	if maxObserved > maxConcurrent {
		t.Errorf("exceeded max concurrent: observed %d, max %d", maxObserved, maxConcurrent)
	}
	if got := limiter.Active(); got != 0 {
		t.Errorf("final Active = %d, want 0", got)
	}
}

func TestImportLimiter_ContextCancellation(t *testing.T) {
	limiter := NewImportLimiter(1, 5*time.Second)

	if err := limiter.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	cancelCtx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		errCh <- limiter.Acquire(cancelCtx)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != context.Canceled {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Error("Acquire did not return after context cancellation")
	}

	limiter.Release()
}

func TestImportLimiter_UnblocksWaiter(t *testing.T) {
	limiter := NewImportLimiter(1, time.Second)

	ctx := context.Background()
	if err := limiter.Acquire(ctx); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	acquired := make(chan struct{})
	go func() {
		if err := limiter.Acquire(ctx); err != nil {
			t.Errorf("waiting Acquire failed: %v", err)
			return
		}
		close(acquired)
		limiter.Release()
	}()

	time.Sleep(50 * time.Millisecond)
	limiter.Release()

	select {
	case <-acquired:
	case <-time.After(500 * time.Millisecond):
		t.Error("waiter did not acquire after release")
	}
}

func TestImportLimiter_DefaultValues(t *testing.T) {
	// Invalid values fall back to defaults
	limiter := NewImportLimiter(0, 0)

	if cap(limiter.semaphore) != DefaultMaxConcurrentImports {
		t.Errorf("capacity = %d, want %d", cap(limiter.semaphore), DefaultMaxConcurrentImports)
	}
	if limiter.maxWait != DefaultMaxWaitTime {
		t.Errorf("maxWait = %v, want %v", limiter.maxWait, DefaultMaxWaitTime)
	}
}
