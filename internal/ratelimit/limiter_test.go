package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	if l := New(100); l.Rate() != 100 {
		t.Errorf("expected rate 100, got %v", l.Rate())
	}
	for _, r := range []float64{0, -5} {
		if l := New(r); l != nil {
			t.Errorf("New(%v) = %v, want nil (unlimited)", r, l)
		}
	}
}

func TestNilLimiter(t *testing.T) {
	var l *Limiter
	if l.Rate() != 0 {
		t.Errorf("nil limiter rate = %v, want 0", l.Rate())
	}
	for i := 0; i < 1000; i++ {
		if err := l.Wait(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := l.Wait(ctx); err != context.Canceled {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestWaitImmediate(t *testing.T) {
	l := New(10000)

	start := time.Now()
	if err := l.Wait(context.Background()); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 10*time.Millisecond {
		t.Errorf("expected near-instant first wait, got %v", elapsed)
	}
}

func TestWaitCancellation(t *testing.T) {
	l := New(1)
	ctx, cancel := context.WithCancel(context.Background())

	_ = l.Wait(ctx)

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	if err := l.Wait(ctx); err != context.Canceled {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("cancellation took too long: %v", elapsed)
	}
}

func TestWaitSpacing(t *testing.T) {
	// 5 permits at 100/s need at least 4 intervals.
	l := New(100)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 5; i++ {
		if err := l.Wait(ctx); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if elapsed := time.Since(start); elapsed < 35*time.Millisecond {
		t.Errorf("5 permits at 100/s took %v, want >= 40ms", elapsed)
	}
}

func TestWaitNoBurstAfterIdle(t *testing.T) {
	l := New(20) // 50ms interval
	ctx := context.Background()

	_ = l.Wait(ctx)
	time.Sleep(200 * time.Millisecond)

	// Idle time must not be banked: the second of these waits a full interval.
	start := time.Now()
	_ = l.Wait(ctx)
	_ = l.Wait(ctx)
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("expected no burst after idle, got two permits in %v", elapsed)
	}
}

func TestWaitConcurrent(t *testing.T) {
	l := New(200) // 5ms interval
	ctx := context.Background()

	var wg sync.WaitGroup
	start := time.Now()
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = l.Wait(ctx)
		}()
	}
	wg.Wait()

	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("10 concurrent permits at 200/s took %v, want >= 45ms", elapsed)
	}
}
