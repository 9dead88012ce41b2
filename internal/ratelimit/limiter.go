// Package ratelimit caps how fast submissions are dispatched.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter issues permits at a strict minimum interval. It never bursts: a
// caller that falls behind schedule is not credited with the missed permits.
//
// A nil *Limiter is valid and never blocks.
type Limiter struct {
	mu       sync.Mutex
	next     time.Time
	interval time.Duration
	rate     float64
}

// New returns a limiter issuing perSecond permits per second, or nil
// (unlimited) when perSecond <= 0.
func New(perSecond float64) *Limiter {
	if perSecond <= 0 {
		return nil
	}
	return &Limiter{
		next:     time.Now(),
		interval: time.Duration(float64(time.Second) / perSecond),
		rate:     perSecond,
	}
}

// Wait blocks until the caller's permit time or until ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil {
		return ctx.Err()
	}

	l.mu.Lock()
	now := time.Now()
	if l.next.Before(now) {
		l.next = now
	}
	permit := l.next
	l.next = permit.Add(l.interval)
	l.mu.Unlock()

	wait := permit.Sub(now)
	if wait <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Rate returns the configured permits per second, 0 for unlimited.
func (l *Limiter) Rate() float64 {
	if l == nil {
		return 0
	}
	return l.rate
}
