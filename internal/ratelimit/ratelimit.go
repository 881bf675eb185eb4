package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

type Limiter interface {
	Wait(ctx context.Context) error
	SetDelay(base time.Duration, jitter float64)
}

// PacedLimiter enforces a jittered minimum spacing between requests issued
// by one logical identity. Each worker owns its own instance: total system
// throughput scales with worker count while every worker's cadence stays
// individually irregular.
type PacedLimiter struct {
	baseDelay  time.Duration
	jitter     float64
	lastAction time.Time
	mu         sync.Mutex
}

// NewPacedLimiter builds a limiter spacing requests by
// baseDelay × uniform(1−jitter/2, 1+jitter/2). jitter must be in [0, 1].
func NewPacedLimiter(baseDelay time.Duration, jitter float64) *PacedLimiter {
	return &PacedLimiter{
		baseDelay: baseDelay,
		jitter:    jitter,
	}
}

// Wait blocks until the jittered delay since the last granted request has
// elapsed. The first call never blocks.
func (l *PacedLimiter) Wait(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.lastAction.IsZero() {
		elapsed := time.Since(l.lastAction)
		delay := l.nextDelay()

		if elapsed < delay {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay - elapsed):
			}
		}
	}

	l.lastAction = time.Now()
	return nil
}

func (l *PacedLimiter) SetDelay(base time.Duration, jitter float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.baseDelay = base
	l.jitter = jitter
}

func (l *PacedLimiter) nextDelay() time.Duration {
	if l.jitter <= 0 {
		return l.baseDelay
	}

	// uniform(1−jitter/2, 1+jitter/2)
	factor := 1 - l.jitter/2 + rand.Float64()*l.jitter
	return time.Duration(float64(l.baseDelay) * factor)
}
