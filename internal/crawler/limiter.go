package crawler

import (
	"context"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Limiter bounds the number of fetches in flight and optionally paces them.
// A slot is held for one fetch only, never across a traversal step.
type Limiter struct {
	sem     *semaphore.Weighted
	pace    *rate.Limiter
	maxSize int
}

// NewLimiter creates a Limiter allowing maxConcurrent fetches at once and at
// most perSecond request starts per second (0 disables pacing).
func NewLimiter(maxConcurrent, perSecond int) *Limiter {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}

	l := &Limiter{
		sem:     semaphore.NewWeighted(int64(maxConcurrent)),
		maxSize: maxConcurrent,
	}
	if perSecond > 0 {
		l.pace = rate.NewLimiter(rate.Limit(perSecond), perSecond)
	}
	return l
}

// Acquire blocks until a slot is free and the pacing allows a request.
// The returned release func must be called exactly once.
func (l *Limiter) Acquire(ctx context.Context) (func(), error) {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	if l.pace != nil {
		if err := l.pace.Wait(ctx); err != nil {
			l.sem.Release(1)
			return nil, err
		}
	}
	return func() { l.sem.Release(1) }, nil
}

// Size returns the maximum number of concurrent fetches
func (l *Limiter) Size() int {
	return l.maxSize
}
