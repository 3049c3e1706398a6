// Package ratelimit throttles anonymous traffic per client IP. A Redis
// fixed-window counter is shared across instances; when Redis misbehaves
// the middleware falls back to an in-process token bucket.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Result is the outcome of one check.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

// Limit is N requests per Window.
type Limit struct {
	Requests int
	Window   time.Duration
}

func (l Limit) valid() bool { return l.Requests > 0 && l.Window > 0 }

// LocalLimiter keeps one token bucket per key. Buckets idle for longer
// than twice the window are dropped on the next sweep.
type LocalLimiter struct {
	limit Limit
	now   func() time.Time

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewLocalLimiter(limit Limit) *LocalLimiter {
	return &LocalLimiter{
		limit:   limit,
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
}

func (l *LocalLimiter) Allow(_ context.Context, key string) (Result, error) {
	if !l.limit.valid() {
		return Result{Allowed: true}, nil
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()
	l.sweep(now)

	b, ok := l.buckets[key]
	if !ok {
		every := rate.Every(l.limit.Window / time.Duration(l.limit.Requests))
		b = &bucket{limiter: rate.NewLimiter(every, l.limit.Requests)}
		l.buckets[key] = b
	}
	b.lastSeen = now

	res := Result{Limit: l.limit.Requests, ResetAt: now.Add(l.limit.Window)}
	r := b.limiter.ReserveN(now, 1)
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		res.RetryAfter = delay
		res.Remaining = 0
		return res, nil
	}
	res.Allowed = true
	res.Remaining = max(int(b.limiter.TokensAt(now)), 0)
	return res, nil
}

func (l *LocalLimiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < l.limit.Window {
		return
	}
	l.lastSweep = now
	for k, b := range l.buckets {
		if now.Sub(b.lastSeen) > 2*l.limit.Window {
			delete(l.buckets, k)
		}
	}
}

// Len reports the number of live buckets.
func (l *LocalLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
