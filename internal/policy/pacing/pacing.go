// Package pacing spaces out requests to the bank.
package pacing

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/fipibank-harvester/internal/metrics"
)

// Pacer blocks until the next request may be sent.
type Pacer interface {
	Wait(ctx context.Context) error
}

// Limiter is a token bucket shared by concurrent fetchers.
type Limiter struct {
	limiter *rate.Limiter
}

// NewLimiter creates a Limiter. rps <= 0 disables limiting.
func NewLimiter(rps float64, burst int) *Limiter {
	r := rate.Limit(rps)
	if rps <= 0 {
		r = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{limiter: rate.NewLimiter(r, burst)}
}

// Wait blocks until a token is available, respecting the context.
func (l *Limiter) Wait(ctx context.Context) error {
	start := time.Now()
	if err := l.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObservePacingDelay(waited)
	}
	return nil
}

// Jitter inserts a random pause in [min, max] between consecutive calls.
// The first call never waits.
type Jitter struct {
	mu      sync.Mutex
	min     time.Duration
	max     time.Duration
	started bool
}

// NewJitter creates a Jitter. Inverted bounds are clamped to min.
func NewJitter(minDelay, maxDelay time.Duration) *Jitter {
	if minDelay < 0 {
		minDelay = 0
	}
	if maxDelay < minDelay {
		maxDelay = minDelay
	}
	return &Jitter{min: minDelay, max: maxDelay}
}

// Wait sleeps for the next random delay unless this is the first call.
func (j *Jitter) Wait(ctx context.Context) error {
	j.mu.Lock()
	first := !j.started
	j.started = true
	j.mu.Unlock()
	if first {
		return nil
	}

	delay := j.next()
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("pacing wait: %w", ctx.Err())
	case <-timer.C:
		metrics.ObservePacingDelay(delay)
		return nil
	}
}

func (j *Jitter) next() time.Duration {
	span := j.max - j.min
	if span <= 0 {
		return j.min
	}
	return j.min + time.Duration(rand.Int64N(int64(span)+1))
}

// None never waits.
type None struct{}

// Wait returns immediately unless ctx is done.
func (None) Wait(ctx context.Context) error {
	return ctx.Err()
}
