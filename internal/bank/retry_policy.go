package bank

import (
	"context"
	"crypto/rand"
	"errors"
	"io"
	"math/big"
	"net"
	"net/http"
	"syscall"
	"time"
)

// Retry defaults observed against the bank: it throws 500s under load and
// recovers within seconds.
const (
	DefaultMaxAttempts   = 20
	DefaultRetryMinDelay = 7500 * time.Millisecond
	DefaultRetryMaxDelay = 15 * time.Second
)

// JitterRetryPolicy implements RetryPolicy with a uniformly random delay.
type JitterRetryPolicy struct {
	maxAttempts int
	minDelay    time.Duration
	maxDelay    time.Duration
}

// NewJitterRetryPolicy builds a policy. maxAttempts <= 0 retries forever.
func NewJitterRetryPolicy(maxAttempts int, minDelay, maxDelay time.Duration) *JitterRetryPolicy {
	if minDelay < 0 {
		minDelay = 0
	}
	if maxDelay < minDelay {
		maxDelay = minDelay
	}
	return &JitterRetryPolicy{
		maxAttempts: maxAttempts,
		minDelay:    minDelay,
		maxDelay:    maxDelay,
	}
}

// NewDefaultRetryPolicy builds a policy with the bank defaults.
func NewDefaultRetryPolicy() *JitterRetryPolicy {
	return NewJitterRetryPolicy(DefaultMaxAttempts, DefaultRetryMinDelay, DefaultRetryMaxDelay)
}

// MaxAttempts returns the ceiling, 0 meaning unbounded.
func (p *JitterRetryPolicy) MaxAttempts() int {
	if p.maxAttempts < 0 {
		return 0
	}
	return p.maxAttempts
}

// ShouldRetry decides whether the error is retryable after attempt tries.
func (p *JitterRetryPolicy) ShouldRetry(err error, attempt int) bool {
	if err == nil {
		return false
	}
	if p.maxAttempts > 0 && attempt >= p.maxAttempts {
		return false
	}
	return IsTransient(err)
}

// Backoff returns the wait before the next attempt.
func (p *JitterRetryPolicy) Backoff(_ int) time.Duration {
	return p.minDelay + randomJitter(p.maxDelay-p.minDelay)
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)))
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}

// IsTransient reports whether err is a server 500 or a connection-level failure.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == http.StatusInternalServerError
	}
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}
