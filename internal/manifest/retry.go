package manifest

import (
	"context"
	"time"
)

// RetryPolicy decides whether a failed index save is attempted again.
// attempt counts the failed attempts so far, starting at 1.
type RetryPolicy interface {
	ShouldRetry(ctx context.Context, attempt int, err error) bool
}

// RetryFunc adapts a function to RetryPolicy.
type RetryFunc func(ctx context.Context, attempt int, err error) bool

func (f RetryFunc) ShouldRetry(ctx context.Context, attempt int, err error) bool {
	return f(ctx, attempt, err)
}

// MaxAttempts allows up to n attempts in total, pausing Backoff between
// them.
type MaxAttempts struct {
	N       int
	Backoff time.Duration
}

func (m MaxAttempts) ShouldRetry(ctx context.Context, attempt int, _ error) bool {
	if attempt >= m.N {
		return false
	}
	if m.Backoff <= 0 {
		return ctx.Err() == nil
	}

	t := time.NewTimer(m.Backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// NoRetry gives up after the first failure.
var NoRetry RetryPolicy = MaxAttempts{N: 1}
