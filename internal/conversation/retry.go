package conversation

import (
	"context"
	"time"
)

// RetryPolicy reissues an operation on transient failure with a fixed delay
// between attempts. Non-retryable errors and context cancellation stop
// immediately. AttemptTimeout bounds each individual attempt so a hung call
// surfaces as context.DeadlineExceeded instead of blocking the caller.
type RetryPolicy struct {
	MaxAttempts    int
	Delay          time.Duration
	AttemptTimeout time.Duration
	Retryable      func(error) bool
}

// Do runs op until it succeeds, exhausts MaxAttempts, or hits a
// non-retryable error. Returns the last error on failure.
func (p RetryPolicy) Do(ctx context.Context, op func(context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = func(error) bool { return true }
	}

	attempt := func() error {
		if p.AttemptTimeout <= 0 {
			return op(ctx)
		}
		attemptCtx, cancel := context.WithTimeout(ctx, p.AttemptTimeout)
		defer cancel()
		return op(attemptCtx)
	}

	var err error
	for i := 0; i < attempts; i++ {
		if i > 0 && p.Delay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.Delay):
			}
		}
		if err = attempt(); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
		if !retryable(err) {
			return err
		}
	}
	return err
}
