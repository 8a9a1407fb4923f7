// Package retry runs an operation again after transient failures, doubling
// the wait between attempts.
package retry

import (
	"context"
	"time"
)

// Policy configures Do. A zero Policy behaves like Default().
type Policy struct {
	// MaxRetries is the number of attempts after the first one.
	MaxRetries int
	// BaseDelay is the wait before the first retry; it doubles each time.
	BaseDelay time.Duration
	// Retryable decides whether an error is transient. Nil retries every
	// error.
	Retryable func(error) bool
	// OnRetry is called before each wait.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// Default is three retries starting at 500ms.
func Default() Policy {
	return Policy{MaxRetries: 3, BaseDelay: 500 * time.Millisecond}
}

// Do calls fn until it succeeds, returns a non-retryable error, or the
// retries are used up. The last error is returned. Cancelling ctx stops
// the wait and returns ctx.Err().
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.MaxRetries == 0 && p.BaseDelay == 0 && p.Retryable == nil {
		d := Default()
		p.MaxRetries, p.BaseDelay = d.MaxRetries, d.BaseDelay
	}

	delay := p.BaseDelay
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if attempt >= p.MaxRetries || (p.Retryable != nil && !p.Retryable(err)) {
			return err
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt+1, delay, err)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay *= 2
	}
}
