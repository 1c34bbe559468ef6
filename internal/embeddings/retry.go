package embeddings

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"
)

// RetryPolicy bounds a retry loop.
//
// The transient-error path and the context-length shrink path each get
// their own policy; the loops nest, so their counters stay independent.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries uint64
	// Backoff returns the delay before retry n (1-based). Nil means no delay.
	Backoff func(n int) time.Duration
}

// LinearBackoff waits n*unit before retry n.
func LinearBackoff(unit time.Duration) func(int) time.Duration {
	return func(n int) time.Duration {
		return time.Duration(n) * unit
	}
}

// Do calls fn until it succeeds, returns an error shouldRetry rejects, the
// retry budget runs out, or ctx is done. attempt is 0 for the first call.
// The last error from fn is returned unchanged.
func (p RetryPolicy) Do(ctx context.Context, shouldRetry func(error) bool, fn func(ctx context.Context, attempt int) error) error {
	attempt := 0
	return retry.Do(ctx, p.backoff(), func(ctx context.Context) error {
		err := fn(ctx, attempt)
		attempt++
		if err != nil && shouldRetry(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

func (p RetryPolicy) backoff() retry.Backoff {
	n := 0
	next := retry.BackoffFunc(func() (time.Duration, bool) {
		n++
		if p.Backoff == nil {
			return 0, false
		}
		return p.Backoff(n), false
	})
	return retry.WithMaxRetries(p.MaxRetries, next)
}
