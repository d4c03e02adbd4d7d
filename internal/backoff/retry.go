package backoff

import (
	"context"
	"time"
)

// Retry describes how a single remote call is repeated. A zero Retry runs
// the call exactly once with no timeout.
type Retry struct {
	// Total number of attempts, including the first. Values below 1 are
	// treated as 1.
	Attempts int

	// Delay before the second attempt. Each later attempt doubles it,
	// never exceeding MaxDelay (when set).
	Delay    time.Duration
	MaxDelay time.Duration

	// If set then every attempt gets its own context with this timeout.
	Timeout time.Duration

	// Shared failure tracking. Every failed attempt is recorded here and
	// its Wait() is added to the delay so that all callers slow down
	// together when a remote is struggling.
	Shared *BackOff
}

// Runs f until it succeeds, returns an error that permanent() reports as
// not worth retrying, the attempts are used up, or ctx is done. The last
// error seen is returned.
func (r Retry) Do(
	ctx context.Context,
	permanent func(error) bool,
	f func(context.Context) error,
) error {
	attempts := r.Attempts
	if attempts < 1 {
		attempts = 1
	}
	delay := r.Delay
	var err error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			wait := delay + r.Shared.Wait()
			if wait > 0 {
				timer := time.NewTimer(wait)
				select {
				case <-ctx.Done():
					timer.Stop()
					return ctx.Err()
				case <-timer.C:
				}
			}
			delay *= 2
			if r.MaxDelay > 0 && delay > r.MaxDelay {
				delay = r.MaxDelay
			}
		}
		err = r.attempt(ctx, f)
		if err == nil {
			return nil
		} else if ctx.Err() != nil {
			return err
		}
		if permanent != nil && permanent(err) {
			return err
		}
		r.Shared.Failure()
	}
	return err
}

func (r Retry) attempt(ctx context.Context, f func(context.Context) error) error {
	if r.Timeout <= 0 {
		return f(ctx)
	}
	actx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()
	return f(actx)
}
