package backoff

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/liquidgecka/testlib"
)

func TestRetry_Do_Success(t *testing.T) {
	T := testlib.NewT(t)
	defer T.Finish()

	calls := 0
	r := Retry{Attempts: 3, Delay: time.Millisecond}
	err := r.Do(context.Background(), nil, func(context.Context) error {
		calls += 1
		if calls < 2 {
			return errors.New("flaky")
		}
		return nil
	})
	T.ExpectSuccess(err)
	T.Equal(calls, 2)
}

func TestRetry_Do_Exhausted(t *testing.T) {
	T := testlib.NewT(t)
	defer T.Finish()

	calls := 0
	shared := &BackOff{Period: time.Minute, X: time.Microsecond, Max: time.Millisecond}
	r := Retry{Attempts: 3, Delay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Shared: shared}
	err := r.Do(context.Background(), nil, func(context.Context) error {
		calls += 1
		return errors.New("down")
	})
	T.ExpectErrorMessage(err, "down")
	T.Equal(calls, 3)
	T.Equal(shared.Healthy(), false)
}

func TestRetry_Do_Permanent(t *testing.T) {
	T := testlib.NewT(t)
	defer T.Finish()

	calls := 0
	missing := errors.New("missing")
	r := Retry{Attempts: 5, Delay: time.Millisecond}
	err := r.Do(
		context.Background(),
		func(err error) bool { return err == missing },
		func(context.Context) error {
			calls += 1
			return missing
		})
	T.Equal(err, missing)
	T.Equal(calls, 1)
}

func TestRetry_Do_Zero(t *testing.T) {
	T := testlib.NewT(t)
	defer T.Finish()

	calls := 0
	err := Retry{}.Do(context.Background(), nil, func(context.Context) error {
		calls += 1
		return errors.New("once")
	})
	T.ExpectErrorMessage(err, "once")
	T.Equal(calls, 1)
}

func TestRetry_Do_Timeout(t *testing.T) {
	T := testlib.NewT(t)
	defer T.Finish()

	r := Retry{Attempts: 2, Timeout: 5 * time.Millisecond}
	calls := 0
	err := r.Do(context.Background(), nil, func(ctx context.Context) error {
		calls += 1
		<-ctx.Done()
		return ctx.Err()
	})
	T.Equal(err, context.DeadlineExceeded)
	T.Equal(calls, 2)
}

func TestRetry_Do_Cancelled(t *testing.T) {
	T := testlib.NewT(t)
	defer T.Finish()

	ctx, cancel := context.WithCancel(context.Background())
	r := Retry{Attempts: 5, Delay: time.Hour}
	calls := 0
	err := r.Do(ctx, nil, func(context.Context) error {
		calls += 1
		cancel()
		return errors.New("boom")
	})
	T.NotEqual(err, nil)
	T.Equal(calls, 1)
}
