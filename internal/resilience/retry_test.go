package resilience_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-kasir/internal/resilience"
)

var errFlaky = errors.New("connection reset")

func TestRetrierRecoversFromTransientFailure(t *testing.T) {
	r := resilience.Retrier{MaxAttempts: 3, BaseBackoff: time.Millisecond}
	calls := 0
	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errFlaky
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestRetrierStopsOnPermanentError(t *testing.T) {
	errConflict := errors.New("stock changed")
	breaker := resilience.NewBreaker(resilience.BreakerConfig{Target: "commit", MinRequests: 1, OpenFor: time.Minute})
	r := resilience.Retrier{MaxAttempts: 5, BaseBackoff: time.Millisecond, Breaker: breaker}
	calls := 0
	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		return resilience.Permanent{Err: errConflict}
	})
	require.ErrorIs(t, err, errConflict)
	require.Equal(t, 1, calls)
	require.Equal(t, resilience.Closed, breaker.State())
}

func TestRetrierHonoursRetryablePredicate(t *testing.T) {
	errNotFound := errors.New("not found")
	r := resilience.Retrier{
		MaxAttempts: 4,
		BaseBackoff: time.Millisecond,
		Retryable:   func(err error) bool { return !errors.Is(err, errNotFound) },
	}
	calls := 0
	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		return errNotFound
	})
	require.ErrorIs(t, err, errNotFound)
	require.Equal(t, 1, calls)
}

func TestRetrierGivesUpAndOpensBreaker(t *testing.T) {
	breaker := resilience.NewBreaker(resilience.BreakerConfig{Target: "catalog", MinRequests: 2, OpenFor: time.Minute})
	r := resilience.Retrier{MaxAttempts: 2, BaseBackoff: time.Millisecond, Breaker: breaker}
	err := r.Do(context.Background(), func(context.Context) error { return errFlaky })
	require.ErrorIs(t, err, errFlaky)
	require.Equal(t, resilience.Open, breaker.State())

	calls := 0
	err = r.Do(context.Background(), func(context.Context) error {
		calls++
		return nil
	})
	require.ErrorIs(t, err, resilience.ErrOpenCircuit)
	require.Zero(t, calls)
}

func TestRetrierAppliesAttemptTimeout(t *testing.T) {
	r := resilience.Retrier{MaxAttempts: 1, Timeout: 10 * time.Millisecond}
	err := r.Do(context.Background(), func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
