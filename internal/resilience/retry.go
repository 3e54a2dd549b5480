package resilience

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

// Permanent marks an error that must not be retried. The breaker treats it
// as a healthy round trip because the dependency answered.
type Permanent struct{ Err error }

func (p Permanent) Error() string { return p.Err.Error() }
func (p Permanent) Unwrap() error { return p.Err }

// Retrier runs an operation with retry, per-attempt timeout and an optional
// circuit breaker in front of it.
type Retrier struct {
	Breaker     *Breaker
	BaseBackoff time.Duration
	MaxAttempts int
	Jitter      float64
	Timeout     time.Duration
	// Retryable decides whether a failed attempt may be repeated. Nil retries
	// everything except Permanent and context errors.
	Retryable func(error) bool
}

// Do executes fn until it succeeds, fails permanently or attempts run out.
// When the breaker is open ErrOpenCircuit is returned without calling fn.
func (r Retrier) Do(ctx context.Context, fn func(context.Context) error) error {
	if fn == nil {
		return errors.New("resilience: operation not provided")
	}
	maxAttempts := r.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	base := r.BaseBackoff
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	target := "default"
	if r.Breaker != nil {
		target = r.Breaker.Target()
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if r.Breaker != nil && !r.Breaker.Allow(ctx) {
			RetryAttempts.WithLabelValues(target, "rejected").Inc()
			if lastErr != nil {
				return errors.Join(ErrOpenCircuit, lastErr)
			}
			return ErrOpenCircuit
		}
		err := r.once(ctx, fn)
		if err == nil {
			r.report(ctx, true)
			RetryAttempts.WithLabelValues(target, "ok").Inc()
			return nil
		}
		if !r.retryable(err) {
			// the store answered; only the request was wrong
			r.report(ctx, ctx.Err() == nil && !errors.Is(err, context.DeadlineExceeded))
			RetryAttempts.WithLabelValues(target, "permanent").Inc()
			var p Permanent
			if errors.As(err, &p) {
				return p.Err
			}
			return err
		}
		r.report(ctx, false)
		RetryAttempts.WithLabelValues(target, "failed").Inc()
		lastErr = err
		if attempt == maxAttempts {
			break
		}
		timer := time.NewTimer(Backoff(base, attempt, r.Jitter))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return lastErr
}

func (r Retrier) once(ctx context.Context, fn func(context.Context) error) error {
	if r.Timeout <= 0 {
		return fn(ctx)
	}
	callCtx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()
	return fn(callCtx)
}

func (r Retrier) retryable(err error) bool {
	var p Permanent
	if errors.As(err, &p) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if r.Retryable != nil {
		return r.Retryable(err)
	}
	return true
}

func (r Retrier) report(ctx context.Context, success bool) {
	if r.Breaker != nil {
		r.Breaker.Report(ctx, success)
	}
}

// Backoff doubles base for every attempt after the first. jitterPct spreads
// the result by up to that fraction either way (0.2 is 20%).
func Backoff(base time.Duration, attempt int, jitterPct float64) time.Duration {
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	d := base << min(max(attempt, 1)-1, 20)
	if jitterPct <= 0 {
		return d
	}
	spread := float64(d) * jitterPct
	return d + time.Duration((rand.Float64()*2-1)*spread)
}
