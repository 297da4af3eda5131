package notifier

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"golang.org/x/time/rate"

	kit "correctionwatch/internal/transport"
)

// RetryPolicy bounds a retried call.
type RetryPolicy struct {
	MaxAttempts    int
	Base           time.Duration
	MaxDelay       time.Duration
	AttemptTimeout time.Duration
	// Limiter, if set, is waited on before every attempt.
	Limiter *rate.Limiter
}

// Retry calls fn until it succeeds, returns a permanent error, the attempts
// run out, or ctx is done. An unconfirmed error is permanent and yields the
// Unconfirmed outcome. The result is always carried in the Delivery.
func Retry(ctx context.Context, p RetryPolicy, fn func(ctx context.Context) error) Delivery {
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var lastErr error
	attempt := 0
	for attempt < maxAttempts {
		attempt++

		if p.Limiter != nil {
			if err := p.Limiter.Wait(ctx); err != nil {
				return Delivery{Outcome: Failed, Attempts: attempt - 1, Err: errors.Join(lastErr, err)}
			}
		}

		callCtx, cancel := ctx, context.CancelFunc(func() {})
		if p.AttemptTimeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, p.AttemptTimeout)
		}
		err := fn(callCtx)
		cancel()
		if err == nil {
			return Delivery{Outcome: Delivered, Attempts: attempt}
		}
		lastErr = err
		if kit.IsPermanent(err) || attempt >= maxAttempts {
			break
		}

		delay := retryDelay(p.Base, p.MaxDelay, attempt)
		if delay <= 0 {
			continue
		}
		t := time.NewTimer(delay)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return Delivery{Outcome: Failed, Attempts: attempt, Err: errors.Join(lastErr, ctx.Err())}
		}
	}
	if kit.IsUnconfirmed(lastErr) {
		return Delivery{Outcome: Unconfirmed, Attempts: attempt, Err: lastErr}
	}
	return Delivery{Outcome: Failed, Attempts: attempt, Err: lastErr}
}

// retryDelay is the wait before attempt+1: base * 2^(attempt-1), jittered
// by 0.7..1.3 and capped at maxD.
func retryDelay(base, maxD time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	if maxD <= 0 {
		maxD = 10 * time.Second
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= maxD {
			d = maxD
			break
		}
	}
	j := 0.7 + rand.Float64()*0.6
	d = time.Duration(float64(d) * j)
	if d < 0 {
		return 0
	}
	if d > maxD {
		d = maxD
	}
	return d
}
