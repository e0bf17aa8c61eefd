// Package retry runs fallible operations with bounded attempts and
// exponential backoff.
//
// Every call to the generation provider goes through Do. Errors are split
// by the policy's Retryable classifier: transient errors are retried until
// MaxAttempts is reached, fatal errors are returned immediately and
// untouched.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/JIemyp/SAAS-AudienceAuditAnalisys-sub002/internal/apperr"
)

// ErrRetryExhausted matches any *ExhaustedError via errors.Is.
var ErrRetryExhausted = apperr.New(apperr.CodeRetryExhausted, "retry attempts exhausted")

// ExhaustedError is returned when every attempt failed with a transient
// error. It unwraps to the last underlying error.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retry exhausted after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrRetryExhausted) hold.
func (e *ExhaustedError) Is(target error) bool { return target == ErrRetryExhausted }

// Code implements apperr.Coder.
func (e *ExhaustedError) Code() apperr.Code { return apperr.CodeRetryExhausted }

// Policy configures Do.
type Policy struct {
	// MaxAttempts includes the first call. Values below 1 mean 1.
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// Multiplier grows the delay between attempts. Values below 1 mean 2.
	Multiplier float64
	// AttemptTimeout bounds a single attempt; zero means no bound.
	AttemptTimeout time.Duration
	// Retryable classifies errors. Nil retries every error.
	Retryable func(error) bool
	// OnRetry observes each failed attempt that will be retried.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultPolicy matches the pipeline defaults: 3 attempts, 1s base delay,
// doubling, capped at 10s.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    10 * time.Second,
		Multiplier:  2,
	}
}

// Delay returns the wait before attempt n+1 after attempt n (1-based) failed.
func (p Policy) Delay(attempt int) time.Duration {
	if p.BaseDelay <= 0 || attempt < 1 {
		return 0
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 2
	}
	d := float64(p.BaseDelay)
	for i := 1; i < attempt; i++ {
		d *= mult
		if p.MaxDelay > 0 && d >= float64(p.MaxDelay) {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && time.Duration(d) > p.MaxDelay {
		return p.MaxDelay
	}
	return time.Duration(d)
}

// sleep is a package-level var so tests can observe backoff without waiting.
var sleep = func(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Do calls op until it succeeds, fails with a non-retryable error, the
// attempts run out, or ctx is done.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = func(error) bool { return true }
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return zero, fmt.Errorf("%w (last error: %v)", err, lastErr)
			}
			return zero, err
		}

		result, err := runAttempt(ctx, p.AttemptTimeout, op)
		if err == nil {
			return result, nil
		}
		lastErr = err

		// The caller's context ending is never a transient failure.
		if ctx.Err() != nil {
			return zero, err
		}
		if !retryable(err) {
			return zero, err
		}
		if attempt == attempts {
			break
		}

		delay := p.Delay(attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt, err, delay)
		}
		if serr := sleep(ctx, delay); serr != nil {
			return zero, fmt.Errorf("%w (last error: %v)", serr, lastErr)
		}
	}
	return zero, &ExhaustedError{Attempts: attempts, Err: lastErr}
}

func runAttempt[T any](ctx context.Context, timeout time.Duration, op func(ctx context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return op(ctx)
	}
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	result, err := op(actx)
	if err != nil && errors.Is(actx.Err(), context.DeadlineExceeded) && !errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
	}
	return result, err
}
