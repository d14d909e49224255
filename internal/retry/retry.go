// Package retry runs operations against unreliable upstreams with bounded attempts.
package retry

import (
	"context"
	"errors"
	"math"
	"time"
)

// Strategy decides whether and when a failed operation is attempted again.
type Strategy interface {
	// Next returns the delay before the next attempt, given the number of
	// attempts that have failed so far. ok is false when no attempt is left.
	Next(failed int) (delay time.Duration, ok bool)
}

type permanentError struct {
	err error
}

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying. Do returns the wrapped error as is.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do executes fn until it succeeds or the strategy gives up, returning the
// last error. onRetry, if set, is called before every wait.
func Do(ctx context.Context, s Strategy, fn func(ctx context.Context) error, onRetry func(failed int, err error)) error {
	var failed int
	for {
		err := fn(ctx)
		if err == nil {
			return nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}

		failed++
		delay, ok := s.Next(failed)
		if !ok {
			return err
		}
		if onRetry != nil {
			onRetry(failed, err)
		}

		if err := Sleep(ctx, delay); err != nil {
			return err
		}
	}
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Linear allows Attempts tries in total and waits Base*n after the n-th failure.
type Linear struct {
	Attempts int
	Base     time.Duration
}

func (l Linear) Next(failed int) (time.Duration, bool) {
	if failed >= l.Attempts {
		return 0, false
	}
	return l.Base * time.Duration(failed), true
}

// Backoff implements exponential backoff. MaxAttempts <= 0 retries forever.
type Backoff struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	// Multiplier defaults to 2
	Multiplier float64
}

// Exponential creates a Backoff strategy with sensible defaults.
func Exponential(maxAttempts int) *Backoff {
	return &Backoff{
		MaxAttempts:  maxAttempts,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2,
	}
}

func (b *Backoff) Next(failed int) (time.Duration, bool) {
	if b.MaxAttempts > 0 && failed >= b.MaxAttempts {
		return 0, false
	}

	multiplier := b.Multiplier
	if multiplier == 0 {
		multiplier = 2
	}

	d := time.Duration(float64(b.InitialDelay) * math.Pow(multiplier, float64(failed-1)))
	if b.MaxDelay > 0 && (d > b.MaxDelay || d < 0) {
		d = b.MaxDelay
	}
	return d, true
}
