// Package retry runs an operation under a bounded, fixed-delay retry policy.
//
// A policy is a maximum attempt count and one constant delay between
// attempts. There is no jitter and no growth.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Policy bounds a retry loop.
type Policy struct {
	MaxAttempts int
	Delay       time.Duration
}

// MaxWait is the longest total delay the policy can spend sleeping.
func (p Policy) MaxWait() time.Duration {
	if p.MaxAttempts <= 1 {
		return 0
	}
	return time.Duration(p.MaxAttempts-1) * p.Delay
}

// WaitFunc observes the wait that follows a failed attempt.
type WaitFunc func(attempt int, delay time.Duration, err error)

// Stop marks err as final: Do returns it without further attempts.
func Stop(err error) error {
	return backoff.Permanent(err)
}

// Do calls op until it succeeds, returns a Stop error, or MaxAttempts calls
// have been made, waiting Delay between calls. It returns the last result,
// the number of calls made and the last error. A cancelled ctx ends the loop
// during a wait with the context's cause.
func Do[T any](ctx context.Context, p Policy, op func(attempt int) (T, error), onWait WaitFunc) (T, int, error) {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.Delay < 0 {
		p.Delay = 0
	}

	attempts := 0
	res, err := backoff.Retry(ctx, func() (T, error) {
		attempts++
		return op(attempts)
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(p.Delay)),
		backoff.WithMaxTries(uint(p.MaxAttempts)),
		backoff.WithNotify(func(err error, d time.Duration) {
			if onWait != nil {
				onWait(attempts, d, err)
			}
		}),
	)
	return res, attempts, err
}
