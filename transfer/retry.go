package transfer

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	cargoerrors "github.com/cargohold-io/cargohold/errors"
)

// retryPolicy bounds how many times a failed transfer is reattempted and
// how long to wait between attempts.
type retryPolicy struct {
	budget  int           // retries allowed after the first attempt
	base    time.Duration // initial backoff interval
	maxWait time.Duration // ceiling for a single backoff interval
}

func defaultRetryPolicy() retryPolicy {
	return retryPolicy{
		budget:  DefaultRetryBudget,
		base:    DefaultRetryBase,
		maxWait: DefaultRetryMaxWait,
	}
}

// runWithRetry invokes op until it succeeds, fails permanently, exhausts
// the retry budget, or ctx is cancelled. Only errors the errors package
// considers retryable are attempted again; authentication and local I/O
// failures surface immediately. An attempt cut short by its own timeout
// is transient and stays eligible. onWait observes every backoff delay.
// Returns the number of attempts made alongside the final error.
func runWithRetry(ctx context.Context, pol retryPolicy, op func(context.Context) error, onWait backoff.Notify) (int, error) {
	attempts := 0

	operation := func() error {
		attempts++
		err := op(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			// The run itself is over; an attempt timeout would leave
			// ctx live, so this only permanents true cancellation.
			return backoff.Permanent(err)
		}
		if !cargoerrors.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = pol.base
	bo.MaxInterval = pol.maxWait
	bo.MaxElapsedTime = 0 // budget is attempt-counted, not time-boxed

	err := backoff.RetryNotify(
		operation,
		backoff.WithContext(backoff.WithMaxRetries(bo, uint64(pol.budget)), ctx),
		onWait,
	)
	return attempts, err
}
