package inventory

import (
	"context"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/angelmondragon/bazaar-backend/pkg/db"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
)

type conflictRecorder interface {
	IncStockConflict(outcome string)
}

// Retrier reruns a whole unit of work when it loses a lock race. Postgres aborts
// the transaction on lock timeout or deadlock, so retrying a single statement is
// not enough.
type Retrier struct {
	maxRetries uint64
	base       time.Duration
	metrics    conflictRecorder
}

func NewRetrier(maxRetries uint64, base time.Duration, metrics conflictRecorder) *Retrier {
	if base <= 0 {
		base = 50 * time.Millisecond
	}
	return &Retrier{maxRetries: maxRetries, base: base, metrics: metrics}
}

// Run calls fn until it succeeds, fails with a non-conflict error, or the retry
// budget is spent. An exhausted budget surfaces as a retryable conflict.
func (r *Retrier) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	backoff := retry.WithMaxRetries(r.maxRetries, retry.NewExponential(r.base))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := fn(ctx)
		if err != nil && db.IsLockConflict(err) {
			r.record("retried")
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil && db.IsLockConflict(err) {
		r.record("exhausted")
		return pkgerrors.Wrap(pkgerrors.CodeRetryableConflict, err, "inventory is busy")
	}
	return err
}

func (r *Retrier) record(outcome string) {
	if r.metrics != nil {
		r.metrics.IncStockConflict(outcome)
	}
}
