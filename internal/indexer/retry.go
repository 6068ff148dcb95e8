package indexer

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/bull/docshub/internal/apperr"
	"github.com/bull/docshub/internal/metrics"
)

// retry runs fn under the request rate limiter, retrying rate-limited and
// transient failures with exponential backoff. It returns the number of
// retries performed.
func (o *Orchestrator) retry(ctx context.Context, op string, fn func(ctx context.Context) error) (int, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = o.cfg.Indexer.Retry.InitialInterval
	policy.MaxInterval = o.cfg.Indexer.Retry.MaxInterval
	policy.MaxElapsedTime = 0

	retries := 0
	err := backoff.RetryNotify(
		func() error {
			if err := o.limiter.Wait(ctx); err != nil {
				return backoff.Permanent(err)
			}
			err := fn(ctx)
			if err != nil && !apperr.Retryable(err) {
				return backoff.Permanent(err)
			}
			return err
		},
		backoff.WithContext(backoff.WithMaxRetries(policy, uint64(o.cfg.Indexer.Retry.MaxRetries)), ctx),
		func(err error, wait time.Duration) {
			retries++
			metrics.FetchRetriesTotal.WithLabelValues(op).Inc()
			o.logger.Debug("Retrying host call", "operation", op, "attempt", retries, "wait", wait, "error", err)
		},
	)
	return retries, err
}
