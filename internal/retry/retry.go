package retry

import (
	"context"
	"time"

	"github.com/hoover/setup/internal/errs"
	"github.com/hoover/setup/internal/logger"
)

// Policy bounds retries of an operation. Only network-class failures are
// retried; any other failure is returned from the first attempt. Backoff
// grows linearly with the attempt number.
type Policy struct {
	Attempts int
	Backoff  time.Duration
}

// Do runs fn until it succeeds, fails with a non-network error, or the
// attempts are exhausted. op names the operation in retry warnings.
func (p Policy) Do(ctx context.Context, op string, fn func(context.Context) error) error {
	if p.Attempts < 1 {
		p.Attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= p.Attempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if errs.KindOf(lastErr) != errs.KindNetwork || attempt == p.Attempts {
			return lastErr
		}
		wait := time.Duration(attempt) * p.Backoff
		logger.Warn("[WARN] %s failed (attempt %d/%d), retrying in %s: %v\n",
			op, attempt, p.Attempts, wait, lastErr)
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return lastErr
		}
	}
	return lastErr
}
