package crawler

import (
	"context"
	"log/slog"
	"time"

	"github.com/hyz2023/odps-crawler/internal/metrics"
	"github.com/hyz2023/odps-crawler/internal/warehouse"
)

// RetryPolicy bounds how often a transient fetch is re-attempted.
type RetryPolicy struct {
	Attempts int           // total attempts, including the first
	Backoff  time.Duration // base delay, doubled per attempt
}

// DefaultRetry tries twice: the original fetch plus one retry.
var DefaultRetry = RetryPolicy{Attempts: 2, Backoff: 2 * time.Second}

// Do runs fn, retrying transient errors with exponential backoff. Not-found
// and fatal errors pass through immediately; the differ and the session
// classify those themselves.
func (p RetryPolicy) Do(ctx context.Context, log *slog.Logger, project, op string, fn func() error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if m := metrics.Get(); m != nil {
				m.IncRetryAttempts(project, op)
			}
			backoff := p.Backoff * (1 << (attempt - 1))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if err = fn(); err == nil {
			return nil
		}
		if !warehouse.IsTransient(err) {
			return err
		}
		if attempt < attempts-1 {
			log.Warn("transient fetch failed, retrying", "op", op, "attempt", attempt+1, "error", err)
		}
	}
	return err
}
