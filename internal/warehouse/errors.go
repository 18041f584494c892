package warehouse

import (
	"context"
	"errors"
	"fmt"
)

// ErrTableNotFound means the table vanished between listing and inspection.
// The table is recorded as skipped and the crawl continues.
var ErrTableNotFound = errors.New("table not found")

// ConnectivityError means the warehouse endpoint is unreachable or the
// credentials were rejected. It is fatal for the whole run.
type ConnectivityError struct {
	Endpoint string
	Err      error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("warehouse unreachable at %s: %v", e.Endpoint, e.Err)
}

func (e *ConnectivityError) Unwrap() error { return e.Err }

// TransientFetchError wraps a timeout or flaky response for a single table.
// Callers may retry; after retries are exhausted the table is recorded as
// skipped and the crawl continues.
type TransientFetchError struct {
	Table string
	Op    string
	Err   error
}

func (e *TransientFetchError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Table, e.Err)
}

func (e *TransientFetchError) Unwrap() error { return e.Err }

// IsTransient reports whether err is retryable.
func IsTransient(err error) bool {
	var t *TransientFetchError
	return errors.As(err, &t)
}

// IsNotFound reports whether err means the table no longer exists.
func IsNotFound(err error) bool { return errors.Is(err, ErrTableNotFound) }

// IsTimeout reports whether err ultimately stems from a deadline expiry.
func IsTimeout(err error) bool { return errors.Is(err, context.DeadlineExceeded) }
