// Package retry provides the bounded fixed-backoff loop used wherever a
// freshly created IAM principal or catalog object is referenced before the
// owning service has converged.
package retry

import (
	"context"
	"time"

	"github.com/gubaruch/Data-mesh-util/pkg/datamesh/model"
)

const (
	DefaultAttempts = 5
	DefaultBackoff  = 2 * time.Second
)

// Do runs fn up to attempts times, sleeping backoff between tries. A nil
// result stops the loop. An error for which retryable returns false is
// returned as-is; exhaustion wraps the last error in a PropagationError.
func Do(ctx context.Context, attempts int, backoff time.Duration, retryable func(error) bool, fn func(ctx context.Context) error) error {
	if attempts <= 0 {
		attempts = DefaultAttempts
	}

	var last error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		last = fn(ctx)
		if last == nil {
			return nil
		}
		if retryable != nil && !retryable(last) {
			return last
		}
	}

	return &model.PropagationError{Attempts: attempts, Err: last}
}
