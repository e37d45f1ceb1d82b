package model

import (
	"errors"
	"fmt"
)

var (
	// ErrObjectNotFound is returned when strict validation is requested and the
	// referenced catalog object does not exist in the source account.
	ErrObjectNotFound = errors.New("catalog object not found")

	// ErrInvalidStateTransition is returned when a subscription status update
	// violates the lifecycle guard table.
	ErrInvalidStateTransition = errors.New("invalid subscription state transition")

	// ErrShareNotFound is returned when the RAM share backing a grant cannot be
	// resolved from the permissions service. This means the grant silently
	// failed to propagate a share and is not retryable in place.
	ErrShareNotFound = errors.New("resource share not found for grant")

	// ErrNotSubscriptionOwner is returned when a caller attempts to delete a
	// subscription held by a different principal.
	ErrNotSubscriptionOwner = errors.New("subscription is owned by another principal")

	// ErrSubscriptionNotFound is returned on point lookups of unknown ids.
	ErrSubscriptionNotFound = errors.New("subscription not found")
)

// PropagationError wraps the last error seen after exhausting retries against
// a service that had not yet converged on a freshly created principal or
// database.
type PropagationError struct {
	Attempts int
	Err      error
}

func (e *PropagationError) Error() string {
	return fmt.Sprintf("gave up waiting for propagation after %d attempts: %v", e.Attempts, e.Err)
}

func (e *PropagationError) Unwrap() error { return e.Err }
