package model

import "fmt"

// Status is the lifecycle state of a subscription.
type Status string

const (
	StatusPending Status = "Pending"
	StatusActive  Status = "Active"
	StatusDenied  Status = "Denied"
	StatusDeleted Status = "Deleted"
)

// allowedPredecessors holds, for each target status, the set of statuses a
// record may currently be in for the transition to be legal. Pending has no
// entry because nothing transitions back to it, and Deleted is terminal.
var allowedPredecessors = map[Status][]Status{
	StatusActive:  {StatusPending, StatusDenied},
	StatusDenied:  {StatusPending},
	StatusDeleted: {StatusActive},
}

// AllowedPredecessors returns the statuses from which a record may move into
// target. The returned slice must not be mutated.
func AllowedPredecessors(target Status) ([]Status, error) {
	from, ok := allowedPredecessors[target]
	if !ok {
		return nil, fmt.Errorf("%w: no transition leads to status %s", ErrInvalidStateTransition, target)
	}
	return from, nil
}

// CanTransition reports whether a record currently in from may move to target.
func CanTransition(from, to Status) bool {
	for _, s := range allowedPredecessors[to] {
		if s == from {
			return true
		}
	}
	return false
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusActive, StatusDenied, StatusDeleted:
		return true
	}
	return false
}

// ParseStatus converts an external string into a Status.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", fmt.Errorf("unknown subscription status %q", s)
	}
	return st, nil
}
