package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	all := []Status{StatusPending, StatusActive, StatusDenied, StatusDeleted}
	legal := map[[2]Status]bool{
		{StatusPending, StatusActive}:  true,
		{StatusPending, StatusDenied}:  true,
		{StatusDenied, StatusActive}:   true,
		{StatusActive, StatusDeleted}:  true,
	}

	for _, from := range all {
		for _, to := range all {
			assert.Equal(t, legal[[2]Status{from, to}], CanTransition(from, to),
				"transition %s -> %s", from, to)
		}
	}
}

func TestAllowedPredecessors(t *testing.T) {
	from, err := AllowedPredecessors(StatusActive)
	assert.NoError(t, err)
	assert.ElementsMatch(t, []Status{StatusPending, StatusDenied}, from)

	_, err = AllowedPredecessors(StatusPending)
	assert.ErrorIs(t, err, ErrInvalidStateTransition)
}

func TestParseStatus(t *testing.T) {
	st, err := ParseStatus("Active")
	assert.NoError(t, err)
	assert.Equal(t, StatusActive, st)

	_, err = ParseStatus("Approved")
	assert.Error(t, err)
}

func TestWithDescribe(t *testing.T) {
	perms := WithDescribe([]Permission{PermissionSelect})
	assert.ElementsMatch(t, []Permission{PermissionSelect, PermissionDescribe}, perms)

	same := WithDescribe(perms)
	assert.Len(t, same, 2)
}

func TestParsePermissions(t *testing.T) {
	perms, err := ParsePermissions([]string{"SELECT", "DESCRIBE"})
	assert.NoError(t, err)
	assert.Len(t, perms, 2)

	_, err = ParsePermissions([]string{"SELECT", "DROP"})
	assert.Error(t, err)
}
