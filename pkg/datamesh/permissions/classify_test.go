package permissions

import (
	"errors"
	"fmt"
	"testing"

	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
)

func apiErr(code, message string) error {
	return &smithy.GenericAPIError{Code: code, Message: message}
}

func TestGrantAlreadyPresent(t *testing.T) {
	assert.True(t, grantAlreadyPresent(apiErr("AlreadyExistsException", "Permissions already exist")))
	assert.True(t, grantAlreadyPresent(apiErr("InvalidInputException", "Grant permissions modification is invalid")))
	assert.True(t, grantAlreadyPresent(apiErr("InvalidInputException", "Please revoke permissions from IAMAllowedPrincipals first")))

	assert.False(t, grantAlreadyPresent(apiErr("InvalidInputException", "Database not found")))
	assert.False(t, grantAlreadyPresent(apiErr("AccessDeniedException", "not authorized")))
	assert.False(t, grantAlreadyPresent(errors.New("dial tcp: connection refused")))
}

func TestGrantAlreadyPresentWrapped(t *testing.T) {
	wrapped := fmt.Errorf("operation error LakeFormation: GrantPermissions, %w",
		apiErr("AlreadyExistsException", "Permissions already exist"))
	assert.True(t, grantAlreadyPresent(wrapped))
}

func TestRevokeAlreadyGone(t *testing.T) {
	assert.True(t, revokeAlreadyGone(apiErr("EntityNotFoundException", "Grantee has no permissions")))
	assert.True(t, revokeAlreadyGone(apiErr("InvalidInputException", "Grantee has no permissions on the resource")))
	assert.False(t, revokeAlreadyGone(apiErr("InternalServiceException", "boom")))
}

func TestPropagationDelay(t *testing.T) {
	assert.True(t, PropagationDelay(apiErr("AccessDeniedException", "not authorized to perform")))
	assert.True(t, PropagationDelay(apiErr("ConcurrentModificationException", "retry")))
	assert.True(t, PropagationDelay(apiErr("InvalidInputException", "Invalid principal")))

	assert.False(t, PropagationDelay(apiErr("AlreadyExistsException", "exists")))
	assert.False(t, PropagationDelay(errors.New("plain error")))
}
