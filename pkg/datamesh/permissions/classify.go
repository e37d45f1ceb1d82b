package permissions

import (
	"errors"
	"strings"

	"github.com/aws/smithy-go"
)

// grantAlreadyPresent reports whether err means the requested grant is
// already in effect. Three service responses carry that meaning: an explicit
// AlreadyExistsException, an InvalidInputException for re-applying an
// identical grant ("Grant permissions modification is invalid"), and an
// InvalidInputException caused by a pre-existing IAMAllowedPrincipals
// catch-all grant on the resource.
func grantAlreadyPresent(err error) bool {
	var ae smithy.APIError
	if !errors.As(err, &ae) {
		return false
	}

	switch ae.ErrorCode() {
	case "AlreadyExistsException":
		return true
	case "InvalidInputException":
		msg := ae.ErrorMessage()
		return strings.Contains(msg, "modification is invalid") ||
			strings.Contains(msg, "IAMAllowedPrincipals")
	}
	return false
}

// revokeAlreadyGone reports whether err means there was nothing left to
// revoke.
func revokeAlreadyGone(err error) bool {
	var ae smithy.APIError
	if !errors.As(err, &ae) {
		return false
	}

	switch ae.ErrorCode() {
	case "EntityNotFoundException":
		return true
	case "InvalidInputException":
		return strings.Contains(ae.ErrorMessage(), "no permissions")
	}
	return false
}

// PropagationDelay reports whether err is the transient class raised when a
// freshly created principal or database is referenced before the service has
// converged. Used as the retryable predicate for the bounded retry helper.
func PropagationDelay(err error) bool {
	var ae smithy.APIError
	if !errors.As(err, &ae) {
		return false
	}

	switch ae.ErrorCode() {
	case "AccessDeniedException", "ConcurrentModificationException", "OperationTimeoutException":
		return true
	case "InvalidInputException":
		return strings.Contains(ae.ErrorMessage(), "not found") ||
			strings.Contains(ae.ErrorMessage(), "Invalid principal")
	}
	return false
}
