package moderation

import "errors"

// Error taxonomy. Call sites wrap these with %w so callers classify with errors.Is.
var (
	ErrValidation      = errors.New("validation failed")
	ErrNotFound        = errors.New("not found")
	ErrInvalidState    = errors.New("invalid state")
	ErrExternalService = errors.New("external service error")
	ErrTimeout         = errors.New("timed out")

	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
)

var (
	ErrScanNotFound   = notFound("moderation scan")
	ErrAnchorNotFound = notFound("model anchor")
	ErrJobNotFound    = notFound("moderation job")

	// ErrClaimLost is returned when a conditional update finds the row no longer
	// held by the caller (reassigned, recovered or already finalized).
	ErrClaimLost = invalidState("claim no longer held")
)

type taxonomyError struct {
	msg  string
	kind error
}

func (e *taxonomyError) Error() string { return e.msg }
func (e *taxonomyError) Unwrap() error { return e.kind }

func notFound(what string) error {
	return &taxonomyError{msg: what + " not found", kind: ErrNotFound}
}

func invalidState(msg string) error {
	return &taxonomyError{msg: msg, kind: ErrInvalidState}
}
