package core

import "errors"

// Kind classifies an error for the transport layer
type Kind string

const (
	KindValidation      Kind = "validation_error"
	KindAuthentication  Kind = "authentication_error"
	KindForbidden       Kind = "forbidden"
	KindNotFound        Kind = "not_found"
	KindConflict        Kind = "conflict_error"
	KindPayloadTooLarge Kind = "payload_too_large"
	KindRateLimited     Kind = "rate_limit_error"
	KindConfiguration   Kind = "configuration_error"
	KindInternal        Kind = "internal_error"
)

// Error is a classified error whose message is safe to show to clients
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func newError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// NewValidationError returns a validation error carrying message
func NewValidationError(message string) *Error {
	return newError(KindValidation, message)
}

var (
	ErrMalformedIdentity  = newError(KindValidation, "malformed identity")
	ErrMalformedSignature = newError(KindValidation, "malformed signature")
	ErrMalformedBody      = newError(KindValidation, "malformed request body")
	ErrInvalidKey         = newError(KindValidation, "invalid idempotency key")
	ErrRefreshDisabled    = newError(KindValidation, "session refresh is disabled")

	ErrNonceNotFound    = newError(KindAuthentication, "expired or missing nonce")
	ErrInvalidSignature = newError(KindAuthentication, "invalid signature")
	ErrNotAuthenticated = newError(KindAuthentication, "Not authenticated")
	ErrSessionExpired   = newError(KindAuthentication, "Session expired")
	ErrSessionInvalid   = newError(KindAuthentication, "Invalid session")

	ErrForbidden = newError(KindForbidden, "forbidden")
	ErrNotFound  = newError(KindNotFound, "not found")

	ErrIdempotencyConflict = newError(KindConflict, "idempotency key reused with a different request")
	ErrIdempotencyInFlight = newError(KindConflict, "a request with this idempotency key is in progress")

	ErrPayloadTooLarge = newError(KindPayloadTooLarge, "request body too large")
	ErrRateLimited     = newError(KindRateLimited, "too many requests")

	ErrWeakSecret = newError(KindConfiguration, "session secret must be at least 32 bytes")
)

// KindOf returns the kind of the first classified error in err's chain,
// or KindInternal when there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// PublicMessage returns the client-safe message for err.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal server error"
}
