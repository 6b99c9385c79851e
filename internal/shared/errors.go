package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateRequest marks a submission whose action token was missing, expired or already consumed.
	ErrDuplicateRequest = errors.New("duplicate request")
	// ErrValidation marks invalid input.
	ErrValidation = errors.New("validation failed")
	// ErrInsufficientStock marks a movement that would drive a balance negative.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrInvalidState marks a state machine precondition violation.
	ErrInvalidState = errors.New("invalid state transition")
	// ErrPersistence marks a failed read, write or commit against the store.
	ErrPersistence = errors.New("persistence failure")
	// ErrForbidden indicates the actor lacks scope for the request.
	ErrForbidden = errors.New("forbidden")
	// ErrUnauthorized indicates a missing actor identity.
	ErrUnauthorized = errors.New("unauthorized")
)

const genericMessage = "Something went wrong while processing the request. Please try again."

// UserMessager is implemented by errors carrying a message safe to show to end users.
type UserMessager interface {
	UserMessage() string
}

// UserSafeMessage returns a single human-readable message for err without leaking internals.
func UserSafeMessage(err error) string {
	if err == nil {
		return ""
	}
	var um UserMessager
	if errors.As(err, &um) {
		return um.UserMessage()
	}
	switch {
	case errors.Is(err, ErrDuplicateRequest):
		return "This request was already processed or has expired. Please reload and try again."
	case errors.Is(err, ErrNotFound):
		return "The requested record was not found."
	case errors.Is(err, ErrForbidden):
		return "You are not allowed to act on this location."
	case errors.Is(err, ErrUnauthorized):
		return "Please sign in again."
	}
	return genericMessage
}
