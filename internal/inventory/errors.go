package inventory

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/partsledger/internal/shared"
)

// ErrDuplicateMovement is raised when a movement idempotency key or transfer
// fingerprint is already recorded. The write is refused, never re-applied.
var ErrDuplicateMovement = fmt.Errorf("inventory: movement already recorded: %w", shared.ErrDuplicateRequest)

// ErrReferenceExhausted signals that bounded reference attempts all collided.
// It triggers the random-suffix fallback and is not surfaced to callers.
var ErrReferenceExhausted = errors.New("inventory: reference attempts exhausted")

// errReferenceTaken is returned by repositories when a human reference collides.
var errReferenceTaken = errors.New("inventory: reference already taken")

// ValidationError reports invalid input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("inventory: %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return shared.ErrValidation }

// UserMessage implements shared.UserMessager.
func (e *ValidationError) UserMessage() string { return e.Message }

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// InsufficientStockError reports a movement that would drive a balance negative.
type InsufficientStockError struct {
	LocationID int64
	PartID     int64
	Available  decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("inventory: insufficient stock at location %d for part %d: available %s", e.LocationID, e.PartID, e.Available.StringFixed(2))
}

func (e *InsufficientStockError) Unwrap() error { return shared.ErrInsufficientStock }

// UserMessage implements shared.UserMessager.
func (e *InsufficientStockError) UserMessage() string {
	return "Insufficient stock. Available: " + e.Available.StringFixed(2)
}

// StateError reports a temp-stock transition attempted from the wrong state.
type StateError struct {
	EntryID int64
	Current TempStockStatus
	Message string
}

func (e *StateError) Error() string {
	if e.Current == "" {
		return fmt.Sprintf("inventory: temp stock %d: %s", e.EntryID, e.Message)
	}
	return fmt.Sprintf("inventory: temp stock %d in %s: %s", e.EntryID, e.Current, e.Message)
}

func (e *StateError) Unwrap() error { return shared.ErrInvalidState }

// UserMessage implements shared.UserMessager.
func (e *StateError) UserMessage() string { return e.Message }

// PersistenceError wraps a store failure; the transaction has been rolled back.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("inventory: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() []error { return []error{shared.ErrPersistence, e.Err} }

// UserMessage implements shared.UserMessager.
func (e *PersistenceError) UserMessage() string {
	return "The stock ledger could not save this change. Nothing was posted; please retry."
}

// classify leaves domain errors untouched and wraps anything else as a persistence failure.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, known := range []error{
		shared.ErrDuplicateRequest,
		shared.ErrValidation,
		shared.ErrInsufficientStock,
		shared.ErrInvalidState,
		shared.ErrNotFound,
		shared.ErrUnauthorized,
		shared.ErrForbidden,
		shared.ErrPersistence,
	} {
		if errors.Is(err, known) {
			return err
		}
	}
	return &PersistenceError{Op: op, Err: err}
}

// failureReason labels err for metrics.
func failureReason(err error) string {
	switch {
	case errors.Is(err, shared.ErrDuplicateRequest):
		return "duplicate"
	case errors.Is(err, shared.ErrValidation):
		return "validation"
	case errors.Is(err, shared.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, shared.ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, shared.ErrNotFound):
		return "not_found"
	case errors.Is(err, shared.ErrUnauthorized), errors.Is(err, shared.ErrForbidden):
		return "unauthorized"
	default:
		return "persistence"
	}
}
