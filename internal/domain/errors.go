package domain

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrInvalidQuery signals an empty or oversized query text.
	ErrInvalidQuery = errors.New("invalid query")
	// ErrInvalidDocument signals a registry entry that fails validation.
	ErrInvalidDocument = errors.New("invalid document")
	// ErrDimensionMismatch signals a vector whose length differs from the index dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrDuplicateID signals an insert of an id already present in the index.
	ErrDuplicateID = errors.New("duplicate id")
	// ErrNotFound signals a missing document or vector.
	ErrNotFound = errors.New("not found")

	// ErrEmbeddingUnavailable signals an embedding provider failure. Fatal for a query.
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")
	// ErrGenerationUnavailable signals a generation collaborator failure. Advisory only.
	ErrGenerationUnavailable = errors.New("generation unavailable")
	// ErrTimeout signals that the caller-supplied deadline expired.
	ErrTimeout = errors.New("timeout")
	// ErrCanceled signals that the caller abandoned the query.
	ErrCanceled = errors.New("canceled")
	// ErrStoreUnavailable signals a document store or index backend failure.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrPreconditionViolation signals a broken caller contract (programming defect).
	ErrPreconditionViolation = errors.New("precondition violation")
)

// PreconditionError wraps ErrPreconditionViolation with the offending position.
type PreconditionError struct {
	Index  int
	Reason string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%s: %s (at %d)", ErrPreconditionViolation.Error(), e.Reason, e.Index)
}

func (e *PreconditionError) Unwrap() error { return ErrPreconditionViolation }

// NewPreconditionViolation creates a precondition error.
func NewPreconditionViolation(index int, reason string) error {
	return &PreconditionError{Index: index, Reason: reason}
}

// ContextError maps context errors to ErrTimeout / ErrCanceled; other errors pass through.
func ContextError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrTimeout), errors.Is(err, ErrCanceled):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("%w: %w", ErrCanceled, err)
	default:
		return err
	}
}
