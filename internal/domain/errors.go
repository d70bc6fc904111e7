package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidQuery signals empty or malformed query text.
	ErrInvalidQuery = errors.New("invalid query")
	// ErrInvalidArgument signals a bad parameter (k out of range, malformed vector).
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrDimensionMismatch signals a vector whose length differs from the store dimensionality.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrInvalidInput signals text rejected by the embedding provider (malformed or oversized).
	ErrInvalidInput = errors.New("input rejected by embedding provider")
	// ErrProviderUnavailable signals a network, timeout or server failure of the embedding provider.
	ErrProviderUnavailable = errors.New("embedding provider unavailable")
	// ErrStoreUnavailable signals a connectivity or timeout failure of the vector store.
	ErrStoreUnavailable = errors.New("vector store unavailable")
	// ErrLookupFailed is the umbrella error for any failure after validation.
	ErrLookupFailed = errors.New("similarity lookup failed")
	// ErrDocumentNotFound signals a missing document.
	ErrDocumentNotFound = errors.New("document not found")
)

// Lookup stages reported by LookupError.
const (
	StageEmbed = "embed"
	StageQuery = "query"
)

// LookupError wraps a failure of the embed or query stage of a similarity lookup.
// It matches both ErrLookupFailed and the underlying cause with errors.Is.
type LookupError struct {
	Stage string
	Err   error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("%s (%s): %s", ErrLookupFailed.Error(), e.Stage, e.Err.Error())
}

func (e *LookupError) Unwrap() []error { return []error{ErrLookupFailed, e.Err} }

// NewLookupError creates a lookup error for the given stage.
func NewLookupError(stage string, err error) error {
	return &LookupError{Stage: stage, Err: err}
}

// DimensionMismatch returns ErrDimensionMismatch annotated with the expected and actual lengths.
func DimensionMismatch(want, got int) error {
	return fmt.Errorf("%w: expected %d, got %d", ErrDimensionMismatch, want, got)
}

// IsTransient reports whether err is a retryable infrastructure failure.
func IsTransient(err error) bool {
	return errors.Is(err, ErrProviderUnavailable) || errors.Is(err, ErrStoreUnavailable)
}

// IsClassified reports whether err already carries one of the typed sentinels above.
func IsClassified(err error) bool {
	for _, s := range []error{
		ErrInvalidQuery, ErrInvalidArgument, ErrDimensionMismatch, ErrInvalidInput,
		ErrProviderUnavailable, ErrStoreUnavailable, ErrDocumentNotFound,
	} {
		if errors.Is(err, s) {
			return true
		}
	}
	return false
}
