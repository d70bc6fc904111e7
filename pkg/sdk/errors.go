package caselens

import "github.com/caselens/caselens/internal/domain"

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrInvalidQuery        = domain.ErrInvalidQuery
	ErrInvalidArgument     = domain.ErrInvalidArgument
	ErrDimensionMismatch   = domain.ErrDimensionMismatch
	ErrInvalidInput        = domain.ErrInvalidInput
	ErrProviderUnavailable = domain.ErrProviderUnavailable
	ErrStoreUnavailable    = domain.ErrStoreUnavailable
	ErrLookupFailed        = domain.ErrLookupFailed
	ErrDocumentNotFound    = domain.ErrDocumentNotFound
)

// LookupError reports which stage of FindSimilar failed.
type LookupError = domain.LookupError
