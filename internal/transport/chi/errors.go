package chi

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/caselens/caselens/internal/domain"
)

// ErrorCode is the machine-readable code in error responses.
type ErrorCode string

// Error codes returned by the API.
const (
	CodeBadRequest          ErrorCode = "bad_request"
	CodeInvalidQuery        ErrorCode = "invalid_query"
	CodeInvalidArgument     ErrorCode = "invalid_argument"
	CodeInvalidInput        ErrorCode = "invalid_input"
	CodeDimensionMismatch   ErrorCode = "dimension_mismatch"
	CodeProviderUnavailable ErrorCode = "embedding_provider_unavailable"
	CodeStoreUnavailable    ErrorCode = "vector_store_unavailable"
	CodeLookupFailed        ErrorCode = "similarity_lookup_failed"
	CodeDocumentNotFound    ErrorCode = "document_not_found"
	CodeInternalError       ErrorCode = "internal_error"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

func defaultErrorHandlers(logger *zap.Logger) []errorHandler {
	return []errorHandler{
		sentinelHandler(domain.ErrInvalidQuery, http.StatusBadRequest, CodeInvalidQuery),
		sentinelHandler(domain.ErrInvalidInput, http.StatusBadRequest, CodeInvalidInput),
		misconfigHandler(logger),
		sentinelHandler(domain.ErrInvalidArgument, http.StatusBadRequest, CodeInvalidArgument),
		sentinelHandler(domain.ErrDocumentNotFound, http.StatusNotFound, CodeDocumentNotFound),
		sentinelHandler(domain.ErrProviderUnavailable, http.StatusBadGateway, CodeProviderUnavailable),
		sentinelHandler(domain.ErrStoreUnavailable, http.StatusServiceUnavailable, CodeStoreUnavailable),
		sentinelHandler(domain.ErrLookupFailed, http.StatusBadGateway, CodeLookupFailed),
	}
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

// misconfigHandler handles dimension mismatches and store-side argument
// rejections raised inside a lookup. Both mean the model and the store
// disagree, so they are server errors logged for operators.
func misconfigHandler(logger *zap.Logger) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		code := CodeDimensionMismatch
		switch {
		case errors.Is(err, domain.ErrDimensionMismatch):
		case errors.Is(err, domain.ErrInvalidArgument) && errors.Is(err, domain.ErrLookupFailed):
			code = CodeInvalidArgument
		default:
			return false
		}
		logger.Error("vector configuration mismatch", zap.String("code", string(code)), zap.Error(err))
		writeError(w, http.StatusInternalServerError, code, msg)
		return true
	}
}

// safeMessage returns text that is safe to show to the client. Validation
// errors carry our own wording; everything else collapses to its sentinel.
func safeMessage(err error) string {
	var le *domain.LookupError
	if !errors.As(err, &le) {
		for _, s := range []error{domain.ErrInvalidQuery, domain.ErrInvalidArgument} {
			if errors.Is(err, s) {
				return err.Error()
			}
		}
	}

	sentinels := []error{
		domain.ErrInvalidQuery,
		domain.ErrInvalidInput,
		domain.ErrDimensionMismatch,
		domain.ErrInvalidArgument,
		domain.ErrDocumentNotFound,
		domain.ErrProviderUnavailable,
		domain.ErrStoreUnavailable,
		domain.ErrLookupFailed,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}
