package chi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/caselens/caselens/internal/metrics"
	"github.com/caselens/caselens/internal/tracing"
)

// RouterOptions configures the HTTP router.
type RouterOptions struct {
	// CORSOrigins lists allowed origins. Empty reflects any origin.
	CORSOrigins []string
	Logger      *zap.Logger
}

// NewRouter mounts the API routes behind the standard middleware chain:
// recoverer, request ID, server span, canonical log line, metrics, CORS.
func NewRouter(s *Server, opts RouterOptions) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(JSONRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(tracing.Middleware())
	r.Use(WideEventMiddleware(logger))
	r.Use(metrics.Middleware())
	r.Use(corsHandler(opts.CORSOrigins))

	r.Get("/get-all", s.ListDocuments)
	r.Post("/get-similar-cases", s.GetSimilarCases)
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, CodeBadRequest, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, CodeBadRequest, "method not allowed")
	})

	return r
}

func corsHandler(origins []string) func(http.Handler) http.Handler {
	opts := cors.Options{
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID", "X-Embedding-Tokens"},
		MaxAge:         300,
	}
	if len(origins) == 0 {
		opts.AllowOriginFunc = func(_ *http.Request, _ string) bool { return true }
	} else {
		opts.AllowedOrigins = origins
	}
	return cors.Handler(opts)
}
