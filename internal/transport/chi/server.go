// Package chi exposes the case similarity API over HTTP.
package chi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/oapi-codegen/runtime"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/caselens/caselens/internal/domain"
	domdoc "github.com/caselens/caselens/internal/domain/document"
	logpkg "github.com/caselens/caselens/internal/logger"
	healthuc "github.com/caselens/caselens/internal/usecase/health"
	ingestuc "github.com/caselens/caselens/internal/usecase/ingest"
	similarityuc "github.com/caselens/caselens/internal/usecase/similarity"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// SimilarCasesRequest is the body of POST /get-similar-cases.
type SimilarCasesRequest struct {
	Summary *string `json:"summary"`
}

// DocumentResponse is a stored case without its embedding.
type DocumentResponse struct {
	ID             int64  `json:"id"`
	Title          string `json:"title"`
	Classification string `json:"classification"`
	Summary        string `json:"summary"`
	PDFLink        string `json:"pdf_link"`
}

// MatchResponse is a similar case with its L2 distance to the query.
type MatchResponse struct {
	DocumentResponse
	Distance float64 `json:"distance"`
}

// HealthResponse reports component checks.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// Server implements the HTTP handlers.
type Server struct {
	similarity    *similarityuc.Service
	documents     *ingestuc.Service
	health        *healthuc.Service
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	similarity *similarityuc.Service,
	documents *ingestuc.Service,
	health *healthuc.Service,
	logger *zap.Logger,
) *Server {
	return &Server{
		similarity:    similarity,
		documents:     documents,
		health:        health,
		logger:        logger,
		errorHandlers: defaultErrorHandlers(logger),
	}
}

// ListDocuments handles GET /get-all.
func (s *Server) ListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.documents.List(r.Context())
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	items := make([]DocumentResponse, len(docs))
	for i := range docs {
		items[i] = documentToResponse(&docs[i])
	}
	writeJSON(w, http.StatusOK, items)
}

// GetSimilarCases handles POST /get-similar-cases.
func (s *Server) GetSimilarCases(w http.ResponseWriter, r *http.Request) {
	var k *int
	if err := runtime.BindQueryParameter("form", true, false, "k", r.URL.Query(), &k); err != nil {
		writeError(w, http.StatusBadRequest, CodeInvalidArgument, "k must be an integer")
		return
	}
	r = r.WithContext(logpkg.With(r.Context(), zap.Int("k_requested", derefInt(k))))

	var req SimilarCasesRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid request body")
		return
	}
	if req.Summary == nil {
		writeError(w, http.StatusBadRequest, CodeInvalidQuery, "summary is required")
		return
	}

	ctx, usage := domain.NewContextWithUsage(r.Context())
	matches, err := s.similarity.FindSimilar(ctx, *req.Summary, derefInt(k))
	setEmbeddingHeaders(w, usage)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	items := make([]MatchResponse, len(matches))
	for i := range matches {
		items[i] = MatchResponse{
			DocumentResponse: documentToResponse(&matches[i].Document),
			Distance:         matches[i].Distance,
		}
	}
	writeJSON(w, http.StatusOK, items)
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, HealthResponse{
		Status: string(report.Status),
		Checks: checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func setEmbeddingHeaders(w http.ResponseWriter, usage *domain.EmbeddingUsage) {
	if usage != nil && usage.Used {
		w.Header().Set("X-Embedding-Tokens", strconv.Itoa(usage.TotalTokens))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := logpkg.FromContext(r.Context())

	msg := safeMessage(err)
	var le *domain.LookupError
	if errors.As(err, &le) {
		log.Warn("similarity lookup failed", zap.String("stage", le.Stage), zap.Error(err))
	} else if domain.IsClassified(err) {
		log.Warn("domain error", zap.Error(err))
	}

	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
}

func documentToResponse(d *domdoc.Document) DocumentResponse {
	return DocumentResponse{
		ID:             d.ID(),
		Title:          d.Title(),
		Classification: d.Classification(),
		Summary:        d.Summary(),
		PDFLink:        d.PDFLink(),
	}
}

func derefInt(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
