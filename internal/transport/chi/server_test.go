package chi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/caselens/caselens/internal/db/memory"
	"github.com/caselens/caselens/internal/domain"
	domdoc "github.com/caselens/caselens/internal/domain/document"
	"github.com/caselens/caselens/internal/domain/similarity/request"
	"github.com/caselens/caselens/internal/metrics"
	healthuc "github.com/caselens/caselens/internal/usecase/health"
	ingestuc "github.com/caselens/caselens/internal/usecase/ingest"
	similarityuc "github.com/caselens/caselens/internal/usecase/similarity"
)

func TestMain(m *testing.M) {
	metrics.Register()
	os.Exit(m.Run())
}

// --- Fakes ---

type fakeEmbedder struct {
	vector []float32
	err    error
	calls  int
}

func (f *fakeEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	f.calls++
	if f.err != nil {
		return domain.EmbeddingResult{}, f.err
	}
	return domain.EmbeddingResult{Embedding: f.vector, TotalTokens: 7}, nil
}

func (f *fakeEmbedder) HealthCheck(_ context.Context) error { return f.err }

type failingStore struct {
	*memory.Store
	err error
}

func (f *failingStore) Query(_ context.Context, _ []float32, _ int) ([]domdoc.Match, error) {
	return nil, f.err
}

func (f *failingStore) Ping(_ context.Context) error { return f.err }

type env struct {
	handler http.Handler
	store   *memory.Store
	emb     *fakeEmbedder
}

func newEnv(t *testing.T, emb *fakeEmbedder, store similarityuc.VectorStore, lim request.Limits) env {
	t.Helper()
	mem := memory.New(2)
	if store == nil {
		store = mem
	}
	pinger, ok := store.(healthuc.DBPinger)
	if !ok {
		pinger = mem
	}

	sim := similarityuc.New(emb, store, similarityuc.Options{Limits: lim, EmbedTimeout: time.Second})
	ing := ingestuc.New(mem, emb)
	health := healthuc.New(pinger, emb)
	srv := NewServer(sim, ing, health, zap.NewNop())

	return env{
		handler: NewRouter(srv, RouterOptions{Logger: zap.NewNop()}),
		store:   mem,
		emb:     emb,
	}
}

func (e env) seed(t *testing.T, title string, v []float32) {
	t.Helper()
	doc, err := domdoc.New(title, "civil", title+" summary", "https://cases.example/"+title+".pdf")
	if err != nil {
		t.Fatalf("domdoc.New: %v", err)
	}
	if _, err := e.store.Insert(context.Background(), doc.WithEmbedding(v)); err != nil {
		t.Fatalf("Insert: %v", err)
	}
}

func postSimilar(t *testing.T, h http.Handler, query, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/get-similar-cases"+query, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return resp
}

// --- Tests ---

func TestGetSimilarCases_OK(t *testing.T) {
	e := newEnv(t, &fakeEmbedder{vector: []float32{1, 0}}, nil, request.Limits{})
	e.seed(t, "A", []float32{1, 0})
	e.seed(t, "B", []float32{0, 1})
	e.seed(t, "C", []float32{1, 0})

	rec := postSimilar(t, e.handler, "?k=2", `{"summary":"breach of contract"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Embedding-Tokens") != "7" {
		t.Errorf("expected X-Embedding-Tokens=7, got %q", rec.Header().Get("X-Embedding-Tokens"))
	}

	var items []MatchResponse
	if err := json.NewDecoder(rec.Body).Decode(&items); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(items) != 2 || items[0].Title != "A" || items[1].Title != "C" {
		t.Fatalf("expected [A C], got %+v", items)
	}
	if items[0].ID != 1 || items[0].PDFLink != "https://cases.example/A.pdf" || items[0].Distance != 0 {
		t.Errorf("unexpected first item: %+v", items[0])
	}
}

func TestGetSimilarCases_DefaultK(t *testing.T) {
	e := newEnv(t, &fakeEmbedder{vector: []float32{0, 0}}, nil, request.Limits{})
	for i := range 8 {
		e.seed(t, fmt.Sprintf("c%d", i), []float32{float32(i), 0})
	}

	rec := postSimilar(t, e.handler, "", `{"summary":"x"}`)
	var items []MatchResponse
	_ = json.NewDecoder(rec.Body).Decode(&items)
	if len(items) != 5 {
		t.Errorf("expected 5 items, got %d", len(items))
	}
}

func TestGetSimilarCases_EmptyStore(t *testing.T) {
	e := newEnv(t, &fakeEmbedder{vector: []float32{0, 0}}, nil, request.Limits{})

	rec := postSimilar(t, e.handler, "", `{"summary":"x"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := bytes.TrimSpace(rec.Body.Bytes()); string(got) != "[]" {
		t.Errorf("expected empty array, got %s", got)
	}
}

func TestGetSimilarCases_Errors(t *testing.T) {
	tests := []struct {
		name    string
		emb     *fakeEmbedder
		store   similarityuc.VectorStore
		lim     request.Limits
		query   string
		body    string
		status  int
		code    ErrorCode
		noEmbed bool
	}{
		{
			name: "malformed json", emb: &fakeEmbedder{vector: []float32{0, 0}},
			body: `{"summary":`, status: http.StatusBadRequest, code: CodeBadRequest, noEmbed: true,
		},
		{
			name: "missing summary", emb: &fakeEmbedder{vector: []float32{0, 0}},
			body: `{}`, status: http.StatusBadRequest, code: CodeInvalidQuery, noEmbed: true,
		},
		{
			name: "blank summary", emb: &fakeEmbedder{vector: []float32{0, 0}},
			body: `{"summary":"   "}`, status: http.StatusBadRequest, code: CodeInvalidQuery, noEmbed: true,
		},
		{
			name: "non-numeric k", emb: &fakeEmbedder{vector: []float32{0, 0}},
			query: "?k=abc", body: `{"summary":"x"}`, status: http.StatusBadRequest, code: CodeInvalidArgument, noEmbed: true,
		},
		{
			name: "negative k", emb: &fakeEmbedder{vector: []float32{0, 0}},
			query: "?k=-1", body: `{"summary":"x"}`, status: http.StatusBadRequest, code: CodeInvalidArgument, noEmbed: true,
		},
		{
			name: "k above max with reject policy", emb: &fakeEmbedder{vector: []float32{0, 0}},
			lim:   request.Limits{DefaultK: 5, MaxK: 50, Policy: request.KReject},
			query: "?k=1000", body: `{"summary":"x"}`, status: http.StatusBadRequest, code: CodeInvalidArgument, noEmbed: true,
		},
		{
			name: "provider rejected input", emb: &fakeEmbedder{err: fmt.Errorf("%w: 413", domain.ErrInvalidInput)},
			body: `{"summary":"x"}`, status: http.StatusBadRequest, code: CodeInvalidInput,
		},
		{
			name: "provider unavailable", emb: &fakeEmbedder{err: fmt.Errorf("%w: 503", domain.ErrProviderUnavailable)},
			body: `{"summary":"x"}`, status: http.StatusBadGateway, code: CodeProviderUnavailable,
		},
		{
			name: "dimension mismatch", emb: &fakeEmbedder{vector: []float32{1, 2, 3}},
			body: `{"summary":"x"}`, status: http.StatusInternalServerError, code: CodeDimensionMismatch,
		},
		{
			name: "store unavailable", emb: &fakeEmbedder{vector: []float32{1, 0}},
			store: &failingStore{Store: memory.New(2), err: errors.New("connection refused")},
			body:  `{"summary":"x"}`, status: http.StatusServiceUnavailable, code: CodeStoreUnavailable,
		},
		{
			name: "store rejected argument", emb: &fakeEmbedder{vector: []float32{1, 0}},
			store: &failingStore{Store: memory.New(2), err: fmt.Errorf("%w: bad vector", domain.ErrInvalidArgument)},
			body:  `{"summary":"x"}`, status: http.StatusInternalServerError, code: CodeInvalidArgument,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t, tt.emb, tt.store, tt.lim)

			rec := postSimilar(t, e.handler, tt.query, tt.body)
			if rec.Code != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, rec.Code, rec.Body.String())
			}
			resp := decodeError(t, rec)
			if resp.Code != tt.code {
				t.Errorf("expected code %q, got %q", tt.code, resp.Code)
			}
			if resp.Message == "" {
				t.Error("expected a message")
			}
			if tt.noEmbed && tt.emb.calls != 0 {
				t.Errorf("expected no provider calls, got %d", tt.emb.calls)
			}
		})
	}
}

func TestGetSimilarCases_NoInternalDetailLeaks(t *testing.T) {
	e := newEnv(t, &fakeEmbedder{vector: []float32{1, 0}},
		&failingStore{Store: memory.New(2), err: errors.New("dial tcp 10.0.0.7:5432: connection refused")},
		request.Limits{})

	rec := postSimilar(t, e.handler, "", `{"summary":"x"}`)
	if bytes.Contains(rec.Body.Bytes(), []byte("10.0.0.7")) {
		t.Errorf("response leaks internal detail: %s", rec.Body.String())
	}
}

func TestListDocuments(t *testing.T) {
	e := newEnv(t, &fakeEmbedder{vector: []float32{1, 0}}, nil, request.Limits{})
	e.seed(t, "A", []float32{1, 0})
	e.seed(t, "B", []float32{0, 1})

	req := httptest.NewRequest(http.MethodGet, "/get-all", nil)
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var raw []map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&raw); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(raw) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(raw))
	}
	if _, ok := raw[0]["embedding"]; ok {
		t.Error("embedding must not be exposed")
	}
	if raw[1]["title"] != "B" || raw[1]["pdf_link"] != "https://cases.example/B.pdf" {
		t.Errorf("unexpected document: %v", raw[1])
	}
}

func TestHealthCheck(t *testing.T) {
	e := newEnv(t, &fakeEmbedder{vector: []float32{1, 0}}, nil, request.Limits{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "ok" || resp.Checks["database"] != "ok" || resp.Checks["embedding"] != "ok" {
		t.Errorf("unexpected health: %+v", resp)
	}
}

func TestHealthCheck_StoreDown(t *testing.T) {
	e := newEnv(t, &fakeEmbedder{vector: []float32{1, 0}},
		&failingStore{Store: memory.New(2), err: errors.New("down")}, request.Limits{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	e := newEnv(t, &fakeEmbedder{vector: []float32{1, 0}}, nil, request.Limits{})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte("caselens_")) {
		t.Error("expected caselens metrics in exposition")
	}
}

func TestRouter_RequestIDAndCORS(t *testing.T) {
	e := newEnv(t, &fakeEmbedder{vector: []float32{1, 0}}, nil, request.Limits{})

	req := httptest.NewRequest(http.MethodGet, "/get-all", nil)
	req.Header.Set("Origin", "https://ui.example")
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)

	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header")
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://ui.example" {
		t.Errorf("expected reflected origin, got %q", got)
	}
}

func TestRouter_NotFound(t *testing.T) {
	e := newEnv(t, &fakeEmbedder{vector: []float32{1, 0}}, nil, request.Limits{})

	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestJSONRecoverer(t *testing.T) {
	h := JSONRecoverer(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if resp := decodeError(t, rec); resp.Code != CodeInternalError {
		t.Errorf("expected internal_error, got %q", resp.Code)
	}
}

func TestSafeMessage(t *testing.T) {
	validation := fmt.Errorf("%w: k must be at most 50, got 1000", domain.ErrInvalidArgument)
	if got := safeMessage(validation); got != validation.Error() {
		t.Errorf("expected validation detail, got %q", got)
	}

	lookup := domain.NewLookupError(domain.StageQuery,
		fmt.Errorf("%w: dial tcp 10.0.0.7:5432", domain.ErrStoreUnavailable))
	if got := safeMessage(lookup); got != domain.ErrStoreUnavailable.Error() {
		t.Errorf("expected sentinel text, got %q", got)
	}

	if got := safeMessage(errors.New("secret")); got != "internal error" {
		t.Errorf("expected generic message, got %q", got)
	}
}
