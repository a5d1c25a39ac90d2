package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/bioscope-cloud/bioscope/internal/domain"
	healthuc "github.com/bioscope-cloud/bioscope/internal/usecase/health"
	searchuc "github.com/bioscope-cloud/bioscope/internal/usecase/search"
	"github.com/bioscope-cloud/bioscope/pkg/stream"
)

// Error codes returned in JSON error responses.
const (
	codeBadRequest               = "bad_request"
	codeEmptyQuery               = "empty_query"
	codeInvalidMode              = "invalid_mode"
	codeEmbeddingProviderError   = "embedding_provider_error"
	codeSearchBackendError       = "search_backend_error"
	codeOrchestrationUnavailable = "orchestration_unavailable"
	codeSummaryProviderError     = "summary_provider_error"
	codeNotConfigured            = "not_configured"
	codeInternalError            = "internal_error"
)

// defaultBrowseLimit is the scroll page size when the browse request omits one.
const defaultBrowseLimit = 20

// errorResponse is the JSON error body.
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// CollectionStore is the vector store admin surface proxied by the gateway.
type CollectionStore interface {
	ListCollections(ctx context.Context) (map[string]any, error)
	CollectionInfo(ctx context.Context, collection string) (map[string]any, error)
	BrowsePoints(ctx context.Context, collection string, limit int, offset any) (map[string]any, error)
}

// GraphStatsProvider exposes the orchestration backend's graph statistics.
type GraphStatsProvider interface {
	GraphStats(ctx context.Context) (map[string]any, error)
}

// Server is the HTTP API surface of the gateway.
type Server struct {
	search        *searchuc.Service
	health        *healthuc.Service
	collections   CollectionStore
	graph         GraphStatsProvider
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server. collections and graph may be nil
// when the corresponding backend is not configured.
func NewServer(
	search *searchuc.Service,
	health *healthuc.Service,
	collections CollectionStore,
	graph GraphStatsProvider,
	logger *zap.Logger,
) *Server {
	s := &Server{
		search:      search,
		health:      health,
		collections: collections,
		graph:       graph,
		logger:      logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrEmptyQuery, http.StatusBadRequest, codeEmptyQuery),
		sentinelHandler(domain.ErrInvalidMode, http.StatusBadRequest, codeInvalidMode),
		sentinelHandler(domain.ErrEmbeddingProvider, http.StatusBadGateway, codeEmbeddingProviderError),
		sentinelHandler(domain.ErrSearchBackend, http.StatusBadGateway, codeSearchBackendError),
		sentinelHandler(domain.ErrSummaryProvider, http.StatusBadGateway, codeSummaryProviderError),
		sentinelHandler(domain.ErrOrchestrationUnavailable, http.StatusServiceUnavailable, codeOrchestrationUnavailable),
	}
	return s
}

// Register mounts all routes on r. Middleware is the caller's concern.
func (s *Server) Register(r chi.Router) {
	r.Post("/api/search", s.Search)
	r.Post("/api/search/stream", s.SearchStream)
	r.Get("/api/collections", s.ListCollections)
	r.Get("/api/collections/{collection}", s.GetCollection)
	r.Post("/api/collections/{collection}/points", s.BrowsePoints)
	r.Get("/api/graph/stats", s.GraphStats)
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
}

// searchBody is the JSON request body shared by both search endpoints.
type searchBody struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
	Mode  string `json:"mode"`
}

func decodeSearchRequest(r *http.Request) (searchuc.Request, error) {
	var body searchBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return searchuc.Request{}, errors.New("invalid request body")
	}
	return searchuc.NewRequest(body.Query, body.Limit, body.Mode)
}

// Search handles POST /api/search.
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	req, err := decodeSearchRequest(r)
	if err != nil {
		s.handleRequestError(w, err)
		return
	}

	resp, err := s.search.Search(r.Context(), req)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// SearchStream handles POST /api/search/stream. Validation failures are
// plain JSON errors; once the stream starts, failures arrive as in-band
// error events.
func (s *Server) SearchStream(w http.ResponseWriter, r *http.Request) {
	req, err := decodeSearchRequest(r)
	if err != nil {
		s.handleRequestError(w, err)
		return
	}

	stream.PrepareHeaders(w.Header())
	w.WriteHeader(http.StatusOK)
	s.search.Stream(r.Context(), req, stream.NewEncoder(w))
}

// ListCollections handles GET /api/collections.
func (s *Server) ListCollections(w http.ResponseWriter, r *http.Request) {
	if s.collections == nil {
		writeError(w, http.StatusServiceUnavailable, codeNotConfigured, "vector store not configured")
		return
	}
	doc, err := s.collections.ListCollections(r.Context())
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// GetCollection handles GET /api/collections/{collection}.
func (s *Server) GetCollection(w http.ResponseWriter, r *http.Request) {
	if s.collections == nil {
		writeError(w, http.StatusServiceUnavailable, codeNotConfigured, "vector store not configured")
		return
	}
	doc, err := s.collections.CollectionInfo(r.Context(), chi.URLParam(r, "collection"))
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// BrowsePoints handles POST /api/collections/{collection}/points. The body
// carries a scroll page request; offset is the opaque cursor echoed back by
// the previous page.
func (s *Server) BrowsePoints(w http.ResponseWriter, r *http.Request) {
	if s.collections == nil {
		writeError(w, http.StatusServiceUnavailable, codeNotConfigured, "vector store not configured")
		return
	}

	var body struct {
		Limit  int `json:"limit"`
		Offset any `json:"offset"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if body.Limit <= 0 {
		body.Limit = defaultBrowseLimit
	}

	doc, err := s.collections.BrowsePoints(r.Context(), chi.URLParam(r, "collection"), body.Limit, body.Offset)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// GraphStats handles GET /api/graph/stats.
func (s *Server) GraphStats(w http.ResponseWriter, r *http.Request) {
	if s.graph == nil {
		writeError(w, http.StatusServiceUnavailable, codeNotConfigured, "orchestration backend not configured")
		return
	}
	stats, err := s.graph.GraphStats(r.Context())
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, map[string]any{
		"status": report.Status,
		"checks": report.Checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// handleRequestError maps decode/validation failures to 400 responses,
// reusing the sentinel chain for typed validation errors.
func (s *Server) handleRequestError(w http.ResponseWriter, err error) {
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	writeError(w, http.StatusBadRequest, codeBadRequest, err.Error())
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	writeError(w, http.StatusInternalServerError, codeInternalError, msg)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrEmptyQuery,
		domain.ErrInvalidMode,
		domain.ErrEmbeddingProvider,
		domain.ErrSearchBackend,
		domain.ErrOrchestrationUnavailable,
		domain.ErrSummaryProvider,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}
