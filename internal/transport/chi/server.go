// Package chi is the HTTP API surface of the retrieval engine.
package chi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/datacove/metaseek/internal/domain"
	domlearn "github.com/datacove/metaseek/internal/domain/learning"
	"github.com/datacove/metaseek/internal/domain/search/path"
	"github.com/datacove/metaseek/internal/domain/search/request"
	logpkg "github.com/datacove/metaseek/internal/logger"
)

const defaultAnalyticsWindow = 7 * 24 * time.Hour

// errorHandler tries to handle a domain error. Returns true when handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server handles the HTTP API.
type Server struct {
	search        SearchService
	learning      LearningService
	graph         GraphService
	embeddings    EmbeddingService
	health        []HealthChecker
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	search SearchService,
	learning LearningService,
	graph GraphService,
	embeddings EmbeddingService,
	health []HealthChecker,
	logger *zap.Logger,
) *Server {
	s := &Server{
		search:     search,
		learning:   learning,
		graph:      graph,
		embeddings: embeddings,
		health:     health,
		logger:     logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrNodeNotFound, http.StatusNotFound, codeNodeNotFound),
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, codeNotFound),
		sentinelHandler(domain.ErrInvalidRequest, http.StatusBadRequest, codeValidationFailed),
		sentinelHandler(domain.ErrUpdateInProgress, http.StatusConflict, codeUpdateInProgress),
		sentinelHandler(domain.ErrEmbeddingProviderError, http.StatusBadGateway, codeProviderError),
		sentinelHandler(domain.ErrCompletionProviderError, http.StatusBadGateway, codeProviderError),
		sentinelHandler(domain.ErrVectorIndexError, http.StatusBadGateway, codeIndexError),
		sentinelHandler(domain.ErrStoreError, http.StatusServiceUnavailable, codeStoreError),
	}
	return s
}

// Register mounts all API routes on the router.
func (s *Server) Register(r chi.Router) {
	r.Post("/v1/search", s.handleSearch)
	r.Post("/v1/interactions", s.handleRecordInteraction)
	r.Post("/v1/learning/update", s.handleLearningUpdate)
	r.Get("/v1/learning/suggestions", s.handleSuggestions)
	r.Get("/v1/learning/pending", s.handlePendingCount)
	r.Get("/v1/analytics", s.handleAnalytics)
	r.Post("/v1/graph/rebuild", s.handleGraphRebuild)
	r.Get("/v1/graph/pii-flows", s.handlePiiFlows)
	r.Get("/v1/graph/pii-flows/{nodeID}", s.handlePiiFlowsForNode)
	r.Post("/v1/embeddings/{documentID}/stale", s.handleMarkStale)
	r.Post("/v1/embeddings/refresh", s.handleRefreshStale)
	r.Get("/healthz", s.handleHealth)
}

// handleSearch handles POST /v1/search.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var dto searchRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body: "+err.Error())
		return
	}

	req, err := request.New(
		dto.Query, dto.UserID, path.Path(dto.Path), dto.MaxResults,
		request.Filters{
			Databases:     dto.Databases,
			ObjectTypes:   dto.ObjectTypes,
			Categories:    dto.Categories,
			MinConfidence: dto.MinConfidence,
		},
		dto.IncludePIIFlows, dto.EnableRerank,
	)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeValidationFailed, err.Error())
		return
	}

	resp, err := s.search.Search(r.Context(), req)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, searchResponseToDTO(resp))
}

// handleRecordInteraction handles POST /v1/interactions.
func (s *Server) handleRecordInteraction(w http.ResponseWriter, r *http.Request) {
	var dto interactionDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body: "+err.Error())
		return
	}

	err := s.learning.RecordInteraction(r.Context(), domlearn.Interaction{
		QueryID:    dto.QueryID,
		UserID:     dto.UserID,
		Type:       domlearn.InteractionType(dto.Type),
		DocumentID: dto.DocumentID,
		ResultRank: dto.ResultRank,
		Payload:    dto.Payload,
	})
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// handleLearningUpdate handles POST /v1/learning/update.
func (s *Server) handleLearningUpdate(w http.ResponseWriter, r *http.Request) {
	res, err := s.learning.TriggerLearningUpdate(r.Context())
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updateResultDTO{
		InteractionsProcessed: res.InteractionsProcessed,
		QueriesAnalyzed:       res.QueriesAnalyzed,
		DocumentsReranked:     res.DocumentsReranked,
		Suggestions:           suggestionsToDTO(res.Suggestions),
		CompletedAt:           res.CompletedAt,
	})
}

// handleSuggestions handles GET /v1/learning/suggestions.
func (s *Server) handleSuggestions(w http.ResponseWriter, r *http.Request) {
	max := queryInt(r, "max", 10)
	minConfidence := queryFloat(r, "min_confidence", 0)

	suggestions, err := s.learning.GenerateCategorySuggestions(r.Context(), max, minConfidence)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"suggestions": suggestionsToDTO(suggestions)})
}

// handlePendingCount handles GET /v1/learning/pending.
func (s *Server) handlePendingCount(w http.ResponseWriter, r *http.Request) {
	n, err := s.learning.GetPendingInteractionCount(r.Context())
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"pending": n})
}

// handleAnalytics handles GET /v1/analytics. since accepts RFC 3339;
// default is the last seven days.
func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	since := time.Now().Add(-defaultAnalyticsWindow)
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, codeValidationFailed, "since must be RFC 3339")
			return
		}
		since = parsed
	}

	analytics, err := s.learning.GetAnalytics(r.Context(), since)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, analyticsToDTO(analytics))
}

// handleGraphRebuild handles POST /v1/graph/rebuild.
func (s *Server) handleGraphRebuild(w http.ResponseWriter, r *http.Request) {
	if err := s.graph.Rebuild(r.Context()); err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"nodes": s.graph.NodeCount()})
}

// handlePiiFlows handles GET /v1/graph/pii-flows.
func (s *Server) handlePiiFlows(w http.ResponseWriter, r *http.Request) {
	flows, err := s.graph.GetAllPiiFlows(r.Context())
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"flows": piiFlowsToDTO(flows)})
}

// handlePiiFlowsForNode handles GET /v1/graph/pii-flows/{nodeID}.
func (s *Server) handlePiiFlowsForNode(w http.ResponseWriter, r *http.Request) {
	flows, err := s.graph.TracePiiFlow(r.Context(), chi.URLParam(r, "nodeID"))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"flows": piiFlowsToDTO(flows)})
}

// handleMarkStale handles POST /v1/embeddings/{documentID}/stale.
func (s *Server) handleMarkStale(w http.ResponseWriter, r *http.Request) {
	if err := s.embeddings.MarkStale(r.Context(), chi.URLParam(r, "documentID")); err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// handleRefreshStale handles POST /v1/embeddings/refresh.
func (s *Server) handleRefreshStale(w http.ResponseWriter, r *http.Request) {
	refreshed, err := s.embeddings.RefreshStale(r.Context(), queryInt(r, "batch_size", 16))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"refreshed": refreshed})
}

// handleHealth handles GET /healthz.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	for _, hc := range s.health {
		if err := hc.HealthCheck(r.Context()); err != nil {
			s.logger.Warn("health check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func queryFloat(r *http.Request, key string, fallback float64) float64 {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return f
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

// safeDomainMessage returns a sentinel error message for the client without
// exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrNodeNotFound,
		domain.ErrNotFound,
		domain.ErrInvalidRequest,
		domain.ErrUpdateInProgress,
		domain.ErrEmbeddingProviderError,
		domain.ErrCompletionProviderError,
		domain.ErrVectorIndexError,
		domain.ErrStoreError,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	// Prefer the request-scoped logger so errors correlate with request_id.
	logger := logpkg.FromContext(r.Context())
	logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}
