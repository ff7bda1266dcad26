// Package chi is the HTTP transport of the registry check service.
package chi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/regcheck/internal/domain"
	"github.com/kailas-cloud/regcheck/internal/logger"
	"github.com/kailas-cloud/regcheck/internal/metrics"
	"github.com/kailas-cloud/regcheck/internal/transport/wire"
	healthuc "github.com/kailas-cloud/regcheck/internal/usecase/health"
	"github.com/kailas-cloud/regcheck/internal/usecase/retrieval"
)

const (
	// maxBodyBytes fits a full ingestion batch of maximum-size entries.
	maxBodyBytes = 32 << 20
	// maxCheckTimeout caps the caller-supplied check timeout.
	maxCheckTimeout = time.Minute

	statusUndetermined = "undetermined"
)

// Server serves the check, search and ingestion API.
type Server struct {
	checker      Checker
	searcher     Searcher
	ingester     Ingester
	health       HealthChecker
	retrieval    retrieval.Options
	maxBatchSize int
	apiKeys      []string
	logger       *zap.Logger
}

// Config holds the HTTP-facing settings.
type Config struct {
	APIKeys      []string
	Retrieval    retrieval.Options
	MaxBatchSize int
}

// NewServer creates an HTTP API server.
func NewServer(
	checker Checker,
	searcher Searcher,
	ingester Ingester,
	health HealthChecker,
	cfg Config,
	logger *zap.Logger,
) *Server {
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval = retrieval.DefaultOptions()
	}
	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = 100
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		checker:      checker,
		searcher:     searcher,
		ingester:     ingester,
		health:       health,
		retrieval:    cfg.Retrieval,
		maxBatchSize: cfg.MaxBatchSize,
		apiKeys:      cfg.APIKeys,
		logger:       logger,
	}
}

// Routes builds the router with the full middleware chain.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(jsonRecoverer(s.logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(s.logger))
	r.Use(BearerAuthMiddleware(s.apiKeys))
	r.Use(metrics.Middleware())

	r.Get("/health", s.HealthCheck)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/check", s.Check)
		r.Post("/search", s.Search)
		r.Get("/stats", s.Stats)
		r.Put("/documents", s.UpsertDocuments)
		r.Post("/documents/retract", s.RetractDocuments)
		r.Post("/index/rebuild", s.RebuildIndex)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, wire.CodeNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, wire.CodeBadRequest, "method not allowed")
	})
	return r
}

// Check handles POST /v1/check.
func (s *Server) Check(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.TimeoutMS < 0 {
		writeError(w, http.StatusBadRequest, wire.CodeBadRequest, "timeout_ms must not be negative")
		return
	}
	timeout := min(time.Duration(req.TimeoutMS)*time.Millisecond, maxCheckTimeout)

	v, err := s.checker.Check(r.Context(), req.Query, timeout)
	if err != nil {
		status, code, msg := wire.Classify(err)
		s.logFailure(r, err, status)
		writeJSON(w, status, undeterminedResponse{Status: statusUndetermined, Code: code, Message: msg})
		return
	}
	writeJSON(w, http.StatusOK, verdictToDTO(v))
}

// Search handles POST /v1/search.
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if !s.decode(w, r, &req) {
		return
	}

	opts := s.retrieval
	if req.TopK != 0 {
		opts.TopK = req.TopK
	}
	if req.MinSimilarity != nil {
		opts.MinSimilarity = *req.MinSimilarity
	}
	opts.Source = req.Source

	results, err := s.searcher.Retrieve(r.Context(), req.Query, opts)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	items := make([]evidenceItem, len(results))
	for i := range results {
		items[i] = evidenceToDTO(&results[i])
	}
	writeJSON(w, http.StatusOK, searchResponse{Items: items, Total: len(items)})
}

// Stats handles GET /v1/stats.
func (s *Server) Stats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, statsToDTO(s.checker.Stats()))
}

// UpsertDocuments handles PUT /v1/documents.
func (s *Server) UpsertDocuments(w http.ResponseWriter, r *http.Request) {
	var req wire.UpsertRequest
	if !s.decode(w, r, &req) {
		return
	}
	if len(req.Documents) == 0 || len(req.Documents) > s.maxBatchSize {
		writeError(w, http.StatusBadRequest, wire.CodeValidationFailed,
			fmt.Sprintf("documents count must be between 1 and %d", s.maxBatchSize))
		return
	}

	entries, err := wire.ToIngestAll(req.Documents)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	results := s.ingester.Upsert(r.Context(), entries)
	writeJSON(w, http.StatusOK, wire.FromBatch(results, wire.ItemCode))
}

// RetractDocuments handles POST /v1/documents/retract.
func (s *Server) RetractDocuments(w http.ResponseWriter, r *http.Request) {
	var req wire.RetractRequest
	if !s.decode(w, r, &req) {
		return
	}
	if len(req.IDs) == 0 || len(req.IDs) > s.maxBatchSize {
		writeError(w, http.StatusBadRequest, wire.CodeValidationFailed,
			fmt.Sprintf("ids count must be between 1 and %d", s.maxBatchSize))
		return
	}

	results := s.ingester.Retract(r.Context(), req.IDs)
	writeJSON(w, http.StatusOK, wire.FromBatch(results, wire.ItemCode))
}

// RebuildIndex handles POST /v1/index/rebuild.
func (s *Server) RebuildIndex(w http.ResponseWriter, r *http.Request) {
	if err := s.ingester.Rebuild(r.Context()); err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	status := http.StatusOK
	if report.Status != healthuc.Healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, healthResponse{
		Status:    string(report.Status),
		Checks:    checks,
		IndexSize: report.IndexSize,
	})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, wire.CodeBadRequest, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, wire.CodeBadRequest, "Invalid request body: "+err.Error())
		return false
	}
	return true
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, msg := wire.Classify(err)
	s.logFailure(r, err, status)
	writeError(w, status, code, msg)
}

func (s *Server) logFailure(r *http.Request, err error, status int) {
	l := logger.FromContextOr(r.Context(), s.logger)
	switch {
	case status >= http.StatusInternalServerError && !errors.Is(err, domain.ErrTimeout):
		l.Error("request failed", zap.Error(err))
	default:
		l.Warn("domain error", zap.Error(err))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}
