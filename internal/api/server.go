// Package api provides the REST API for running estimators and experiments and
// for browsing stored runs.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/fidde/cardinality_estimator/internal/corpus"
	"github.com/fidde/cardinality_estimator/internal/experiment"
	"github.com/fidde/cardinality_estimator/internal/storage"
	"github.com/fidde/cardinality_estimator/pkg/hashing"
	"github.com/fidde/cardinality_estimator/pkg/hyperloglog"
	"github.com/fidde/cardinality_estimator/pkg/models"
	"github.com/fidde/cardinality_estimator/pkg/recordinality"
)

// maxBodyBytes bounds request bodies, corpus uploads included.
const maxBodyBytes = 64 << 20

// Server is the REST API server.
type Server struct {
	store    storage.Storage
	corpora  *corpus.Registry
	defaults experiment.Config
	logger   *slog.Logger

	router *chi.Mux
	server *http.Server
}

// Options configures a Server.
type Options struct {
	// Defaults fill the fields an experiment request leaves out
	Defaults experiment.Config

	// RequestTimeout bounds every request, experiments included
	RequestTimeout time.Duration

	Logger *slog.Logger
}

// PaginationParams contains pagination parameters from query string.
type PaginationParams struct {
	Limit  int
	Offset int
}

// PaginatedResponse wraps a paginated response with metadata.
type PaginatedResponse struct {
	Data    interface{} `json:"data"`
	Total   int         `json:"total"`
	Limit   int         `json:"limit"`
	Offset  int         `json:"offset"`
	HasMore bool        `json:"has_more"`
}

// parsePaginationParams extracts pagination parameters from request.
// Defaults: limit=100, offset=0, max_limit=1000
func parsePaginationParams(r *http.Request) PaginationParams {
	const (
		defaultLimit = 100
		maxLimit     = 1000
	)

	limit := defaultLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = min(parsed, maxLimit)
		}
	}

	offset := 0
	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if parsed, err := strconv.Atoi(offsetStr); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	return PaginationParams{
		Limit:  limit,
		Offset: offset,
	}
}

// paginateSlice applies pagination to a slice.
func paginateSlice[T any](items []T, params PaginationParams) PaginatedResponse {
	total := len(items)
	start := params.Offset

	if start >= total {
		return PaginatedResponse{
			Data:   []T{},
			Total:  total,
			Limit:  params.Limit,
			Offset: params.Offset,
		}
	}

	end := min(start+params.Limit, total)

	return PaginatedResponse{
		Data:    items[start:end],
		Total:   total,
		Limit:   params.Limit,
		Offset:  params.Offset,
		HasMore: end < total,
	}
}

// NewServer creates a new API server.
func NewServer(addr string, store storage.Storage, corpora *corpus.Registry, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 5 * time.Minute
	}
	if len(opts.Defaults.Algorithms) == 0 {
		opts.Defaults = experiment.DefaultConfig()
	}

	s := &Server{
		store:    store,
		corpora:  corpora,
		defaults: opts.Defaults,
		logger:   opts.Logger,
		router:   chi.NewRouter(),
	}

	// Middleware
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(opts.RequestTimeout))

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.HandleHealth)

		// One-shot estimation
		r.Post("/estimate", s.estimate)

		// Experiments and stored runs
		r.Post("/experiments", s.runExperiment)
		r.Get("/runs", s.listRuns)
		r.Get("/runs/{id}", s.getRun)
		r.Get("/runs/{id}/report", s.getRunReport)
		r.Delete("/runs/{id}", s.deleteRun)

		// Named corpora
		r.Get("/corpora", s.listCorpora)
		r.Get("/corpora/{name}", s.getCorpus)
		r.Put("/corpora/{name}", s.putCorpus)
		r.Post("/corpora/{name}", s.appendCorpus)
		r.Delete("/corpora/{name}", s.deleteCorpus)

		// Admin endpoints
		r.Post("/admin/clear", s.clearAllData)
	})

	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Handler returns the router, for embedding and tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the API server.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// respondJSON writes a JSON response.
func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("encoding response", "error", err)
	}
}

// respondError writes an error response.
func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{
		"error": message,
	})
}

// respondErr maps err to a status code and writes it.
func (s *Server) respondErr(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	s.respondError(w, status, err.Error())
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrRunNotFound),
		errors.Is(err, corpus.ErrNotFound):
		return http.StatusNotFound

	case errors.Is(err, hyperloglog.ErrParameterOutOfRange),
		errors.Is(err, recordinality.ErrInvalidParameter),
		errors.Is(err, experiment.ErrUnknownAlgorithm),
		errors.Is(err, experiment.ErrInvalidConfig),
		errors.Is(err, hashing.ErrUnknownKind),
		errors.Is(err, models.ErrInvalidRunID),
		errors.Is(err, corpus.ErrInvalidName):
		return http.StatusBadRequest

	case errors.Is(err, models.ErrRunExists):
		return http.StatusConflict

	case errors.Is(err, models.ErrRunTooLarge):
		return http.StatusRequestEntityTooLarge

	case errors.Is(err, models.ErrTooManyRuns):
		return http.StatusInsufficientStorage

	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout

	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON decodes a bounded request body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// clearAllData clears stored runs and every corpus.
// POST /api/v1/admin/clear
func (s *Server) clearAllData(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := s.store.Clear(ctx); err != nil {
		s.logger.Error("clearing storage", "error", err)
		s.respondError(w, http.StatusInternalServerError, "Failed to clear data")
		return
	}
	s.corpora.Clear()

	s.respondJSON(w, http.StatusOK, map[string]string{
		"message": "All data cleared successfully",
	})
}
