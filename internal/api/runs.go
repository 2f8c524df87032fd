package api

import (
	"bytes"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fidde/cardinality_estimator/internal/experiment"
	"github.com/fidde/cardinality_estimator/internal/report"
	"github.com/fidde/cardinality_estimator/pkg/hashing"
	"github.com/fidde/cardinality_estimator/pkg/models"
)

// inlineDataset names runs computed over elements sent in the request.
const inlineDataset = "inline"

// ExperimentRequest starts an experiment. Zero values fall back to the
// server defaults.
type ExperimentRequest struct {
	// ID optionally names the run; a UUID is generated otherwise
	ID string `json:"id,omitempty"`

	Dataset  string   `json:"dataset,omitempty"`
	Elements []string `json:"elements,omitempty"`

	Algorithms  string `json:"algorithms,omitempty"`
	Simulations int    `json:"simulations,omitempty"`
	MinPow      *int   `json:"min_pow,omitempty"`
	MaxPow      *int   `json:"max_pow,omitempty"`
	Seed        uint64 `json:"seed,omitempty"`
	Hash        string `json:"hash,omitempty"`
}

func (req ExperimentRequest) config(defaults experiment.Config) (experiment.Config, error) {
	cfg := defaults

	if req.Algorithms != "" {
		algorithms, err := experiment.ParseAlgorithms(req.Algorithms)
		if err != nil {
			return cfg, err
		}
		cfg.Algorithms = algorithms
	}
	if req.Simulations != 0 {
		cfg.Simulations = req.Simulations
	}
	if req.MinPow != nil {
		cfg.MinPow = *req.MinPow
	}
	if req.MaxPow != nil {
		cfg.MaxPow = *req.MaxPow
	}
	if req.Hash != "" {
		kind, err := hashing.ParseKind(req.Hash)
		if err != nil {
			return cfg, err
		}
		cfg.Hash = kind
	}
	cfg.Seed = req.Seed

	return cfg, nil
}

// runExperiment runs an experiment synchronously and stores the result.
// POST /api/v1/experiments
func (s *Server) runExperiment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req ExperimentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.ID != "" {
		if err := models.ValidateRunID(req.ID); err != nil {
			s.respondErr(w, err)
			return
		}
	}

	cfg, err := req.config(s.defaults)
	if err != nil {
		s.respondErr(w, err)
		return
	}

	elements, err := s.resolveCorpus(req.Dataset, req.Elements)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	dataset := req.Dataset
	if dataset == "" {
		dataset = inlineDataset
	}

	runner, err := experiment.NewRunner(cfg, s.logger)
	if err != nil {
		s.respondErr(w, err)
		return
	}

	run, err := runner.Run(ctx, dataset, elements)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	if req.ID != "" {
		run.ID = req.ID
	}

	if err := s.store.SaveRun(ctx, run); err != nil {
		s.respondErr(w, err)
		return
	}

	s.respondJSON(w, http.StatusCreated, run)
}

// listRuns returns stored run summaries, optionally filtered by dataset.
// Supports pagination via ?limit=N&offset=M query parameters.
func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	dataset := r.URL.Query().Get("dataset")
	params := parsePaginationParams(r)

	runs, err := s.store.ListRuns(ctx, dataset)
	if err != nil {
		s.respondErr(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, paginateSlice(runs, params))
}

// getRun returns a stored run.
// GET /api/v1/runs/{id}
func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.store.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondErr(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, run)
}

// getRunReport renders a stored run as text, JSON or YAML.
// GET /api/v1/runs/{id}/report?format=text&verbose=true
func (s *Server) getRunReport(w http.ResponseWriter, r *http.Request) {
	format, err := report.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	run, err := s.store.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondErr(w, err)
		return
	}

	var buf bytes.Buffer
	opts := report.Options{Verbose: r.URL.Query().Get("verbose") == "true"}
	if err := report.Write(&buf, run, format, opts); err != nil {
		s.respondErr(w, err)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.WriteHeader(http.StatusOK)
	buf.WriteTo(w)
}

// deleteRun removes a stored run.
// DELETE /api/v1/runs/{id}
func (s *Server) deleteRun(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteRun(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.respondErr(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
