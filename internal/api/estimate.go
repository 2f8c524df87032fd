package api

import (
	"fmt"
	"net/http"

	"github.com/fidde/cardinality_estimator/internal/experiment"
	"github.com/fidde/cardinality_estimator/pkg/hashing"
	"github.com/fidde/cardinality_estimator/pkg/stream"
)

// EstimateRequest asks for one estimator call over inline elements or a
// named corpus.
type EstimateRequest struct {
	Algorithm string   `json:"algorithm"`
	Parameter int      `json:"parameter"`
	Seed      uint64   `json:"seed,omitempty"`
	Hash      string   `json:"hash,omitempty"`
	Dataset   string   `json:"dataset,omitempty"`
	Elements  []string `json:"elements,omitempty"`
}

// EstimateResponse is the result of one estimator call.
type EstimateResponse struct {
	Algorithm     string  `json:"algorithm"`
	Parameter     int     `json:"parameter"`
	Estimate      float64 `json:"estimate"`
	ExactDistinct int     `json:"exact_distinct"`
	Elements      int     `json:"elements"`
	Seed          uint64  `json:"seed"`
	Hash          string  `json:"hash"`
}

// estimate runs a single estimator.
// POST /api/v1/estimate
func (s *Server) estimate(w http.ResponseWriter, r *http.Request) {
	var req EstimateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	algorithms, err := experiment.ParseAlgorithms(req.Algorithm)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	if len(algorithms) != 1 {
		s.respondError(w, http.StatusBadRequest, fmt.Sprintf("exactly one algorithm is required, got %q", req.Algorithm))
		return
	}
	algorithm := algorithms[0]

	kind, err := hashing.ParseKind(req.Hash)
	if err != nil {
		s.respondErr(w, err)
		return
	}

	elements, err := s.resolveCorpus(req.Dataset, req.Elements)
	if err != nil {
		s.respondErr(w, err)
		return
	}

	seed := hashing.NewSeeder(req.Seed).Next()
	family, err := hashing.New(kind, 1, seed)
	if err != nil {
		s.respondErr(w, err)
		return
	}

	estimate, err := algorithm.Estimate(elements.All(), req.Parameter, family)
	if err != nil {
		s.respondErr(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, EstimateResponse{
		Algorithm:     string(algorithm),
		Parameter:     req.Parameter,
		Estimate:      estimate,
		ExactDistinct: elements.Distinct(),
		Elements:      elements.Len(),
		Seed:          seed,
		Hash:          string(kind),
	})
}

// resolveCorpus returns the named corpus, or the inline elements when no
// name is given.
func (s *Server) resolveCorpus(dataset string, elements []string) (stream.Corpus, error) {
	if dataset != "" {
		return s.corpora.Get(dataset)
	}
	return stream.Corpus(elements), nil
}
