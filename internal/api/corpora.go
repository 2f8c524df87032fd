package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fidde/cardinality_estimator/internal/corpus"
	"github.com/fidde/cardinality_estimator/pkg/stream"
)

// listCorpora returns every corpus without its elements.
// GET /api/v1/corpora
func (s *Server) listCorpora(w http.ResponseWriter, r *http.Request) {
	infos := s.corpora.List()

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"corpora": infos,
		"total":   len(infos),
	})
}

// getCorpus returns one corpus description.
// GET /api/v1/corpora/{name}
func (s *Server) getCorpus(w http.ResponseWriter, r *http.Request) {
	info, err := s.corpora.Info(chi.URLParam(r, "name"))
	if err != nil {
		s.respondErr(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, info)
}

// putCorpus replaces a corpus with the request body, one element per line.
// PUT /api/v1/corpora/{name}
func (s *Server) putCorpus(w http.ResponseWriter, r *http.Request) {
	s.writeCorpus(w, r, true)
}

// appendCorpus adds the request body lines to a corpus.
// POST /api/v1/corpora/{name}
func (s *Server) appendCorpus(w http.ResponseWriter, r *http.Request) {
	s.writeCorpus(w, r, false)
}

func (s *Server) writeCorpus(w http.ResponseWriter, r *http.Request, replace bool) {
	name := chi.URLParam(r, "name")

	elements, err := stream.Load(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "Invalid corpus body: "+err.Error())
		return
	}

	var accepted int
	if replace {
		accepted, err = s.corpora.Replace(name, elements)
	} else {
		accepted, err = s.corpora.Append(name, elements...)
	}
	if err != nil {
		s.respondErr(w, err)
		return
	}

	info, err := s.corpora.Info(name)
	if err != nil {
		s.respondErr(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, struct {
		corpus.Info
		Accepted int `json:"accepted"`
	}{info, accepted})
}

// deleteCorpus removes a corpus.
// DELETE /api/v1/corpora/{name}
func (s *Server) deleteCorpus(w http.ResponseWriter, r *http.Request) {
	if err := s.corpora.Delete(chi.URLParam(r, "name")); err != nil {
		s.respondErr(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
