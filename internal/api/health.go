package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/dustin/go-humanize"
)

// HealthResponse reports server liveness along with what the server holds.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Uptime    string    `json:"uptime"`

	// Runs is the number of stored experiment runs, -1 when the store failed
	Runs         int    `json:"runs"`
	StorageError string `json:"storage_error,omitempty"`

	Corpora        int   `json:"corpora"`
	CorpusElements int   `json:"corpus_elements"`
	CorpusDropped  int64 `json:"corpus_dropped"`

	HeapInUse  string `json:"heap_in_use"`
	Goroutines int    `json:"goroutines"`
}

var startTime = time.Now()

// HandleHealth reports "ok", or "degraded" with 503 when the run store
// cannot be listed.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	resp := HealthResponse{
		Status:     "ok",
		Timestamp:  time.Now(),
		Uptime:     time.Since(startTime).Round(time.Second).String(),
		HeapInUse:  humanize.Bytes(m.HeapInuse),
		Goroutines: runtime.NumGoroutine(),
	}

	for _, info := range s.corpora.List() {
		resp.Corpora++
		resp.CorpusElements += info.Elements
		resp.CorpusDropped += info.Dropped
	}

	status := http.StatusOK
	runs, err := s.store.ListRuns(r.Context(), "")
	if err != nil {
		s.logger.Warn("health check could not list runs", "error", err)
		resp.Status = "degraded"
		resp.Runs = -1
		resp.StorageError = err.Error()
		status = http.StatusServiceUnavailable
	} else {
		resp.Runs = len(runs)
	}

	s.respondJSON(w, status, resp)
}
