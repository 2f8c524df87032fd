package receiver

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	collogspb "go.opentelemetry.io/proto/otlp/collector/logs/v1"
	coltracepb "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

// maxBodyBytes bounds decompressed export requests.
const maxBodyBytes = 32 << 20

// HTTPReceiver handles OTLP HTTP requests.
type HTTPReceiver struct {
	ingester *Ingester
	logger   *slog.Logger
	server   *http.Server
}

// NewHTTPReceiver creates a new HTTP receiver.
func NewHTTPReceiver(addr string, ingester *Ingester, logger *slog.Logger) *HTTPReceiver {
	if logger == nil {
		logger = slog.Default()
	}

	r := &HTTPReceiver{
		ingester: ingester,
		logger:   logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/traces", r.handleTraces)
	mux.HandleFunc("/v1/logs", r.handleLogs)
	mux.HandleFunc("/health", r.handleHealth)

	r.server = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return r
}

// Handler returns the receiver's mux.
func (r *HTTPReceiver) Handler() http.Handler {
	return r.server.Handler
}

// Start starts the HTTP server.
func (r *HTTPReceiver) Start() error {
	return r.server.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (r *HTTPReceiver) Shutdown(ctx context.Context) error {
	return r.server.Shutdown(ctx)
}

// readBody reads the (optionally gzip-compressed) request body.
func readBody(req *http.Request) ([]byte, error) {
	defer req.Body.Close()

	var reader io.Reader = req.Body
	if req.Header.Get("Content-Encoding") == "gzip" {
		gr, err := gzip.NewReader(req.Body)
		if err != nil {
			return nil, fmt.Errorf("decompressing body: %w", err)
		}
		defer gr.Close()
		reader = gr
	}

	body, err := io.ReadAll(io.LimitReader(reader, maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}
	if len(body) > maxBodyBytes {
		return nil, fmt.Errorf("body exceeds %d bytes", maxBodyBytes)
	}
	return body, nil
}

// unmarshalExport tries protobuf first (default for OTLP), then JSON.
func unmarshalExport(body []byte, msg proto.Message) error {
	err := proto.Unmarshal(body, msg)
	if err == nil {
		return nil
	}

	unmarshaler := protojson.UnmarshalOptions{DiscardUnknown: true}
	if jsonErr := unmarshaler.Unmarshal(body, msg); jsonErr != nil {
		return fmt.Errorf("protobuf error: %v, json error: %v", err, jsonErr)
	}
	return nil
}

// handleTraces handles OTLP traces export requests.
func (r *HTTPReceiver) handleTraces(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := readBody(req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var exportReq coltracepb.ExportTraceServiceRequest
	if err := unmarshalExport(body, &exportReq); err != nil {
		r.logger.Warn("failed to parse traces request", "error", err, "bytes", len(body))
		http.Error(w, "Failed to parse request: "+err.Error(), http.StatusBadRequest)
		return
	}

	res := r.ingester.IngestTraces(&exportReq)
	r.logger.Debug("ingested traces", "accepted", res.Accepted, "rejected", res.Rejected, "skipped", res.Skipped)

	resp := &coltracepb.ExportTraceServiceResponse{}
	if res.Rejected > 0 {
		resp.PartialSuccess = &coltracepb.ExportTracePartialSuccess{
			RejectedSpans: int64(res.Rejected),
			ErrorMessage:  "corpus element limit reached",
		}
	}
	r.writeResponse(w, resp)
}

// handleLogs handles OTLP logs export requests.
func (r *HTTPReceiver) handleLogs(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := readBody(req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var exportReq collogspb.ExportLogsServiceRequest
	if err := unmarshalExport(body, &exportReq); err != nil {
		r.logger.Warn("failed to parse logs request", "error", err, "bytes", len(body))
		http.Error(w, "Failed to parse request: "+err.Error(), http.StatusBadRequest)
		return
	}

	res := r.ingester.IngestLogs(&exportReq)
	r.logger.Debug("ingested logs", "accepted", res.Accepted, "rejected", res.Rejected, "skipped", res.Skipped)

	resp := &collogspb.ExportLogsServiceResponse{}
	if res.Rejected > 0 {
		resp.PartialSuccess = &collogspb.ExportLogsPartialSuccess{
			RejectedLogRecords: int64(res.Rejected),
			ErrorMessage:       "corpus element limit reached",
		}
	}
	r.writeResponse(w, resp)
}

// handleHealth handles health check requests.
func (r *HTTPReceiver) handleHealth(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// writeResponse writes a protobuf response.
// OTLP always uses protobuf for responses.
func (r *HTTPReceiver) writeResponse(w http.ResponseWriter, resp proto.Message) {
	respBytes, err := proto.Marshal(resp)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to marshal response: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/x-protobuf")
	w.WriteHeader(http.StatusOK)
	w.Write(respBytes)
}
