package receiver

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	collogspb "go.opentelemetry.io/proto/otlp/collector/logs/v1"
	coltracepb "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"
)

// GRPCReceiver handles OTLP gRPC requests.
type GRPCReceiver struct {
	ingester *Ingester
	logger   *slog.Logger
	server   *grpc.Server
	addr     string
}

// NewGRPCReceiver creates a new gRPC receiver.
func NewGRPCReceiver(addr string, ingester *Ingester, logger *slog.Logger) *GRPCReceiver {
	if logger == nil {
		logger = slog.Default()
	}

	r := &GRPCReceiver{
		ingester: ingester,
		logger:   logger,
		server:   grpc.NewServer(),
		addr:     addr,
	}

	// Separate service types avoid the Export method name clash
	coltracepb.RegisterTraceServiceServer(r.server, &traceService{GRPCReceiver: r})
	collogspb.RegisterLogsServiceServer(r.server, &logsService{GRPCReceiver: r})

	// Register reflection service for debugging with grpcurl
	reflection.Register(r.server)

	return r
}

// Start listens on the configured address and serves until Shutdown.
func (r *GRPCReceiver) Start() error {
	lis, err := net.Listen("tcp", r.addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return r.Serve(lis)
}

// Serve serves on an existing listener.
func (r *GRPCReceiver) Serve(lis net.Listener) error {
	r.logger.Info("gRPC receiver listening", "addr", lis.Addr().String())
	return r.server.Serve(lis)
}

// Shutdown gracefully shuts down the gRPC server.
func (r *GRPCReceiver) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.server.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		r.server.Stop()
		return ctx.Err()
	}
}

// traceService implements the OTLP TraceService.
type traceService struct {
	coltracepb.UnimplementedTraceServiceServer
	*GRPCReceiver
}

// Export implements the TraceService Export RPC.
func (s *traceService) Export(ctx context.Context, req *coltracepb.ExportTraceServiceRequest) (*coltracepb.ExportTraceServiceResponse, error) {
	res := s.ingester.IngestTraces(req)

	resp := &coltracepb.ExportTraceServiceResponse{}
	if res.Rejected > 0 {
		resp.PartialSuccess = &coltracepb.ExportTracePartialSuccess{
			RejectedSpans: int64(res.Rejected),
			ErrorMessage:  "corpus element limit reached",
		}
	}
	return resp, nil
}

// logsService implements the OTLP LogsService.
type logsService struct {
	collogspb.UnimplementedLogsServiceServer
	*GRPCReceiver
}

// Export implements the LogsService Export RPC.
func (s *logsService) Export(ctx context.Context, req *collogspb.ExportLogsServiceRequest) (*collogspb.ExportLogsServiceResponse, error) {
	res := s.ingester.IngestLogs(req)

	resp := &collogspb.ExportLogsServiceResponse{}
	if res.Rejected > 0 {
		resp.PartialSuccess = &collogspb.ExportLogsPartialSuccess{
			RejectedLogRecords: int64(res.Rejected),
			ErrorMessage:       "corpus element limit reached",
		}
	}
	return resp, nil
}
