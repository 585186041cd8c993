// Package grpcapi serves gRPC health and reflection for the captioning service.
package grpcapi

import (
	"context"
	"errors"
	"net"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"speech-caption-service/internal/observability"
	"speech-caption-service/internal/observability/logging"
	"speech-caption-service/internal/observability/metrics"
)

// ServiceName is the health service name reported for the captioning pipeline.
const ServiceName = "speech.caption.Pipeline"

// Server wraps a grpc.Server with health reporting.
type Server struct {
	grpc   *grpc.Server
	health *health.Server
	logger zerolog.Logger
}

// New creates a server with health and reflection registered. Both the
// overall and pipeline statuses start NOT_SERVING.
func New() *Server {
	g := grpc.NewServer(
		grpc.UnaryInterceptor(observability.UnaryServerInterceptor()),
		grpc.StreamInterceptor(observability.StreamServerInterceptor(metrics.DefaultMetrics)),
	)

	// Register gRPC health check service
	h := health.NewServer()
	grpc_health_v1.RegisterHealthServer(g, h)
	h.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	h.SetServingStatus(ServiceName, grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	// Enable gRPC reflection for debugging tools like grpcurl
	reflection.Register(g)

	return &Server{grpc: g, health: h, logger: logging.WithComponent("grpc")}
}

// SetServing updates both health statuses.
func (s *Server) SetServing(serving bool) {
	st := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if serving {
		st = grpc_health_v1.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ServiceName, st)
	s.logger.Info().Str("status", st.String()).Msg("Health status updated")
}

// Serve accepts connections on lis until ctx is done, then stops gracefully.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", lis.Addr().String()).Msg("gRPC server started")
		errCh <- s.grpc.Serve(lis)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return err
	case <-ctx.Done():
		s.logger.Info().Msg("Shutting down gRPC server")
		s.health.Shutdown()
		s.grpc.GracefulStop()
		return nil
	}
}
