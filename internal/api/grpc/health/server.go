package health

import (
	"context"
	"errors"
	"fmt"
	"net"

	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/oshokin/panic-button/internal/logger"
)

// Health service names.
const (
	// ServiceOverall is the dispatcher as a whole.
	ServiceOverall = ""
	// ServiceConnection is the button connection supervisor.
	ServiceConnection = "connection"
	// ServiceHeartbeat is the status ping.
	ServiceHeartbeat = "heartbeat"
)

// Server exposes grpc.health.v1.Health.
type Server struct {
	// grpcServer hosts the health service.
	grpcServer *grpc.Server
	// health keeps the per-service statuses.
	health *grpchealth.Server
}

// NewServer creates a server with every known service NOT_SERVING.
func NewServer() *Server {
	s := &Server{
		grpcServer: grpc.NewServer(),
		health:     grpchealth.NewServer(),
	}

	healthpb.RegisterHealthServer(s.grpcServer, s.health)

	for _, service := range []string{ServiceOverall, ServiceConnection, ServiceHeartbeat} {
		s.health.SetServingStatus(service, healthpb.HealthCheckResponse_NOT_SERVING)
	}

	return s
}

// SetServing updates the status of a service.
func (s *Server) SetServing(service string, serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}

	s.health.SetServingStatus(service, status)
}

// Shutdown marks every service NOT_SERVING; later updates are ignored.
func (s *Server) Shutdown() {
	s.health.Shutdown()
}

// ListenAndServe listens on address and serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, address string) error {
	lc := net.ListenConfig{}

	lis, err := lc.Listen(ctx, "tcp", address)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", address, err)
	}

	return s.Serve(ctx, lis)
}

// Serve serves on lis until ctx is done, then stops gracefully.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	logger.InfoKV(ctx, "Health server listening", "listen_address", lis.Addr().String())

	// Done channel is closed after GracefulStop finishes to ensure we block
	// until the server fully stops before returning.
	done := make(chan struct{})

	go func() {
		<-ctx.Done()
		s.health.Shutdown()
		s.grpcServer.GracefulStop()
		close(done)
	}()

	if err := s.grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("serve gRPC: %w", err)
	}

	<-done
	logger.Info(ctx, "Health server stopped")

	return nil
}
