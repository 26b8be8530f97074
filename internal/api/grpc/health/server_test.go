package health

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// TestServer_Statuses serves toggled statuses over a real listener.
func TestServer_Statuses(t *testing.T) {
	t.Parallel()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	s := NewServer()
	done := make(chan error, 1)

	go func() {
		done <- s.Serve(ctx, lis)
	}()

	conn, err := grpc.NewClient(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)

	defer func() {
		_ = conn.Close()
	}()

	client := healthpb.NewHealthClient(conn)

	check := func(service string) healthpb.HealthCheckResponse_ServingStatus {
		resp, checkErr := client.Check(t.Context(), &healthpb.HealthCheckRequest{Service: service})
		require.NoError(t, checkErr)

		return resp.GetStatus()
	}

	require.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(ServiceOverall))

	s.SetServing(ServiceOverall, true)
	s.SetServing(ServiceConnection, true)

	require.Equal(t, healthpb.HealthCheckResponse_SERVING, check(ServiceOverall))
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, check(ServiceConnection))
	require.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(ServiceHeartbeat))

	s.Shutdown()
	require.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(ServiceOverall))

	cancel()
	require.NoError(t, <-done)
}
