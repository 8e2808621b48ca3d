package server

import (
	"context"
	"fmt"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthService is the service name reported by the health endpoint.
const HealthService = "kuri.v1.CheckService"

// HealthServer serves the standard gRPC health protocol next to the
// Connect handlers.
type HealthServer struct {
	grpc   *grpc.Server
	health *health.Server
}

// NewHealthServer creates a health server reporting every service as
// serving.
func NewHealthServer() *HealthServer {
	h := &HealthServer{
		grpc:   grpc.NewServer(),
		health: health.NewServer(),
	}
	healthpb.RegisterHealthServer(h.grpc, h.health)
	h.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	h.health.SetServingStatus(HealthService, healthpb.HealthCheckResponse_SERVING)
	return h
}

// Serve blocks serving health checks on lis.
func (h *HealthServer) Serve(lis net.Listener) error {
	return h.grpc.Serve(lis)
}

// Stop marks every service as not serving and stops the gRPC server.
func (h *HealthServer) Stop() {
	h.health.Shutdown()
	h.grpc.GracefulStop()
}

// CheckHealth queries the health endpoint at addr and returns the status
// of the check service.
func CheckHealth(ctx context.Context, addr string) (healthpb.HealthCheckResponse_ServingStatus, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, fmt.Errorf("connecting to %s: %w", addr, err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: HealthService})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, fmt.Errorf("health check %s: %w", addr, err)
	}
	return resp.Status, nil
}
