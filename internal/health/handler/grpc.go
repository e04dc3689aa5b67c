package handler

import (
	"context"

	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"camp-auth/backend/internal/health"
)

// ServiceName is the name reported by Check besides the overall "" service.
const ServiceName = "camp.auth.v1.Auth"

// Server implements grpc.health.v1.Health for readiness. Watch and List are not supported.
type Server struct {
	healthpb.UnimplementedHealthServer
	checker *health.Checker
}

// NewServer returns a new Health gRPC server.
func NewServer(checker *health.Checker) *Server {
	return &Server{checker: checker}
}

// Check returns SERVING when the store is reachable. A failed probe is reported as
// NOT_SERVING, not as an RPC error.
func (s *Server) Check(ctx context.Context, req *healthpb.HealthCheckRequest) (*healthpb.HealthCheckResponse, error) {
	switch req.GetService() {
	case "", ServiceName:
	default:
		return nil, status.Errorf(codes.NotFound, "unknown service %q", req.GetService())
	}
	if err := s.checker.Ready(ctx); err != nil {
		return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_NOT_SERVING}, nil
	}
	return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_SERVING}, nil
}
