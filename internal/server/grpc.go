package server

import (
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"camp-auth/backend/internal/health"
	healthhandler "camp-auth/backend/internal/health/handler"
)

// NewGRPCServer returns a gRPC server instrumented with otelgrpc and serving
// grpc.health.v1.Health from checker.
func NewGRPCServer(checker *health.Checker, opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{grpc.StatsHandler(otelgrpc.NewServerHandler())}, opts...)
	s := grpc.NewServer(opts...)
	RegisterServices(s, checker)
	return s
}

// RegisterServices registers every gRPC service with s.
//
// Proto → handler mapping:
//   - grpc.health.v1.Health → internal/health/handler
func RegisterServices(s grpc.ServiceRegistrar, checker *health.Checker) {
	healthpb.RegisterHealthServer(s, healthhandler.NewServer(checker))
}
