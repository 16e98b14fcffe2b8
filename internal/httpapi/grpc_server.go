package httpapi

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"

	"coursehub.org/internal/obs"
)

// HealthServiceName is the service name clients may query besides "".
const HealthServiceName = "coursehub.v1.API"

// HealthServer answers grpc.health.v1 checks from a store ping.
type HealthServer struct {
	healthpb.UnimplementedHealthServer

	pinger  Pinger
	timeout time.Duration
}

// NewHealthServer answers health checks from pinger; a nil pinger is always serving.
func NewHealthServer(pinger Pinger) *HealthServer {
	return &HealthServer{pinger: pinger, timeout: 2 * time.Second}
}

// Check reports SERVING when the store answers a ping.
func (s *HealthServer) Check(ctx context.Context, req *healthpb.HealthCheckRequest) (*healthpb.HealthCheckResponse, error) {
	switch req.GetService() {
	case "", HealthServiceName:
	default:
		return nil, status.Errorf(codes.NotFound, "unknown service %q", req.GetService())
	}
	if s.pinger != nil {
		ctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		if err := s.pinger.Ping(ctx); err != nil {
			obs.SetReady(false)
			return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_NOT_SERVING}, nil
		}
	}
	obs.SetReady(true)
	return &healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_SERVING}, nil
}

// NewGRPCServer builds the gRPC server exposing health and reflection.
func NewGRPCServer(pinger Pinger, opts ...grpc.ServerOption) *grpc.Server {
	srv := grpc.NewServer(opts...)
	healthpb.RegisterHealthServer(srv, NewHealthServer(pinger))
	reflection.Register(srv)
	return srv
}
