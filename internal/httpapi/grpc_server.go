package httpapi

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"staffroster.org/internal/obs"
)

// GRPCServer implements grpc.health.v1.Health backed by the same readiness
// probe as /readyz. The empty service name and serviceName are known.
type GRPCServer struct {
	healthpb.UnimplementedHealthServer

	readiness ReadinessChecker
}

// NewGRPCServer creates the gRPC service wrapper.
func NewGRPCServer(r ReadinessChecker) *GRPCServer {
	if r == nil {
		r = PingFunc(nil)
	}
	return &GRPCServer{readiness: r}
}

// Register attaches the health service to srv.
func (s *GRPCServer) Register(srv *grpc.Server) {
	healthpb.RegisterHealthServer(srv, s)
}

// Check evaluates readiness. A failing probe reports NOT_SERVING.
func (s *GRPCServer) Check(ctx context.Context, req *healthpb.HealthCheckRequest) (*healthpb.HealthCheckResponse, error) {
	switch req.GetService() {
	case "", serviceName:
	default:
		return nil, status.Errorf(codes.NotFound, "unknown service %q", req.GetService())
	}
	return &healthpb.HealthCheckResponse{Status: s.probe(ctx)}, nil
}

// List reports the status of every known service.
func (s *GRPCServer) List(ctx context.Context, _ *healthpb.HealthListRequest) (*healthpb.HealthListResponse, error) {
	st := s.probe(ctx)
	return &healthpb.HealthListResponse{
		Statuses: map[string]*healthpb.HealthCheckResponse{
			"":          {Status: st},
			serviceName: {Status: st},
		},
	}, nil
}

func (s *GRPCServer) probe(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	if err := s.readiness.Check(ctx); err != nil {
		obs.SetReady(false)
		obs.Logger().Warn().Err(err).Msg("grpc readiness check failed")
		return healthpb.HealthCheckResponse_NOT_SERVING
	}
	obs.SetReady(true)
	return healthpb.HealthCheckResponse_SERVING
}
