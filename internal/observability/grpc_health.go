package observability

import (
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// GRPCHealthServer exposes the standard grpc.health.v1 service so
// orchestrators can check the bot without HTTP
type GRPCHealthServer struct {
	server *grpc.Server
	health *health.Server
}

// NewGRPCHealthServer creates a health server that reports NOT_SERVING
// until SetServing(true) is called
func NewGRPCHealthServer() *GRPCHealthServer {
	s := grpc.NewServer()
	h := health.NewServer()
	h.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	h.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(s, h)

	return &GRPCHealthServer{server: s, health: h}
}

// SetServing flips the overall and per-service status
func (g *GRPCHealthServer) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	g.health.SetServingStatus("", status)
	g.health.SetServingStatus(ServiceName, status)
}

// Serve blocks serving on lis until Stop is called
func (g *GRPCHealthServer) Serve(lis net.Listener) error {
	return g.server.Serve(lis)
}

// Stop marks the service NOT_SERVING and drains open RPCs
func (g *GRPCHealthServer) Stop() {
	g.health.Shutdown()
	g.server.GracefulStop()
}
