package grpc

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"toolrent-backend/internal/api/grpc/interceptor"
	"toolrent-backend/internal/logger"
	"toolrent-backend/internal/security"
)

// ServiceName is the health service name reported for the booking backend.
const ServiceName = "toolrent.Booking"

// OpsServer exposes health checking and reflection for the booking backend.
type OpsServer struct {
	Server *grpc.Server
	health *health.Server
}

func NewOpsServer(tm security.TokenManager) *OpsServer {
	auth := interceptor.NewAuthInterceptor(tm)
	s := grpc.NewServer(
		grpc.ChainUnaryInterceptor(interceptor.UnaryLogging(), auth.Unary()),
		grpc.ChainStreamInterceptor(interceptor.StreamLogging(), auth.Stream()),
	)

	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)

	// Register reflection service for grpcurl
	reflection.Register(s)

	return &OpsServer{Server: s, health: hs}
}

// SetServing flips both the overall and the booking service status.
func (o *OpsServer) SetServing(serving bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		st = healthpb.HealthCheckResponse_SERVING
	}
	o.health.SetServingStatus("", st)
	o.health.SetServingStatus(ServiceName, st)
}

// WatchDependencies probes ping every interval until ctx ends and mirrors the
// result into the health status.
func (o *OpsServer) WatchDependencies(ctx context.Context, interval time.Duration, ping func(context.Context) error) {
	probe := func() {
		pctx, cancel := context.WithTimeout(ctx, interval)
		defer cancel()
		err := ping(pctx)
		if err != nil {
			logger.Warn("Dependency health check failed", "error", err)
		}
		o.SetServing(err == nil)
	}

	probe()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			probe()
		}
	}
}

// Shutdown marks the server as not serving and stops it gracefully.
func (o *OpsServer) Shutdown() {
	o.health.Shutdown()
	o.Server.GracefulStop()
}
