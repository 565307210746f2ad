package grpcserver

import (
	"context"
	"time"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	logpkg "github.com/lwhguge-dot/Online-Education-Platform-sub001/pkg/log"
)

// ServiceName is the health service name reported next to the overall "".
const ServiceName = "edu.events.v1.EventLog"

// refreshHealth maps the runtime health check onto the gRPC health states.
func (s *Server) refreshHealth(ctx context.Context) {
	status := healthpb.HealthCheckResponse_SERVING
	if err := s.rt.CheckHealth(ctx); err != nil {
		status = healthpb.HealthCheckResponse_NOT_SERVING
		s.logger.Warn("health check failed", logpkg.Err(err))
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}

func (s *Server) watchHealth(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			cctx, cancel := context.WithTimeout(ctx, every)
			s.refreshHealth(cctx)
			cancel()
		}
	}
}
