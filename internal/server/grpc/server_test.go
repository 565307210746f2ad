package grpcserver

import (
	"context"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"

	cfgpkg "github.com/lwhguge-dot/Online-Education-Platform-sub001/internal/config"
	"github.com/lwhguge-dot/Online-Education-Platform-sub001/internal/runtime"
	pebblestore "github.com/lwhguge-dot/Online-Education-Platform-sub001/internal/storage/pebble"
	logpkg "github.com/lwhguge-dot/Online-Education-Platform-sub001/pkg/log"
)

const bufSize = 1 << 20

func dialer(s *grpc.Server) func(context.Context, string) (net.Conn, error) {
	lis := bufconn.Listen(bufSize)
	go func() { _ = s.Serve(lis) }()
	return func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }
}

func TestHealthOverGRPC(t *testing.T) {
	quiet := logpkg.NewLogger(logpkg.WithOutput(logpkg.NullOutput{}))
	cfg := cfgpkg.Default()
	cfg.Services = nil
	rt, err := runtime.Open(context.Background(), runtime.Options{DataDir: t.TempDir(), Fsync: pebblestore.FsyncModeAlways, Config: cfg, Logger: quiet})
	if err != nil {
		t.Fatalf("rt open: %v", err)
	}
	defer rt.Close()
	srv := New(rt, quiet)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, err := grpc.NewClient("passthrough:///bufnet", grpc.WithContextDialer(dialer(srv.grpc)), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	c := healthpb.NewHealthClient(conn)
	for _, svc := range []string{"", ServiceName} {
		res, err := c.Check(ctx, &healthpb.HealthCheckRequest{Service: svc})
		if err != nil {
			t.Fatalf("check %q: %v", svc, err)
		}
		if res.GetStatus() != healthpb.HealthCheckResponse_SERVING {
			t.Fatalf("check %q: %s", svc, res.GetStatus())
		}
	}
	if _, err := c.Check(ctx, &healthpb.HealthCheckRequest{Service: "unknown"}); err == nil {
		t.Fatalf("unknown service should fail")
	}
}
