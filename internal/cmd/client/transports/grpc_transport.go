// Package transports provides the ways the CLI reaches a running server.
package transports

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// GrpcHealth probes the standard gRPC health service.
type GrpcHealth struct {
	dial func(ctx context.Context) (*grpc.ClientConn, error)
}

// NewGrpcHealth constructs a prober using the provided dialer.
func NewGrpcHealth(dial func(ctx context.Context) (*grpc.ClientConn, error)) *GrpcHealth {
	return &GrpcHealth{dial: dial}
}

// DialInsecure returns a dialer for addr with plaintext transport, for
// local and in-cluster use.
func DialInsecure(addr string) func(ctx context.Context) (*grpc.ClientConn, error) {
	return func(context.Context) (*grpc.ClientConn, error) {
		return grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	}
}

// Check returns the serving status of service ("" for the whole server).
func (h *GrpcHealth) Check(ctx context.Context, service string) (string, error) {
	conn, err := h.dial(ctx)
	if err != nil {
		return "", err
	}
	defer func() { _ = conn.Close() }()
	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return "", err
	}
	return resp.GetStatus().String(), nil
}
