// Package grpcserver hosts the gRPC endpoint: the standard health service,
// kept in sync with the runtime health check, and server reflection.
//
// Example:
//
//	s := grpcserver.New(rt, logger)
//	_ = s.ListenAndServe(ctx, ":9090")
package grpcserver
