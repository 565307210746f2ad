// Package serverrun exposes the Run entrypoint used by the CLI to start the
// runtime with its gRPC and HTTP servers and to shut them down in order.
//
// Example:
//
//	cfg, _ := config.Load("edu-events.yaml")
//	config.FromEnv(&cfg)
//	_ = serverrun.Run(ctx, serverrun.Options{Config: cfg})
package serverrun
