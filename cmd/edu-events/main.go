package main

import (
	"context"
	"fmt"
	"os"
	"time"

	clientcmd "github.com/lwhguge-dot/Online-Education-Platform-sub001/internal/cmd/client"
	serverrun "github.com/lwhguge-dot/Online-Education-Platform-sub001/internal/cmd/server"
	cfgpkg "github.com/lwhguge-dot/Online-Education-Platform-sub001/internal/config"
	pebblestore "github.com/lwhguge-dot/Online-Education-Platform-sub001/internal/storage/pebble"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "edu-events",
		Short: "Education platform event log",
		Long:  "edu-events runs the platform's event log with its consumers and serves the HTTP, WebSocket and gRPC endpoints. The other commands are clients of a running server.",
	}

	// server start
	serverCmd := &cobra.Command{Use: "server", Short: "Server commands"}
	serverStartCmd := &cobra.Command{
		Use:     "start",
		Short:   "Start the server (gRPC, HTTP and consumers)",
		Aliases: []string{"run"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			cfg, err := cfgpkg.Load(cfgPath)
			if err != nil {
				return err
			}
			cfgpkg.FromEnv(&cfg)

			flags := cmd.Flags()
			mode, err := applyFlags(flags, &cfg)
			if err != nil {
				return err
			}
			dataDir, _ := flags.GetString("data-dir")
			grpcAddr, _ := flags.GetString("grpc")
			httpAddr, _ := flags.GetString("http")

			if err := serverrun.Run(context.Background(), serverrun.Options{
				DataDir:  dataDir,
				GRPCAddr: grpcAddr,
				HTTPAddr: httpAddr,
				Fsync:    mode,
				Config:   cfg,
			}); err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			// brief delay to allow logs flush
			time.Sleep(100 * time.Millisecond)
			return nil
		},
	}
	serverStartCmd.Flags().String("config", os.Getenv("EDU_CONFIG"), "Config file (YAML or JSON)")
	serverStartCmd.Flags().String("data-dir", "", "Data directory (if not specified, uses config or the OS application data directory)")
	serverStartCmd.Flags().String("grpc", "", "gRPC listen address (default from config, :9090)")
	serverStartCmd.Flags().String("http", "", "HTTP listen address (default from config, :8080)")
	serverStartCmd.Flags().StringSlice("service", nil, "Services whose listeners run in this process (repeat or comma-separate)")
	serverStartCmd.Flags().Int("instance", 1, "Instance number used in consumer names")
	serverStartCmd.Flags().String("database-url", "", "PostgreSQL URL; empty keeps business data in memory")
	serverStartCmd.Flags().String("fsync", "", "Fsync mode: always|interval|never")
	serverStartCmd.Flags().String("log-level", "", "Log level: debug|info|warn|error")
	serverStartCmd.Flags().String("log-format", "", "Log format: text|json (default text)")
	serverCmd.AddCommand(serverStartCmd)
	rootCmd.AddCommand(serverCmd)

	// client commands
	for _, c := range clientcmd.NewRoot(apiURL).Commands() {
		rootCmd.AddCommand(c)
	}

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func apiURL() string {
	if v := os.Getenv("EDU_HTTP"); v != "" {
		return v
	}
	return "http://127.0.0.1:8080"
}

// applyFlags overlays explicitly set server flags on cfg and resolves the
// fsync mode.
func applyFlags(flags *pflag.FlagSet, cfg *cfgpkg.Config) (pebblestore.FsyncMode, error) {
	if flags.Changed("service") {
		cfg.Services, _ = flags.GetStringSlice("service")
	}
	if flags.Changed("instance") {
		cfg.Instance, _ = flags.GetInt("instance")
	}
	if flags.Changed("database-url") {
		cfg.DatabaseURL, _ = flags.GetString("database-url")
	}
	if flags.Changed("log-level") {
		cfg.Log.Level, _ = flags.GetString("log-level")
	}
	if flags.Changed("log-format") {
		cfg.Log.Format, _ = flags.GetString("log-format")
	}
	if flags.Changed("fsync") {
		cfg.Fsync, _ = flags.GetString("fsync")
	}
	mode, err := pebblestore.ParseFsyncMode(cfg.Fsync)
	if err != nil {
		return mode, fmt.Errorf("invalid --fsync: %w", err)
	}
	return mode, nil
}
