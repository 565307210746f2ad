package client

import (
	"fmt"

	transports "github.com/lwhguge-dot/Online-Education-Platform-sub001/internal/cmd/client/transports"
	grpcserver "github.com/lwhguge-dot/Online-Education-Platform-sub001/internal/server/grpc"
	"github.com/spf13/cobra"
)

// NewHealthCommand constructs the `health` command. It probes the gRPC
// health service at EDU_GRPC unless --addr is given.
func NewHealthCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check server health over gRPC",
		RunE: func(cmd *cobra.Command, _ []string) error {
			addr, _ := cmd.Flags().GetString("addr")
			if addr == "" {
				addr = grpcAddrFromEnv()
			}
			status, err := transports.NewGrpcHealth(transports.DialInsecure(addr)).Check(cmd.Context(), grpcserver.ServiceName)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "status:", status)
			if status != "SERVING" {
				return fmt.Errorf("server is %s", status)
			}
			return nil
		},
	}
	cmd.Flags().String("addr", "", "gRPC address (default $EDU_GRPC or 127.0.0.1:9090)")
	return cmd
}
