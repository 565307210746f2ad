package client

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	transports "github.com/lwhguge-dot/Online-Education-Platform-sub001/internal/cmd/client/transports"
)

// BaseURLFunc provides the base HTTP API URL (e.g., from env or flag).
type BaseURLFunc func() string

// transportFor is swapped in tests.
var transportFor = func(baseURL BaseURLFunc) transports.EventsTransport {
	return transports.NewHTTPTransport(baseURL, nil)
}

// grpcAddrFromEnv returns the gRPC server address from EDU_GRPC or a default.
func grpcAddrFromEnv() string {
	if addr := os.Getenv("EDU_GRPC"); addr != "" {
		return addr
	}
	return "127.0.0.1:9090"
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// readData returns data as given, or the contents of the named file when it
// has the form "@path".
func readData(data string) ([]byte, error) {
	if len(data) > 1 && data[0] == '@' {
		b, err := os.ReadFile(data[1:])
		if err != nil {
			return nil, fmt.Errorf("read data file: %w", err)
		}
		return b, nil
	}
	return []byte(data), nil
}
