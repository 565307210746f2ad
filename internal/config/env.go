package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// FromEnv overlays EDU_* environment variables onto cfg. Unparsable values
// are ignored.
func FromEnv(cfg *Config) {
	if v := os.Getenv("EDU_SERVICES"); v != "" {
		cfg.Services = splitList(v)
	}
	envInt("EDU_INSTANCE", &cfg.Instance)
	envStr("EDU_DATA_DIR", &cfg.DataDir)
	envStr("EDU_FSYNC", &cfg.Fsync)
	envStr("EDU_HTTP_ADDR", &cfg.HTTPAddr)
	envStr("EDU_GRPC_ADDR", &cfg.GRPCAddr)
	envStr("EDU_DATABASE_URL", &cfg.DatabaseURL)
	envStr("EDU_COURSE_URL", &cfg.Peers.CourseURL)
	envStr("EDU_AUTH_URL", &cfg.Peers.AuthURL)
	envStr("EDU_JWT_SECRET", &cfg.Peers.JWTSecret)
	envDur("EDU_PEER_TIMEOUT", &cfg.Peers.Timeout)

	envDur("EDU_DISPATCH_POLL_TIMEOUT", &cfg.Dispatch.PollTimeout)
	envInt("EDU_DISPATCH_BATCH_SIZE", &cfg.Dispatch.BatchSize)
	envInt("EDU_DISPATCH_WORKERS", &cfg.Dispatch.Workers)
	envDur("EDU_DISPATCH_CLAIM_INTERVAL", &cfg.Dispatch.ClaimInterval)
	envDur("EDU_DISPATCH_MIN_IDLE", &cfg.Dispatch.MinIdle)
	envInt("EDU_DISPATCH_MAX_DELIVERIES", &cfg.Dispatch.MaxDeliveries)
	envDur("EDU_DISPATCH_CONSUMER_TTL", &cfg.Dispatch.ConsumerTTL)
	if v := os.Getenv("EDU_DISPATCH_DEDUP"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Dispatch.Dedup = b
		}
	}
	envDur("EDU_DISPATCH_DEDUP_TTL", &cfg.Dispatch.DedupTTL)

	envDur("EDU_OUTBOX_INTERVAL", &cfg.Outbox.Interval)
	envInt("EDU_OUTBOX_BATCH_SIZE", &cfg.Outbox.BatchSize)
	envDur("EDU_WS_AUTH_TIMEOUT", &cfg.WebSocket.AuthTimeout)
	envStr("EDU_LOG_LEVEL", &cfg.Log.Level)
	envStr("EDU_LOG_FORMAT", &cfg.Log.Format)

	if v := os.Getenv("EDU_FALLBACK_TEACHER_ID"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.FallbackTeacherID = n
		}
	}
}

func envStr(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envDur(key string, dst *Duration) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = Duration(d)
		}
	}
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
