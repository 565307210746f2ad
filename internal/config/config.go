package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	logpkg "github.com/lwhguge-dot/Online-Education-Platform-sub001/pkg/log"
)

// Config is the top-level configuration loaded from file/env.
type Config struct {
	// Services lists the services whose listeners this process hosts.
	Services []string `json:"services" yaml:"services"`
	// Instance numbers this process among replicas of the same services.
	Instance int `json:"instance" yaml:"instance"`

	DataDir     string `json:"dataDir" yaml:"dataDir"`
	Fsync       string `json:"fsync" yaml:"fsync"` // always|interval|never
	HTTPAddr    string `json:"httpAddr" yaml:"httpAddr"`
	GRPCAddr    string `json:"grpcAddr" yaml:"grpcAddr"`
	DatabaseURL string `json:"databaseUrl" yaml:"databaseUrl"`

	Peers     Peers         `json:"peers" yaml:"peers"`
	Dispatch  Dispatch      `json:"dispatch" yaml:"dispatch"`
	Outbox    Outbox        `json:"outbox" yaml:"outbox"`
	WebSocket WebSocket     `json:"websocket" yaml:"websocket"`
	Log       logpkg.Config `json:"log" yaml:"log"`

	// FallbackTeacherID receives submission notifications when the course
	// lookup fails. Zero drops them.
	FallbackTeacherID int64 `json:"fallbackTeacherId" yaml:"fallbackTeacherId"`
	// Filters maps event names to CEL subscription filters.
	Filters map[string]string `json:"filters" yaml:"filters"`
}

// Peers locates neighbouring services.
type Peers struct {
	CourseURL string   `json:"courseUrl" yaml:"courseUrl"`
	AuthURL   string   `json:"authUrl" yaml:"authUrl"`
	Timeout   Duration `json:"timeout" yaml:"timeout"`
	// JWTSecret is the HMAC key shared with the user service. When set,
	// websocket tokens are verified locally before the session check.
	JWTSecret string `json:"jwtSecret" yaml:"jwtSecret"`
}

// Dispatch tunes the dispatch container and its reaper.
type Dispatch struct {
	PollTimeout   Duration `json:"pollTimeout" yaml:"pollTimeout"`
	BatchSize     int      `json:"batchSize" yaml:"batchSize"`
	Workers       int      `json:"workers" yaml:"workers"` // 0 = per registration, 1..8
	ClaimInterval Duration `json:"claimInterval" yaml:"claimInterval"`
	MinIdle       Duration `json:"minIdle" yaml:"minIdle"`
	MaxDeliveries int      `json:"maxDeliveries" yaml:"maxDeliveries"`
	ConsumerTTL   Duration `json:"consumerTtl" yaml:"consumerTtl"`
	Dedup         bool     `json:"dedup" yaml:"dedup"`
	DedupTTL      Duration `json:"dedupTtl" yaml:"dedupTtl"`
}

// Outbox tunes the outbox relay.
type Outbox struct {
	Interval  Duration `json:"interval" yaml:"interval"`
	BatchSize int      `json:"batchSize" yaml:"batchSize"`
}

// WebSocket tunes live sessions.
type WebSocket struct {
	AuthTimeout Duration `json:"authTimeout" yaml:"authTimeout"`
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		Services: []string{"user-service", "homework-service"},
		Instance: 1,
		Fsync:    "always",
		HTTPAddr: ":8080",
		GRPCAddr: ":9090",
		Peers: Peers{
			CourseURL: "http://course-service:8080",
			AuthURL:   "http://user-service:8080",
			Timeout:   Duration(3 * time.Second),
		},
		Dispatch: Dispatch{
			PollTimeout:   Duration(2 * time.Second),
			BatchSize:     10,
			ClaimInterval: Duration(5 * time.Second),
			MinIdle:       Duration(30 * time.Second),
			MaxDeliveries: 16,
			ConsumerTTL:   Duration(15 * time.Second),
			Dedup:         true,
			DedupTTL:      Duration(24 * time.Hour),
		},
		Outbox:    Outbox{Interval: Duration(time.Second), BatchSize: 100},
		WebSocket: WebSocket{AuthTimeout: Duration(5 * time.Second)},
		Log:       logpkg.Config{Level: "info", Format: "text"},
	}
}

// Load reads configuration from a JSON or YAML file (by extension) on top of
// the defaults. If path is empty, returns defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &cfg)
	default:
		err = json.Unmarshal(b, &cfg)
	}
	if err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Duration is a time.Duration written as "2s", "500ms" or a number of
// nanoseconds.
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d Duration) MarshalJSON() ([]byte, error) { return json.Marshal(d.String()) }

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch x := v.(type) {
	case float64:
		*d = Duration(x)
		return nil
	case string:
		return d.parse(x)
	}
	return fmt.Errorf("invalid duration %s", b)
}

func (d Duration) MarshalYAML() (any, error) { return d.String(), nil }

func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	var s string
	if err := n.Decode(&s); err != nil {
		return err
	}
	return d.parse(s)
}

func (d *Duration) parse(s string) error {
	v, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}
