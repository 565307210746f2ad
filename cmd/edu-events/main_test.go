package main

import (
	"testing"

	cfgpkg "github.com/lwhguge-dot/Online-Education-Platform-sub001/internal/config"
	pebblestore "github.com/lwhguge-dot/Online-Education-Platform-sub001/internal/storage/pebble"
	"github.com/spf13/pflag"
)

func serverFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("start", pflag.ContinueOnError)
	fs.StringSlice("service", nil, "")
	fs.Int("instance", 1, "")
	fs.String("database-url", "", "")
	fs.String("log-level", "", "")
	fs.String("log-format", "", "")
	fs.String("fsync", "", "")
	return fs
}

func TestApplyFlags(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantSvc  int
		wantMode pebblestore.FsyncMode
		wantErr  bool
	}{
		{"defaults keep config", nil, 2, pebblestore.FsyncModeAlways, false},
		{"service override", []string{"--service", "user-service"}, 1, pebblestore.FsyncModeAlways, false},
		{"fsync never", []string{"--fsync", "never"}, 2, pebblestore.FsyncModeNever, false},
		{"bad fsync", []string{"--fsync", "sometimes"}, 0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := cfgpkg.Default()
			cfg.Services = []string{"user-service", "homework-service"}
			fs := serverFlags()
			if err := fs.Parse(tt.args); err != nil {
				t.Fatalf("parse: %v", err)
			}
			mode, err := applyFlags(fs, &cfg)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("applyFlags: %v", err)
			}
			if len(cfg.Services) != tt.wantSvc || mode != tt.wantMode {
				t.Fatalf("services=%v mode=%v", cfg.Services, mode)
			}
		})
	}
}

func TestApplyFlagsInstanceAndLog(t *testing.T) {
	cfg := cfgpkg.Default()
	fs := serverFlags()
	_ = fs.Parse([]string{"--instance", "3", "--log-level", "debug", "--log-format", "json"})
	if _, err := applyFlags(fs, &cfg); err != nil {
		t.Fatalf("applyFlags: %v", err)
	}
	if cfg.Instance != 3 || cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Fatalf("cfg = %+v", cfg)
	}
}
