package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultDataDirXDG(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/custom/data")
	if got := DefaultDataDir(); got != "/custom/data/edu-events" {
		t.Fatalf("got %s", got)
	}
}

func TestDefaultDataDirNoHome(t *testing.T) {
	t.Setenv("HOME", "")
	os.Unsetenv("HOME")
	if got := DefaultDataDir(); got != "./data" {
		t.Fatalf("expected fallback to ./data, got %s", got)
	}
}

func TestIsDir(t *testing.T) {
	tests := []struct {
		name string
		path string
		want bool
	}{
		{"existing directory", ".", true},
		{"missing path", "/non/existent/path/that/does/not/exist", false},
		{"file", os.Args[0], false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isDir(tt.path); got != tt.want {
				t.Fatalf("isDir(%s) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestDefaultDataDirShape(t *testing.T) {
	got := DefaultDataDir()
	if !filepath.IsAbs(got) && !strings.HasPrefix(got, "./") {
		t.Fatalf("want absolute path or ./ prefix, got %s", got)
	}
	base := strings.ToLower(filepath.Base(got))
	if got != "./data" && !strings.Contains(strings.ReplaceAll(base, "-", ""), "eduevents") {
		t.Fatalf("unexpected data dir %s", got)
	}
	if got != DefaultDataDir() {
		t.Fatalf("DefaultDataDir is not stable")
	}
}
