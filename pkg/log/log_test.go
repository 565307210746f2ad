package log

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func newBufferLogger(t *testing.T, lvl Level, f Formatter) (Logger, *bytes.Buffer) {
	t.Helper()
	buf := &bytes.Buffer{}
	return NewLogger(WithLevel(lvl), WithFormatter(f), WithOutput(NewWriterOutput(buf))), buf
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", DebugLevel, false},
		{"INFO", InfoLevel, false},
		{"", InfoLevel, false},
		{"warning", WarnLevel, false},
		{"error", ErrorLevel, false},
		{"loud", InfoLevel, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err=%v wantErr=%v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Fatalf("got %v want %v", got, tt.want)
			}
		})
	}
}

func TestTextFormatterIncludesComponentAndFields(t *testing.T) {
	l, buf := newBufferLogger(t, DebugLevel, &TextFormatter{})
	l.With(Component("dispatch"), Str("stream", "stream:edu:chapter-completed")).Info("acked", Int("count", 2))
	out := buf.String()
	for _, want := range []string{"INFO", "[dispatch]", "acked", "count=2", "stream=stream:edu:chapter-completed"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in %q", want, out)
		}
	}
}

func TestLevelFiltering(t *testing.T) {
	l, buf := newBufferLogger(t, WarnLevel, &TextFormatter{})
	l.Info("hidden")
	l.Warn("shown")
	if strings.Contains(buf.String(), "hidden") {
		t.Fatalf("info line should be filtered: %q", buf.String())
	}
	if !strings.Contains(buf.String(), "shown") {
		t.Fatalf("warn line missing: %q", buf.String())
	}
	child := l.With(Str("k", "v"))
	child.SetLevel(DebugLevel)
	l.Debug("now visible")
	if !strings.Contains(buf.String(), "now visible") {
		t.Fatalf("level should be shared with children")
	}
}

func TestJSONFormatterAndRedaction(t *testing.T) {
	buf := &bytes.Buffer{}
	l := NewLogger(WithFormatter(&JSONFormatter{}), WithOutput(NewWriterOutput(buf)), WithRedactions("token"))
	l.Info("auth", Str("token", "secret"), Int64("user_id", 7))
	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("decode: %v (%q)", err, buf.String())
	}
	if m["token"] != "[REDACTED]" {
		t.Fatalf("token not redacted: %v", m["token"])
	}
	if m["msg"] != "auth" || m["level"] != "info" {
		t.Fatalf("unexpected entry: %v", m)
	}
}

func TestSampling(t *testing.T) {
	buf := &bytes.Buffer{}
	l := NewLogger(WithFormatter(&TextFormatter{}), WithOutput(NewWriterOutput(buf)), WithSampling(1, 3))
	for i := 0; i < 7; i++ {
		l.Info("poll")
	}
	// first one, then every third of the remaining six
	if got := strings.Count(buf.String(), "poll"); got != 3 {
		t.Fatalf("want 3 sampled lines, got %d", got)
	}
}

func TestWithContext(t *testing.T) {
	l, buf := newBufferLogger(t, InfoLevel, &TextFormatter{})
	ctx := ContextWith(context.Background(), EventIDKey, "e-1")
	l.WithContext(ctx).Info("handled")
	if !strings.Contains(buf.String(), "event_id=e-1") {
		t.Fatalf("context value missing: %q", buf.String())
	}
}

func TestFatalExits(t *testing.T) {
	code := 0
	orig := exit
	exit = func(c int) { code = c }
	t.Cleanup(func() { exit = orig })
	l, buf := newBufferLogger(t, InfoLevel, &TextFormatter{})
	l.Fatal("boom")
	if code != 1 {
		t.Fatalf("want exit code 1, got %d", code)
	}
	if !strings.Contains(buf.String(), "FATAL") {
		t.Fatalf("fatal level not rendered: %q", buf.String())
	}
}

func TestApplyConfigRejectsUnknownFormat(t *testing.T) {
	if _, err := ApplyConfig(&Config{Format: "xml"}); err == nil {
		t.Fatalf("expected error for unknown format")
	}
	l, err := ApplyConfig(&Config{Level: "debug", Format: "json", Output: "null"})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if l.GetLevel() != DebugLevel {
		t.Fatalf("level not applied")
	}
}
