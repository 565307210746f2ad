package log

import (
	"fmt"
	stdlog "log"
	"os"
	"strings"
)

// Config declares a logger the way the server builds it from flags and env.
type Config struct {
	Level  string   `json:"level" yaml:"level"`
	Format string   `json:"format" yaml:"format"` // text|json
	Output string   `json:"output" yaml:"output"` // stderr|stdout|null|<file path>
	Redact []string `json:"redact" yaml:"redact"`
	// SampleInitial/SampleThereafter enable per-message sampling when Thereafter > 0.
	SampleInitial    int `json:"sampleInitial" yaml:"sampleInitial"`
	SampleThereafter int `json:"sampleThereafter" yaml:"sampleThereafter"`
}

// ParseLevel maps a case-insensitive name to a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DebugLevel, nil
	case "info", "":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	case "fatal":
		return FatalLevel, nil
	default:
		return InfoLevel, fmt.Errorf("unknown log level %q", s)
	}
}

// ApplyConfig builds a Logger from cfg.
func ApplyConfig(cfg *Config) (Logger, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	lvl, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	opts := []LoggerOption{WithLevel(lvl)}

	switch strings.ToLower(cfg.Format) {
	case "", "text":
		opts = append(opts, WithFormatter(&TextFormatter{}))
	case "json":
		opts = append(opts, WithFormatter(&JSONFormatter{}))
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}

	switch out := strings.TrimSpace(cfg.Output); out {
	case "", "stderr":
		opts = append(opts, WithOutput(NewConsoleOutput()))
	case "stdout":
		opts = append(opts, WithOutput(NewWriterOutput(os.Stdout)))
	case "null":
		opts = append(opts, WithOutput(NullOutput{}))
	default:
		f, err := os.OpenFile(out, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		opts = append(opts, WithOutput(NewWriterOutput(f)))
	}

	if len(cfg.Redact) > 0 {
		opts = append(opts, WithRedactions(cfg.Redact...))
	}
	if cfg.SampleThereafter > 0 {
		opts = append(opts, WithSampling(cfg.SampleInitial, cfg.SampleThereafter))
	}
	return NewLogger(opts...), nil
}

// stdWriter adapts the std logger to ours; each Write is one Info line.
type stdWriter struct{ l Logger }

func (w stdWriter) Write(p []byte) (int, error) {
	w.l.Info(strings.TrimRight(string(p), "\n"), Str("source", "stdlog"))
	return len(p), nil
}

// ToStdLogger returns a *log.Logger that writes through l.
func ToStdLogger(l Logger) *stdlog.Logger {
	return stdlog.New(stdWriter{l: l}, "", 0)
}

// RedirectStdLog points the standard library logger at l. Pebble and net/http
// report through it.
func RedirectStdLog(l Logger) {
	stdlog.SetFlags(0)
	stdlog.SetPrefix("")
	stdlog.SetOutput(stdWriter{l: l})
}
