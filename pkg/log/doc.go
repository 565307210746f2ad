// Package log is the structured logging facade shared by the edu-events binary.
//
// The Logger interface carries leveled methods and a small Field type. Records
// travel through log/slog via a bridge handler so third-party code that speaks
// slog (see BaseLogger.Slog) lands in the same formatter and outputs.
//
//	l := log.NewLogger(
//	    log.WithLevel(log.InfoLevel),
//	    log.WithFormatter(&log.TextFormatter{}),
//	    log.WithOutput(log.NewConsoleOutput()),
//	)
//	l = l.With(log.Component("dispatch"), log.Str("service", "user-service"))
//	l.Info("container started", log.Int("registrations", 4))
//
// ApplyConfig builds a logger from a declarative Config (level, text|json,
// output, redacted keys, sampling). RedirectStdLog routes the standard library
// logger, which Pebble writes to, into the same pipeline.
package log
