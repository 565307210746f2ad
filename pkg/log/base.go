package log

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"time"
)

// exit is swapped in tests.
var exit = os.Exit

func (l *BaseLogger) enabled(level Level) bool {
	return Level(l.level.Load()) <= level
}

func (l *BaseLogger) log(level Level, msg string, attrs []slog.Attr) {
	if !l.enabled(level) {
		return
	}
	var pcs [1]uintptr
	// skip runtime.Callers, log, and the public method
	runtime.Callers(3, pcs[:])
	r := slog.NewRecord(time.Now(), toSlogLevel(level), msg, pcs[0])
	r.AddAttrs(attrs...)
	if level == FatalLevel {
		r.AddAttrs(slog.String("fatal", "true"))
	}
	_ = l.handler.Handle(context.Background(), r)
	if level == FatalLevel {
		exit(1)
	}
}

func (l *BaseLogger) Debug(msg string, fields ...Field) {
	l.log(DebugLevel, msg, attrsFromFieldSlice(fields))
}
func (l *BaseLogger) Info(msg string, fields ...Field) {
	l.log(InfoLevel, msg, attrsFromFieldSlice(fields))
}
func (l *BaseLogger) Warn(msg string, fields ...Field) {
	l.log(WarnLevel, msg, attrsFromFieldSlice(fields))
}
func (l *BaseLogger) Error(msg string, fields ...Field) {
	l.log(ErrorLevel, msg, attrsFromFieldSlice(fields))
}
func (l *BaseLogger) Fatal(msg string, fields ...Field) {
	l.log(FatalLevel, msg, attrsFromFieldSlice(fields))
}

func (l *BaseLogger) Debugf(msg string, args ...interface{}) {
	l.log(DebugLevel, fmt.Sprintf(msg, args...), nil)
}
func (l *BaseLogger) Infof(msg string, args ...interface{}) {
	l.log(InfoLevel, fmt.Sprintf(msg, args...), nil)
}
func (l *BaseLogger) Warnf(msg string, args ...interface{}) {
	l.log(WarnLevel, fmt.Sprintf(msg, args...), nil)
}
func (l *BaseLogger) Errorf(msg string, args ...interface{}) {
	l.log(ErrorLevel, fmt.Sprintf(msg, args...), nil)
}
func (l *BaseLogger) Fatalf(msg string, args ...interface{}) {
	l.log(FatalLevel, fmt.Sprintf(msg, args...), nil)
}

// child returns a shallow copy sharing level, formatter and outputs.
func (l *BaseLogger) child(attrs []slog.Attr) *BaseLogger {
	c := *l
	if len(attrs) > 0 {
		c.handler = l.handler.WithAttrs(attrs)
	}
	return &c
}

func (l *BaseLogger) WithField(key string, value interface{}) Logger {
	return l.child([]slog.Attr{slog.Any(key, value)})
}

func (l *BaseLogger) WithFields(fields Fields) Logger {
	return l.child(attrsFromMap(fields))
}

func (l *BaseLogger) WithError(err error) Logger {
	if err == nil {
		return l
	}
	return l.child([]slog.Attr{slog.String("error", err.Error())})
}

func (l *BaseLogger) With(fields ...Field) Logger {
	return l.child(attrsFromFieldSlice(fields))
}

func (l *BaseLogger) WithContext(ctx context.Context) Logger {
	return l.child(attrsFromMap(ContextExtractor(ctx)))
}

func (l *BaseLogger) WithComponent(component string) Logger {
	return l.child([]slog.Attr{slog.String(ComponentKey, component)})
}

func (l *BaseLogger) SetLevel(level Level) { l.level.Store(int32(level)) }

func (l *BaseLogger) GetLevel() Level { return Level(l.level.Load()) }

// Slog returns a *slog.Logger writing through the same pipeline, for libraries
// that accept one.
func (l *BaseLogger) Slog() *slog.Logger { return slog.New(l.handler) }
