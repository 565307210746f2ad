package log

import "time"

// Field is a single structured key/value attached to a log line.
type Field struct {
	Key   string
	Value interface{}
}

func Str(key, value string) Field { return Field{Key: key, Value: value} }

func Int(key string, value int) Field { return Field{Key: key, Value: value} }

func Int64(key string, value int64) Field { return Field{Key: key, Value: value} }

func Uint64(key string, value uint64) Field { return Field{Key: key, Value: value} }

func Bool(key string, value bool) Field { return Field{Key: key, Value: value} }

func Any(key string, value interface{}) Field { return Field{Key: key, Value: value} }

// Dur renders durations with their String form so text and json output agree.
func Dur(key string, value time.Duration) Field { return Field{Key: key, Value: value.String()} }

// Err attaches err under "error". A nil error yields an empty string.
func Err(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: ""}
	}
	return Field{Key: "error", Value: err.Error()}
}

// Component tags the line with the emitting component.
func Component(name string) Field { return Field{Key: ComponentKey, Value: name} }
