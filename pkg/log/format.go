package log

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// TextFormatter renders `ts LEVEL [component] message key=value ...`.
type TextFormatter struct {
	// ShowCaller appends caller=file:line.
	ShowCaller bool
}

func (f *TextFormatter) Format(e *Entry) ([]byte, error) {
	var b bytes.Buffer
	b.WriteString(e.Timestamp.Format(timeLayout))
	b.WriteByte(' ')
	fmt.Fprintf(&b, "%-5s", e.Level.String())
	if c, ok := e.Fields[ComponentKey]; ok {
		fmt.Fprintf(&b, " [%v]", c)
	}
	b.WriteByte(' ')
	b.WriteString(e.Message)

	for _, k := range sortedKeys(e.Fields) {
		if k == ComponentKey {
			continue
		}
		b.WriteByte(' ')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(quoteIfNeeded(fmt.Sprint(e.Fields[k])))
	}
	if f.ShowCaller && e.Caller != "" {
		b.WriteString(" caller=")
		b.WriteString(e.Caller)
	}
	b.WriteByte('\n')
	return b.Bytes(), nil
}

// JSONFormatter renders one JSON object per line.
type JSONFormatter struct{}

func (f *JSONFormatter) Format(e *Entry) ([]byte, error) {
	m := make(map[string]interface{}, len(e.Fields)+4)
	for k, v := range e.Fields {
		if err, ok := v.(error); ok {
			v = err.Error()
		}
		m[k] = v
	}
	m["ts"] = e.Timestamp.UTC().Format(time.RFC3339Nano)
	m["level"] = strings.ToLower(e.Level.String())
	m["msg"] = e.Message
	if e.Caller != "" {
		m["caller"] = e.Caller
	}
	out, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return append(out, '\n'), nil
}

func sortedKeys(f Fields) []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func quoteIfNeeded(s string) string {
	if s == "" || strings.ContainsAny(s, " \t\n\"=") {
		return fmt.Sprintf("%q", s)
	}
	return s
}
