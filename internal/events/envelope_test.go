package events

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestEnvelopeFieldsRoundTrip(t *testing.T) {
	env := NewEnvelope(ChapterCompleted, ServiceProgress, json.RawMessage(`{"studentId":7,"chapterId":42}`))
	env.Timestamp = time.Date(2024, 5, 1, 10, 30, 0, 500_000_000, time.Local)
	fields := env.Fields()
	if fields[FieldTimestamp] != "2024-05-01T10:30:00.5" {
		t.Fatalf("timestamp: %q", fields[FieldTimestamp])
	}
	if fields[FieldType] != "CHAPTER_COMPLETED" || fields[FieldSource] != ServiceProgress {
		t.Fatalf("fields: %v", fields)
	}

	got, err := ParseEnvelope(fields)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got.ID != env.ID || got.Type != env.Type || !got.Timestamp.Equal(env.Timestamp) {
		t.Fatalf("mismatch: %+v vs %+v", got, env)
	}
	p, err := got.Payload()
	if err != nil {
		t.Fatalf("payload: %v", err)
	}
	cc := p.(ChapterCompletedPayload)
	if cc.StudentID != 7 || cc.ChapterID != 42 {
		t.Fatalf("payload: %+v", cc)
	}
}

func TestNewEnvelopeFreshIDs(t *testing.T) {
	a := NewEnvelope(CourseEnrolled, ServiceCourse, json.RawMessage(`{}`))
	b := NewEnvelope(CourseEnrolled, ServiceCourse, json.RawMessage(`{}`))
	if a.ID == "" || a.ID == b.ID {
		t.Fatalf("ids must be fresh: %q %q", a.ID, b.ID)
	}
}

func TestParseEnvelopeMalformed(t *testing.T) {
	cases := []struct {
		name   string
		fields map[string]string
	}{
		{"no type", map[string]string{"data": "{}"}},
		{"no data", map[string]string{"type": "CHAPTER_COMPLETED"}},
		{"bad json", map[string]string{"type": "CHAPTER_COMPLETED", "data": "{"}},
		{"not object", map[string]string{"type": "CHAPTER_COMPLETED", "data": "[1]"}},
		{"placeholder", map[string]string{PlaceholderField: "1"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseEnvelope(tc.fields); !errors.Is(err, ErrMalformed) {
				t.Fatalf("want ErrMalformed, got %v", err)
			}
		})
	}
}

func TestIsPlaceholder(t *testing.T) {
	if !IsPlaceholder(map[string]string{PlaceholderField: "1"}) {
		t.Fatalf("placeholder not recognised")
	}
	if IsPlaceholder(map[string]string{"type": "X", "data": "{}"}) {
		t.Fatalf("event taken for placeholder")
	}
}
