package events

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/lwhguge-dot/Online-Education-Platform-sub001/internal/eventlog"
	pebblestore "github.com/lwhguge-dot/Online-Education-Platform-sub001/internal/storage/pebble"
	logpkg "github.com/lwhguge-dot/Online-Education-Platform-sub001/pkg/log"
)

func quietLogger() logpkg.Logger {
	return logpkg.NewLogger(logpkg.WithOutput(logpkg.NullOutput{}))
}

func newTestStore(t *testing.T) *eventlog.Store {
	t.Helper()
	db, err := pebblestore.Open(pebblestore.Options{DataDir: t.TempDir(), Fsync: pebblestore.FsyncModeAlways})
	if err != nil {
		t.Fatalf("open pebble: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return eventlog.NewStore(db)
}

func TestPublishThenReadPreservesData(t *testing.T) {
	store := newTestStore(t)
	pub := NewPublisher(store, quietLogger())
	ctx := context.Background()

	payloads := []any{
		map[string]any{"studentId": float64(7), "chapterId": float64(42), "chapterTitle": "intro"},
		HomeworkSubmittedPayload{HomeworkID: 3, StudentID: 7, HomeworkTitle: "hw"},
	}
	for i, payload := range payloads {
		name := ChapterCompleted
		if i == 1 {
			name = HomeworkSubmitted
		}
		id, ok := pub.Publish(ctx, name, ServiceProgress, payload)
		if !ok || id == "" {
			t.Fatalf("publish %d failed", i)
		}
		l, _ := store.Log(StreamKeyFor(name))
		entries, err := l.Range(0, 0)
		if err != nil || len(entries) != 1 {
			t.Fatalf("range: %v %v", entries, err)
		}
		var got, want map[string]any
		if err := json.Unmarshal([]byte(entries[0].Fields[FieldData]), &got); err != nil {
			t.Fatalf("data: %v", err)
		}
		raw, _ := json.Marshal(payload)
		_ = json.Unmarshal(raw, &want)
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("data mismatch: %v vs %v", got, want)
		}
		if entries[0].ID.String() != id {
			t.Fatalf("record id %s vs %s", entries[0].ID, id)
		}
	}
}

type failingAppender struct{}

func (failingAppender) Append(context.Context, string, map[string]string) (eventlog.ID, error) {
	return 0, errors.New("log unreachable")
}

func TestPublishSwallowsFailures(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name    string
		app     Appender
		event   Name
		payload any
	}{
		{"append fails", failingAppender{}, CourseEnrolled, map[string]any{"studentId": 1}},
		{"unencodable", newTestStore(t), CourseEnrolled, map[string]any{"ch": make(chan int)}},
		{"not an object", newTestStore(t), CourseEnrolled, []int{1}},
		{"unknown event", newTestStore(t), "NOPE", map[string]any{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			id, ok := NewPublisher(tc.app, quietLogger()).Publish(ctx, tc.event, ServiceCourse, tc.payload)
			if ok || id != "" {
				t.Fatalf("expected silent failure, got %q %v", id, ok)
			}
		})
	}
}
