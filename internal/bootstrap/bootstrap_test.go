package bootstrap

import (
	"context"
	"errors"
	"testing"

	"github.com/lwhguge-dot/Online-Education-Platform-sub001/internal/eventlog"
	"github.com/lwhguge-dot/Online-Education-Platform-sub001/internal/events"
	pebblestore "github.com/lwhguge-dot/Online-Education-Platform-sub001/internal/storage/pebble"
	logpkg "github.com/lwhguge-dot/Online-Education-Platform-sub001/pkg/log"
)

func newTestStore(t *testing.T) *eventlog.Store {
	t.Helper()
	db, err := pebblestore.Open(pebblestore.Options{DataDir: t.TempDir(), Fsync: pebblestore.FsyncModeAlways})
	if err != nil {
		t.Fatalf("open pebble: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return eventlog.NewStore(db)
}

func quiet() logpkg.Logger { return logpkg.NewLogger(logpkg.WithOutput(logpkg.NullOutput{})) }

func TestEnsureGroupCreatesMissingStream(t *testing.T) {
	store := newTestStore(t)
	b := New(StoreGroups{store}, quiet())
	ctx := context.Background()
	stream := events.StreamKeyFor(events.ChapterCompleted)
	group := events.GroupName(events.ServiceHomework)

	for i := 0; i < 2; i++ {
		if err := b.EnsureGroup(ctx, stream, group); err != nil {
			t.Fatalf("ensure #%d: %v", i+1, err)
		}
	}
	l, _ := store.Log(stream)
	groups, err := l.Groups()
	if err != nil || len(groups) != 1 || groups[0].Name != group {
		t.Fatalf("groups: %+v %v", groups, err)
	}
	entries, _ := l.Range(0, 0)
	if len(entries) != 1 || !events.IsPlaceholder(entries[0].Fields) {
		t.Fatalf("expected a single placeholder entry, got %+v", entries)
	}
}

func TestEnsureGroupKeepsExistingStream(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	stream := events.StreamKeyFor(events.CourseEnrolled)
	if _, err := store.Append(ctx, stream, map[string]string{"type": "COURSE_ENROLLED", "data": "{}"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := New(StoreGroups{store}, quiet()).EnsureGroup(ctx, stream, "group:user-service"); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	l, _ := store.Log(stream)
	if l.LastID() != 1 {
		t.Fatalf("no placeholder should be appended to an existing stream")
	}
	got, _ := l.ReadGroup(ctx, "group:user-service", "user-service:1", 10)
	if len(got) != 1 {
		t.Fatalf("group must start at the beginning, got %d entries", len(got))
	}
}

type brokenGroups struct{ StoreGroups }

func (brokenGroups) CreateGroup(context.Context, string, string) error {
	return errors.New("io error")
}

func TestEnsureAllSkipsFailures(t *testing.T) {
	store := newTestStore(t)
	subs := []Subscription{
		{Stream: events.StreamKeyFor(events.CourseEnrolled), Group: "group:user-service"},
		{Stream: events.StreamKeyFor(events.CourseDropped), Group: "bad/name"},
	}
	ready := New(StoreGroups{store}, quiet()).EnsureAll(context.Background(), subs)
	if len(ready) != 1 || ready[0] != subs[0] {
		t.Fatalf("ready: %+v", ready)
	}

	ready = New(brokenGroups{StoreGroups{store}}, quiet()).EnsureAll(context.Background(), subs[:1])
	if len(ready) != 0 {
		t.Fatalf("broken backend should yield no ready subscriptions: %+v", ready)
	}
}
