package runtime

import (
	"context"
	"testing"
	"time"

	cfgpkg "github.com/lwhguge-dot/Online-Education-Platform-sub001/internal/config"
	"github.com/lwhguge-dot/Online-Education-Platform-sub001/internal/events"
	pebblestore "github.com/lwhguge-dot/Online-Education-Platform-sub001/internal/storage/pebble"
	"github.com/lwhguge-dot/Online-Education-Platform-sub001/internal/store"
	logpkg "github.com/lwhguge-dot/Online-Education-Platform-sub001/pkg/log"
)

func quiet() logpkg.Logger { return logpkg.NewLogger(logpkg.WithOutput(logpkg.NullOutput{})) }

func testConfig() cfgpkg.Config {
	cfg := cfgpkg.Default()
	cfg.Dispatch.PollTimeout = cfgpkg.Duration(20 * time.Millisecond)
	cfg.Outbox.Interval = cfgpkg.Duration(10 * time.Millisecond)
	return cfg
}

func TestOpenCloseHealth(t *testing.T) {
	rt, err := Open(context.Background(), Options{DataDir: t.TempDir(), Fsync: pebblestore.FsyncModeAlways, Config: testConfig(), Logger: quiet()})
	if err != nil {
		t.Fatalf("open runtime: %v", err)
	}
	defer rt.Close()
	if err := rt.CheckHealth(context.Background()); err != nil {
		t.Fatalf("health: %v", err)
	}
	if _, ok := rt.Store().(*store.Memory); !ok {
		t.Fatalf("without a database url the store should be in-memory, got %T", rt.Store())
	}
	if err := rt.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := rt.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestOpenRejectsBadFilter(t *testing.T) {
	cfg := testConfig()
	cfg.Filters = map[string]string{string(events.CourseEnrolled): "data.courseId +"}
	if _, err := Open(context.Background(), Options{DataDir: t.TempDir(), Config: cfg, Logger: quiet()}); err == nil {
		t.Fatalf("bad filter should fail Open")
	}
}

func TestStartWiresServices(t *testing.T) {
	mem := store.NewMemory()
	mem.AddHomework(store.Homework{ID: 11, ChapterID: 4})
	rt, err := Open(context.Background(), Options{DataDir: t.TempDir(), Config: testConfig(), Logger: quiet(), Store: mem})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rt.Close()
	if err := rt.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	// user-service has four routes, homework-service one.
	if got := len(rt.Container().Active()); got != 5 {
		t.Fatalf("active registrations = %d, want 5", got)
	}

	ctx := context.Background()
	rt.Publisher().Publish(ctx, events.ChapterCompleted, events.ServiceProgress, events.ChapterCompletedPayload{StudentID: 3, ChapterID: 4})
	rt.Publisher().Publish(ctx, events.CourseEnrolled, events.ServiceCourse, events.EnrollmentPayload{StudentID: 3, CourseID: 8, CourseName: "Go"})

	deadline := time.Now().Add(3 * time.Second)
	for {
		u, uerr := mem.GetUnlock(ctx, 3, 11)
		list, _ := mem.ListNotifications(ctx, 3, 10)
		if uerr == nil && u.Unlocked && len(list) == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("events not handled: unlock %+v %v, notifications %d", u, uerr, len(list))
		}
		time.Sleep(5 * time.Millisecond)
	}
}
