package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/lwhguge-dot/Online-Education-Platform-sub001/internal/eventlog"
	pebblestore "github.com/lwhguge-dot/Online-Education-Platform-sub001/internal/storage/pebble"
	logpkg "github.com/lwhguge-dot/Online-Education-Platform-sub001/pkg/log"
)

func openTestDB(t *testing.T) *pebblestore.DB {
	t.Helper()
	db, err := pebblestore.Open(pebblestore.Options{DataDir: t.TempDir(), Fsync: pebblestore.FsyncModeAlways})
	if err != nil {
		t.Fatalf("open pebble: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func quiet() logpkg.Logger {
	return logpkg.NewLogger(logpkg.WithOutput(logpkg.NullOutput{}))
}

// newIdleContainer returns a container whose context is live but whose loops
// are not running; tests drive process/reclaim directly.
func newIdleContainer(t *testing.T, regs []Registration, opts Options) (*Container, *eventlog.Store) {
	t.Helper()
	db := openTestDB(t)
	store := eventlog.NewStore(db)
	c := New(store, NewConsumerRegistry(db, time.Minute), regs, opts, quiet())
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.active = regs
	t.Cleanup(func() {
		c.cancel()
		c.wg.Wait()
	})
	return c, store
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
