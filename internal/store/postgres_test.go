package store

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"
)

// Runs only when EDU_TEST_DATABASE_URL points at a scratch database.
func openTestPostgres(t *testing.T) *Postgres {
	t.Helper()
	url := os.Getenv("EDU_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("EDU_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	p, err := OpenPostgres(ctx, url)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(p.Close)
	if err := p.EnsureSchema(ctx); err != nil {
		t.Fatalf("schema: %v", err)
	}
	if _, err := p.pool.Exec(ctx, `TRUNCATE homework, homework_unlock, notification, announcement, event_outbox RESTART IDENTITY`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return p
}

func TestPostgresUnlockChapter(t *testing.T) {
	p := openTestPostgres(t)
	ctx := context.Background()
	if _, err := p.pool.Exec(ctx, `INSERT INTO homework (id, course_id, chapter_id, title) VALUES (1, 1, 42, 'a'), (2, 1, 42, 'b'), (3, 1, 43, 'c')`); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := p.pool.Exec(ctx, `INSERT INTO homework_unlock (student_id, homework_id, unlock_status) VALUES (7, 2, 0)`); err != nil {
		t.Fatalf("seed lock: %v", err)
	}
	n, err := p.UnlockChapter(ctx, 7, 42)
	if err != nil || n != 2 {
		t.Fatalf("unlock: %d %v", n, err)
	}
	n, err = p.UnlockChapter(ctx, 7, 42)
	if err != nil || n != 0 {
		t.Fatalf("replay: %d %v", n, err)
	}
	u, err := p.GetUnlock(ctx, 7, 2)
	if err != nil || !u.Unlocked {
		t.Fatalf("get unlock: %+v %v", u, err)
	}
	if _, err := p.GetUnlock(ctx, 7, 3); !errors.Is(err, ErrNotFound) {
		t.Fatalf("other chapter must stay untouched: %v", err)
	}
}

func TestPostgresTxAndOutbox(t *testing.T) {
	p := openTestPostgres(t)
	ctx := context.Background()
	msg, _ := NewOutboxMessage("ANNOUNCEMENT_PUBLISHED", []byte(`{"id":"x"}`))
	err := p.WithTx(ctx, func(tx Tx) error {
		a := &Announcement{Title: "t"}
		if err := tx.InsertAnnouncement(ctx, a); err != nil {
			return err
		}
		if err := tx.InsertNotification(ctx, &Notification{UserID: 3, Title: "t", Kind: KindSystem, RelatedID: a.ID}); err != nil {
			return err
		}
		return tx.EnqueueOutbox(ctx, msg)
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}
	pending, err := p.ListPendingOutbox(ctx, 10)
	if err != nil || len(pending) != 1 || pending[0].ID != msg.ID {
		t.Fatalf("pending: %+v %v", pending, err)
	}
	if err := p.MarkOutboxPublished(ctx, msg.ID, time.Now()); err != nil {
		t.Fatalf("mark: %v", err)
	}
	pending, _ = p.ListPendingOutbox(ctx, 10)
	if len(pending) != 0 {
		t.Fatalf("outbox should be drained")
	}
	list, _ := p.ListNotifications(ctx, 3, 10)
	if len(list) != 1 || list[0].Kind != KindSystem {
		t.Fatalf("notifications: %+v", list)
	}
}
