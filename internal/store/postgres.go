package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// schemaSQL is applied by EnsureSchema.
//
//go:embed schema.sql
var schemaSQL string

// querier is satisfied by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres is the pgx-backed Store.
type Postgres struct {
	pool *pgxpool.Pool
}

var _ Store = (*Postgres)(nil)

// OpenPostgres creates a pool and fails fast if the database is unreachable.
func OpenPostgres(ctx context.Context, url string) (*Postgres, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// EnsureSchema applies schema.sql. Safe to run repeatedly.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, schemaSQL)
	return err
}

func (p *Postgres) Ping(ctx context.Context) error { return p.pool.Ping(ctx) }

func (p *Postgres) Close() { p.pool.Close() }

// UnlockChapter inserts unlocked rows or flips locked ones in one statement,
// so replays are no-ops.
func (p *Postgres) UnlockChapter(ctx context.Context, studentID, chapterID int64) (int, error) {
	tag, err := p.pool.Exec(ctx, `
		INSERT INTO homework_unlock (student_id, homework_id, unlock_status, unlocked_at)
		SELECT $1, h.id, 1, now() FROM homework h WHERE h.chapter_id = $2
		ON CONFLICT (student_id, homework_id) DO UPDATE
		   SET unlock_status = 1, unlocked_at = now()
		 WHERE homework_unlock.unlock_status = 0
	`, studentID, chapterID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (p *Postgres) GetUnlock(ctx context.Context, studentID, homeworkID int64) (Unlock, error) {
	u := Unlock{StudentID: studentID, HomeworkID: homeworkID}
	var status int16
	var at *time.Time
	err := p.pool.QueryRow(ctx,
		`SELECT unlock_status, unlocked_at FROM homework_unlock WHERE student_id = $1 AND homework_id = $2`,
		studentID, homeworkID).Scan(&status, &at)
	if errors.Is(err, pgx.ErrNoRows) {
		return Unlock{}, ErrNotFound
	}
	if err != nil {
		return Unlock{}, err
	}
	u.Unlocked = status == 1
	if at != nil {
		u.UnlockedAt = *at
	}
	return u, nil
}

func (p *Postgres) InsertNotification(ctx context.Context, n *Notification) error {
	return insertNotification(ctx, p.pool, n)
}

func (p *Postgres) InsertAnnouncement(ctx context.Context, a *Announcement) error {
	return insertAnnouncement(ctx, p.pool, a)
}

func (p *Postgres) EnqueueOutbox(ctx context.Context, m OutboxMessage) error {
	return enqueueOutbox(ctx, p.pool, m)
}

func (p *Postgres) ListNotifications(ctx context.Context, userID int64, limit int) ([]Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := p.pool.Query(ctx, `
		SELECT id, user_id, title, content, type, COALESCE(related_id, 0), is_read, created_at
		  FROM notification WHERE user_id = $1
		 ORDER BY created_at DESC, id DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(r pgx.CollectableRow) (Notification, error) {
		var n Notification
		var kind string
		var read int16
		err := r.Scan(&n.ID, &n.UserID, &n.Title, &n.Content, &kind, &n.RelatedID, &read, &n.CreatedAt)
		n.Kind, n.IsRead = NotificationKind(kind), read == 1
		return n, err
	})
}

func (p *Postgres) ListPendingOutbox(ctx context.Context, limit int) ([]OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := p.pool.Query(ctx, `
		SELECT id, event_type, payload, created_at FROM event_outbox
		 WHERE published_at IS NULL ORDER BY created_at, id LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(r pgx.CollectableRow) (OutboxMessage, error) {
		var m OutboxMessage
		err := r.Scan(&m.ID, &m.EventType, &m.Payload, &m.CreatedAt)
		return m, err
	})
}

func (p *Postgres) MarkOutboxPublished(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := p.pool.Exec(ctx, `UPDATE event_outbox SET published_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

type pgTx struct{ q querier }

func (t pgTx) InsertNotification(ctx context.Context, n *Notification) error {
	return insertNotification(ctx, t.q, n)
}

func (t pgTx) InsertAnnouncement(ctx context.Context, a *Announcement) error {
	return insertAnnouncement(ctx, t.q, a)
}

func (t pgTx) EnqueueOutbox(ctx context.Context, m OutboxMessage) error {
	return enqueueOutbox(ctx, t.q, m)
}

// WithTx commits when fn returns nil and rolls back otherwise.
func (p *Postgres) WithTx(ctx context.Context, fn func(Tx) error) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	if err := fn(pgTx{q: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func insertNotification(ctx context.Context, q querier, n *Notification) error {
	var related *int64
	if n.RelatedID != 0 {
		related = &n.RelatedID
	}
	read := int16(0)
	if n.IsRead {
		read = 1
	}
	return q.QueryRow(ctx, `
		INSERT INTO notification (user_id, title, content, type, related_id, is_read)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`,
		n.UserID, n.Title, n.Content, string(n.Kind), related, read,
	).Scan(&n.ID, &n.CreatedAt)
}

func insertAnnouncement(ctx context.Context, q querier, a *Announcement) error {
	if a.TargetAudience == "" {
		a.TargetAudience = "ALL"
	}
	return q.QueryRow(ctx, `
		INSERT INTO announcement (title, content, target_audience)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`,
		a.Title, a.Content, a.TargetAudience,
	).Scan(&a.ID, &a.CreatedAt)
}

func enqueueOutbox(ctx context.Context, q querier, m OutboxMessage) error {
	_, err := q.Exec(ctx, `
		INSERT INTO event_outbox (id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING`,
		m.ID, m.EventType, m.Payload, m.CreatedAt)
	return err
}
