package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

type unlockKey struct{ student, homework int64 }

// Memory is an in-process Store.
type Memory struct {
	mu            sync.Mutex
	homeworks     map[int64]Homework
	unlocks       map[unlockKey]Unlock
	notifications []Notification
	announcements []Announcement
	outbox        []OutboxMessage
	nextID        int64

	// FailWrites makes every write return the error, for fault tests.
	FailWrites error
}

var _ Store = (*Memory)(nil)

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{
		homeworks: make(map[int64]Homework),
		unlocks:   make(map[unlockKey]Unlock),
	}
}

// AddHomework seeds a homework row.
func (m *Memory) AddHomework(h Homework) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.homeworks[h.ID] = h
}

// LockHomework records a locked unlock row, as created when a homework is
// assigned before its chapter is done.
func (m *Memory) LockHomework(studentID, homeworkID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unlocks[unlockKey{studentID, homeworkID}] = Unlock{StudentID: studentID, HomeworkID: homeworkID}
}

func (m *Memory) UnlockChapter(_ context.Context, studentID, chapterID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites != nil {
		return 0, m.FailWrites
	}
	changed := 0
	for _, h := range m.homeworks {
		if h.ChapterID != chapterID {
			continue
		}
		k := unlockKey{studentID, h.ID}
		if u, ok := m.unlocks[k]; ok && u.Unlocked {
			continue
		}
		m.unlocks[k] = Unlock{StudentID: studentID, HomeworkID: h.ID, Unlocked: true, UnlockedAt: time.Now()}
		changed++
	}
	return changed, nil
}

func (m *Memory) GetUnlock(_ context.Context, studentID, homeworkID int64) (Unlock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.unlocks[unlockKey{studentID, homeworkID}]
	if !ok {
		return Unlock{}, ErrNotFound
	}
	return u, nil
}

func (m *Memory) InsertNotification(ctx context.Context, n *Notification) error {
	return m.WithTx(ctx, func(tx Tx) error { return tx.InsertNotification(ctx, n) })
}

func (m *Memory) InsertAnnouncement(ctx context.Context, a *Announcement) error {
	return m.WithTx(ctx, func(tx Tx) error { return tx.InsertAnnouncement(ctx, a) })
}

func (m *Memory) EnqueueOutbox(ctx context.Context, msg OutboxMessage) error {
	return m.WithTx(ctx, func(tx Tx) error { return tx.EnqueueOutbox(ctx, msg) })
}

func (m *Memory) ListNotifications(_ context.Context, userID int64, limit int) ([]Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Notification
	for i := len(m.notifications) - 1; i >= 0; i-- {
		if m.notifications[i].UserID != userID {
			continue
		}
		out = append(out, m.notifications[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) ListPendingOutbox(_ context.Context, limit int) ([]OutboxMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []OutboxMessage
	for _, msg := range m.outbox {
		if msg.PublishedAt != nil {
			continue
		}
		out = append(out, msg)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) MarkOutboxPublished(_ context.Context, id uuid.UUID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites != nil {
		return m.FailWrites
	}
	for i := range m.outbox {
		if m.outbox[i].ID == id {
			t := at
			m.outbox[i].PublishedAt = &t
			return nil
		}
	}
	return ErrNotFound
}

// memTx buffers writes until the transaction function succeeds.
type memTx struct {
	m             *Memory
	notifications []*Notification
	announcements []*Announcement
	outbox        []OutboxMessage
}

func (tx *memTx) InsertNotification(_ context.Context, n *Notification) error {
	if !n.Kind.Valid() {
		return errors.New("store: invalid notification kind " + string(n.Kind))
	}
	n.ID, n.CreatedAt = tx.m.allocID(), time.Now()
	tx.notifications = append(tx.notifications, n)
	return nil
}

func (tx *memTx) InsertAnnouncement(_ context.Context, a *Announcement) error {
	a.ID, a.CreatedAt = tx.m.allocID(), time.Now()
	tx.announcements = append(tx.announcements, a)
	return nil
}

// allocID hands out ids like a sequence: rolled back ids are not reused.
func (m *Memory) allocID() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	return m.nextID
}

func (tx *memTx) EnqueueOutbox(_ context.Context, msg OutboxMessage) error {
	tx.outbox = append(tx.outbox, msg)
	return nil
}

func (m *Memory) WithTx(_ context.Context, fn func(Tx) error) error {
	tx := &memTx{m: m}
	if err := fn(tx); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites != nil {
		return m.FailWrites
	}
	for _, n := range tx.notifications {
		m.notifications = append(m.notifications, *n)
	}
	for _, a := range tx.announcements {
		m.announcements = append(m.announcements, *a)
	}
	m.outbox = append(m.outbox, tx.outbox...)
	return nil
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close() {}
