// Package store holds the relational side effects of the event handlers:
// homework unlocks, notifications, announcements and the transactional
// outbox. Postgres is the production backend; Memory backs tests and
// single-node runs without a database.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("store: not found")

// NotificationKind classifies a notification.
type NotificationKind string

const (
	KindSystem   NotificationKind = "system"
	KindCourse   NotificationKind = "course"
	KindHomework NotificationKind = "homework"
	KindComment  NotificationKind = "comment"
)

// Valid reports whether k is a known kind.
func (k NotificationKind) Valid() bool {
	switch k {
	case KindSystem, KindCourse, KindHomework, KindComment:
		return true
	}
	return false
}

// Notification is a durable per-user message.
type Notification struct {
	ID        int64            `json:"id"`
	UserID    int64            `json:"userId"`
	Title     string           `json:"title"`
	Content   string           `json:"content"`
	Kind      NotificationKind `json:"type"`
	RelatedID int64            `json:"relatedId,omitempty"`
	IsRead    bool             `json:"isRead"`
	CreatedAt time.Time        `json:"createdAt"`
}

// Homework is the slice of a homework row the unlock path needs.
type Homework struct {
	ID        int64  `json:"id"`
	CourseID  int64  `json:"courseId"`
	ChapterID int64  `json:"chapterId"`
	Title     string `json:"title"`
}

// Unlock records whether a student may open a homework.
type Unlock struct {
	StudentID  int64     `json:"studentId"`
	HomeworkID int64     `json:"homeworkId"`
	Unlocked   bool      `json:"unlocked"`
	UnlockedAt time.Time `json:"unlockedAt"`
}

// Announcement is a published announcement.
type Announcement struct {
	ID             int64     `json:"id"`
	Title          string    `json:"title"`
	Content        string    `json:"content"`
	TargetAudience string    `json:"targetAudience"`
	CreatedAt      time.Time `json:"createdAt"`
}

// OutboxMessage is an event recorded in the same transaction as the business
// write that caused it. Payload holds the serialized envelope.
type OutboxMessage struct {
	ID          uuid.UUID  `json:"id"`
	EventType   string     `json:"eventType"`
	Payload     []byte     `json:"payload"`
	CreatedAt   time.Time  `json:"createdAt"`
	PublishedAt *time.Time `json:"publishedAt,omitempty"`
}

// NewOutboxMessage builds a pending outbox row with a time-ordered id.
func NewOutboxMessage(eventType string, payload []byte) (OutboxMessage, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return OutboxMessage{}, err
	}
	return OutboxMessage{ID: id, EventType: eventType, Payload: payload, CreatedAt: time.Now()}, nil
}

// Tx is the set of writes allowed inside WithTx.
type Tx interface {
	InsertNotification(ctx context.Context, n *Notification) error
	InsertAnnouncement(ctx context.Context, a *Announcement) error
	EnqueueOutbox(ctx context.Context, m OutboxMessage) error
}

// Store is the relational collaborator used by listeners, the HTTP API and
// the outbox relay.
type Store interface {
	Tx

	// UnlockChapter unlocks every homework gated on chapterID for studentID.
	// Already-unlocked homeworks are left alone. It returns how many rows
	// changed.
	UnlockChapter(ctx context.Context, studentID, chapterID int64) (int, error)
	GetUnlock(ctx context.Context, studentID, homeworkID int64) (Unlock, error)

	ListNotifications(ctx context.Context, userID int64, limit int) ([]Notification, error)

	ListPendingOutbox(ctx context.Context, limit int) ([]OutboxMessage, error)
	MarkOutboxPublished(ctx context.Context, id uuid.UUID, at time.Time) error

	// WithTx runs fn in one transaction; fn's error rolls everything back.
	WithTx(ctx context.Context, fn func(Tx) error) error

	Ping(ctx context.Context) error
	Close()
}
