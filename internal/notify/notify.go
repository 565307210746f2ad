// Package notify persists user notifications and pushes them to live
// sessions.
package notify

import (
	"context"
	"fmt"

	"github.com/lwhguge-dot/Online-Education-Platform-sub001/internal/events"
	"github.com/lwhguge-dot/Online-Education-Platform-sub001/internal/store"
	logpkg "github.com/lwhguge-dot/Online-Education-Platform-sub001/pkg/log"
)

// Writer is the persistence half of Service.
type Writer interface {
	InsertNotification(ctx context.Context, n *store.Notification) error
}

// Pusher is the live-delivery half of Service. *session.Registry satisfies it.
type Pusher interface {
	SendNotification(userID int64, title, content string) bool
}

// Service writes a notification row and then pushes it to the user if they
// are online.
type Service struct {
	w      Writer
	push   Pusher
	logger logpkg.Logger
}

// New returns a Service. push may be nil when no sessions are served.
func New(w Writer, push Pusher, logger logpkg.Logger) *Service {
	if logger == nil {
		logger = logpkg.NewLogger()
	}
	return &Service{w: w, push: push, logger: logger.With(logpkg.Component("notify"))}
}

// Send stores the notification and pushes it. Storage errors are returned;
// an undelivered push is not an error since the row is the durable copy.
func (s *Service) Send(ctx context.Context, userID int64, title, content string, kind store.NotificationKind, relatedID int64) (*store.Notification, error) {
	if userID <= 0 {
		return nil, fmt.Errorf("%w: notify: invalid user id %d", events.ErrMalformed, userID)
	}
	n := &store.Notification{UserID: userID, Title: title, Content: content, Kind: kind, RelatedID: relatedID}
	if err := s.w.InsertNotification(ctx, n); err != nil {
		return nil, fmt.Errorf("notify user %d: %w", userID, err)
	}
	if s.push != nil && !s.push.SendNotification(userID, title, content) {
		s.logger.Debug("user offline, notification stored only", logpkg.Int64("user_id", userID), logpkg.Int64("notification_id", n.ID))
	}
	return n, nil
}
