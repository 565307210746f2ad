// Package bootstrap makes sure reader groups exist before consumption starts.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/lwhguge-dot/Online-Education-Platform-sub001/internal/eventlog"
	"github.com/lwhguge-dot/Online-Education-Platform-sub001/internal/events"
	logpkg "github.com/lwhguge-dot/Online-Education-Platform-sub001/pkg/log"
)

// Groups is the part of the log the bootstrapper drives. *eventlog.Store
// satisfies it through StoreGroups.
type Groups interface {
	CreateGroup(ctx context.Context, stream, group string) error
	Append(ctx context.Context, stream string, fields map[string]string) (eventlog.ID, error)
}

// StoreGroups adapts an eventlog.Store; groups start at the beginning.
type StoreGroups struct{ *eventlog.Store }

// CreateGroup creates group on stream from the first entry.
func (s StoreGroups) CreateGroup(ctx context.Context, stream, group string) error {
	l, err := s.Log(stream)
	if err != nil {
		return err
	}
	return l.CreateGroup(ctx, group, true)
}

// Subscription names one (stream, group) pair.
type Subscription struct {
	Stream string
	Group  string
}

// Bootstrapper creates reader groups idempotently.
type Bootstrapper struct {
	groups Groups
	logger logpkg.Logger
}

// New returns a bootstrapper over g.
func New(g Groups, logger logpkg.Logger) *Bootstrapper {
	if logger == nil {
		logger = logpkg.NewLogger()
	}
	return &Bootstrapper{groups: g, logger: logger.With(logpkg.Component("bootstrap"))}
}

// EnsureGroup creates group on stream starting at the first entry. A missing
// stream is created with a placeholder record first. An existing group counts
// as success. Other failures are returned after a warning.
func (b *Bootstrapper) EnsureGroup(ctx context.Context, stream, group string) error {
	err := b.groups.CreateGroup(ctx, stream, group)
	if errors.Is(err, eventlog.ErrNoStream) {
		if _, aerr := b.groups.Append(ctx, stream, map[string]string{events.PlaceholderField: "1"}); aerr != nil {
			err = fmt.Errorf("create stream: %w", aerr)
		} else {
			b.logger.Info("created stream", logpkg.Str("stream", stream))
			err = b.groups.CreateGroup(ctx, stream, group)
		}
	}
	switch {
	case err == nil:
		b.logger.Info("created group", logpkg.Str("stream", stream), logpkg.Str("group", group))
		return nil
	case errors.Is(err, eventlog.ErrGroupExists):
		b.logger.Debug("group exists", logpkg.Str("stream", stream), logpkg.Str("group", group))
		return nil
	default:
		b.logger.Warn("ensure group failed; subscription disabled",
			logpkg.Str("stream", stream),
			logpkg.Str("group", group),
			logpkg.Err(err),
		)
		return err
	}
}

// EnsureAll ensures every subscription and returns the ones that are ready.
// Failures degrade only their own subscription.
func (b *Bootstrapper) EnsureAll(ctx context.Context, subs []Subscription) []Subscription {
	ready := make([]Subscription, 0, len(subs))
	for _, s := range subs {
		if err := b.EnsureGroup(ctx, s.Stream, s.Group); err != nil {
			continue
		}
		ready = append(ready, s)
	}
	return ready
}
