// Package outbox records events in the same transaction as the business
// write that caused them and relays them to the event log afterwards.
package outbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lwhguge-dot/Online-Education-Platform-sub001/internal/events"
	"github.com/lwhguge-dot/Online-Education-Platform-sub001/internal/store"
	logpkg "github.com/lwhguge-dot/Online-Education-Platform-sub001/pkg/log"
)

// Enqueue builds an envelope for payload and stores it in tx's outbox. The
// envelope id is fixed here so a relay retry republishes the same event.
func Enqueue(ctx context.Context, tx store.Tx, name events.Name, source string, payload any) (events.Envelope, error) {
	if _, ok := events.Lookup(name); !ok {
		return events.Envelope{}, fmt.Errorf("%w: %q", events.ErrUnknownEvent, name)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return events.Envelope{}, fmt.Errorf("encode %s payload: %w", name, err)
	}
	if !bytes.HasPrefix(bytes.TrimSpace(data), []byte("{")) {
		return events.Envelope{}, fmt.Errorf("%w: %s payload is not a JSON object", events.ErrMalformed, name)
	}
	env := events.NewEnvelope(name, source, data)
	raw, err := json.Marshal(env)
	if err != nil {
		return events.Envelope{}, err
	}
	msg, err := store.NewOutboxMessage(string(name), raw)
	if err != nil {
		return events.Envelope{}, err
	}
	if err := tx.EnqueueOutbox(ctx, msg); err != nil {
		return events.Envelope{}, err
	}
	return env, nil
}

// Store is the outbox side of store.Store.
type Store interface {
	ListPendingOutbox(ctx context.Context, limit int) ([]store.OutboxMessage, error)
	MarkOutboxPublished(ctx context.Context, id uuid.UUID, at time.Time) error
}

// Publisher appends a prepared envelope. *events.Publisher satisfies it.
type Publisher interface {
	PublishEnvelope(ctx context.Context, env events.Envelope) (string, bool)
}

// Options tunes the relay.
type Options struct {
	Interval  time.Duration // default 1s
	BatchSize int           // default 100
}

// Relay moves pending outbox rows to the event log.
type Relay struct {
	store  Store
	pub    Publisher
	opts   Options
	logger logpkg.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRelay returns a stopped relay.
func NewRelay(s Store, pub Publisher, opts Options, logger logpkg.Logger) *Relay {
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if logger == nil {
		logger = logpkg.NewLogger()
	}
	return &Relay{store: s, pub: pub, opts: opts, logger: logger.With(logpkg.Component("outbox"))}
}

// RunOnce publishes one batch in creation order and returns how many rows
// were published. It stops at the first publish failure so later rows never
// overtake an earlier one. Rows that do not hold an envelope are marked
// published and logged, since no retry can fix them.
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	pending, err := r.store.ListPendingOutbox(ctx, r.opts.BatchSize)
	if err != nil {
		r.logger.Error("outbox list failed", logpkg.Err(err))
		return 0, err
	}
	sent := 0
	for _, row := range pending {
		var env events.Envelope
		if err := json.Unmarshal(row.Payload, &env); err != nil || env.ID == "" {
			r.logger.Error("outbox row is not an envelope, dropping",
				logpkg.Str("outbox_id", row.ID.String()), logpkg.Str("type", row.EventType))
		} else if _, ok := r.pub.PublishEnvelope(ctx, env); !ok {
			return sent, fmt.Errorf("outbox: publish %s failed", row.ID)
		} else {
			sent++
		}
		if err := r.store.MarkOutboxPublished(ctx, row.ID, time.Now().UTC()); err != nil {
			r.logger.Error("outbox mark failed", logpkg.Str("outbox_id", row.ID.String()), logpkg.Err(err))
			return sent, err
		}
	}
	if sent > 0 {
		r.logger.Info("outbox relayed", logpkg.Int("count", sent))
	}
	return sent, nil
}

// Start runs RunOnce every interval until Stop or ctx is done.
func (r *Relay) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return
	}
	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})
	go r.loop(ctx, r.done)
}

func (r *Relay) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	t := time.NewTicker(r.opts.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			_, _ = r.RunOnce(ctx)
		}
	}
}

// Stop halts the loop and waits for an in-progress batch.
func (r *Relay) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}
