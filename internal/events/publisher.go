package events

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/lwhguge-dot/Online-Education-Platform-sub001/internal/eventlog"
	logpkg "github.com/lwhguge-dot/Online-Education-Platform-sub001/pkg/log"
)

// Appender is the log write path the publisher needs. *eventlog.Store
// satisfies it.
type Appender interface {
	Append(ctx context.Context, stream string, fields map[string]string) (eventlog.ID, error)
}

// Publisher appends envelopes to catalog streams. Failures are logged and
// reported only through the ok result; producers never block on the log.
type Publisher struct {
	log    Appender
	logger logpkg.Logger
	// newEnvelope is swapped in tests.
	newEnvelope func(Name, string, json.RawMessage) Envelope
}

// NewPublisher builds a publisher over a.
func NewPublisher(a Appender, logger logpkg.Logger) *Publisher {
	if logger == nil {
		logger = logpkg.NewLogger()
	}
	return &Publisher{
		log:         a,
		logger:      logger.With(logpkg.Component("publisher")),
		newEnvelope: NewEnvelope,
	}
}

// Publish wraps payload in a fresh envelope and appends it to the stream of
// name. payload may be a Payload struct, a map or raw JSON; it must encode to a
// JSON object. It returns the stream record id and true on success.
func (p *Publisher) Publish(ctx context.Context, name Name, source string, payload any) (string, bool) {
	env, ok := p.envelope(name, source, payload)
	if !ok {
		return "", false
	}
	return p.PublishEnvelope(ctx, env)
}

// PublishEnvelope appends a prepared envelope, keeping its id.
func (p *Publisher) PublishEnvelope(ctx context.Context, env Envelope) (string, bool) {
	stream := StreamKeyFor(env.Type)
	if stream == "" {
		p.logger.Error("publish: unknown event", logpkg.Str("type", string(env.Type)))
		return "", false
	}
	id, err := p.log.Append(ctx, stream, env.Fields())
	if err != nil {
		p.logger.Error("publish: append failed",
			logpkg.Str("stream", stream),
			logpkg.Str("event_id", env.ID),
			logpkg.Err(err),
		)
		return "", false
	}
	p.logger.Debug("published",
		logpkg.Str("stream", stream),
		logpkg.Str("event_id", env.ID),
		logpkg.Str("record_id", id.String()),
	)
	return id.String(), true
}

func (p *Publisher) envelope(name Name, source string, payload any) (Envelope, bool) {
	if _, known := Lookup(name); !known {
		p.logger.Error("publish: unknown event", logpkg.Str("type", string(name)))
		return Envelope{}, false
	}
	data, err := json.Marshal(payload)
	if err != nil {
		p.logger.Error("publish: encode payload", logpkg.Str("type", string(name)), logpkg.Err(err))
		return Envelope{}, false
	}
	if len(data) == 0 || bytes.TrimSpace(data)[0] != '{' {
		p.logger.Error("publish: payload is not a JSON object", logpkg.Str("type", string(name)))
		return Envelope{}, false
	}
	return p.newEnvelope(name, source, data), true
}
