package dispatch

import (
	"context"
	"fmt"

	"github.com/lwhguge-dot/Online-Education-Platform-sub001/internal/events"
)

// Handler performs the side effect of one event. Returning nil acks the
// entry. An error wrapping events.ErrMalformed acks it with a warning. Any
// other error leaves it pending for redelivery.
type Handler interface {
	Handle(ctx context.Context, env events.Envelope) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, env events.Envelope) error

func (f HandlerFunc) Handle(ctx context.Context, env events.Envelope) error { return f(ctx, env) }

// Typed decodes and validates the envelope payload into T before calling fn.
func Typed[T events.Payload](fn func(ctx context.Context, env events.Envelope, p T) error) Handler {
	return HandlerFunc(func(ctx context.Context, env events.Envelope) error {
		p, err := env.Payload()
		if err != nil {
			return err
		}
		t, ok := p.(T)
		if !ok {
			return fmt.Errorf("%w: %s payload is %T", events.ErrMalformed, env.Type, p)
		}
		return fn(ctx, env, t)
	})
}

// Registration binds one event stream and reader group to a handler.
type Registration struct {
	Event    events.Name
	Stream   string
	Group    string
	Consumer string
	Handler  Handler
	Filter   *Filter
}

// Route is one row of a service's event table.
type Route struct {
	Event   events.Name
	Handler Handler
}

// Bind turns a service's routes into registrations using the catalog stream
// keys and the service's group and consumer names. filters maps event names to
// CEL expressions.
func Bind(service string, instance int, routes []Route, filters map[string]string) ([]Registration, error) {
	regs := make([]Registration, 0, len(routes))
	for _, r := range routes {
		stream := events.StreamKeyFor(r.Event)
		if stream == "" {
			return nil, fmt.Errorf("%w: %q", events.ErrUnknownEvent, r.Event)
		}
		f, err := NewFilter(filters[string(r.Event)])
		if err != nil {
			return nil, err
		}
		regs = append(regs, Registration{
			Event:    r.Event,
			Stream:   stream,
			Group:    events.GroupName(service),
			Consumer: events.ConsumerName(service, instance),
			Handler:  r.Handler,
			Filter:   f,
		})
	}
	return regs, nil
}
