package event

import (
	"context"

	"github.com/rs/zerolog"
)

// Handler reacts to an event inside the process (e.g. the care session
// orchestrator deriving a consultation from an approved appointment).
type Handler func(ctx context.Context, ev Event)

// Bus dispatches events synchronously to in-process handlers and then
// forwards them to the external sink. Handler and sink failures are
// logged, never propagated: the emitting state transition has already
// committed.
type Bus struct {
	handlers map[Type][]Handler
	sink     Sink
	log      zerolog.Logger
}

func NewBus(sink Sink, log zerolog.Logger) *Bus {
	return &Bus{
		handlers: make(map[Type][]Handler),
		sink:     sink,
		log:      log.With().Str("component", "event_bus").Logger(),
	}
}

// Subscribe registers a handler for an event type. Not safe for
// concurrent use with Publish; wiring happens once at startup.
func (b *Bus) Subscribe(t Type, h Handler) {
	b.handlers[t] = append(b.handlers[t], h)
}

func (b *Bus) Publish(ctx context.Context, ev Event) {
	for _, h := range b.handlers[ev.Type] {
		h(ctx, ev)
	}

	if b.sink == nil {
		return
	}
	if err := b.sink.Publish(ctx, ev); err != nil {
		b.log.Error().
			Err(err).
			Str("event_id", ev.ID.String()).
			Str("event_type", string(ev.Type)).
			Msg("sink publish failed")
	}
}
