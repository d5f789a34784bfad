package session

import (
	"errors"

	"github.com/cfoust/dodgeball/pkg/protocol"

	"github.com/rs/zerolog"
)

var ErrClosed = errors.New("transport closed")

// Transport moves envelopes between processes. Delivery between any two
// peers must be reliable and ordered. Implementations never deliver a
// process's own broadcasts back to it.
type Transport interface {
	Send(protocol.Envelope) error
	// Poll returns everything received since the last call without blocking.
	Poll() []protocol.Envelope
	Close() error
}

type Handler func(from protocol.ActorID, msg protocol.Message)

// Bus dispatches incoming messages to handlers at tick boundaries.
type Bus struct {
	local     protocol.ActorID
	transport Transport
	handlers  map[protocol.Op][]Handler
	// Messages addressed to ourselves wait here until the next Drain.
	loopback []protocol.Envelope
	logger   zerolog.Logger
}

func NewBus(local protocol.ActorID, transport Transport, logger zerolog.Logger) *Bus {
	return &Bus{
		local:     local,
		transport: transport,
		handlers:  make(map[protocol.Op][]Handler),
		logger:    logger,
	}
}

// On registers a handler for op. Handlers run in registration order.
func (b *Bus) On(op protocol.Op, handler Handler) {
	b.handlers[op] = append(b.handlers[op], handler)
}

func (b *Bus) Broadcast(msg protocol.Message) {
	b.SendTo(protocol.NoActor, msg)
}

// SendTo delivers msg to a single actor. Sending fails silently and is
// logged: callers observe the outcome through later state, never through
// the send itself.
func (b *Bus) SendTo(to protocol.ActorID, msg protocol.Message) {
	env, err := protocol.Wrap(b.local, to, msg)
	if err != nil {
		b.logger.Error().Err(err).Msg("failed to encode message")
		return
	}

	if to == b.local {
		b.loopback = append(b.loopback, env)
		return
	}

	if err := b.transport.Send(env); err != nil {
		b.logger.Warn().Err(err).Str("op", msg.Op().String()).Msg("failed to send message")
	}
}

// Drain dispatches every queued message and returns how many were handled.
func (b *Bus) Drain() int {
	pending := b.loopback
	b.loopback = nil
	pending = append(pending, b.transport.Poll()...)

	for _, env := range pending {
		msg, err := env.Open()
		if err != nil {
			b.logger.Warn().Err(err).Int32("from", int32(env.From)).Msg("dropping malformed message")
			continue
		}

		for _, handler := range b.handlers[env.Op] {
			handler(env.From, msg)
		}
	}

	return len(pending)
}

func (b *Bus) Close() error {
	return b.transport.Close()
}
