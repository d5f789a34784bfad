package loopback

import (
	"errors"

	"github.com/cfoust/dodgeball/pkg/protocol"
)

var ErrDisconnected = errors.New("endpoint is disconnected")

// Endpoint is one participant's connection to a Hub.
type Endpoint struct {
	hub   *Hub
	actor protocol.ActorID
	// Guarded by hub.mutex.
	inbox []delivery
}

func (e *Endpoint) Actor() protocol.ActorID {
	return e.actor
}

func (e *Endpoint) Send(env protocol.Envelope) error {
	env.From = e.actor
	return e.hub.route(env)
}

// Poll returns the deliveries that are due at the hub's current step, in the
// order they were sent.
func (e *Endpoint) Poll() []protocol.Envelope {
	e.hub.mutex.Lock()
	defer e.hub.mutex.Unlock()

	var (
		ready   []protocol.Envelope
		waiting []delivery
	)
	for _, d := range e.inbox {
		// Later deliveries may not overtake earlier ones.
		if d.at > e.hub.step || len(waiting) > 0 {
			waiting = append(waiting, d)
			continue
		}
		ready = append(ready, d.envelope)
	}
	e.inbox = waiting
	return ready
}

func (e *Endpoint) Close() error {
	e.hub.Disconnect(e.actor)
	return nil
}
