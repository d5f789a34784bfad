// Package loopback connects participant processes that live in the same Go
// process. Delivery is reliable and ordered, with an optional latency
// measured in hub steps so simulations stay deterministic.
package loopback

import (
	"github.com/cfoust/dodgeball/pkg/protocol"

	"github.com/sasha-s/go-deadlock"
)

type delivery struct {
	envelope protocol.Envelope
	at       uint64
}

type Hub struct {
	mutex     deadlock.Mutex
	endpoints map[protocol.ActorID]*Endpoint
	// Join order, used for broadcasts.
	order   []protocol.ActorID
	members map[protocol.ActorID]protocol.Join
	next    protocol.ActorID
	latency uint64
	step    uint64
}

func NewHub() *Hub {
	return &Hub{
		endpoints: make(map[protocol.ActorID]*Endpoint),
		members:   make(map[protocol.ActorID]protocol.Join),
		next:      1,
	}
}

// SetLatency delays every delivery by the given number of steps.
func (h *Hub) SetLatency(steps uint64) {
	h.mutex.Lock()
	h.latency = steps
	h.mutex.Unlock()
}

// Step advances hub time by one step, releasing delayed deliveries.
func (h *Hub) Step() {
	h.mutex.Lock()
	h.step++
	h.mutex.Unlock()
}

// Connect attaches a new participant. The newcomer learns about every
// member, itself included, and the others learn about the newcomer.
func (h *Hub) Connect(name, character string) *Endpoint {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	actor := h.next
	h.next++

	endpoint := &Endpoint{
		hub:   h,
		actor: actor,
	}

	join := protocol.Join{
		Actor:     actor,
		Name:      name,
		Character: character,
	}
	h.endpoints[actor] = endpoint
	h.members[actor] = join
	h.order = append(h.order, actor)

	for _, id := range h.order {
		h.deliver(actor, actor, h.members[id])
		if id != actor {
			h.deliver(actor, id, join)
		}
	}

	return endpoint
}

// Disconnect removes a participant and tells everyone else.
func (h *Hub) Disconnect(actor protocol.ActorID) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if _, ok := h.endpoints[actor]; !ok {
		return
	}

	delete(h.endpoints, actor)
	delete(h.members, actor)
	for i, id := range h.order {
		if id == actor {
			h.order = append(h.order[:i], h.order[i+1:]...)
			break
		}
	}

	for _, id := range h.order {
		h.deliver(actor, id, protocol.Leave{Actor: actor})
	}
}

// deliver queues a membership message from the hub itself. These skip the
// configured latency but still cannot overtake earlier deliveries. Callers
// hold the lock.
func (h *Hub) deliver(about, to protocol.ActorID, msg protocol.Message) {
	env, err := protocol.Wrap(about, to, msg)
	if err != nil {
		return
	}
	h.queue(to, env, h.step)
}

func (h *Hub) queue(to protocol.ActorID, env protocol.Envelope, at uint64) {
	endpoint, ok := h.endpoints[to]
	if !ok {
		return
	}
	endpoint.inbox = append(endpoint.inbox, delivery{
		envelope: env,
		at:       at,
	})
}

func (h *Hub) route(env protocol.Envelope) error {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if _, ok := h.endpoints[env.From]; !ok {
		return ErrDisconnected
	}

	if env.To != protocol.NoActor {
		h.queue(env.To, env, h.step+h.latency)
		return nil
	}

	for _, id := range h.order {
		if id == env.From {
			continue
		}
		h.queue(id, env, h.step+h.latency)
	}
	return nil
}
