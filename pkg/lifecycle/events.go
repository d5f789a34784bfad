package lifecycle

import (
	"time"

	"github.com/cfoust/dodgeball/pkg/ball"
	"github.com/cfoust/dodgeball/pkg/geom"
	"github.com/cfoust/dodgeball/pkg/protocol"
)

type EventKind uint8

const (
	EventSpawned EventKind = iota
	EventDiscovered
	EventDiscoveryFailed
	EventDestroyed
	EventAuthorityChanged
	EventPickedUp
	EventThrown
	EventCaught
	EventHit
	EventPhase
	EventPenalty
	EventDropped
	EventWallBounce
	EventLanded
	EventReset
	// The local participant took damage.
	EventDamaged
)

func (k EventKind) String() string {
	switch k {
	case EventSpawned:
		return "spawned"
	case EventDiscovered:
		return "discovered"
	case EventDiscoveryFailed:
		return "discovery-failed"
	case EventDestroyed:
		return "destroyed"
	case EventAuthorityChanged:
		return "authority-changed"
	case EventPickedUp:
		return "picked-up"
	case EventThrown:
		return "thrown"
	case EventCaught:
		return "caught"
	case EventHit:
		return "hit"
	case EventPhase:
		return "phase"
	case EventPenalty:
		return "penalty"
	case EventDropped:
		return "dropped"
	case EventWallBounce:
		return "wall-bounce"
	case EventLanded:
		return "landed"
	case EventReset:
		return "reset"
	case EventDamaged:
		return "damaged"
	}
	return "unknown"
}

// Event is published on Manager.Events for journals, bots and cosmetics.
type Event struct {
	Kind     EventKind
	Handle   protocol.Handle
	Actor    protocol.ActorID
	Attacker protocol.ActorID
	Phase    ball.Phase
	Damage   int
	Reason   protocol.DamageReason
	Position geom.Vec
	At       time.Duration
	// Set on the one process that made the change: the ball's owner, or
	// the damaged participant's own process. Other processes publish what
	// they mirrored. Anything merging several processes' events keeps only
	// these.
	Source bool
}

var ballEvents = map[ball.EventKind]EventKind{
	ball.EventPickedUp:   EventPickedUp,
	ball.EventThrown:     EventThrown,
	ball.EventCaught:     EventCaught,
	ball.EventHit:        EventHit,
	ball.EventPhase:      EventPhase,
	ball.EventPenalty:    EventPenalty,
	ball.EventDropped:    EventDropped,
	ball.EventWallBounce: EventWallBounce,
	ball.EventLanded:     EventLanded,
	ball.EventReset:      EventReset,
}

func (m *Manager) publish(kind EventKind, handle protocol.Handle, actor protocol.ActorID, source bool) {
	m.Events.Publish(Event{
		Kind:   kind,
		Handle: handle,
		Actor:  actor,
		At:     m.ctx.Now(),
		Source: source,
	})
}

func (m *Manager) publishBall(handle protocol.Handle, event ball.Event) {
	m.Events.Publish(Event{
		Kind:     ballEvents[event.Kind],
		Handle:   handle,
		Actor:    event.Actor,
		Attacker: event.Attacker,
		Phase:    event.Phase,
		Damage:   event.Damage,
		Reason:   event.Reason,
		Position: event.Position,
		At:       m.ctx.Now(),
		Source:   true,
	})
}
