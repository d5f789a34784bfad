package session

import (
	"fmt"
	"time"

	"github.com/cfoust/dodgeball/pkg/geom"
	"github.com/cfoust/dodgeball/pkg/protocol"

	"github.com/elliotchance/orderedmap/v2"
)

const DefaultHealth = 100

// Describes one session member as seen by the local process.
type Participant struct {
	ID        protocol.ActorID
	Name      string
	Character string

	// Feet position and facing of the participant's character.
	Position geom.Vec
	Facing   geom.Vec
	Scale    float64
	Ducking  bool

	Health    int
	Connected bool
	JoinedAt  time.Duration
}

func (p *Participant) Alive() bool {
	return p.Connected && p.Health > 0
}

func (p *Participant) String() string {
	return fmt.Sprintf("%s (%d)", p.Name, p.ID)
}

// Registry is the incrementally maintained set of session members. Iteration
// order is join order, so every process walks candidates the same way.
type Registry struct {
	members *orderedmap.OrderedMap[protocol.ActorID, *Participant]
}

func NewRegistry() *Registry {
	return &Registry{
		members: orderedmap.NewOrderedMap[protocol.ActorID, *Participant](),
	}
}

// Join adds a participant or refreshes the name of an existing one. It
// returns the stored participant and whether it was new.
func (r *Registry) Join(id protocol.ActorID, name, character string, now time.Duration) (*Participant, bool) {
	if p, ok := r.members.Get(id); ok {
		if name != "" {
			p.Name = name
		}
		if character != "" {
			p.Character = character
		}
		p.Connected = true
		return p, false
	}

	p := &Participant{
		ID:        id,
		Name:      name,
		Character: character,
		Facing:    geom.Vec{0, 0, 1},
		Scale:     1,
		Health:    DefaultHealth,
		Connected: true,
		JoinedAt:  now,
	}
	r.members.Set(id, p)
	return p, true
}

func (r *Registry) Leave(id protocol.ActorID) (*Participant, bool) {
	p, ok := r.members.Get(id)
	if !ok {
		return nil, false
	}
	p.Connected = false
	r.members.Delete(id)
	return p, true
}

func (r *Registry) Get(id protocol.ActorID) (*Participant, bool) {
	return r.members.Get(id)
}

func (r *Registry) Len() int {
	return r.members.Len()
}

// Each calls fn for every participant in join order until fn returns false.
func (r *Registry) Each(fn func(*Participant) bool) {
	for el := r.members.Front(); el != nil; el = el.Next() {
		if !fn(el.Value) {
			return
		}
	}
}

// Leader returns the connected participant with the lowest actor id, which
// every process computes identically from the same membership events.
func (r *Registry) Leader() protocol.ActorID {
	leader := protocol.NoActor
	r.Each(func(p *Participant) bool {
		if p.Connected && (leader == protocol.NoActor || p.ID < leader) {
			leader = p.ID
		}
		return true
	})
	return leader
}
