package ball

import (
	"fmt"

	"github.com/cfoust/dodgeball/pkg/geom"
	"github.com/cfoust/dodgeball/pkg/protocol"

	"github.com/repeale/fp-go/option"
)

type State uint8

const (
	Free State = iota
	Held
	Thrown
)

func (s State) String() string {
	switch s {
	case Free:
		return "free"
	case Held:
		return "held"
	case Thrown:
		return "thrown"
	}
	return "unknown"
}

// Ball is the raw state of one shared object. Transitions go through the
// methods below so that the references stay consistent with State.
type Ball struct {
	Handle   protocol.Handle
	State    State
	Position geom.Vec
	Velocity geom.Vec
	Grounded bool

	Holder  opt.Option[protocol.ActorID]
	Thrower opt.Option[protocol.ActorID]
	Target  opt.Option[protocol.ActorID]

	Kind        ThrowKind
	Damage      int
	WallBounces int

	// Incremented by the owner every time it publishes the ball. Epoch
	// moves on every forced reset and restarts Seq.
	Epoch uint32
	Seq   uint32
}

func New(handle protocol.Handle, position geom.Vec) *Ball {
	return &Ball{
		Handle:   handle,
		State:    Free,
		Position: position,
		Holder:   opt.None[protocol.ActorID](),
		Thrower:  opt.None[protocol.ActorID](),
		Target:   opt.None[protocol.ActorID](),
	}
}

func actorOf(o opt.Option[protocol.ActorID]) protocol.ActorID {
	if opt.IsNone(o) {
		return protocol.NoActor
	}
	return o.Value
}

func optionOf(actor protocol.ActorID) opt.Option[protocol.ActorID] {
	if actor == protocol.NoActor {
		return opt.None[protocol.ActorID]()
	}
	return opt.Some(actor)
}

func (b *Ball) HolderID() protocol.ActorID  { return actorOf(b.Holder) }
func (b *Ball) ThrowerID() protocol.ActorID { return actorOf(b.Thrower) }
func (b *Ball) TargetID() protocol.ActorID  { return actorOf(b.Target) }

func (b *Ball) clearThrow() {
	b.Thrower = opt.None[protocol.ActorID]()
	b.Target = opt.None[protocol.ActorID]()
	b.Damage = 0
}

// pickup moves a Free ball into actor's hands.
func (b *Ball) pickup(actor protocol.ActorID) bool {
	if b.State != Free || actor == protocol.NoActor {
		return false
	}
	b.State = Held
	b.Holder = opt.Some(actor)
	b.Velocity = geom.Zero
	b.Grounded = false
	return true
}

func (b *Ball) throw(actor, target protocol.ActorID, velocity geom.Vec, kind ThrowKind, damage int) bool {
	if b.State != Held || b.HolderID() != actor {
		return false
	}
	b.State = Thrown
	b.Holder = opt.None[protocol.ActorID]()
	b.Thrower = opt.Some(actor)
	b.Target = optionOf(target)
	b.Velocity = velocity
	b.Kind = kind
	b.Damage = damage
	b.WallBounces = 0
	b.Grounded = false
	return true
}

// catch skips Free entirely.
func (b *Ball) catch(actor protocol.ActorID) bool {
	if b.State != Thrown || actor == protocol.NoActor {
		return false
	}
	b.clearThrow()
	b.State = Held
	b.Holder = opt.Some(actor)
	b.Velocity = geom.Zero
	return true
}

// release lets go of the ball from any state with the given velocity.
func (b *Ball) release(velocity geom.Vec) {
	b.clearThrow()
	b.Holder = opt.None[protocol.ActorID]()
	b.State = Free
	b.Velocity = velocity
}

func (b *Ball) reset(position geom.Vec) {
	b.release(geom.Zero)
	b.Position = position
	b.Kind = Normal
	b.WallBounces = 0
	b.Grounded = false
}

// Check verifies that the optional references agree with State.
func (b *Ball) Check() error {
	if opt.IsSome(b.Holder) != (b.State == Held) {
		return fmt.Errorf("ball %d is %s with holder %d", b.Handle, b.State, b.HolderID())
	}
	if opt.IsSome(b.Thrower) != (b.State == Thrown) {
		return fmt.Errorf("ball %d is %s with thrower %d", b.Handle, b.State, b.ThrowerID())
	}
	if opt.IsSome(b.Target) && b.State != Thrown {
		return fmt.Errorf("ball %d is %s with target %d", b.Handle, b.State, b.TargetID())
	}
	return nil
}
