package ball

import (
	"math"
	"time"

	"github.com/cfoust/dodgeball/pkg/geom"
	"github.com/cfoust/dodgeball/pkg/protocol"
	"github.com/cfoust/dodgeball/pkg/session"
)

const DefaultThrowDamage = 20

// Settings is the complete tuning of a ball.
type Settings struct {
	Physics   Physics         `yaml:"ball"`
	Hold      HoldConfig      `yaml:"hold"`
	Collision CollisionConfig `yaml:"collision"`
	Catch     CatchConfig     `yaml:"catch"`
	Throw     Profiles        `yaml:"throw"`
}

type EventKind uint8

const (
	EventPickedUp EventKind = iota
	EventThrown
	EventCaught
	EventHit
	EventPhase
	EventPenalty
	EventDropped
	EventWallBounce
	// A thrown ball became Free by itself.
	EventLanded
	EventReset
)

func (k EventKind) String() string {
	switch k {
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
	}
	return "unknown"
}

// Event describes something the owner's simulation did to the ball.
type Event struct {
	Kind     EventKind
	Actor    protocol.ActorID
	Attacker protocol.ActorID
	Phase    Phase
	Damage   int
	Reason   protocol.DamageReason
	// Applied to Actor once Delay has passed.
	Knockback geom.Vec
	Delay     time.Duration
	Position  geom.Vec
}

// Machine runs the Free, Held and Thrown behavior of one ball. Every method
// that changes the ball must only be called by the ball's owner.
type Machine struct {
	Ball     *Ball
	Hold     *HoldClock
	Resolver *Resolver

	settings *Settings

	dropPending bool
	dropAt      time.Duration
}

func NewMachine(b *Ball, settings *Settings) *Machine {
	return &Machine{
		Ball:     b,
		Hold:     NewHoldClock(&settings.Hold),
		Resolver: NewResolver(settings),
		settings: settings,
	}
}

func (m *Machine) State() State { return m.Ball.State }

// InReach reports whether p is close enough to pick the ball up.
func (m *Machine) InReach(p *session.Participant, w World) bool {
	return geom.Distance(m.Ball.Position, m.Resolver.targetPoint(p, w)) <= m.settings.Physics.PickupRadius
}

// Pickup puts a Free ball in actor's hands and starts a new hold episode.
func (m *Machine) Pickup(actor protocol.ActorID, w World) bool {
	if !m.Ball.pickup(actor) {
		return false
	}
	m.Hold.Start(w.Now())
	m.dropPending = false
	return true
}

// Throw launches the ball held by actor.
func (m *Machine) Throw(actor protocol.ActorID, direction geom.Vec, power float64, kind ThrowKind, w World) bool {
	b := m.Ball
	if b.State != Held || b.HolderID() != actor {
		return false
	}

	var (
		physics = &m.settings.Physics
		profile = m.settings.Throw.For(kind)
	)

	dir := geom.Normalize(direction)
	if geom.IsZero(dir) {
		if holder, ok := w.Participant(actor); ok {
			dir = geom.Normalize(holder.Facing)
		}
	}
	if geom.IsZero(dir) {
		dir = geom.Vec{0, 0, 1}
	}

	accuracy := math.Max(0, math.Min(1, w.Stat(actor, StatAccuracy, 1)))
	if spread := (1 - accuracy) * physics.MaxAimError; spread > 0 {
		dir = geom.RotateY(dir, (w.Rand().Float64()*2-1)*spread)
	}

	power = math.Max(physics.MinPower, math.Min(1, power))
	speed := physics.ThrowSpeed * profile.Speed * w.Stat(actor, StatThrowSpeed, 1) * power
	damage := int(math.Round(w.Stat(actor, StatThrowDamage, DefaultThrowDamage) * profile.Damage))

	target := protocol.NoActor
	if profile.Homing > 0 {
		target = m.pickTarget(actor, dir, w)
	}

	if !b.throw(actor, target, dir.Mul(speed), kind, damage) {
		return false
	}
	m.Hold.Stop()
	m.dropPending = false
	m.Resolver.Arm()
	return true
}

// Launch sends a Free ball flying on behalf of actor without it having been
// held first. Used for the extra balls of a multi-throw.
func (m *Machine) Launch(actor, target protocol.ActorID, velocity geom.Vec, kind ThrowKind, damage int) bool {
	if !m.Ball.pickup(actor) {
		return false
	}
	m.Ball.throw(actor, target, velocity, kind, damage)
	m.Resolver.Arm()
	return true
}

// pickTarget chooses the living participant most in line with dir.
func (m *Machine) pickTarget(thrower protocol.ActorID, dir geom.Vec, w World) protocol.ActorID {
	var (
		best  = protocol.NoActor
		score = 0.0
	)
	w.EachParticipant(func(p *session.Participant) bool {
		if p.ID == thrower || !p.Alive() {
			return true
		}
		to := geom.Normalize(m.Resolver.targetPoint(p, w).Sub(m.Ball.Position))
		if alignment := to.Dot(dir); alignment > score {
			best = p.ID
			score = alignment
		}
		return true
	})
	return best
}

// CatchIntent records a catch input. It is a no-op unless the ball is in
// the air.
func (m *Machine) CatchIntent(actor protocol.ActorID, now time.Duration) bool {
	if m.Ball.State != Thrown {
		return false
	}
	m.Resolver.Intend(actor, now)
	return true
}

// Drop lets go of a held ball.
func (m *Machine) Drop(velocity geom.Vec) bool {
	if m.Ball.State != Held {
		return false
	}
	m.Ball.release(velocity)
	m.Hold.Stop()
	m.dropPending = false
	return true
}

// Release makes the ball Free from any state, keeping its position.
func (m *Machine) Release(velocity geom.Vec) {
	m.Ball.release(velocity)
	m.Hold.Stop()
	m.dropPending = false
}

// Reset forces the ball back to Free at position and clears everything that
// belonged to the previous hold or throw.
func (m *Machine) Reset(position geom.Vec) {
	m.Ball.reset(position)
	m.Hold.Stop()
	m.Resolver.Reset()
	m.dropPending = false
}

// Update advances the authoritative simulation by dt and reports what
// happened.
func (m *Machine) Update(dt time.Duration, w World) []Event {
	seconds := dt.Seconds()
	switch m.Ball.State {
	case Free:
		m.settings.Physics.stepFree(m.Ball, seconds)
		return nil
	case Held:
		return m.updateHeld(seconds, w)
	case Thrown:
		return m.updateThrown(seconds, w)
	}
	return nil
}

func (m *Machine) updateHeld(dt float64, w World) []Event {
	var (
		b      = m.Ball
		now    = w.Now()
		events []Event
	)

	actor := b.HolderID()
	holder, ok := w.Participant(actor)
	if !ok || !holder.Alive() {
		m.Drop(geom.Zero)
		return []Event{{Kind: EventDropped, Actor: actor, Position: b.Position}}
	}

	m.settings.Physics.follow(b, holder, dt)

	entered, penalize := m.Hold.Update(now)
	for _, phase := range entered {
		events = append(events, Event{
			Kind:     EventPhase,
			Actor:    actor,
			Phase:    phase,
			Position: b.Position,
		})
	}

	if penalize {
		events = append(events, Event{
			Kind:     EventPenalty,
			Actor:    actor,
			Damage:   m.settings.Hold.PenaltyDamage,
			Reason:   protocol.DamageHoldPenalty,
			Position: b.Position,
		})
		m.dropPending = true
		m.dropAt = now + m.settings.Hold.DropDelay
	}

	if m.dropPending && now >= m.dropAt {
		hold := &m.settings.Hold
		angle := w.Rand().Float64() * 2 * math.Pi
		outward := geom.RotateY(geom.Vec{0, 0, 1}, angle)
		m.Drop(outward.Mul(hold.DropSpeed).Add(geom.Up.Mul(hold.DropLift)))
		events = append(events, Event{Kind: EventDropped, Actor: actor, Position: b.Position})
	}

	return events
}

func (m *Machine) updateThrown(dt float64, w World) []Event {
	var (
		b       = m.Ball
		physics = &m.settings.Physics
		profile = m.settings.Throw.For(b.Kind)
		events  []Event
	)

	v := b.Velocity
	if target, ok := w.Participant(b.TargetID()); ok && profile.Homing > 0 && target.Alive() {
		toward := m.Resolver.targetPoint(target, w).Sub(b.Position)
		v = geom.SteerTowards(v, toward, profile.Homing*dt)
	}
	v[1] -= physics.ThrownGravity * dt

	next := b.Position.Add(v.Mul(dt))
	if hit, ok := physics.sweepWalls(b.Position, next); ok {
		b.Position, b.Velocity = physics.bounceWall(b.Position, next, v, hit)
		if b.WallBounces < physics.MaxWallBounces {
			b.WallBounces++
		}
		events = append(events, Event{
			Kind:     EventWallBounce,
			Attacker: b.ThrowerID(),
			Position: b.Position,
		})

		if b.WallBounces >= physics.MaxWallBounces || b.Velocity.Len() < physics.MinThrownSpeed {
			return append(events, m.land())
		}
		return append(events, m.resolve(w)...)
	}

	if next.Y() <= physics.floor() {
		next[1] = physics.floor()
		if v.Y() < 0 {
			v[1] = -v.Y() * physics.GroundBounce
		}
		if v.Len() < physics.MinThrownSpeed {
			b.Position, b.Velocity = next, v
			return append(events, m.land())
		}
	}

	b.Position, b.Velocity = next, v
	return append(events, m.resolve(w)...)
}

func (m *Machine) land() Event {
	thrower := m.Ball.ThrowerID()
	m.Release(m.Ball.Velocity)
	return Event{Kind: EventLanded, Attacker: thrower, Position: m.Ball.Position}
}

func (m *Machine) resolve(w World) []Event {
	b := m.Ball
	result, ok := m.Resolver.Resolve(b, w)
	if !ok {
		return nil
	}

	thrower := b.ThrowerID()
	if result.Caught {
		b.catch(result.Candidate)
		m.Hold.Start(w.Now())
		m.dropPending = false
		return []Event{{
			Kind:     EventCaught,
			Actor:    result.Candidate,
			Attacker: thrower,
			Position: b.Position,
		}}
	}

	reason := protocol.DamageHit
	if result.Attempted {
		reason = protocol.DamageFailedCatch
	}

	event := Event{
		Kind:      EventHit,
		Actor:     result.Candidate,
		Attacker:  thrower,
		Damage:    result.Damage,
		Reason:    reason,
		Knockback: result.Knockback,
		Delay:     m.settings.Collision.Hitstop,
		Position:  b.Position,
	}

	if m.settings.Collision.FreeOnHit {
		m.Release(result.Bounce)
	} else {
		b.Velocity = result.Bounce
	}

	return []Event{event}
}

// Mirror moves a ball this process does not own so that it looks right
// between snapshots. It never changes the state.
func (m *Machine) Mirror(dt time.Duration, w World) {
	b := m.Ball
	switch b.State {
	case Held:
		if holder, ok := w.Participant(b.HolderID()); ok {
			m.settings.Physics.follow(b, holder, dt.Seconds())
		}
	case Thrown:
		b.Position = b.Position.Add(b.Velocity.Mul(dt.Seconds()))
	case Free:
		if !b.Grounded {
			next := b.Position.Add(b.Velocity.Mul(dt.Seconds()))
			if next.Y() < m.settings.Physics.floor() {
				next[1] = m.settings.Physics.floor()
			}
			b.Position = next
		}
	}
}

// HoldProgress is the fraction of the maximum hold time used, in [0, 1].
func (m *Machine) HoldProgress(now time.Duration) float64 {
	if m.Ball.State != Held {
		return 0
	}
	return m.Hold.Progress(now)
}

func (m *Machine) HoldPhase() Phase {
	if m.Ball.State != Held {
		return PhaseNormal
	}
	return m.Hold.Phase()
}

// Snapshot captures the ball for publication.
func (m *Machine) Snapshot(owner protocol.ActorID, now time.Duration) protocol.BallState {
	b := m.Ball
	return protocol.BallState{
		Handle:      b.Handle,
		Epoch:       b.Epoch,
		Seq:         b.Seq,
		Owner:       owner,
		State:       uint8(b.State),
		Position:    b.Position,
		Velocity:    b.Velocity,
		Holder:      b.HolderID(),
		Thrower:     b.ThrowerID(),
		Target:      b.TargetID(),
		Kind:        uint8(b.Kind),
		Damage:      int32(b.Damage),
		WallBounces: int32(b.WallBounces),
		HoldElapsed: m.Hold.Elapsed(now),
		Phase:       uint8(m.Hold.Phase()),
		Penalized:   m.Hold.Penalized(),
	}
}

// Newer reports whether s comes after what the ball last saw.
func (m *Machine) Newer(s protocol.BallState) bool {
	b := m.Ball
	if s.Epoch != b.Epoch {
		return s.Epoch > b.Epoch
	}
	return s.Seq > b.Seq
}

// Apply overwrites the ball with a snapshot from its owner. A hold episode in
// progress carries over, so a ball changing hands mid-hold keeps its clock.
func (m *Machine) Apply(s protocol.BallState, now time.Duration) {
	b := m.Ball
	wasHeld := b.State == Held

	b.Epoch = s.Epoch
	b.Seq = s.Seq
	b.State = State(s.State)
	b.Position = s.Position
	b.Velocity = s.Velocity
	b.Holder = optionOf(s.Holder)
	b.Thrower = optionOf(s.Thrower)
	b.Target = optionOf(s.Target)
	b.Kind = ThrowKind(s.Kind)
	b.Damage = int(s.Damage)
	b.WallBounces = int(s.WallBounces)
	b.Grounded = false

	switch {
	case b.State == Held:
		m.Hold.Resume(now, s.HoldElapsed, Phase(s.Phase), s.Penalized)
		if s.Penalized && !m.dropPending {
			m.dropPending = true
			m.dropAt = now + m.settings.Hold.DropDelay
		}
	case wasHeld:
		m.Hold.Stop()
		m.dropPending = false
	}

	if b.State != Thrown {
		m.Resolver.Reset()
	}
}

// MirrorPhase applies a phase announced by the owner for display only.
func (m *Machine) MirrorPhase(phase Phase) {
	if m.Ball.State == Held && phase > m.Hold.phase {
		m.Hold.phase = phase
	}
}
