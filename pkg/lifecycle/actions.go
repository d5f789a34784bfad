package lifecycle

import (
	"github.com/cfoust/dodgeball/pkg/ball"
	"github.com/cfoust/dodgeball/pkg/geom"
	"github.com/cfoust/dodgeball/pkg/protocol"
)

// UpdatePose records where the local participant is and tells everyone.
func (m *Manager) UpdatePose(position, facing geom.Vec, ducking bool) {
	self := m.ctx.Self()
	self.Position = position
	self.Facing = facing
	self.Ducking = ducking
	m.broadcastPose()
}

func (m *Manager) broadcastPose() {
	self := m.ctx.Self()
	m.ctx.Bus.Broadcast(protocol.Pose{
		Actor:    self.ID,
		Position: self.Position,
		Facing:   self.Facing,
		Scale:    self.Scale,
		Ducking:  self.Ducking,
	})
}

// holding returns the ball actor holds, if any.
func (m *Manager) holding(actor protocol.ActorID) *instance {
	for _, handle := range m.order {
		inst := m.instances[handle]
		if inst.machine.State() == ball.Held && inst.machine.Ball.HolderID() == actor {
			return inst
		}
	}
	return nil
}

// Pickup tries to pick up the nearest Free ball in reach. A ball owned by
// someone else is requested first; keep calling Pickup on later ticks until
// it is Applied or Rejected.
func (m *Manager) Pickup() Result {
	self := m.ctx.Self()
	if !self.Alive() || m.holding(self.ID) != nil {
		return Rejected
	}

	var (
		nearest  *instance
		distance float64
	)
	for _, handle := range m.order {
		inst := m.instances[handle]
		if inst.machine.State() != ball.Free || !inst.machine.InReach(self, m.ctx) {
			continue
		}
		d := geom.Distance(inst.machine.Ball.Position, self.Position)
		if nearest == nil || d < distance {
			nearest, distance = inst, d
		}
	}

	if nearest == nil {
		if m.discovery == Waiting {
			return Pending
		}
		return Rejected
	}

	inst := nearest
	if inst.token.IsOwner(self.ID) {
		inst.touch(m.ctx.Tick())
		if !inst.machine.Pickup(self.ID, m.ctx) {
			return Rejected
		}
		inst.claimed = false
		m.publish(EventPickedUp, inst.handle, self.ID, true)
		m.broadcastState(inst)
		return Applied
	}

	if _, to, ok := inst.token.Pending(); ok {
		if to == self.ID {
			return Pending
		}
		return Rejected
	}

	if !inst.token.Request(self.ID, m.ctx.Now()) {
		inst.logger.Debug().Str("token", inst.token.String()).Msg("cannot request ball")
		return Rejected
	}

	m.ctx.Bus.SendTo(inst.token.Owner(), protocol.OwnershipRequest{
		Handle:    inst.handle,
		Requester: self.ID,
	})
	return Pending
}

// Throw throws the ball the local participant is holding. If another
// process owns it the request goes there.
func (m *Manager) Throw(direction geom.Vec, power float64, kind ball.ThrowKind) Result {
	self := m.ctx.Self()
	inst := m.holding(self.ID)
	if inst == nil {
		return Rejected
	}

	if inst.token.IsOwner(self.ID) {
		return m.throw(inst, self.ID, direction, power, kind)
	}

	owner := inst.token.Owner()
	if owner == protocol.NoActor {
		return Rejected
	}
	m.ctx.Bus.SendTo(owner, protocol.ThrowRequest{
		Handle:    inst.handle,
		Thrower:   self.ID,
		Direction: direction,
		Power:     power,
		Kind:      uint8(kind),
	})
	return Pending
}

// throw executes a throw on a ball this process owns.
func (m *Manager) throw(inst *instance, thrower protocol.ActorID, direction geom.Vec, power float64, kind ball.ThrowKind) Result {
	inst.touch(m.ctx.Tick())
	if !inst.machine.Throw(thrower, direction, power, kind, m.ctx) {
		return Rejected
	}

	m.publish(EventThrown, inst.handle, thrower, true)
	m.broadcastState(inst)

	if profile := m.settings.Throw.For(kind); profile.ExtraBalls > 0 && !inst.temporary {
		m.spawnExtras(inst, profile)
	}
	return Applied
}

// Catch signals that the local participant is trying to catch. The attempt
// counts for the nearest ball in the air that someone else threw.
func (m *Manager) Catch() Result {
	self := m.ctx.Self()
	if !self.Alive() {
		return Rejected
	}

	var (
		nearest  *instance
		distance float64
	)
	for _, handle := range m.order {
		inst := m.instances[handle]
		b := inst.machine.Ball
		if b.State != ball.Thrown || b.ThrowerID() == self.ID {
			continue
		}
		d := geom.Distance(b.Position, self.Position)
		if nearest == nil || d < distance {
			nearest, distance = inst, d
		}
	}
	if nearest == nil {
		return Rejected
	}

	if nearest.token.IsOwner(self.ID) {
		nearest.machine.CatchIntent(self.ID, m.ctx.Now())
		return Applied
	}

	m.ctx.Bus.SendTo(nearest.token.Owner(), protocol.CatchIntent{
		Handle:  nearest.handle,
		Catcher: self.ID,
	})
	return Pending
}

// ResetBall returns the primary ball to the spawn point. The owner does it
// directly, the leader by force.
func (m *Manager) ResetBall() Result {
	inst, ok := m.instances[m.primary]
	if !ok {
		return Rejected
	}

	if inst.token.IsOwner(m.ctx.Local) {
		m.reset(inst)
		return Applied
	}

	if !m.ctx.IsLeader() {
		return Rejected
	}
	m.forceReset(inst)
	return Applied
}

// forceReset resets a ball on every process and gives it to the leader.
func (m *Manager) forceReset(inst *instance) {
	reset := protocol.ForceReset{
		Handle: inst.handle,
		Epoch:  inst.machine.Ball.Epoch + 1,
		Owner:  m.ctx.Leader(),
	}
	m.ctx.Bus.Broadcast(reset)
	m.applyForceReset(inst, reset, true)
}

func (m *Manager) applyForceReset(inst *instance, reset protocol.ForceReset, source bool) {
	b := inst.machine.Ball
	if reset.Epoch <= b.Epoch {
		return
	}

	inst.machine.Reset(m.config.Spawn)
	b.Epoch = reset.Epoch
	b.Seq = 0
	inst.token.Force(reset.Owner)
	inst.claimed = false
	inst.early = nil

	inst.logger.Warn().
		Uint32("epoch", reset.Epoch).
		Int32("owner", int32(reset.Owner)).
		Msg("ball was force reset")
	m.publish(EventReset, inst.handle, reset.Owner, source)

	if inst.token.IsOwner(m.ctx.Local) {
		inst.touch(m.ctx.Tick())
		m.broadcastState(inst)
	}
}

// Respawn replaces every ball with a fresh one at the spawn point, as at the
// end of a round. Only the leader may do this.
func (m *Manager) Respawn() Result {
	if !m.ctx.IsLeader() {
		return Rejected
	}

	for _, handle := range append([]protocol.Handle(nil), m.order...) {
		m.destroy(m.instances[handle], true)
	}
	m.spawnPrimary()
	return Applied
}
