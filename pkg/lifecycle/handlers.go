package lifecycle

import (
	"github.com/cfoust/dodgeball/pkg/authority"
	"github.com/cfoust/dodgeball/pkg/ball"
	"github.com/cfoust/dodgeball/pkg/geom"
	"github.com/cfoust/dodgeball/pkg/protocol"
	"github.com/cfoust/dodgeball/pkg/session"
)

func (m *Manager) registerHandlers() {
	bus := m.ctx.Bus
	bus.On(protocol.JoinOp, m.onJoin)
	bus.On(protocol.LeaveOp, m.onLeave)
	bus.On(protocol.SpawnBallOp, m.onSpawn)
	bus.On(protocol.DestroyBallOp, m.onDestroy)
	bus.On(protocol.BallStateOp, m.onState)
	bus.On(protocol.OwnershipRequestOp, m.onOwnershipRequest)
	bus.On(protocol.OwnershipGrantedOp, m.onOwnershipGranted)
	bus.On(protocol.OwnershipDeniedOp, m.onOwnershipDenied)
	bus.On(protocol.ThrowRequestOp, m.onThrowRequest)
	bus.On(protocol.CatchIntentOp, m.onCatchIntent)
	bus.On(protocol.DamageOp, m.onDamage)
	bus.On(protocol.HoldPhaseOp, m.onHoldPhase)
	bus.On(protocol.EffectOp, m.onEffect)
	bus.On(protocol.ForceResetOp, m.onForceReset)
}

// onJoin brings a late joiner up to date. The leader announces every ball
// and each owner follows up with the state of the balls it owns.
func (m *Manager) onJoin(from protocol.ActorID, msg protocol.Message) {
	join := msg.(*protocol.Join)
	if join.Actor == m.ctx.Local {
		return
	}

	leader := m.ctx.IsLeader()
	for _, handle := range m.order {
		inst := m.instances[handle]
		owned := inst.token.IsOwner(m.ctx.Local)
		if !leader && !owned {
			continue
		}

		if leader {
			spawn := protocol.SpawnBall{
				Handle:    inst.handle,
				Owner:     inst.token.Owner(),
				Position:  inst.machine.Ball.Position,
				Temporary: inst.temporary,
			}
			if inst.temporary {
				spawn.Lifetime = inst.expiry.TimeLeft()
			}
			m.ctx.Bus.SendTo(join.Actor, spawn)
		}

		if owned {
			m.ctx.Bus.SendTo(join.Actor, inst.machine.Snapshot(m.ctx.Local, m.ctx.Now()))
		}
	}

	m.broadcastPose()
}

// onLeave hands the balls of a departed participant to the leader. A new
// leader also takes over creating the ball if there is none.
func (m *Manager) onLeave(from protocol.ActorID, msg protocol.Message) {
	left := msg.(*protocol.Leave).Actor
	leader := m.ctx.Leader()

	for _, handle := range append([]protocol.Handle(nil), m.order...) {
		inst := m.instances[handle]

		if inst.token.Status() == authority.Unowned || inst.token.Owner() == left {
			inst.token.Force(leader)
			inst.logger.Info().
				Int32("left", int32(left)).
				Int32("owner", int32(leader)).
				Msg("reassigned ball")
			m.publish(EventAuthorityChanged, inst.handle, leader, leader == m.ctx.Local)
			if leader == m.ctx.Local {
				inst.dirty = true
			}
		} else if _, to, ok := inst.token.Pending(); ok && to == left {
			inst.token.Cancel(left)
		}

		if !inst.token.IsOwner(m.ctx.Local) {
			continue
		}

		b := inst.machine.Ball
		switch {
		case b.HolderID() == left:
			inst.touch(m.ctx.Tick())
			inst.machine.Drop(geom.Zero)
			inst.dirty = true
		case b.ThrowerID() == left:
			inst.touch(m.ctx.Tick())
			inst.machine.Release(b.Velocity)
			inst.dirty = true
		}
	}

	m.ensurePrimary()
}

func (m *Manager) onSpawn(from protocol.ActorID, msg protocol.Message) {
	spawn := msg.(*protocol.SpawnBall)
	if _, ok := m.instances[spawn.Handle]; ok {
		return
	}

	if !spawn.Temporary && m.primary != 0 {
		// Two leaders spawned at once. The lower handle wins everywhere.
		if spawn.Handle > m.primary {
			return
		}
		current := m.instances[m.primary]
		m.logger.Warn().
			Uint32("kept", uint32(spawn.Handle)).
			Uint32("dropped", uint32(current.handle)).
			Msg("duplicate ball")
		m.destroy(current, current.token.IsOwner(m.ctx.Local))
	}

	inst := m.track(spawn.Handle, spawn.Owner, spawn.Position, spawn.Temporary)
	if spawn.Temporary {
		m.expireAfter(inst, spawn.Lifetime)
		return
	}

	m.primary = inst.handle
	if m.discovery != Discovered {
		m.discovery = Discovered
		inst.logger.Info().Int32("owner", int32(spawn.Owner)).Msg("discovered ball")
		m.publish(EventDiscovered, inst.handle, spawn.Owner, true)
	}
}

func (m *Manager) onDestroy(from protocol.ActorID, msg protocol.Message) {
	if inst, ok := m.instances[msg.(*protocol.DestroyBall).Handle]; ok {
		m.destroy(inst, false)
	}
}

// onState applies a snapshot from a ball's owner. One arriving for a ball we
// own means two processes believe they own it. A newer snapshot from anyone
// else is held back in case the grant to its sender is still on the way.
func (m *Manager) onState(from protocol.ActorID, msg protocol.Message) {
	state := msg.(*protocol.BallState)
	inst, ok := m.instances[state.Handle]
	if !ok {
		return
	}

	if inst.token.IsOwner(m.ctx.Local) {
		if state.Epoch < inst.machine.Ball.Epoch {
			return
		}
		inst.logger.Error().
			Int32("other", int32(from)).
			Msg("two participants own the same ball")
		m.forceReset(inst)
		return
	}

	if !inst.machine.Newer(*state) {
		return
	}
	if inst.token.Owner() != from {
		if inst.early == nil || inst.earlyFrom != from || later(*state, *inst.early) {
			early := *state
			inst.early, inst.earlyFrom = &early, from
		}
		return
	}
	inst.machine.Apply(*state, m.ctx.Now())
}

// later reports whether a comes after b in (Epoch, Seq) order.
func later(a, b protocol.BallState) bool {
	if a.Epoch != b.Epoch {
		return a.Epoch > b.Epoch
	}
	return a.Seq > b.Seq
}

func (m *Manager) onOwnershipRequest(from protocol.ActorID, msg protocol.Message) {
	request := msg.(*protocol.OwnershipRequest)
	inst, ok := m.instances[request.Handle]
	if !ok {
		m.ctx.Bus.SendTo(request.Requester, protocol.OwnershipDenied{
			Handle:    request.Handle,
			Requester: request.Requester,
		})
		return
	}

	// Requests are drained between ticks, so this only guards against a
	// handler ever running inside a simulation step.
	if inst.token.Mutating() {
		inst.token.Defer(request.Requester)
		return
	}
	m.grant(inst, request.Requester)
}

// grant hands an owned, Free ball to requester. Anything else is denied so
// that the requester stops waiting.
func (m *Manager) grant(inst *instance, requester protocol.ActorID) {
	var (
		now       = m.ctx.Now()
		p, joined = m.ctx.Participant(requester)
		grace     = inst.claimed && now-inst.claimedAt < m.config.ClaimGrace
	)

	if !inst.token.IsOwner(m.ctx.Local) || inst.machine.State() != ball.Free || grace || !joined || !p.Connected {
		inst.logger.Debug().
			Int32("requester", int32(requester)).
			Str("state", inst.machine.State().String()).
			Msg("denied ownership")
		m.ctx.Bus.SendTo(requester, protocol.OwnershipDenied{
			Handle:    inst.handle,
			Requester: requester,
		})
		return
	}

	inst.machine.Ball.Seq++
	state := inst.machine.Snapshot(requester, now)
	if err := inst.token.Grant(m.ctx.Local, requester); err != nil {
		inst.logger.Error().Err(err).Msg("could not grant ownership")
		return
	}
	inst.claimed = false

	m.ctx.Bus.Broadcast(protocol.OwnershipGranted{
		Handle: inst.handle,
		From:   m.ctx.Local,
		To:     requester,
		State:  state,
	})
	inst.logger.Debug().Int32("to", int32(requester)).Msg("granted ownership")
	m.publish(EventAuthorityChanged, inst.handle, requester, true)
}

func (m *Manager) onOwnershipGranted(from protocol.ActorID, msg protocol.Message) {
	granted := msg.(*protocol.OwnershipGranted)
	inst, ok := m.instances[granted.Handle]
	if !ok {
		return
	}

	if inst.token.IsOwner(m.ctx.Local) {
		inst.logger.Error().
			Int32("from", int32(granted.From)).
			Int32("to", int32(granted.To)).
			Msg("ball granted by another owner")
		m.forceReset(inst)
		return
	}

	if err := inst.token.Grant(granted.From, granted.To); err != nil {
		// A forced reassignment raced with the grant.
		inst.logger.Debug().Err(err).Msg("ignoring grant")
		return
	}

	if inst.machine.Newer(granted.State) {
		inst.machine.Apply(granted.State, m.ctx.Now())
	}
	if early := inst.early; early != nil {
		inst.early = nil
		if inst.earlyFrom == granted.To && inst.machine.Newer(*early) {
			inst.machine.Apply(*early, m.ctx.Now())
		}
	}

	if granted.To == m.ctx.Local {
		inst.claimed = true
		inst.claimedAt = m.ctx.Now()
		inst.logger.Debug().Msg("acquired ball")
	}
	m.publish(EventAuthorityChanged, inst.handle, granted.To, false)
}

func (m *Manager) onOwnershipDenied(from protocol.ActorID, msg protocol.Message) {
	denied := msg.(*protocol.OwnershipDenied)
	if denied.Requester != m.ctx.Local {
		return
	}
	if inst, ok := m.instances[denied.Handle]; ok {
		inst.token.Cancel(m.ctx.Local)
	}
}

// onThrowRequest executes a throw for a holder that does not own the ball.
// Any other process passes it on to whoever does, the leader included, so
// only the owner ever mutates the ball.
func (m *Manager) onThrowRequest(from protocol.ActorID, msg protocol.Message) {
	request := msg.(*protocol.ThrowRequest)
	inst, ok := m.instances[request.Handle]
	if !ok {
		return
	}

	if inst.token.IsOwner(m.ctx.Local) {
		result := m.throw(inst, request.Thrower, request.Direction, request.Power, ball.ThrowKind(request.Kind))
		inst.logger.Debug().
			Int32("thrower", int32(request.Thrower)).
			Str("result", result.String()).
			Msg("relayed throw")
		return
	}

	owner := inst.token.Owner()
	if owner == protocol.NoActor || owner == from {
		return
	}
	m.ctx.Bus.SendTo(owner, *request)
}

func (m *Manager) onCatchIntent(from protocol.ActorID, msg protocol.Message) {
	intent := msg.(*protocol.CatchIntent)
	inst, ok := m.instances[intent.Handle]
	if !ok || !inst.token.IsOwner(m.ctx.Local) {
		return
	}
	inst.machine.CatchIntent(intent.Catcher, m.ctx.Now())
}

// onDamage applies a damage directive to the local participant. Health is
// only ever changed by the participant's own process.
func (m *Manager) onDamage(from protocol.ActorID, msg protocol.Message) {
	damage := msg.(*protocol.Damage)
	if damage.Target != m.ctx.Local {
		return
	}

	self := m.ctx.Self()
	if self.Health <= 0 {
		return
	}

	m.ctx.Health.MutateHealth(self, int(damage.Amount), damage.Attacker)
	m.ctx.Bus.Broadcast(protocol.Health{
		Actor:  self.ID,
		Health: int32(self.Health),
	})

	m.Events.Publish(Event{
		Kind:     EventDamaged,
		Actor:    self.ID,
		Attacker: damage.Attacker,
		Damage:   int(damage.Amount),
		Reason:   damage.Reason,
		Position: self.Position,
		At:       m.ctx.Now(),
		Source:   true,
	})
	m.logger.Debug().
		Int32("attacker", int32(damage.Attacker)).
		Int32("amount", damage.Amount).
		Int("health", self.Health).
		Msg("took damage")

	if geom.IsZero(damage.Knockback) {
		return
	}
	knockback := damage.Knockback
	m.ctx.Scheduler.After(damage.Delay, func() {
		m.ctx.Characters.ApplyKnockback(self, knockback)
		m.broadcastPose()
	})
}

func (m *Manager) onHoldPhase(from protocol.ActorID, msg protocol.Message) {
	phase := msg.(*protocol.HoldPhase)
	if inst, ok := m.instances[phase.Handle]; ok && !inst.token.IsOwner(m.ctx.Local) {
		inst.machine.MirrorPhase(ball.Phase(phase.Phase))
		m.Events.Publish(Event{
			Kind:   EventPhase,
			Handle: phase.Handle,
			Actor:  phase.Holder,
			Phase:  ball.Phase(phase.Phase),
			At:     m.ctx.Now(),
		})
	}
}

func (m *Manager) onEffect(from protocol.ActorID, msg protocol.Message) {
	effect := msg.(*protocol.Effect)
	m.ctx.Effects.SpawnEffect(session.EffectKind(effect.Kind), effect.Position, nil)
}

func (m *Manager) onForceReset(from protocol.ActorID, msg protocol.Message) {
	reset := msg.(*protocol.ForceReset)
	if inst, ok := m.instances[reset.Handle]; ok {
		m.applyForceReset(inst, *reset, false)
	}
}
