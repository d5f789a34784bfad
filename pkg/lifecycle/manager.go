// Package lifecycle coordinates the shared balls of one session: who creates
// them, who may change them and how that right moves between participants.
package lifecycle

import (
	"time"

	"github.com/cfoust/dodgeball/pkg/authority"
	"github.com/cfoust/dodgeball/pkg/ball"
	"github.com/cfoust/dodgeball/pkg/geom"
	"github.com/cfoust/dodgeball/pkg/protocol"
	"github.com/cfoust/dodgeball/pkg/schedule"
	"github.com/cfoust/dodgeball/pkg/session"
	"github.com/cfoust/dodgeball/pkg/utils"

	"github.com/rs/zerolog"
)

type Config struct {
	// How long a participant waits for the leader to announce the ball.
	DiscoveryTimeout time.Duration `yaml:"discoveryTimeout"`
	WatchdogInterval time.Duration `yaml:"watchdogInterval"`
	// Balls outside of this volume are reset.
	Bounds geom.Box `yaml:"bounds"`
	Spawn  geom.Vec `yaml:"spawn"`
	// How long a requester waits for an answer to an ownership request.
	TransferTimeout time.Duration `yaml:"transferTimeout"`
	// After gaining a ball through a request, the new owner refuses to hand
	// it on for this long so that it gets to act on it.
	ClaimGrace   time.Duration `yaml:"claimGrace"`
	SyncInterval time.Duration `yaml:"syncInterval"`
}

type Result uint8

const (
	// The operation took effect locally.
	Applied Result = iota
	// The operation was sent to another participant or is waiting on one.
	// Retry on a later tick.
	Pending
	Rejected
)

func (r Result) String() string {
	switch r {
	case Applied:
		return "applied"
	case Pending:
		return "pending"
	case Rejected:
		return "rejected"
	}
	return "unknown"
}

type Discovery uint8

const (
	Waiting Discovery = iota
	Discovered
	Failed
)

func (d Discovery) String() string {
	switch d {
	case Waiting:
		return "waiting"
	case Discovered:
		return "discovered"
	case Failed:
		return "failed"
	}
	return "unknown"
}

type Manager struct {
	ctx      *session.Context
	config   Config
	settings *ball.Settings
	logger   zerolog.Logger

	instances map[protocol.Handle]*instance
	// Creation order, which is also simulation order.
	order   []protocol.Handle
	primary protocol.Handle
	spawned uint32

	discovery         Discovery
	discoveryDeadline time.Duration
	watchdog          *schedule.Timer

	Events *utils.Topic[Event]
}

func New(ctx *session.Context, config Config, settings *ball.Settings) *Manager {
	m := &Manager{
		ctx:               ctx,
		config:            config,
		settings:          settings,
		logger:            ctx.Logger.With().Str("module", "lifecycle").Logger(),
		instances:         make(map[protocol.Handle]*instance),
		discoveryDeadline: ctx.Now() + config.DiscoveryTimeout,
		Events:            utils.NewTopic[Event](),
	}

	m.registerHandlers()

	if config.WatchdogInterval > 0 {
		m.watchdog = ctx.Scheduler.After(config.WatchdogInterval, m.watch)
	}

	return m
}

// Tick runs one simulation step: incoming messages first, then deferred
// authority work, timers, the simulation itself and finally publication.
func (m *Manager) Tick(dt time.Duration) {
	m.ctx.Advance(dt)
	m.ctx.Bus.Drain()

	m.flushDeferred()
	m.ctx.Scheduler.Run()

	m.ensurePrimary()
	m.checkDiscovery()

	for _, handle := range append([]protocol.Handle(nil), m.order...) {
		if inst, ok := m.instances[handle]; ok {
			m.step(inst, dt)
		}
	}
}

func (m *Manager) ensurePrimary() {
	if m.primary != 0 || !m.ctx.IsLeader() {
		return
	}
	m.spawnPrimary()
}

func (m *Manager) checkDiscovery() {
	if m.discovery != Waiting || m.ctx.Now() < m.discoveryDeadline {
		return
	}
	m.discovery = Failed
	m.logger.Warn().
		Dur("timeout", m.config.DiscoveryTimeout).
		Msg("ball was never announced, giving up")
	m.publish(EventDiscoveryFailed, 0, protocol.NoActor, true)
}

func (m *Manager) step(inst *instance, dt time.Duration) {
	if !inst.token.IsOwner(m.ctx.Local) {
		inst.machine.Mirror(dt, m.ctx)
		if inst.token.Expired(m.ctx.Now(), m.config.TransferTimeout) {
			if inst.token.Cancel(m.ctx.Local) {
				inst.logger.Debug().Msg("ownership request timed out")
			}
		}
		return
	}

	before := inst.machine.State()

	inst.token.BeginMutation()
	inst.touch(m.ctx.Tick())
	events := inst.machine.Update(dt, m.ctx)
	inst.token.EndMutation()

	if err := inst.machine.Ball.Check(); err != nil {
		inst.logger.Error().Err(err).Msg("ball state is inconsistent")
		m.reset(inst)
		return
	}

	for _, event := range events {
		m.handleBallEvent(inst, event)
	}

	if len(events) > 0 || inst.machine.State() != before {
		inst.dirty = true
	}

	if inst.dirty || m.ctx.Now()-inst.lastSync >= m.config.SyncInterval {
		m.broadcastState(inst)
	}
}

func (m *Manager) handleBallEvent(inst *instance, event ball.Event) {
	switch event.Kind {
	case ball.EventPhase:
		m.ctx.Bus.Broadcast(protocol.HoldPhase{
			Handle: inst.handle,
			Holder: event.Actor,
			Phase:  uint8(event.Phase),
		})
		if kind, ok := phaseEffects[event.Phase]; ok {
			m.effect(inst, kind, event.Position)
		}
	case ball.EventPenalty:
		m.sendDamage(event.Actor, protocol.NoActor, event.Damage, event.Reason, geom.Zero, 0)
	case ball.EventHit:
		m.sendDamage(event.Actor, event.Attacker, event.Damage, event.Reason, event.Knockback, event.Delay)
		m.effect(inst, session.EffectImpact, event.Position)
	case ball.EventCaught:
		m.effect(inst, session.EffectCatch, event.Position)
	case ball.EventWallBounce:
		m.effect(inst, session.EffectWallBounce, event.Position)
	}

	inst.logger.Debug().
		Str("event", event.Kind.String()).
		Int32("target", int32(event.Actor)).
		Msg("ball event")
	m.publishBall(inst.handle, event)
}

var phaseEffects = map[ball.Phase]session.EffectKind{
	ball.PhaseWarning: session.EffectWarning,
	ball.PhaseDanger:  session.EffectDanger,
	ball.PhasePenalty: session.EffectPenalty,
}

// effect spawns a cosmetic effect here and on every other process.
func (m *Manager) effect(inst *instance, kind session.EffectKind, position geom.Vec) {
	m.ctx.Effects.SpawnEffect(kind, position, nil)
	m.ctx.Bus.Broadcast(protocol.Effect{
		Handle:   inst.handle,
		Kind:     uint8(kind),
		Position: position,
	})
}

// sendDamage asks the target's own process to damage it.
func (m *Manager) sendDamage(target, attacker protocol.ActorID, amount int, reason protocol.DamageReason, knockback geom.Vec, delay time.Duration) {
	m.ctx.Bus.SendTo(target, protocol.Damage{
		Target:    target,
		Attacker:  attacker,
		Amount:    int32(amount),
		Reason:    reason,
		Knockback: knockback,
		Delay:     delay,
	})
}

func (m *Manager) broadcastState(inst *instance) {
	b := inst.machine.Ball
	b.Seq++
	m.ctx.Bus.Broadcast(inst.machine.Snapshot(m.ctx.Local, m.ctx.Now()))
	inst.lastSync = m.ctx.Now()
	inst.dirty = false
}

// watch resets balls that left the arena. It runs on its own interval rather
// than every tick.
func (m *Manager) watch() {
	m.watchdog = m.ctx.Scheduler.After(m.config.WatchdogInterval, m.watch)

	for _, handle := range append([]protocol.Handle(nil), m.order...) {
		inst, ok := m.instances[handle]
		if !ok || !inst.token.IsOwner(m.ctx.Local) {
			continue
		}
		position := inst.machine.Ball.Position
		if m.config.Bounds.Contains(position) {
			continue
		}

		inst.logger.Debug().
			Floats64("position", position[:]).
			Msg("ball out of bounds")

		if inst.temporary {
			m.destroy(inst, true)
			continue
		}
		m.reset(inst)
	}
}

// reset returns an owned ball to the spawn point.
func (m *Manager) reset(inst *instance) {
	inst.touch(m.ctx.Tick())
	inst.machine.Reset(m.config.Spawn)
	m.publish(EventReset, inst.handle, protocol.NoActor, true)
	m.broadcastState(inst)
}

func (m *Manager) flushDeferred() {
	for _, handle := range m.order {
		inst := m.instances[handle]
		for _, requester := range inst.token.TakeDeferred() {
			m.grant(inst, requester)
		}
	}
}

func (m *Manager) Close() error {
	m.watchdog.Stop()
	return nil
}

// Queries about the primary ball for HUDs.

func (m *Manager) Discovery() Discovery { return m.discovery }

func (m *Manager) Primary() (protocol.Handle, bool) {
	return m.primary, m.primary != 0
}

func (m *Manager) primaryMachine() *ball.Machine {
	inst, ok := m.instances[m.primary]
	if !ok {
		return nil
	}
	return inst.machine
}

func (m *Manager) State() ball.State {
	if machine := m.primaryMachine(); machine != nil {
		return machine.State()
	}
	return ball.Free
}

func (m *Manager) Holder() protocol.ActorID {
	if machine := m.primaryMachine(); machine != nil {
		return machine.Ball.HolderID()
	}
	return protocol.NoActor
}

func (m *Manager) Thrower() protocol.ActorID {
	if machine := m.primaryMachine(); machine != nil {
		return machine.Ball.ThrowerID()
	}
	return protocol.NoActor
}

func (m *Manager) HoldProgress() float64 {
	if machine := m.primaryMachine(); machine != nil {
		return machine.HoldProgress(m.ctx.Now())
	}
	return 0
}

func (m *Manager) HoldPhase() ball.Phase {
	if machine := m.primaryMachine(); machine != nil {
		return machine.HoldPhase()
	}
	return ball.PhaseNormal
}

// Ball returns a copy of a ball as this process currently sees it.
func (m *Manager) Ball(handle protocol.Handle) (ball.Ball, bool) {
	inst, ok := m.instances[handle]
	if !ok {
		return ball.Ball{}, false
	}
	return *inst.machine.Ball, true
}

func (m *Manager) Owner(handle protocol.Handle) protocol.ActorID {
	inst, ok := m.instances[handle]
	if !ok {
		return protocol.NoActor
	}
	return inst.token.Owner()
}

// Authority returns the state of this process's token for a ball.
func (m *Manager) Authority(handle protocol.Handle) authority.Status {
	inst, ok := m.instances[handle]
	if !ok {
		return authority.Unowned
	}
	return inst.token.Status()
}

func (m *Manager) Handles() []protocol.Handle {
	return append([]protocol.Handle(nil), m.order...)
}

// LastMutation returns the tick in which this process last changed a ball.
func (m *Manager) LastMutation(handle protocol.Handle) (uint64, bool) {
	inst, ok := m.instances[handle]
	if !ok || !inst.mutated {
		return 0, false
	}
	return inst.mutatedTick, true
}
