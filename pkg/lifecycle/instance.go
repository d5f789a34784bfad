package lifecycle

import (
	"time"

	"github.com/cfoust/dodgeball/pkg/authority"
	"github.com/cfoust/dodgeball/pkg/ball"
	"github.com/cfoust/dodgeball/pkg/geom"
	"github.com/cfoust/dodgeball/pkg/protocol"
	"github.com/cfoust/dodgeball/pkg/schedule"

	"github.com/rs/zerolog"
)

type instance struct {
	handle    protocol.Handle
	machine   *ball.Machine
	token     *authority.Token
	temporary bool
	expiry    *schedule.Timer
	logger    zerolog.Logger

	// When this process last got the ball by asking for it.
	claimedAt time.Duration
	claimed   bool

	lastSync time.Duration
	dirty    bool

	// A snapshot that beat the grant making its sender the owner. Applied
	// once that grant arrives.
	early     *protocol.BallState
	earlyFrom protocol.ActorID

	mutated     bool
	mutatedTick uint64
}

func (i *instance) touch(tick uint64) {
	i.mutated = true
	i.mutatedTick = tick
}

// nextHandle returns a handle no other process can produce: the upper bits
// are the local actor.
func (m *Manager) nextHandle() protocol.Handle {
	m.spawned++
	return protocol.Handle(uint32(m.ctx.Local)<<16 | m.spawned&0xffff)
}

// track starts following a ball created here or announced by someone else.
func (m *Manager) track(handle protocol.Handle, owner protocol.ActorID, position geom.Vec, temporary bool) *instance {
	inst := &instance{
		handle:    handle,
		machine:   ball.NewMachine(ball.New(handle, position), m.settings),
		token:     authority.New(owner),
		temporary: temporary,
		logger: m.logger.With().
			Uint32("ball", uint32(handle)).
			Logger(),
	}
	m.instances[handle] = inst
	m.order = append(m.order, handle)
	return inst
}

func (m *Manager) spawnPrimary() {
	inst := m.track(m.nextHandle(), m.ctx.Local, m.config.Spawn, false)
	m.primary = inst.handle
	m.discovery = Discovered

	inst.logger.Info().Msg("spawned ball")
	m.ctx.Bus.Broadcast(protocol.SpawnBall{
		Handle:   inst.handle,
		Owner:    m.ctx.Local,
		Position: m.config.Spawn,
	})
	m.broadcastState(inst)
	m.publish(EventSpawned, inst.handle, m.ctx.Local, true)
}

// spawnExtras creates the temporary balls that fly alongside a multi-throw.
func (m *Manager) spawnExtras(source *instance, profile ball.Profile) {
	var (
		b     = source.machine.Ball
		count = profile.ExtraBalls
	)

	for i := 0; i < count; i++ {
		// Alternate sides of the original throw, fanning outwards.
		offset := float64(i/2 + 1)
		if i%2 == 1 {
			offset = -offset
		}
		velocity := geom.RotateY(b.Velocity, offset*profile.ExtraSpread)

		inst := m.track(m.nextHandle(), m.ctx.Local, b.Position, true)
		inst.touch(m.ctx.Tick())
		inst.machine.Launch(b.ThrowerID(), b.TargetID(), velocity, b.Kind, b.Damage)

		m.ctx.Bus.Broadcast(protocol.SpawnBall{
			Handle:    inst.handle,
			Owner:     m.ctx.Local,
			Position:  b.Position,
			Temporary: true,
			Lifetime:  profile.ExtraLifetime,
		})
		m.expireAfter(inst, profile.ExtraLifetime)
		m.broadcastState(inst)
		m.publish(EventSpawned, inst.handle, m.ctx.Local, true)
	}
}

// expireAfter destroys a temporary ball once its lifetime is over. Every
// process runs its own timer so the ball disappears even if its owner left.
func (m *Manager) expireAfter(inst *instance, lifetime time.Duration) {
	if lifetime <= 0 {
		return
	}
	inst.expiry = m.ctx.Scheduler.After(lifetime, func() {
		m.destroy(inst, inst.token.IsOwner(m.ctx.Local))
	})
}

// destroy stops tracking a ball, optionally telling everyone else.
func (m *Manager) destroy(inst *instance, announce bool) {
	if _, ok := m.instances[inst.handle]; !ok {
		return
	}

	inst.expiry.Stop()
	delete(m.instances, inst.handle)
	for i, handle := range m.order {
		if handle == inst.handle {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	if m.primary == inst.handle {
		m.primary = 0
	}

	if announce {
		m.ctx.Bus.Broadcast(protocol.DestroyBall{Handle: inst.handle})
	}
	inst.logger.Debug().Msg("destroyed ball")
	m.publish(EventDestroyed, inst.handle, protocol.NoActor, announce)
}
