package lifecycle

import (
	"math/rand"
	"testing"
	"time"

	"github.com/cfoust/dodgeball/pkg/authority"
	"github.com/cfoust/dodgeball/pkg/ball"
	"github.com/cfoust/dodgeball/pkg/geom"
	"github.com/cfoust/dodgeball/pkg/protocol"
	"github.com/cfoust/dodgeball/pkg/session"
	"github.com/cfoust/dodgeball/pkg/transport/loopback"
	"github.com/cfoust/dodgeball/pkg/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tickRate = 20 * time.Millisecond

func testSettings() *ball.Settings {
	return &ball.Settings{
		Physics: ball.Physics{
			Radius:         0.2,
			Gravity:        9.8,
			GroundBounce:   0.5,
			GroundFriction: 2,
			MinBounceSpeed: 0.5,
			PickupRadius:   1.5,
			HoldOffset:     geom.Vec{0.4, 1.2, 0.5},
			ThrowSpeed:     20,
			MinPower:       0.3,
			WallBounce:     0.8,
			WallEnergyLoss: 0.9,
			WallCorrection: 0.01,
			MaxWallBounces: 3,
			MinThrownSpeed: 2,
			Arena: geom.Box{
				Min: geom.Vec{-10, 0, -10},
				Max: geom.Vec{10, 6, 10},
			},
		},
		Hold: ball.HoldConfig{
			Warning:       3 * time.Second,
			Danger:        4 * time.Second,
			Max:           5 * time.Second,
			PenaltyDamage: 10,
			DropDelay:     500 * time.Millisecond,
			DropSpeed:     4,
			DropLift:      3,
		},
		Collision: ball.CollisionConfig{
			Radius:      1.2,
			TorsoHeight: 1,
			DuckHeight:  0.8,
			Cooldown:    200 * time.Millisecond,
			Hitstop:     100 * time.Millisecond,
			Knockback:   0.5,
			BounceSpeed: 4,
			CatchBounce: 0.5,
			FreeOnHit:   true,
		},
		Catch: ball.CatchConfig{
			Radius:                 1.5,
			Window:                 150 * time.Millisecond,
			FailedDamageMultiplier: 0.7,
		},
		Throw: ball.Profiles{
			Normal:    ball.Profile{Speed: 1, Damage: 1, CatchChance: 0.8, BounceLift: 2},
			JumpThrow: ball.Profile{Speed: 1.2, Damage: 1.25, CatchChance: 0.6, BounceLift: 3},
			Ultimate: ball.Profile{
				Speed:         1.5,
				Damage:        2,
				CatchChance:   0.1,
				BounceLift:    4,
				ExtraBalls:    2,
				ExtraSpread:   0.3,
				ExtraLifetime: time.Second,
			},
		},
	}
}

func testConfig() Config {
	return Config{
		DiscoveryTimeout: 3 * time.Second,
		WatchdogInterval: 500 * time.Millisecond,
		Bounds: geom.Box{
			Min: geom.Vec{-20, -5, -20},
			Max: geom.Vec{20, 20, 20},
		},
		Spawn:           geom.Vec{0, 1.5, 0},
		TransferTimeout: 2 * time.Second,
		ClaimGrace:      300 * time.Millisecond,
		SyncInterval:    100 * time.Millisecond,
	}
}

type peer struct {
	endpoint *loopback.Endpoint
	ctx      *session.Context
	manager  *Manager
}

func (p *peer) actor() protocol.ActorID { return p.ctx.Local }

func (p *peer) move(position geom.Vec) {
	p.manager.UpdatePose(position, geom.Vec{0, 0, 1}, false)
}

func (p *peer) instance(handle protocol.Handle) *instance {
	return p.manager.instances[handle]
}

type sim struct {
	t        *testing.T
	hub      *loopback.Hub
	peers    []*peer
	settings *ball.Settings
	config   Config
}

func newSim(t *testing.T) *sim {
	return &sim{
		t:        t,
		hub:      loopback.NewHub(),
		settings: testSettings(),
		config:   testConfig(),
	}
}

func (s *sim) join(name string, position geom.Vec) *peer {
	endpoint := s.hub.Connect(name, "")
	ctx := session.NewContext(
		endpoint.Actor(),
		name,
		"",
		endpoint,
		session.WithRand(rand.New(rand.NewSource(int64(endpoint.Actor())))),
	)
	p := &peer{
		endpoint: endpoint,
		ctx:      ctx,
		manager:  New(ctx, s.config, s.settings),
	}
	p.move(position)
	s.peers = append(s.peers, p)
	return p
}

func (s *sim) leave(p *peer) {
	require.NoError(s.t, p.manager.Close())
	require.NoError(s.t, p.ctx.Close())
	for i, other := range s.peers {
		if other == p {
			s.peers = append(s.peers[:i], s.peers[i+1:]...)
			break
		}
	}
}

func (s *sim) tick(n int) {
	for i := 0; i < n; i++ {
		for _, p := range s.peers {
			p.manager.Tick(tickRate)
		}
		s.hub.Step()
	}
}

// until ticks until done returns true, failing the test after limit ticks.
func (s *sim) until(limit int, done func() bool) {
	for i := 0; i < limit; i++ {
		if done() {
			return
		}
		s.tick(1)
	}
	require.True(s.t, done(), "condition not met after %d ticks", limit)
}

func collect(sub *utils.Subscriber[Event]) []Event {
	var events []Event
	for {
		select {
		case event := <-sub.Recv():
			events = append(events, event)
		default:
			return events
		}
	}
}

func kinds(events []Event, kind EventKind) []Event {
	var matching []Event
	for _, event := range events {
		if event.Kind == kind {
			matching = append(matching, event)
		}
	}
	return matching
}

func TestLeaderSpawnsBall(t *testing.T) {
	s := newSim(t)
	a := s.join("a", geom.Vec{5, 0, 5})
	sub := a.manager.Events.Subscribe()
	defer sub.Done()

	s.tick(1)

	handle, ok := a.manager.Primary()
	require.True(t, ok)
	assert.Equal(t, protocol.Handle(1<<16|1), handle)
	assert.Equal(t, Discovered, a.manager.Discovery())
	assert.Equal(t, a.actor(), a.manager.Owner(handle))
	assert.Equal(t, authority.Owned, a.manager.Authority(handle))
	assert.Equal(t, ball.Free, a.manager.State())
	assert.Len(t, kinds(collect(sub), EventSpawned), 1)

	// Nobody else spawns a second one.
	s.tick(10)
	assert.Len(t, a.manager.Handles(), 1)
}

func TestLateJoinerDiscoversBall(t *testing.T) {
	s := newSim(t)
	a := s.join("a", geom.Vec{5, 0, 5})
	// Long enough for the ball to come to rest.
	s.tick(150)

	b := s.join("b", geom.Vec{-5, 0, -5})
	assert.Equal(t, Waiting, b.manager.Discovery())
	s.until(5, func() bool { return b.manager.Discovery() == Discovered })

	handle, _ := a.manager.Primary()
	mirrored, ok := b.manager.Primary()
	require.True(t, ok)
	assert.Equal(t, handle, mirrored)
	assert.Equal(t, a.actor(), b.manager.Owner(handle))
	assert.Len(t, b.manager.Handles(), 1)

	s.tick(10)
	original, _ := a.manager.Ball(handle)
	copied, _ := b.manager.Ball(handle)
	assert.InDelta(t, original.Position.Y(), copied.Position.Y(), 0.05)
	assert.Equal(t, original.Epoch, copied.Epoch)
}

func TestPickupThroughTransfer(t *testing.T) {
	s := newSim(t)
	a := s.join("a", geom.Vec{5, 0, 5})
	b := s.join("b", geom.Vec{0, 0, 0.5})
	s.tick(50)

	handle, ok := b.manager.Primary()
	require.True(t, ok)
	require.Equal(t, a.actor(), b.manager.Owner(handle))

	var results []Result
	for i := 0; i < 20; i++ {
		result := b.manager.Pickup()
		results = append(results, result)
		if result == Applied {
			break
		}
		s.tick(1)
	}

	require.NotEmpty(t, results)
	assert.Equal(t, Pending, results[0])
	assert.Equal(t, Applied, results[len(results)-1])
	for _, result := range results[:len(results)-1] {
		assert.Equal(t, Pending, result)
	}

	s.tick(2)
	for _, p := range s.peers {
		assert.Equal(t, b.actor(), p.manager.Owner(handle))
		assert.Equal(t, b.actor(), p.manager.Holder())
		assert.Equal(t, ball.Held, p.manager.State())
	}

	// Already holding.
	assert.Equal(t, Rejected, b.manager.Pickup())
}

func TestContestedPickup(t *testing.T) {
	s := newSim(t)
	s.join("a", geom.Vec{5, 0, 5})
	b := s.join("b", geom.Vec{0, 0, 0.5})
	c := s.join("c", geom.Vec{0.5, 0, 0})
	s.tick(50)

	applied := map[protocol.ActorID]int{}
	for i := 0; i < 40; i++ {
		for _, p := range []*peer{b, c} {
			if p.manager.Pickup() == Applied {
				applied[p.actor()]++
			}
		}
		s.tick(1)
	}

	total := 0
	for _, n := range applied {
		total += n
	}
	require.Equal(t, 1, total)

	holder := b.manager.Holder()
	require.Contains(t, []protocol.ActorID{b.actor(), c.actor()}, holder)
	for _, p := range s.peers {
		assert.Equal(t, holder, p.manager.Holder())
	}
}

// At most one process changes a ball in any tick, whatever the
// participants do.
func TestSingleMutatorPerTick(t *testing.T) {
	s := newSim(t)
	s.hub.SetLatency(1)
	rng := rand.New(rand.NewSource(42))

	for _, name := range []string{"a", "b", "c", "d"} {
		s.join(name, geom.Vec{rng.Float64()*4 - 2, 0, rng.Float64()*4 - 2})
	}

	for round := 0; round < 500; round++ {
		s.tick(1)

		mutators := map[protocol.Handle]int{}
		for _, p := range s.peers {
			for _, handle := range p.manager.Handles() {
				if tick, ok := p.manager.LastMutation(handle); ok && tick == p.ctx.Tick() {
					mutators[handle]++
				}
				b, _ := p.manager.Ball(handle)
				require.NoError(t, b.Check())
			}
		}
		for handle, n := range mutators {
			require.LessOrEqual(t, n, 1, "ball %d changed by %d processes in round %d", handle, n, round)
		}

		for _, p := range s.peers {
			switch roll := rng.Float64(); {
			case roll < 0.4:
				p.manager.Pickup()
			case roll < 0.5:
				kind := ball.Normal
				if rng.Float64() < 0.2 {
					kind = ball.Ultimate
				}
				direction := geom.Vec{rng.Float64()*2 - 1, 0, rng.Float64()*2 - 1}
				p.manager.Throw(direction, rng.Float64(), kind)
			case roll < 0.6:
				p.manager.Catch()
			case roll < 0.8:
				self := p.ctx.Self()
				next := self.Position.Add(geom.Vec{rng.Float64() - 0.5, 0, rng.Float64() - 0.5})
				p.move(geom.ClampLength(next, 3))
			}
		}
	}
}

func TestDiscoveryTimeout(t *testing.T) {
	s := newSim(t)
	// A leader that never announces anything.
	ghost := s.hub.Connect("ghost", "")
	b := s.join("b", geom.Vec{0, 0, 0.5})
	sub := b.manager.Events.Subscribe()
	defer sub.Done()

	s.tick(1)
	assert.Equal(t, ghost.Actor(), b.ctx.Leader())
	assert.Equal(t, Waiting, b.manager.Discovery())
	assert.Equal(t, Pending, b.manager.Pickup())

	s.until(200, func() bool { return b.manager.Discovery() == Failed })
	assert.GreaterOrEqual(t, b.ctx.Now(), s.config.DiscoveryTimeout)
	assert.Equal(t, Rejected, b.manager.Pickup())
	_, ok := b.manager.Primary()
	assert.False(t, ok)
	assert.Len(t, kinds(collect(sub), EventDiscoveryFailed), 1)

	// Once the silent leader is gone the next one creates the ball.
	require.NoError(t, ghost.Close())
	s.tick(1)
	assert.True(t, b.ctx.IsLeader())
	assert.Equal(t, Discovered, b.manager.Discovery())
	handle, ok := b.manager.Primary()
	require.True(t, ok)
	assert.Equal(t, b.actor(), b.manager.Owner(handle))
}

func TestOwnerLeavesWhileHolding(t *testing.T) {
	s := newSim(t)
	a := s.join("a", geom.Vec{0, 0, 0.5})
	b := s.join("b", geom.Vec{5, 0, 5})
	s.tick(2)

	require.Equal(t, Applied, a.manager.Pickup())
	s.tick(5)
	require.Equal(t, a.actor(), b.manager.Holder())

	handle, _ := b.manager.Primary()
	s.leave(a)
	s.tick(1)

	assert.True(t, b.ctx.IsLeader())
	assert.Equal(t, b.actor(), b.manager.Owner(handle))
	assert.Equal(t, authority.Owned, b.manager.Authority(handle))
	assert.Equal(t, ball.Free, b.manager.State())
	assert.Equal(t, protocol.NoActor, b.manager.Holder())
	assert.Len(t, b.manager.Handles(), 1)
}

func TestThrowRelayedToOwner(t *testing.T) {
	s := newSim(t)
	a := s.join("a", geom.Vec{5, 0, 5})
	b := s.join("b", geom.Vec{0, 0, 0.5})
	s.tick(2)

	// The owner places the ball in b's hands without giving it away.
	handle, _ := a.manager.Primary()
	inst := a.instance(handle)
	require.True(t, inst.machine.Pickup(b.actor(), a.ctx))
	a.manager.broadcastState(inst)
	s.tick(1)
	require.Equal(t, b.actor(), b.manager.Holder())
	require.Equal(t, a.actor(), b.manager.Owner(handle))

	assert.Equal(t, Pending, b.manager.Throw(geom.Vec{1, 0, 0}, 1, ball.Normal))
	s.until(5, func() bool { return b.manager.State() == ball.Thrown })

	assert.Equal(t, b.actor(), a.manager.Thrower())
	assert.Equal(t, b.actor(), b.manager.Thrower())
	assert.Equal(t, a.actor(), b.manager.Owner(handle))

	// Only the holder may ask.
	assert.Equal(t, Rejected, a.manager.Throw(geom.Vec{1, 0, 0}, 1, ball.Normal))
}

func TestHitDamagesTarget(t *testing.T) {
	s := newSim(t)
	a := s.join("a", geom.Vec{0, 0, 0})
	b := s.join("b", geom.Vec{0, 0, 4})
	aEvents := a.manager.Events.Subscribe()
	defer aEvents.Done()
	bEvents := b.manager.Events.Subscribe()
	defer bEvents.Done()
	s.tick(1)

	require.Equal(t, Applied, a.manager.Pickup())
	require.Equal(t, Applied, a.manager.Throw(geom.Vec{0, 0, 1}, 1, ball.Normal))

	s.until(50, func() bool { return b.ctx.Self().Health < session.DefaultHealth })
	assert.Equal(t, session.DefaultHealth-ball.DefaultThrowDamage, b.ctx.Self().Health)

	hits := kinds(collect(aEvents), EventHit)
	require.Len(t, hits, 1)
	assert.Equal(t, b.actor(), hits[0].Actor)
	assert.Equal(t, a.actor(), hits[0].Attacker)

	damaged := kinds(collect(bEvents), EventDamaged)
	require.Len(t, damaged, 1)
	assert.Equal(t, a.actor(), damaged[0].Attacker)
	assert.Equal(t, ball.DefaultThrowDamage, damaged[0].Damage)
	assert.Equal(t, protocol.DamageHit, damaged[0].Reason)

	// Knockback lands after the hitstop and the new health reaches everyone.
	s.tick(10)
	assert.InDelta(t, 4.5, b.ctx.Self().Position.Z(), 1e-9)
	seen, ok := a.ctx.Participant(b.actor())
	require.True(t, ok)
	assert.Equal(t, session.DefaultHealth-ball.DefaultThrowDamage, seen.Health)
	assert.InDelta(t, 4.5, seen.Position.Z(), 1e-9)

	// Hit once, never again for the same throw.
	s.tick(20)
	assert.Empty(t, kinds(collect(bEvents), EventDamaged))
}

func TestWatchdogResetsBall(t *testing.T) {
	s := newSim(t)
	a := s.join("a", geom.Vec{5, 0, 5})
	sub := a.manager.Events.Subscribe()
	defer sub.Done()
	s.tick(2)

	handle, _ := a.manager.Primary()
	a.instance(handle).machine.Ball.Position = geom.Vec{50, 1, 0}

	s.tick(30)
	b, _ := a.manager.Ball(handle)
	assert.True(t, s.config.Bounds.Contains(b.Position))
	assert.InDelta(t, 0, b.Position.X(), 1e-9)
	assert.Len(t, kinds(collect(sub), EventReset), 1)
}

func TestConflictingOwnersReset(t *testing.T) {
	s := newSim(t)
	a := s.join("a", geom.Vec{5, 0, 5})
	b := s.join("b", geom.Vec{-5, 0, -5})
	s.tick(5)

	handle, _ := a.manager.Primary()
	b.instance(handle).token.Force(b.actor())
	s.tick(20)

	for _, p := range s.peers {
		assert.Equal(t, a.actor(), p.manager.Owner(handle))
	}
	original, _ := a.manager.Ball(handle)
	copied, _ := b.manager.Ball(handle)
	assert.GreaterOrEqual(t, original.Epoch, uint32(1))
	assert.Equal(t, original.Epoch, copied.Epoch)
	assert.Equal(t, authority.Owned, a.manager.Authority(handle))
}

func TestUltimateExtrasExpire(t *testing.T) {
	s := newSim(t)
	a := s.join("a", geom.Vec{0, 0, 0})
	b := s.join("b", geom.Vec{0, 0, 4})
	s.tick(1)

	require.Equal(t, Applied, a.manager.Pickup())
	require.Equal(t, Applied, a.manager.Throw(geom.Vec{1, 0, 0}, 1, ball.Ultimate))
	assert.Len(t, a.manager.Handles(), 3)

	s.tick(1)
	assert.Len(t, b.manager.Handles(), 3)

	s.tick(60)
	for _, p := range s.peers {
		assert.Len(t, p.manager.Handles(), 1)
		_, ok := p.manager.Primary()
		assert.True(t, ok)
	}
}

func TestRespawn(t *testing.T) {
	s := newSim(t)
	a := s.join("a", geom.Vec{5, 0, 5})
	b := s.join("b", geom.Vec{-5, 0, -5})
	s.tick(2)

	before, _ := a.manager.Primary()
	assert.Equal(t, Rejected, b.manager.Respawn())
	require.Equal(t, Applied, a.manager.Respawn())
	s.tick(1)

	after, ok := b.manager.Primary()
	require.True(t, ok)
	assert.NotEqual(t, before, after)
	assert.Equal(t, []protocol.Handle{after}, b.manager.Handles())
}

func TestDuplicatePrimaryLowerHandleWins(t *testing.T) {
	s := newSim(t)
	a := s.join("a", geom.Vec{5, 0, 5})
	s.tick(1)

	spawned, _ := a.manager.Primary()
	a.manager.onSpawn(2, &protocol.SpawnBall{
		Handle:   1,
		Owner:    2,
		Position: geom.Vec{0, 1, 0},
	})

	primary, ok := a.manager.Primary()
	require.True(t, ok)
	assert.Equal(t, protocol.Handle(1), primary)
	assert.Equal(t, []protocol.Handle{1}, a.manager.Handles())

	// A higher handle arriving later is ignored.
	a.manager.onSpawn(2, &protocol.SpawnBall{Handle: spawned + 1})
	assert.Equal(t, []protocol.Handle{1}, a.manager.Handles())
}

func TestResetBall(t *testing.T) {
	s := newSim(t)
	a := s.join("a", geom.Vec{0, 0, 0.5})
	b := s.join("b", geom.Vec{5, 0, 5})
	s.tick(2)

	require.Equal(t, Applied, a.manager.Pickup())
	s.tick(1)
	assert.Equal(t, Rejected, b.manager.ResetBall())

	require.Equal(t, Applied, a.manager.ResetBall())
	s.tick(1)
	for _, p := range s.peers {
		assert.Equal(t, ball.Free, p.manager.State())
	}
}

func sourced(events []Event) []Event {
	var matching []Event
	for _, event := range events {
		if event.Source {
			matching = append(matching, event)
		}
	}
	return matching
}

func TestEventsFromTransferredOwner(t *testing.T) {
	s := newSim(t)
	a := s.join("a", geom.Vec{0, 0, 4.5})
	b := s.join("b", geom.Vec{0, 0, 0.5})
	aEvents := a.manager.Events.Subscribe()
	defer aEvents.Done()
	bEvents := b.manager.Events.Subscribe()
	defer bEvents.Done()
	s.tick(50)

	s.until(20, func() bool { return b.manager.Pickup() == Applied })
	require.Equal(t, Applied, b.manager.Throw(geom.Vec{0, 0, 1}, 1, ball.Normal))
	s.until(50, func() bool { return a.ctx.Self().Health < session.DefaultHealth })
	s.tick(5)

	var (
		fromA = collect(aEvents)
		fromB = collect(bEvents)
	)

	// a only mirrored the ball after giving it away.
	assert.Empty(t, kinds(sourced(fromA), EventPickedUp))
	assert.Empty(t, kinds(sourced(fromA), EventThrown))
	assert.Empty(t, kinds(sourced(fromA), EventHit))

	all := sourced(append(fromA, fromB...))
	require.Len(t, kinds(all, EventPickedUp), 1)
	thrown := kinds(all, EventThrown)
	require.Len(t, thrown, 1)
	assert.Equal(t, b.actor(), thrown[0].Actor)

	hits := kinds(all, EventHit)
	require.Len(t, hits, 1)
	assert.Equal(t, a.actor(), hits[0].Actor)
	assert.Equal(t, b.actor(), hits[0].Attacker)

	damaged := kinds(all, EventDamaged)
	require.Len(t, damaged, 1)
	assert.Equal(t, a.actor(), damaged[0].Actor)

	// The grant is reported once, by the process that gave the ball away.
	changed := kinds(all, EventAuthorityChanged)
	require.Len(t, changed, 1)
	assert.Equal(t, b.actor(), changed[0].Actor)
	assert.Len(t, kinds(fromB, EventAuthorityChanged), 1)
}

func TestThrowRequestForwardedByLeader(t *testing.T) {
	s := newSim(t)
	a := s.join("a", geom.Vec{8, 0, 8})
	b := s.join("b", geom.Vec{0, 0, 0.5})
	c := s.join("c", geom.Vec{-8, 0, -8})
	s.tick(50)

	handle, ok := a.manager.Primary()
	require.True(t, ok)
	require.True(t, a.ctx.IsLeader())

	// c owns the ball and has put it in b's hands.
	for _, p := range s.peers {
		p.instance(handle).token.Force(c.actor())
	}
	inst := c.instance(handle)
	require.True(t, inst.machine.Pickup(b.actor(), c.ctx))
	c.manager.broadcastState(inst)
	s.tick(2)
	require.Equal(t, b.actor(), a.manager.Holder())

	before, _ := a.manager.LastMutation(handle)

	// b still thinks the leader is the one to ask.
	b.ctx.Bus.SendTo(a.actor(), protocol.ThrowRequest{
		Handle:    handle,
		Thrower:   b.actor(),
		Direction: geom.Vec{0, 0, 1},
		Power:     1,
		Kind:      uint8(ball.Normal),
	})
	s.until(10, func() bool { return b.manager.State() == ball.Thrown })

	// The leader passed it on rather than throwing a ball it does not own.
	after, _ := a.manager.LastMutation(handle)
	assert.Equal(t, before, after)
	_, mutated := c.manager.LastMutation(handle)
	assert.True(t, mutated)

	for _, p := range s.peers {
		assert.Equal(t, c.actor(), p.manager.Owner(handle))
		assert.Equal(t, b.actor(), p.manager.Thrower())
	}
}

func TestSnapshotBeforeGrant(t *testing.T) {
	s := newSim(t)
	a := s.join("a", geom.Vec{5, 0, 5})
	b := s.join("b", geom.Vec{0, 0, 0.5})
	c := s.join("c", geom.Vec{-5, 0, -5})
	s.tick(50)

	handle, ok := a.manager.Primary()
	require.True(t, ok)

	// a hands the ball to b, and b picks it up straight away.
	granted := a.instance(handle).machine.Snapshot(b.actor(), a.ctx.Now())
	granted.Seq++
	held := granted
	held.Seq++
	held.State = uint8(ball.Held)
	held.Holder = b.actor()

	// c hears from b first.
	c.manager.onState(b.actor(), &held)
	assert.Equal(t, ball.Free, c.manager.State())
	assert.Equal(t, a.actor(), c.manager.Owner(handle))

	c.manager.onOwnershipGranted(a.actor(), &protocol.OwnershipGranted{
		Handle: handle,
		From:   a.actor(),
		To:     b.actor(),
		State:  granted,
	})
	assert.Equal(t, b.actor(), c.manager.Owner(handle))
	assert.Equal(t, ball.Held, c.manager.State())
	assert.Equal(t, b.actor(), c.manager.Holder())
	assert.Nil(t, c.instance(handle).early)
}

func TestEarlySnapshotNeedsMatchingGrant(t *testing.T) {
	s := newSim(t)
	a := s.join("a", geom.Vec{5, 0, 5})
	b := s.join("b", geom.Vec{0, 0, 0.5})
	c := s.join("c", geom.Vec{-5, 0, -5})
	s.tick(50)

	handle, _ := a.manager.Primary()
	granted := a.instance(handle).machine.Snapshot(c.actor(), a.ctx.Now())
	granted.Seq++
	held := granted
	held.Seq++
	held.State = uint8(ball.Held)
	held.Holder = b.actor()

	// b claims a ball that a then gives to c.
	c.manager.onState(b.actor(), &held)
	c.manager.onOwnershipGranted(a.actor(), &protocol.OwnershipGranted{
		Handle: handle,
		From:   a.actor(),
		To:     c.actor(),
		State:  granted,
	})
	assert.Equal(t, c.actor(), c.manager.Owner(handle))
	assert.Equal(t, ball.Free, c.manager.State())
}
