// Package bot plays dodgeball on behalf of a participant. Bots only use the
// public lifecycle operations, so they exercise the protocol the same way a
// human player's input would.
package bot

import (
	"math"
	"math/rand"
	"time"

	"github.com/cfoust/dodgeball/pkg/ball"
	"github.com/cfoust/dodgeball/pkg/geom"
	"github.com/cfoust/dodgeball/pkg/lifecycle"
	"github.com/cfoust/dodgeball/pkg/protocol"
	"github.com/cfoust/dodgeball/pkg/session"
)

type Settings struct {
	// Meters per second.
	Speed float64
	// How long to hold the ball before throwing, drawn uniformly.
	MinHold time.Duration
	MaxHold time.Duration
	// Chance of trying to catch rather than duck a ball coming our way.
	CatchChance float64
	// Distance at which an incoming ball is reacted to.
	ReactDistance float64
	// Half of the square the bot walks around in.
	Area float64
	// How long a knocked out bot waits before coming back. Zero means never.
	Revive time.Duration
}

var DefaultSettings = Settings{
	Speed:         4,
	MinHold:       500 * time.Millisecond,
	MaxHold:       4 * time.Second,
	CatchChance:   0.5,
	ReactDistance: 2.5,
	Area:          9,
	Revive:        5 * time.Second,
}

type Bot struct {
	settings Settings
	ctx      *session.Context
	manager  *lifecycle.Manager
	rng      *rand.Rand

	holdUntil time.Duration
	holding   bool
	wander    geom.Vec
	downSince time.Duration
	down      bool
}

func New(ctx *session.Context, manager *lifecycle.Manager, settings Settings) *Bot {
	return &Bot{
		settings: settings,
		ctx:      ctx,
		manager:  manager,
		rng:      ctx.Rand(),
	}
}

func (b *Bot) duration(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(b.rng.Int63n(int64(max-min)))
}

// Tick decides what to do this tick. Call it after the manager's Tick.
func (b *Bot) Tick(dt time.Duration) {
	self := b.ctx.Self()
	if !self.Alive() {
		b.knockedOut(self)
		return
	}
	b.down = false

	if b.manager.Holder() == self.ID {
		b.hold(self)
		return
	}
	b.holding = false

	if b.react(self) {
		return
	}

	if target, ok := b.nearest(self, ball.Free); ok {
		b.walk(self, target.Position, dt)
		if geom.Distance(geom.Horizontal(target.Position), geom.Horizontal(self.Position)) < 1 {
			b.manager.Pickup()
		}
		return
	}

	if geom.IsZero(b.wander) || geom.Distance(self.Position, b.wander) < 0.5 {
		b.wander = geom.Vec{
			(b.rng.Float64()*2 - 1) * b.settings.Area,
			0,
			(b.rng.Float64()*2 - 1) * b.settings.Area,
		}
	}
	b.walk(self, b.wander, dt)
}

func (b *Bot) knockedOut(self *session.Participant) {
	now := b.ctx.Now()
	if !b.down {
		b.down = true
		b.downSince = now
	}
	if b.settings.Revive == 0 || now-b.downSince < b.settings.Revive {
		return
	}

	self.Health = session.DefaultHealth
	b.ctx.Bus.Broadcast(protocol.Health{
		Actor:  self.ID,
		Health: int32(self.Health),
	})
	b.down = false
}

func (b *Bot) hold(self *session.Participant) {
	now := b.ctx.Now()
	if !b.holding {
		b.holding = true
		b.holdUntil = now + b.duration(b.settings.MinHold, b.settings.MaxHold)
	}
	if now < b.holdUntil {
		return
	}

	target, ok := b.opponent(self)
	if !ok {
		return
	}

	kind := ball.Normal
	switch roll := b.rng.Float64(); {
	case roll < 0.1:
		kind = ball.Ultimate
	case roll < 0.3:
		kind = ball.JumpThrow
	}

	direction := geom.Horizontal(target.Position.Sub(self.Position))
	b.manager.Throw(direction, 0.6+0.4*b.rng.Float64(), kind)
}

// react catches or ducks a ball that someone else threw close to us.
func (b *Bot) react(self *session.Participant) bool {
	incoming, ok := b.nearest(self, ball.Thrown)
	if !ok || incoming.ThrowerID() == self.ID {
		if self.Ducking {
			b.manager.UpdatePose(self.Position, self.Facing, false)
		}
		return false
	}
	if geom.Distance(incoming.Position, self.Position) > b.settings.ReactDistance {
		return false
	}

	if b.rng.Float64() < b.settings.CatchChance {
		b.manager.Catch()
	} else if !self.Ducking {
		b.manager.UpdatePose(self.Position, self.Facing, true)
	}
	return true
}

func (b *Bot) nearest(self *session.Participant, state ball.State) (ball.Ball, bool) {
	var (
		best     ball.Ball
		found    bool
		distance = math.Inf(1)
	)
	for _, handle := range b.manager.Handles() {
		candidate, ok := b.manager.Ball(handle)
		if !ok || candidate.State != state {
			continue
		}
		if d := geom.Distance(candidate.Position, self.Position); d < distance {
			best, found, distance = candidate, true, d
		}
	}
	return best, found
}

func (b *Bot) opponent(self *session.Participant) (*session.Participant, bool) {
	var (
		best     *session.Participant
		distance = math.Inf(1)
	)
	b.ctx.EachParticipant(func(p *session.Participant) bool {
		if p.ID == self.ID || !p.Alive() {
			return true
		}
		if d := geom.Distance(p.Position, self.Position); d < distance {
			best, distance = p, d
		}
		return true
	})
	return best, best != nil
}

func (b *Bot) walk(self *session.Participant, to geom.Vec, dt time.Duration) {
	step := geom.ClampLength(geom.Horizontal(to.Sub(self.Position)), b.settings.Speed*dt.Seconds())
	facing := self.Facing
	if !geom.IsZero(step) {
		facing = geom.Normalize(step)
	}
	b.manager.UpdatePose(self.Position.Add(step), facing, false)
}
