package session

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/cfoust/dodgeball/pkg/protocol"
	"github.com/cfoust/dodgeball/pkg/schedule"

	"github.com/rs/zerolog"
)

// Clock is the monotonic session clock. It only moves when the host advances
// it, so a simulation can run faster than real time.
type Clock struct {
	now  time.Duration
	tick uint64
}

func (c *Clock) Now() time.Duration { return c.now }
func (c *Clock) Tick() uint64       { return c.tick }

func (c *Clock) Advance(dt time.Duration) {
	c.now += dt
	c.tick++
}

// Context is everything one participant process shares between its
// components for the lifetime of a session.
type Context struct {
	Local     protocol.ActorID
	Registry  *Registry
	Clock     *Clock
	Bus       *Bus
	Scheduler *schedule.Scheduler

	Effects    Effects
	Health     HealthMutator
	Stats      StatProvider
	Characters Characters

	Logger zerolog.Logger

	rng    *rand.Rand
	warned map[string]struct{}
}

type Option func(*Context)

func WithEffects(effects Effects) Option {
	return func(c *Context) { c.Effects = effects }
}

func WithHealth(health HealthMutator) Option {
	return func(c *Context) { c.Health = health }
}

func WithStats(stats StatProvider) Option {
	return func(c *Context) { c.Stats = stats }
}

func WithCharacters(characters Characters) Option {
	return func(c *Context) { c.Characters = characters }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Context) { c.Logger = logger }
}

// WithRand seeds every random draw the session makes, which makes catch
// rolls and bounce jitter reproducible.
func WithRand(rng *rand.Rand) Option {
	return func(c *Context) { c.rng = rng }
}

func NewContext(local protocol.ActorID, name, character string, transport Transport, options ...Option) *Context {
	clock := &Clock{}
	c := &Context{
		Local:      local,
		Registry:   NewRegistry(),
		Clock:      clock,
		Scheduler:  schedule.New(clock),
		Effects:    nopEffects{},
		Health:     basicHealth{},
		Characters: basicCharacters{},
		Logger:     zerolog.Nop(),
		warned:     make(map[string]struct{}),
	}

	for _, option := range options {
		option(c)
	}

	if c.rng == nil {
		c.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	c.Logger = c.Logger.With().Int32("actor", int32(local)).Logger()
	c.Bus = NewBus(local, transport, c.Logger)

	c.Registry.Join(local, name, character, 0)

	c.Bus.On(protocol.JoinOp, func(from protocol.ActorID, msg protocol.Message) {
		join := msg.(*protocol.Join)
		if _, added := c.Registry.Join(join.Actor, join.Name, join.Character, c.Now()); added {
			c.Logger.Debug().Int32("joined", int32(join.Actor)).Str("name", join.Name).Msg("participant joined")
		}
	})
	c.Bus.On(protocol.LeaveOp, func(from protocol.ActorID, msg protocol.Message) {
		leave := msg.(*protocol.Leave)
		if _, ok := c.Registry.Leave(leave.Actor); ok {
			c.Logger.Debug().Int32("left", int32(leave.Actor)).Msg("participant left")
		}
	})
	c.Bus.On(protocol.PoseOp, func(from protocol.ActorID, msg protocol.Message) {
		pose := msg.(*protocol.Pose)
		if p, ok := c.Registry.Get(pose.Actor); ok {
			p.Position = pose.Position
			p.Facing = pose.Facing
			p.Scale = pose.Scale
			p.Ducking = pose.Ducking
		}
	})
	c.Bus.On(protocol.HealthOp, func(from protocol.ActorID, msg protocol.Message) {
		health := msg.(*protocol.Health)
		if health.Actor == c.Local {
			return
		}
		if p, ok := c.Registry.Get(health.Actor); ok {
			p.Health = int(health.Health)
		}
	})

	return c
}

func (c *Context) Now() time.Duration { return c.Clock.Now() }
func (c *Context) Tick() uint64       { return c.Clock.Tick() }
func (c *Context) Rand() *rand.Rand   { return c.rng }

func (c *Context) Advance(dt time.Duration) {
	c.Clock.Advance(dt)
}

func (c *Context) Leader() protocol.ActorID {
	return c.Registry.Leader()
}

func (c *Context) IsLeader() bool {
	return c.Registry.Leader() == c.Local
}

func (c *Context) Self() *Participant {
	p, _ := c.Registry.Get(c.Local)
	return p
}

func (c *Context) Participant(id protocol.ActorID) (*Participant, bool) {
	return c.Registry.Get(id)
}

func (c *Context) EachParticipant(fn func(*Participant) bool) {
	c.Registry.Each(fn)
}

// Stat returns a character stat for an actor, or fallback when there is no
// provider or the character does not define it. Each missing lookup is
// warned about once.
func (c *Context) Stat(actor protocol.ActorID, name string, fallback float64) float64 {
	if c.Stats == nil {
		c.warnOnce("stats", "no character stat provider, using defaults")
		return fallback
	}

	character := ""
	if p, ok := c.Registry.Get(actor); ok {
		character = p.Character
	}

	value, ok := c.Stats.Stat(character, name)
	if !ok {
		c.warnOnce(
			fmt.Sprintf("stat:%s:%s", character, name),
			fmt.Sprintf("character %q has no stat %q, using %v", character, name, fallback),
		)
		return fallback
	}
	return value
}

func (c *Context) warnOnce(key, message string) {
	if _, ok := c.warned[key]; ok {
		return
	}
	c.warned[key] = struct{}{}
	c.Logger.Warn().Msg(message)
}

func (c *Context) Close() error {
	c.Scheduler.Clear()
	return c.Bus.Close()
}
