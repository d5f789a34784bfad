package main

import (
	"math/rand"
	"time"

	"github.com/cfoust/dodgeball/pkg/bot"
	"github.com/cfoust/dodgeball/pkg/config"
	"github.com/cfoust/dodgeball/pkg/geom"
	"github.com/cfoust/dodgeball/pkg/lifecycle"
	"github.com/cfoust/dodgeball/pkg/protocol"
	"github.com/cfoust/dodgeball/pkg/session"

	"github.com/rs/zerolog/log"
)

const tickRate = 20 * time.Millisecond

// player is one bot-controlled participant with its own session.
type player struct {
	ctx     *session.Context
	manager *lifecycle.Manager
	bot     *bot.Bot
}

type transport interface {
	session.Transport
	Actor() protocol.ActorID
}

func newPlayer(cfg *config.Config, conn transport, name, character string, rng *rand.Rand) *player {
	ctx := session.NewContext(
		conn.Actor(),
		name,
		character,
		conn,
		session.WithStats(&cfg.Stats),
		session.WithRand(rng),
		session.WithLogger(log.With().Str("player", name).Logger()),
	)
	manager := lifecycle.New(ctx, cfg.Lifecycle, &cfg.Settings)

	arena := cfg.Physics.Arena
	start := geom.Vec{
		arena.Min.X() + rng.Float64()*(arena.Max.X()-arena.Min.X()),
		arena.Min.Y(),
		arena.Min.Z() + rng.Float64()*(arena.Max.Z()-arena.Min.Z()),
	}
	manager.UpdatePose(start, geom.Vec{0, 0, 1}, false)

	return &player{
		ctx:     ctx,
		manager: manager,
		bot:     bot.New(ctx, manager, bot.DefaultSettings),
	}
}

func (p *player) tick(dt time.Duration) {
	p.manager.Tick(dt)
	p.bot.Tick(dt)
}

func (p *player) close() error {
	if err := p.manager.Close(); err != nil {
		return err
	}
	return p.ctx.Close()
}
