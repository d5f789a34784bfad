package bot

import (
	"math/rand"
	"testing"
	"time"

	"github.com/cfoust/dodgeball/pkg/config"
	"github.com/cfoust/dodgeball/pkg/geom"
	"github.com/cfoust/dodgeball/pkg/lifecycle"
	"github.com/cfoust/dodgeball/pkg/session"
	"github.com/cfoust/dodgeball/pkg/transport/loopback"
	"github.com/cfoust/dodgeball/pkg/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tickRate = 20 * time.Millisecond

type player struct {
	ctx     *session.Context
	manager *lifecycle.Manager
	bot     *Bot
	events  *utils.Subscriber[lifecycle.Event]
}

func TestBotsPlay(t *testing.T) {
	cfg, err := config.Process(nil)
	require.NoError(t, err)

	hub := loopback.NewHub()
	hub.SetLatency(2)

	var players []*player
	for i, position := range []geom.Vec{{-5, 0, -5}, {5, 0, 5}, {-5, 0, 5}} {
		endpoint := hub.Connect("bot", "")
		ctx := session.NewContext(
			endpoint.Actor(),
			"bot",
			"",
			endpoint,
			session.WithStats(&cfg.Stats),
			session.WithRand(rand.New(rand.NewSource(int64(i+1)))),
		)
		manager := lifecycle.New(ctx, cfg.Lifecycle, &cfg.Settings)
		manager.UpdatePose(position, geom.Vec{0, 0, 1}, false)

		players = append(players, &player{
			ctx:     ctx,
			manager: manager,
			bot:     New(ctx, manager, DefaultSettings),
			events:  manager.Events.Subscribe(),
		})
	}

	counts := make(map[lifecycle.EventKind]int)
	for i := 0; i < int(90*time.Second/tickRate); i++ {
		for _, p := range players {
			p.manager.Tick(tickRate)
			p.bot.Tick(tickRate)
		}
		hub.Step()

		for _, p := range players {
			for drained := false; !drained; {
				select {
				case event := <-p.events.Recv():
					counts[event.Kind]++
				default:
					drained = true
				}
			}

			for _, handle := range p.manager.Handles() {
				b, ok := p.manager.Ball(handle)
				require.True(t, ok)
				require.NoError(t, b.Check())
			}
		}
	}

	assert.Greater(t, counts[lifecycle.EventPickedUp], 0)
	assert.Greater(t, counts[lifecycle.EventThrown], 0)
	assert.Zero(t, counts[lifecycle.EventDiscoveryFailed])
}

func TestBotStaysDownWithoutRevive(t *testing.T) {
	hub := loopback.NewHub()
	endpoint := hub.Connect("bot", "")
	ctx := session.NewContext(endpoint.Actor(), "bot", "", endpoint)

	cfg, err := config.Process(nil)
	require.NoError(t, err)
	manager := lifecycle.New(ctx, cfg.Lifecycle, &cfg.Settings)

	settings := DefaultSettings
	settings.Revive = 0
	b := New(ctx, manager, settings)

	ctx.Self().Health = 0
	for i := 0; i < 500; i++ {
		manager.Tick(tickRate)
		b.Tick(tickRate)
		hub.Step()
	}
	assert.False(t, ctx.Self().Alive())

	b.settings.Revive = time.Second
	for i := 0; i < 60; i++ {
		manager.Tick(tickRate)
		b.Tick(tickRate)
		hub.Step()
	}
	assert.True(t, ctx.Self().Alive())
	assert.Equal(t, session.DefaultHealth, ctx.Self().Health)
}
