package main

import (
	"context"
	"math/rand"
	"os"
	"os/signal"
	"time"

	"github.com/cfoust/dodgeball/pkg/config"
	"github.com/cfoust/dodgeball/pkg/journal"
	"github.com/cfoust/dodgeball/pkg/transport/redisbus"
	"github.com/cfoust/dodgeball/pkg/transport/relay"

	"github.com/rs/zerolog/log"
)

// remote is a transport to other processes, which can go away on its own.
type remote interface {
	transport
	Ctx() context.Context
}

func connect(ctx context.Context, cfg *config.Config, room, name, character string) (remote, error) {
	if CLI.Play.Redis {
		return redisbus.Connect(ctx, cfg.Redis, room, name, character)
	}
	return relay.Dial(ctx, cfg.Relay.URL, room, name, character)
}

func playCommand(configs []string) error {
	cfg, err := config.Process(configs)
	if err != nil {
		return err
	}

	room := cfg.Relay.Room
	if CLI.Play.Room != "" {
		room = CLI.Play.Room
	}

	ctx, cancel := context.WithCancel(log.Logger.WithContext(context.Background()))
	defer cancel()

	dialCtx, dialCancel := context.WithTimeout(ctx, 10*time.Second)
	conn, err := connect(dialCtx, cfg, room, CLI.Play.Name, CLI.Play.Character)
	dialCancel()
	if err != nil {
		return err
	}

	p := newPlayer(cfg, conn, CLI.Play.Name, CLI.Play.Character, rand.New(rand.NewSource(time.Now().UnixNano())))
	defer p.close()

	log.Info().
		Str("room", room).
		Int32("actor", int32(conn.Actor())).
		Msg("joined")

	if cfg.Journal.Enabled {
		j, err := journal.Open(cfg.Journal.Path)
		if err != nil {
			return err
		}
		defer j.Close()

		if _, err := j.Begin(room, conn.Actor()); err != nil {
			return err
		}

		followCtx, stopFollowing := context.WithCancel(ctx)
		defer stopFollowing()
		go j.Follow(followCtx, p.manager.Events.Subscribe())
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)

	ticker := time.NewTicker(tickRate)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case sig := <-sigs:
			log.Info().Msgf("terminating: %v", sig)
			return nil
		case <-conn.Ctx().Done():
			log.Warn().Msg("connection closed")
			return nil
		case now := <-ticker.C:
			p.tick(now.Sub(last))
			last = now
		}
	}
}
