package main

import (
	"fmt"
	"math/rand"
	"sort"

	"github.com/cfoust/dodgeball/pkg/config"
	"github.com/cfoust/dodgeball/pkg/journal"
	"github.com/cfoust/dodgeball/pkg/lifecycle"
	"github.com/cfoust/dodgeball/pkg/transport/loopback"
	"github.com/cfoust/dodgeball/pkg/utils"

	"github.com/rs/zerolog/log"
)

// drain hands every queued event to fn without blocking.
func drain(events *utils.Subscriber[lifecycle.Event], fn func(lifecycle.Event)) {
	for {
		select {
		case event := <-events.Recv():
			fn(event)
		default:
			return
		}
	}
}

type simulation struct {
	hub     *loopback.Hub
	players []*player
	events  []*utils.Subscriber[lifecycle.Event]
	counts  map[lifecycle.EventKind]int
}

func newSimulation(cfg *config.Config, players int, latency uint64, seed int64) *simulation {
	s := &simulation{
		hub:    loopback.NewHub(),
		counts: make(map[lifecycle.EventKind]int),
	}
	s.hub.SetLatency(latency)

	seeds := rand.New(rand.NewSource(seed))
	characters := append([]string{""}, cfg.Stats.Names()...)
	for i := 0; i < players; i++ {
		name := fmt.Sprintf("bot-%d", i+1)
		character := characters[i%len(characters)]
		endpoint := s.hub.Connect(name, character)

		p := newPlayer(cfg, endpoint, name, character, rand.New(rand.NewSource(seeds.Int63())))
		s.players = append(s.players, p)
		s.events = append(s.events, p.manager.Events.Subscribe())
	}
	return s
}

// step advances every player by one tick. Each change is reported by the
// process that made it, so events are taken from every player but only when
// they are the source.
func (s *simulation) step(record func(lifecycle.Event)) {
	for _, p := range s.players {
		p.tick(tickRate)
	}
	s.hub.Step()

	for _, events := range s.events {
		drain(events, func(event lifecycle.Event) {
			if !event.Source {
				return
			}
			s.counts[event.Kind]++
			if record != nil {
				record(event)
			}
		})
	}
}

func (s *simulation) close() {
	for i, p := range s.players {
		s.events[i].Done()
		if err := p.close(); err != nil {
			log.Warn().Err(err).Msg("could not close player")
		}
	}
}

func (s *simulation) summary() {
	kinds := make([]lifecycle.EventKind, 0, len(s.counts))
	for kind := range s.counts {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })

	event := log.Info()
	for _, kind := range kinds {
		event = event.Int(kind.String(), s.counts[kind])
	}
	event.Msg("simulation finished")

	for _, p := range s.players {
		self := p.ctx.Self()
		log.Info().
			Str("player", self.Name).
			Str("character", self.Character).
			Int("health", self.Health).
			Msg("final state")
	}
}

func simCommand(configs []string) error {
	cfg, err := config.Process(configs)
	if err != nil {
		return err
	}

	if CLI.Sim.Players < 1 {
		return fmt.Errorf("need at least one player")
	}

	s := newSimulation(cfg, CLI.Sim.Players, CLI.Sim.Latency, CLI.Sim.Seed)
	defer s.close()

	var record func(lifecycle.Event)
	if CLI.Sim.Journal || cfg.Journal.Enabled {
		j, err := journal.Open(cfg.Journal.Path)
		if err != nil {
			return err
		}
		defer j.Close()

		match, err := j.Begin("sim", s.players[0].ctx.Local)
		if err != nil {
			return err
		}
		log.Info().Uint("match", match.ID).Str("path", cfg.Journal.Path).Msg("recording match")

		record = func(event lifecycle.Event) {
			if err := j.Record(event); err != nil {
				log.Error().Err(err).Msg("could not record event")
			}
		}
		defer func() {
			summary, err := j.Summary(match)
			if err != nil {
				log.Error().Err(err).Msg("could not summarize match")
				return
			}
			event := log.Info().Uint("match", match.ID)
			for kind, count := range summary {
				event = event.Int(kind, count)
			}
			event.Msg("journal")
		}()
	}

	log.Info().
		Int("players", CLI.Sim.Players).
		Uint64("latency", CLI.Sim.Latency).
		Dur("duration", CLI.Sim.Duration).
		Msg("starting simulation")

	steps := int(CLI.Sim.Duration / tickRate)
	for i := 0; i < steps; i++ {
		s.step(record)
	}

	s.summary()
	return nil
}
