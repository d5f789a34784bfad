package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/cfoust/dodgeball/pkg/config"
	"github.com/cfoust/dodgeball/pkg/transport/relay"

	"github.com/rs/zerolog/log"
)

func relayCommand(configs []string) error {
	cfg, err := config.Process(configs)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	server := relay.NewServer(cfg.Relay.Settings)

	errc := make(chan error, 1)
	go func() {
		errc <- server.Serve(ctx, cfg.Relay.Listen)
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("failed to serve")
			return err
		}
	case sig := <-sigs:
		log.Info().Msgf("terminating: %v", sig)
	}

	shutdown, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	return server.Shutdown(shutdown)
}
