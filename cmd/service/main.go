package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"karaoke-service/internal/config"
	"karaoke-service/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "karaoke-service: %v\n", err)
		os.Exit(1)
	}
	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("karaoke-service: startup failed")
	}
	defer a.Close()

	logging.Info().
		Str("addr", cfg.Server.Addr()).
		Str("store", cfg.Store.Driver).
		Str("transport", cfg.Realtime.Transport).
		Msg("karaoke-service listening")

	if err := a.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("karaoke-service stopped with error")
		a.Close()
		os.Exit(1)
	}
	logging.Info().Msg("karaoke-service stopped")
}
