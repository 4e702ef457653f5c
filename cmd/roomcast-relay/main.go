// ABOUTME: Entry point for the roomcast relay
// ABOUTME: Loads configuration and runs the room relay until interrupted
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/harperreed/roomcast-go/internal/config"
	"github.com/harperreed/roomcast-go/internal/logging"
	"github.com/harperreed/roomcast-go/internal/relay"
	"github.com/harperreed/roomcast-go/internal/version"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.LoadRelay(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "roomcast-relay: %v\n", err)
		os.Exit(2)
	}

	closer, err := logging.Setup(cfg.LogFile, cfg.LogLevel, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "roomcast-relay: %v\n", err)
		os.Exit(1)
	}
	defer closer.Close()

	log.Info().
		Str("version", version.Version).
		Str("name", cfg.Name).
		Int("port", cfg.Port).
		Str("log_file", cfg.LogFile).
		Msg("Starting roomcast relay, press Ctrl-C to stop")

	srv := relay.New(relay.Config{
		Port:       cfg.Port,
		Name:       cfg.Name,
		Room:       cfg.Room,
		Tone:       cfg.Tone,
		ToneHz:     cfg.ToneHz,
		AudioFile:  cfg.AudioFile,
		EnableMDNS: cfg.MDNS,
		ReadLimit:  cfg.ReadLimit,
		SendBuffer: cfg.SendBuffer,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil {
		log.Error().Err(err).Msg("Relay error")
		closer.Close()
		os.Exit(1)
	}
}
