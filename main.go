// ABOUTME: Entry point for the roomcast player
// ABOUTME: Loads configuration, wires the receiver engine to the TUI or the log
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/harperreed/roomcast-go/internal/config"
	"github.com/harperreed/roomcast-go/internal/logging"
	"github.com/harperreed/roomcast-go/internal/ui"
	"github.com/harperreed/roomcast-go/internal/version"
	"github.com/harperreed/roomcast-go/pkg/audio/output"
	"github.com/harperreed/roomcast-go/pkg/discovery"
	"github.com/harperreed/roomcast-go/pkg/roomcast"
	"github.com/rs/zerolog/log"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "roomcast: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadPlayer(os.Args[1:])
	if err != nil {
		return err
	}

	// TUI mode logs only to the file
	closer, err := logging.Setup(cfg.LogFile, cfg.LogLevel, !cfg.TUI)
	if err != nil {
		return err
	}
	defer closer.Close()

	log.Info().
		Str("version", version.Version).
		Str("room", cfg.Room).
		Str("user", cfg.User).
		Str("format", cfg.Format().String()).
		Str("output", cfg.Output).
		Msg("Starting roomcast player")
	if cfg.ConfigFileUse != "" {
		log.Info().Str("file", cfg.ConfigFileUse).Msg("Loaded config file")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint, err = discoverRelay(ctx, cfg.Discover)
		if err != nil {
			return err
		}
	}

	rx, err := roomcast.NewReceiver(roomcast.Config{
		Endpoint:      endpoint,
		RoomID:        cfg.Room,
		UserID:        cfg.User,
		Format:        cfg.Format(),
		OutputBackend: cfg.Output,
		OutputConfig:  output.Config{BufferFactor: cfg.BufferFactor},
		QueueFrames:   cfg.QueueFrames,
		DialTimeout:   cfg.DialTimeout,
		CloseTimeout:  cfg.CloseTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to create receiver: %w", err)
	}
	defer rx.Close()
	rx.SetVolume(cfg.Volume)

	if cfg.AutoEnable {
		rx.Subscribe(func(ev roomcast.Event) {
			if ev.Kind == roomcast.EventConnectionChanged && ev.Connected {
				go func() {
					if err := rx.EnableAudio(); err != nil {
						log.Warn().Err(err).Msg("Could not enable audio")
					}
				}()
			}
		})
	}

	if !cfg.TUI {
		return runHeadless(ctx, rx, cfg.AutoStart)
	}
	return runTUI(ctx, rx, ui.Options{
		Endpoint: endpoint,
		RoomID:   cfg.Room,
		UserID:   cfg.User,
		Volume:   cfg.Volume,
	}, cfg.AutoStart)
}

// discoverRelay browses mDNS for a relay until timeout
func discoverRelay(ctx context.Context, timeout time.Duration) (string, error) {
	log.Info().Dur("timeout", timeout).Msg("Starting relay discovery")

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	server, err := discovery.Discover(ctx)
	if err != nil {
		if errors.Is(err, discovery.ErrNotFound) {
			return "", fmt.Errorf("no relay found after %s (pass --endpoint to skip discovery)", timeout)
		}
		return "", err
	}

	log.Info().Str("name", server.Name).Str("endpoint", server.Endpoint()).Msg("Discovered relay")
	return server.Endpoint(), nil
}

// start runs Start off the caller's goroutine so Stop stays responsive
func start(ctx context.Context, rx *roomcast.Receiver) {
	go func() {
		if err := rx.Start(ctx); err != nil && !errors.Is(err, roomcast.ErrStopped) {
			log.Error().Err(err).Msg("Start failed")
		}
	}()
}

func runHeadless(ctx context.Context, rx *roomcast.Receiver, autoStart bool) error {
	rx.Subscribe(func(ev roomcast.Event) {
		switch ev.Kind {
		case roomcast.EventStatus:
			log.Info().Str("status", ev.Status).Msg("Status")
		case roomcast.EventWarning:
			log.Warn().Err(ev.Err).Msg("Receiver warning")
		case roomcast.EventEnablePrompt:
			if ev.Show {
				log.Info().Msg("Audio is arriving; run with --enable-audio to play it")
			}
		default:
			log.Debug().Str("event", ev.String()).Msg("Event")
		}
	})

	if autoStart {
		start(ctx, rx)
	} else {
		log.Info().Msg("Autostart disabled; nothing to do without the TUI")
	}

	<-ctx.Done()
	log.Info().Msg("Shutdown signal received")
	return rx.Stop()
}

func runTUI(ctx context.Context, rx *roomcast.Receiver, opts ui.Options, autoStart bool) error {
	controls := ui.NewControls()
	prog := ui.Run(opts, controls)
	unsubscribe := rx.Subscribe(ui.Subscriber(prog))
	defer unsubscribe()

	go handleCommands(ctx, rx, controls)
	go statsUpdateLoop(ctx, rx, prog)
	go func() {
		<-ctx.Done()
		prog.Quit()
	}()

	if autoStart {
		start(ctx, rx)
	}

	if _, err := prog.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	log.Info().Msg("TUI exited")
	return nil
}

// handleCommands applies TUI commands to the receiver
func handleCommands(ctx context.Context, rx *roomcast.Receiver, controls *ui.Controls) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-controls.Commands:
			switch cmd.Kind {
			case ui.CommandToggle:
				if rx.State() == roomcast.StateIdle {
					start(ctx, rx)
				} else if err := rx.Stop(); err != nil {
					log.Warn().Err(err).Msg("Stop failed")
				}
			case ui.CommandEnable:
				if err := rx.EnableAudio(); err != nil {
					log.Debug().Err(err).Msg("Enable ignored")
				}
			case ui.CommandVolume:
				rx.SetVolume(cmd.Volume)
			case ui.CommandMute:
				rx.SetMuted(cmd.Muted)
			case ui.CommandQuit:
				log.Info().Msg("Received quit from TUI")
				return
			}
		}
	}
}

// statsUpdateLoop periodically updates the TUI with playback statistics
func statsUpdateLoop(ctx context.Context, rx *roomcast.Receiver, prog *tea.Program) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prog.Send(ui.StatsMsg{Stats: rx.Snapshot().Stats})
		}
	}
}
