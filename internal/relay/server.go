// ABOUTME: Roomcast relay server
// ABOUTME: Serves the room hub over HTTP, runs the built-in sender and mDNS advertisement
package relay

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/harperreed/roomcast-go/pkg/audio"
	"github.com/harperreed/roomcast-go/pkg/discovery"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

// Config holds relay configuration
type Config struct {
	Port int
	Name string

	// Room is where the built-in sender joins
	Room string
	// Tone streams a sine at ToneHz; AudioFile streams an MP3 instead
	Tone      bool
	ToneHz    int
	AudioFile string

	EnableMDNS bool

	ReadLimit  int64
	SendBuffer int
}

// Server is the relay process
type Server struct {
	config Config
	hub    *Hub

	httpServer *http.Server
	listener   net.Listener
}

// New creates a relay; nothing listens until Listen or Run
func New(config Config) *Server {
	hub := NewHub(HubConfig{
		ReadLimit:  config.ReadLimit,
		SendBuffer: config.SendBuffer,
	})

	return &Server{
		config: config,
		hub:    hub,
		httpServer: &http.Server{
			Handler:           hub,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Hub returns the room hub
func (s *Server) Hub() *Hub {
	return s.hub
}

// Listen binds the configured port
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.config.Port))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	s.listener = ln
	return nil
}

// Addr returns the bound address once listening
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Run serves until ctx is done, then disconnects every member
func (s *Server) Run(ctx context.Context) error {
	if s.listener == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}

	var source Source
	if s.config.Tone || s.config.AudioFile != "" {
		var err error
		source, err = OpenSource(s.config.AudioFile, s.config.ToneHz, audio.DefaultFormat())
		if err != nil {
			_ = s.listener.Close()
			return fmt.Errorf("failed to open audio source: %w", err)
		}
		defer source.Close()
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("module", "relay").
			Str("name", s.config.Name).
			Str("addr", s.listener.Addr().String()).
			Msg("Relay listening")
		if err := s.httpServer.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Str("module", "relay").Msg("Relay shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := s.httpServer.Shutdown(shutdownCtx)
		s.hub.Close()
		if err != nil {
			return fmt.Errorf("HTTP server shutdown: %w", err)
		}
		return nil
	})

	if source != nil {
		streamer := NewStreamer(s.hub, source, s.config.Room, audio.DefaultFormat())
		g.Go(func() error {
			return streamer.Run(gctx)
		})
	}

	if s.config.EnableMDNS {
		port := s.config.Port
		if tcp, ok := s.listener.Addr().(*net.TCPAddr); ok {
			port = tcp.Port
		}
		mdnsManager := discovery.NewManager(discovery.Config{
			ServiceName: s.config.Name,
			Port:        port,
			Path:        "/",
		})
		if err := mdnsManager.Advertise(); err != nil {
			log.Warn().Err(err).Str("module", "relay").Msg("mDNS advertisement failed")
		}
		defer mdnsManager.Stop()
	}

	err := g.Wait()
	log.Info().Str("module", "relay").Msg("Relay stopped")
	return err
}
