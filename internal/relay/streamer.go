// ABOUTME: Built-in room sender for the relay
// ABOUTME: Joins a room as a publishing member and paces raw PCM chunks into it
package relay

import (
	"context"
	"fmt"
	"time"

	"github.com/harperreed/roomcast-go/pkg/audio"
	"github.com/harperreed/roomcast-go/pkg/protocol"
	"github.com/rs/zerolog/log"
)

// SourceUserID is the roster name of the built-in sender
const SourceUserID = "RelaySource"

// Streamer pushes one Source into a room at real-time pace
type Streamer struct {
	hub    *Hub
	source Source
	roomID string
	format audio.Format
}

// NewStreamer creates a streamer for roomID; source must already produce format
func NewStreamer(hub *Hub, source Source, roomID string, format audio.Format) *Streamer {
	return &Streamer{
		hub:    hub,
		source: source,
		roomID: roomID,
		format: format,
	}
}

// Run streams one period per tick until ctx is done
func (s *Streamer) Run(ctx context.Context) error {
	m, err := s.hub.Join(s.roomID, SourceUserID, nil)
	if err != nil {
		return err
	}
	defer s.hub.Leave(m)

	period := s.format.Duration(s.format.MinBufferSize())
	samples := make([]int16, s.format.PeriodFrames()*s.format.Channels)

	log.Info().Str("module", "relay").
		Str("room", s.roomID).
		Str("format", s.format.String()).
		Dur("period", period).
		Msg("Streaming into room")

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	var chunks uint64
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "relay").Uint64("chunks", chunks).Msg("Streamer stopped")
			return nil
		case <-ticker.C:
		}

		n, err := s.source.Read(samples)
		if err != nil {
			return fmt.Errorf("failed to read source: %w", err)
		}
		if n == 0 {
			continue
		}

		s.hub.Broadcast(m, Message{
			Kind: protocol.BinaryMessage,
			Data: audio.Int16sToBytes(samples[:n]),
		})
		chunks++
	}
}
