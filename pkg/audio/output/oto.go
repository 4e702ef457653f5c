// ABOUTME: Oto-based audio output implementation
// ABOUTME: Feeds a persistent oto player from a ring buffer with software volume
package output

import (
	"fmt"
	"sync"

	"github.com/ebitengine/oto/v3"
	"github.com/harperreed/roomcast-go/pkg/audio"
	"github.com/rs/zerolog/log"
)

// oto allows one context per process, so every Oto output shares it
var (
	otoMu     sync.Mutex
	otoCtx    *oto.Context
	otoFormat audio.Format
)

func sharedOtoContext(format audio.Format) (*oto.Context, error) {
	otoMu.Lock()
	defer otoMu.Unlock()

	if otoCtx != nil {
		if otoFormat != format {
			return nil, fmt.Errorf("oto context already running at %s, cannot switch to %s", otoFormat, format)
		}
		if err := otoCtx.Resume(); err != nil {
			return nil, fmt.Errorf("failed to resume oto context: %w", err)
		}
		return otoCtx, nil
	}

	ctx, readyChan, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   format.SampleRate,
		ChannelCount: format.Channels,
		Format:       oto.FormatSignedInt16LE,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create oto context: %w", err)
	}
	<-readyChan

	otoCtx = ctx
	otoFormat = format
	return ctx, nil
}

// Oto output implementation using oto library
type Oto struct {
	config Config

	mu         sync.Mutex
	player     *oto.Player
	ringBuffer *RingBuffer
	format     audio.Format
	started    bool
	released   bool
	volume     int
	muted      bool
	done       chan struct{}
}

// NewOto creates a new Oto output
func NewOto(config Config) *Oto {
	return &Oto{
		config: config.withDefaults(),
		volume: 100,
		done:   make(chan struct{}),
	}
}

// Open initializes the output device
func (o *Oto) Open(format audio.Format) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.released {
		return &DeviceError{Op: "open", Err: ErrNotOpen}
	}
	if o.player != nil {
		return &DeviceError{Op: "open", Err: fmt.Errorf("already open (%s)", o.format)}
	}
	if err := format.Validate(); err != nil {
		return &DeviceError{Op: "open", Err: err}
	}

	ctx, err := sharedOtoContext(format)
	if err != nil {
		return &DeviceError{Op: "open", Err: err}
	}

	bufferSize := format.BufferSize(o.config.BufferFactor)
	o.ringBuffer = NewRingBuffer(bufferSize)
	o.player = ctx.NewPlayer(ringReader{rb: o.ringBuffer})
	o.player.SetBufferSize(format.MinBufferSize())
	o.format = format

	log.Info().Str("module", "output").Str("backend", BackendOto).
		Str("format", format.String()).
		Int("buffer", bufferSize).
		Msg("Audio output initialized")

	return nil
}

// Start begins playback
func (o *Oto) Start() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.player == nil {
		return ErrNotOpen
	}
	if !o.started {
		o.player.Play()
		o.started = true
	}
	return nil
}

// Write queues audio bytes for playback
func (o *Oto) Write(p []byte) (int, error) {
	o.mu.Lock()
	if o.player == nil {
		o.mu.Unlock()
		return 0, &WriteError{Err: ErrNotOpen}
	}
	rb := o.ringBuffer
	data := applyVolume(p, o.volume, o.muted)
	o.mu.Unlock()

	n, err := rb.WriteTimeout(data, o.config.WriteTimeout, o.done)
	if err != nil {
		return n, &WriteError{Written: n, Err: err}
	}
	return n, nil
}

// Stop pauses playback and discards buffered audio
func (o *Oto) Stop() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.player == nil || !o.started {
		return nil
	}
	o.player.Pause()
	o.ringBuffer.Reset()
	o.started = false
	return nil
}

// Close releases output resources
func (o *Oto) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.released {
		return nil
	}
	o.released = true
	close(o.done)

	if o.player != nil {
		if err := o.player.Close(); err != nil {
			log.Warn().Err(err).Str("module", "output").Msg("oto player close error")
		}
		o.player = nil
	}

	otoMu.Lock()
	if otoCtx != nil {
		if err := otoCtx.Suspend(); err != nil {
			log.Warn().Err(err).Str("module", "output").Msg("oto context suspend error")
		}
	}
	otoMu.Unlock()

	return nil
}

// SetVolume sets the volume (0-100)
func (o *Oto) SetVolume(volume int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.volume = clampVolume(volume)
}

// SetMuted sets mute state
func (o *Oto) SetMuted(muted bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.muted = muted
}
