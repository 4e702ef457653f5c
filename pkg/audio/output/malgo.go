// ABOUTME: Malgo-based audio output implementation
// ABOUTME: Uses miniaudio via malgo with a ring buffer drained by the device callback
package output

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"
	"github.com/harperreed/roomcast-go/pkg/audio"
	"github.com/rs/zerolog/log"
)

// Malgo output implementation using malgo/miniaudio library
type Malgo struct {
	config Config

	mu       sync.Mutex
	malgoCtx *malgo.AllocatedContext
	device   *malgo.Device
	format   audio.Format
	started  bool
	released bool
	volume   int
	muted    bool

	// Ring buffer for callback-based playback
	ringBuffer *RingBuffer
	done       chan struct{}

	underruns atomic.Int64
}

// NewMalgo creates a new Malgo output
func NewMalgo(config Config) *Malgo {
	return &Malgo{
		config: config.withDefaults(),
		volume: 100,
		done:   make(chan struct{}),
	}
}

// Open initializes the playback device for format
func (m *Malgo) Open(format audio.Format) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.released {
		return &DeviceError{Op: "open", Err: ErrNotOpen}
	}
	if m.device != nil {
		return &DeviceError{Op: "open", Err: fmt.Errorf("already open (%s)", m.format)}
	}
	if err := format.Validate(); err != nil {
		return &DeviceError{Op: "open", Err: err}
	}

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		log.Debug().Str("module", "output").Str("backend", BackendMalgo).Msg(message)
	})
	if err != nil {
		return &DeviceError{Op: "init context", Err: err}
	}

	bufferSize := format.BufferSize(m.config.BufferFactor)
	m.ringBuffer = NewRingBuffer(bufferSize)

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = uint32(format.Channels)
	deviceConfig.SampleRate = uint32(format.SampleRate)
	deviceConfig.PeriodSizeInFrames = uint32(format.PeriodFrames())
	deviceConfig.Alsa.NoMMap = 1

	callbacks := malgo.DeviceCallbacks{
		Data: func(pOutput, pInput []byte, frameCount uint32) {
			if m.ringBuffer.Read(pOutput) < len(pOutput) {
				m.underruns.Add(1)
			}
		},
	}

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, callbacks)
	if err != nil {
		_ = ctx.Uninit()
		ctx.Free()
		return &DeviceError{Op: "init device", Err: err}
	}

	m.malgoCtx = ctx
	m.device = device
	m.format = format

	log.Info().Str("module", "output").Str("backend", BackendMalgo).
		Str("format", format.String()).
		Int("min_buffer", format.MinBufferSize()).
		Int("buffer", bufferSize).
		Msg("Audio output initialized")

	return nil
}

// Start begins playback; the device plays silence until data arrives
func (m *Malgo) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.device == nil {
		return ErrNotOpen
	}
	if m.started {
		return nil
	}
	if err := m.device.Start(); err != nil {
		return &DeviceError{Op: "start", Err: err}
	}
	m.started = true
	return nil
}

// Write queues audio bytes for playback
func (m *Malgo) Write(p []byte) (int, error) {
	m.mu.Lock()
	if m.device == nil {
		m.mu.Unlock()
		return 0, &WriteError{Err: ErrNotOpen}
	}
	rb := m.ringBuffer
	data := applyVolume(p, m.volume, m.muted)
	m.mu.Unlock()

	n, err := rb.WriteTimeout(data, m.config.WriteTimeout, m.done)
	if err != nil {
		return n, &WriteError{Written: n, Err: err}
	}
	return n, nil
}

// Stop pauses the device and discards buffered audio
func (m *Malgo) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.device == nil || !m.started {
		return nil
	}
	m.started = false
	m.ringBuffer.Reset()
	if err := m.device.Stop(); err != nil {
		return &DeviceError{Op: "stop", Err: err}
	}
	return nil
}

// Close releases output resources
func (m *Malgo) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.released {
		return nil
	}
	m.released = true
	close(m.done)

	if m.device != nil {
		if m.started {
			if err := m.device.Stop(); err != nil {
				log.Warn().Err(err).Str("module", "output").Msg("device stop error")
			}
			m.started = false
		}
		m.device.Uninit()
		m.device = nil
	}

	if m.malgoCtx != nil {
		if err := m.malgoCtx.Uninit(); err != nil {
			log.Warn().Err(err).Str("module", "output").Msg("malgo context uninit error")
		}
		m.malgoCtx.Free()
		m.malgoCtx = nil
	}

	if n := m.underruns.Load(); n > 0 {
		log.Debug().Str("module", "output").Int64("underruns", n).Msg("Audio output released")
	}
	return nil
}

// SetVolume sets the volume (0-100)
func (m *Malgo) SetVolume(volume int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.volume = clampVolume(volume)
}

// SetMuted sets mute state
func (m *Malgo) SetMuted(muted bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.muted = muted
}
