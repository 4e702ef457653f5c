// ABOUTME: Audio output interface definition
// ABOUTME: Common interface, errors and factory for audio playback backends
package output

import (
	"errors"
	"fmt"
	"time"

	"github.com/harperreed/roomcast-go/pkg/audio"
)

const (
	// BackendMalgo plays through miniaudio
	BackendMalgo = "malgo"
	// BackendOto plays through ebitengine/oto
	BackendOto = "oto"

	// DefaultWriteTimeout bounds how long Write waits for buffer space
	DefaultWriteTimeout = 200 * time.Millisecond
)

var (
	// ErrDevice is wrapped by every device initialization failure
	ErrDevice = errors.New("audio device error")
	// ErrWrite is wrapped by every failed or partial write
	ErrWrite = errors.New("audio write error")
	// ErrNotOpen is returned when the output has not been opened or was released
	ErrNotOpen = errors.New("output not open")
	// ErrBufferFull is returned when the device did not drain in time
	ErrBufferFull = errors.New("device buffer full")
)

// Output represents an audio output device
type Output interface {
	// Open initializes the device and allocates its buffer for format
	Open(format audio.Format) error

	// Start begins draining the buffer; calling it again is a no-op
	Start() error

	// Write queues s16le bytes, blocking briefly if the buffer is full
	Write(p []byte) (int, error)

	// Stop pauses draining without releasing the device
	Stop() error

	// Close releases device resources; safe to call more than once
	Close() error

	// SetVolume sets the software volume (0-100)
	SetVolume(volume int)

	// SetMuted sets mute state
	SetMuted(muted bool)
}

// Config holds settings shared by all backends
type Config struct {
	// BufferFactor multiplies the format's minimum buffer size (default: 4)
	BufferFactor int

	// WriteTimeout bounds how long Write blocks under backpressure (default: 200ms)
	WriteTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.BufferFactor <= 0 {
		c.BufferFactor = audio.DefaultBufferFactor
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	return c
}

// DeviceError reports a device that could not be initialized or started
type DeviceError struct {
	Op  string
	Err error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("audio device %s: %v", e.Op, e.Err)
}

func (e *DeviceError) Unwrap() []error {
	return []error{ErrDevice, e.Err}
}

// WriteError reports a write that the device did not fully accept
type WriteError struct {
	Written int
	Err     error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("audio write failed after %d bytes: %v", e.Written, e.Err)
}

func (e *WriteError) Unwrap() []error {
	return []error{ErrWrite, e.Err}
}

// New creates an output for the named backend
func New(backend string, config Config) (Output, error) {
	switch backend {
	case "", BackendMalgo:
		return NewMalgo(config), nil
	case BackendOto:
		return NewOto(config), nil
	default:
		return nil, fmt.Errorf("unknown output backend: %q (supported: %s, %s)", backend, BackendMalgo, BackendOto)
	}
}
