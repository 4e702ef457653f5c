// ABOUTME: Audio type definitions
// ABOUTME: Defines the PCM format, buffer sizing and sample conversions
package audio

import (
	"encoding/binary"
	"fmt"
	"time"
)

const (
	// Wire format pushed by room senders
	DefaultSampleRate = 44100
	DefaultChannels   = 2
	DefaultBitDepth   = 16

	// DefaultBufferFactor is the multiple of the minimum buffer allocated by sinks
	DefaultBufferFactor = 4

	// minPeriod is the smallest chunk of audio a device is asked to drain at once
	minPeriod = 20 * time.Millisecond
)

// Format describes a raw PCM stream
type Format struct {
	SampleRate int
	Channels   int
	BitDepth   int
}

// DefaultFormat returns 44.1kHz stereo 16-bit
func DefaultFormat() Format {
	return Format{
		SampleRate: DefaultSampleRate,
		Channels:   DefaultChannels,
		BitDepth:   DefaultBitDepth,
	}
}

// Validate checks the format can be played
func (f Format) Validate() error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("invalid sample rate: %d", f.SampleRate)
	}
	if f.Channels <= 0 {
		return fmt.Errorf("invalid channel count: %d", f.Channels)
	}
	if f.BitDepth != 16 {
		return fmt.Errorf("unsupported bit depth: %d (supported: 16)", f.BitDepth)
	}
	return nil
}

// FrameSize returns the number of bytes in one interleaved frame
func (f Format) FrameSize() int {
	return f.Channels * f.BitDepth / 8
}

// PeriodFrames returns the number of frames in one device period
func (f Format) PeriodFrames() int {
	return int(int64(f.SampleRate) * int64(minPeriod) / int64(time.Second))
}

// MinBufferSize returns the smallest device buffer in bytes for this format
func (f Format) MinBufferSize() int {
	return f.PeriodFrames() * f.FrameSize()
}

// BufferSize returns factor times the minimum buffer size, rounded to whole frames
func (f Format) BufferSize(factor int) int {
	if factor < 1 {
		factor = 1
	}
	return f.MinBufferSize() * factor
}

// Duration returns how long n bytes of audio play for
func (f Format) Duration(n int) time.Duration {
	frameSize := f.FrameSize()
	if frameSize == 0 || f.SampleRate == 0 {
		return 0
	}
	frames := int64(n / frameSize)
	return time.Duration(frames * int64(time.Second) / int64(f.SampleRate))
}

// String renders the format for logs and status lines
func (f Format) String() string {
	return fmt.Sprintf("%dHz %dch %d-bit", f.SampleRate, f.Channels, f.BitDepth)
}

// BytesToInt16s unpacks s16le bytes; a trailing odd byte is ignored
func BytesToInt16s(data []byte) []int16 {
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return samples
}

// Int16sToBytes packs samples as s16le
func Int16sToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}
