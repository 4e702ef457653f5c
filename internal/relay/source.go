// ABOUTME: Audio sources for the relay's built-in sender
// ABOUTME: Provides a sine test tone and a looping MP3 file resampled to the wire rate
package relay

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/hajimehoshi/go-mp3"
	"github.com/harperreed/roomcast-go/pkg/audio"
	"github.com/harperreed/roomcast-go/pkg/audio/resample"
	"github.com/rs/zerolog/log"
)

// Source produces interleaved 16-bit PCM
type Source interface {
	// Read fills samples and returns the number of samples written
	Read(samples []int16) (int, error)
	SampleRate() int
	Channels() int
	Close() error
}

// ToneSource generates a sine wave at half scale on every channel
type ToneSource struct {
	frequency   float64
	format      audio.Format
	sampleIndex uint64
}

// NewToneSource creates a tone generator at frequency Hz
func NewToneSource(frequency float64, format audio.Format) *ToneSource {
	return &ToneSource{
		frequency: frequency,
		format:    format,
	}
}

func (s *ToneSource) Read(samples []int16) (int, error) {
	channels := s.format.Channels
	frames := len(samples) / channels

	for i := 0; i < frames; i++ {
		t := float64(s.sampleIndex+uint64(i)) / float64(s.format.SampleRate)
		value := int16(math.Sin(2*math.Pi*s.frequency*t) * 32767.0 * 0.5)
		for ch := 0; ch < channels; ch++ {
			samples[i*channels+ch] = value
		}
	}
	s.sampleIndex += uint64(frames)

	return frames * channels, nil
}

func (s *ToneSource) SampleRate() int { return s.format.SampleRate }
func (s *ToneSource) Channels() int   { return s.format.Channels }
func (s *ToneSource) Close() error    { return nil }

// MP3Source decodes an MP3 file and loops it forever
type MP3Source struct {
	file       *os.File
	decoder    *mp3.Decoder
	sampleRate int
	buf        []byte
}

// NewMP3Source opens filePath for decoding
func NewMP3Source(filePath string) (*MP3Source, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open MP3 file: %w", err)
	}

	decoder, err := mp3.NewDecoder(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to decode MP3: %w", err)
	}

	log.Info().Str("module", "relay").
		Str("file", filepath.Base(filePath)).
		Int("sample_rate", decoder.SampleRate()).
		Msg("Loaded MP3")

	return &MP3Source{
		file:       f,
		decoder:    decoder,
		sampleRate: decoder.SampleRate(),
	}, nil
}

func (s *MP3Source) Read(samples []int16) (int, error) {
	numBytes := len(samples) * 2
	if cap(s.buf) < numBytes {
		s.buf = make([]byte, numBytes)
	}
	buf := s.buf[:numBytes]

	n, err := io.ReadFull(s.decoder, buf)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return 0, err
	}

	numSamples := n / 2
	for i := 0; i < numSamples; i++ {
		samples[i] = int16(binary.LittleEndian.Uint16(buf[i*2:]))
	}

	if err != nil {
		if rerr := s.rewind(); rerr != nil {
			return numSamples, rerr
		}
	}
	return numSamples, nil
}

// rewind restarts decoding from the top of the file
func (s *MP3Source) rewind() error {
	if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek to start: %w", err)
	}
	decoder, err := mp3.NewDecoder(s.file)
	if err != nil {
		return fmt.Errorf("failed to create new decoder: %w", err)
	}
	s.decoder = decoder
	log.Debug().Str("module", "relay").Msg("Looping MP3")
	return nil
}

func (s *MP3Source) SampleRate() int { return s.sampleRate }

// Channels is always 2; go-mp3 decodes to stereo
func (s *MP3Source) Channels() int { return 2 }

func (s *MP3Source) Close() error {
	return s.file.Close()
}

// resampledSource converts another source to a fixed output rate
type resampledSource struct {
	source    Source
	rate      int
	resampler *resample.Resampler
	in        []int16
	out       []int16
	pending   []int16
}

// Resampled wraps source so it produces rate Hz; it returns source unchanged
// when the rates already match
func Resampled(source Source, rate int) Source {
	if source.SampleRate() == rate {
		return source
	}
	return &resampledSource{
		source:    source,
		rate:      rate,
		resampler: resample.New(source.SampleRate(), rate, source.Channels()),
	}
}

func (r *resampledSource) Read(samples []int16) (int, error) {
	channels := r.source.Channels()
	if r.in == nil {
		frames := len(samples)/channels*r.source.SampleRate()/r.rate + 1
		r.in = make([]int16, frames*channels)
		r.out = make([]int16, r.resampler.OutputLen(len(r.in)))
	}

	for len(r.pending) < len(samples) {
		n, err := r.source.Read(r.in)
		if n > 0 {
			m := r.resampler.Resample(r.in[:n], r.out)
			r.pending = append(r.pending, r.out[:m]...)
		}
		if err != nil {
			if len(r.pending) == 0 {
				return 0, err
			}
			break
		}
		if n == 0 {
			break
		}
	}

	n := copy(samples, r.pending)
	r.pending = r.pending[:copy(r.pending, r.pending[n:])]
	return n, nil
}

func (r *resampledSource) SampleRate() int { return r.rate }
func (r *resampledSource) Channels() int   { return r.source.Channels() }
func (r *resampledSource) Close() error    { return r.source.Close() }

// OpenSource returns the configured sender source: an MP3 file when path is
// set, otherwise a tone at toneHz. Both produce format's rate.
func OpenSource(path string, toneHz int, format audio.Format) (Source, error) {
	if path == "" {
		return NewToneSource(float64(toneHz), format), nil
	}
	if format.Channels != 2 {
		return nil, fmt.Errorf("MP3 playback needs 2 channels, have %d", format.Channels)
	}
	src, err := NewMP3Source(path)
	if err != nil {
		return nil, err
	}
	return Resampled(src, format.SampleRate), nil
}
