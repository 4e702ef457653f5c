// ABOUTME: Audio output interface tests
// ABOUTME: Verifies backends, error taxonomy and release discipline without a device
package output

import (
	"errors"
	"testing"
	"time"

	"github.com/harperreed/roomcast-go/pkg/audio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackendsImplementOutput(t *testing.T) {
	var _ Output = (*Malgo)(nil)
	var _ Output = (*Oto)(nil)
}

func TestNew(t *testing.T) {
	out, err := New("", Config{})
	require.NoError(t, err)
	assert.IsType(t, &Malgo{}, out)

	out, err = New(BackendOto, Config{})
	require.NoError(t, err)
	assert.IsType(t, &Oto{}, out)

	_, err = New("portaudio", Config{})
	assert.Error(t, err)
}

func TestConfigDefaults(t *testing.T) {
	c := Config{}.withDefaults()
	assert.Equal(t, audio.DefaultBufferFactor, c.BufferFactor)
	assert.Equal(t, DefaultWriteTimeout, c.WriteTimeout)

	c = Config{BufferFactor: 8, WriteTimeout: time.Second}.withDefaults()
	assert.Equal(t, 8, c.BufferFactor)
	assert.Equal(t, time.Second, c.WriteTimeout)
}

func TestOpenRejectsUnsupportedFormat(t *testing.T) {
	for _, out := range []Output{NewMalgo(Config{}), NewOto(Config{})} {
		err := out.Open(audio.Format{SampleRate: 44100, Channels: 2, BitDepth: 24})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrDevice)

		var devErr *DeviceError
		require.True(t, errors.As(err, &devErr))
		assert.Equal(t, "open", devErr.Op)

		assert.NoError(t, out.Close())
	}
}

func TestWriteBeforeOpen(t *testing.T) {
	for _, out := range []Output{NewMalgo(Config{}), NewOto(Config{})} {
		n, err := out.Write(make([]byte, 16))
		assert.Equal(t, 0, n)
		assert.ErrorIs(t, err, ErrWrite)
		assert.ErrorIs(t, err, ErrNotOpen)

		assert.ErrorIs(t, out.Start(), ErrNotOpen)
		assert.NoError(t, out.Stop())
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	for _, out := range []Output{NewMalgo(Config{}), NewOto(Config{})} {
		assert.NoError(t, out.Close())
		assert.NoError(t, out.Close())

		err := out.Open(audio.DefaultFormat())
		assert.ErrorIs(t, err, ErrDevice, "a released output cannot be reopened")
	}
}

func TestSetVolumeClamps(t *testing.T) {
	m := NewMalgo(Config{})
	m.SetVolume(150)
	assert.Equal(t, 100, m.volume)
	m.SetVolume(-5)
	assert.Equal(t, 0, m.volume)

	o := NewOto(Config{})
	o.SetVolume(40)
	o.SetMuted(true)
	assert.Equal(t, 40, o.volume)
	assert.True(t, o.muted)
}
