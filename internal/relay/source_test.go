// ABOUTME: Tests for relay audio sources and the built-in sender
// ABOUTME: Covers the tone generator, rate conversion, streaming and server lifecycle
package relay

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harperreed/roomcast-go/pkg/audio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rampSource yields an increasing sample per frame at a fixed rate
type rampSource struct {
	rate   int
	next   int16
	err    error
	closed bool
}

func (s *rampSource) Read(samples []int16) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	for i := 0; i+1 < len(samples); i += 2 {
		samples[i] = s.next
		samples[i+1] = s.next
		s.next++
	}
	return len(samples) / 2 * 2, nil
}

func (s *rampSource) SampleRate() int { return s.rate }
func (s *rampSource) Channels() int   { return 2 }
func (s *rampSource) Close() error {
	s.closed = true
	return nil
}

func TestToneSource(t *testing.T) {
	src := NewToneSource(440, audio.DefaultFormat())
	samples := make([]int16, 200)

	n, err := src.Read(samples)
	require.NoError(t, err)
	assert.Equal(t, 200, n)
	assert.Equal(t, int16(0), samples[0])

	peak := int16(0)
	for i := 0; i < n; i += 2 {
		assert.Equal(t, samples[i], samples[i+1], "channels differ at frame %d", i/2)
		if samples[i] > peak {
			peak = samples[i]
		}
	}
	assert.Greater(t, peak, int16(0))
	assert.LessOrEqual(t, peak, int16(16384))

	assert.Equal(t, audio.DefaultSampleRate, src.SampleRate())
	assert.Equal(t, 2, src.Channels())
	assert.NoError(t, src.Close())
}

func TestToneSourceIsContinuous(t *testing.T) {
	whole := NewToneSource(440, audio.DefaultFormat())
	chunked := NewToneSource(440, audio.DefaultFormat())

	expected := make([]int16, 400)
	_, err := whole.Read(expected)
	require.NoError(t, err)

	got := make([]int16, 0, 400)
	buf := make([]int16, 100)
	for i := 0; i < 4; i++ {
		n, err := chunked.Read(buf)
		require.NoError(t, err)
		got = append(got, buf[:n]...)
	}
	assert.Equal(t, expected, got)
}

func TestResampledPassesThroughMatchingRate(t *testing.T) {
	src := &rampSource{rate: audio.DefaultSampleRate}
	assert.Same(t, Source(src), Resampled(src, audio.DefaultSampleRate))
}

func TestResampledFillsRequests(t *testing.T) {
	src := &rampSource{rate: 22050}
	rs := Resampled(src, 44100)
	assert.Equal(t, 44100, rs.SampleRate())
	assert.Equal(t, 2, rs.Channels())

	buf := make([]int16, 882*2)
	var all []int16
	for i := 0; i < 3; i++ {
		n, err := rs.Read(buf)
		require.NoError(t, err)
		assert.Equal(t, len(buf), n)
		all = append(all, buf[:n]...)
	}

	// doubling the rate interpolates one frame between each pair
	for i := 0; i+2 < 40; i += 2 {
		assert.Equal(t, all[i], all[i+1])
	}
	assert.Equal(t, []int16{0, 0, 1, 1, 1, 1, 2, 2}, all[:8])

	require.NoError(t, rs.Close())
	assert.True(t, src.closed)
}

func TestResampledPropagatesErrors(t *testing.T) {
	boom := errors.New("boom")
	rs := Resampled(&rampSource{rate: 48000, err: boom}, 44100)

	_, err := rs.Read(make([]int16, 100))
	assert.ErrorIs(t, err, boom)
}

func TestOpenSource(t *testing.T) {
	src, err := OpenSource("", 440, audio.DefaultFormat())
	require.NoError(t, err)
	assert.IsType(t, &ToneSource{}, src)

	_, err = OpenSource(filepath.Join(t.TempDir(), "missing.mp3"), 440, audio.DefaultFormat())
	assert.Error(t, err)

	mono := audio.DefaultFormat()
	mono.Channels = 1
	_, err = OpenSource("song.mp3", 440, mono)
	assert.Error(t, err)
}

func TestStreamerSendsPeriodChunks(t *testing.T) {
	hub, endpoint := newTestHub(t, HubConfig{})
	format := audio.DefaultFormat()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- NewStreamer(hub, NewToneSource(440, format), "r1", format).Run(ctx)
	}()

	require.Eventually(t, func() bool {
		return len(hub.Roster("r1")) == 1
	}, waitFor, 5*time.Millisecond)

	alice := join(t, endpoint, "r1", "alice")
	expectRoster(t, alice, SourceUserID, "alice")

	for {
		messageType, data := readMessage(t, alice)
		if messageType == websocket.BinaryMessage {
			// 20ms of 44.1kHz stereo s16le
			assert.Len(t, data, 882*2*2)
			break
		}
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("streamer did not stop")
	}
	expectRoster(t, alice, "alice")
}

func TestStreamerStopsOnSourceError(t *testing.T) {
	hub := NewHub(HubConfig{})
	boom := errors.New("boom")
	streamer := NewStreamer(hub, &rampSource{rate: 44100, err: boom}, "r1", audio.DefaultFormat())

	err := streamer.Run(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, hub.Roster("r1"))
}

func TestServerRunServesRoomsUntilCanceled(t *testing.T) {
	srv := New(Config{Port: 0, Name: "test-relay", Room: "r1", Tone: true, ToneHz: 440})
	require.NoError(t, srv.Listen())
	require.NotNil(t, srv.Addr())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	require.Eventually(t, func() bool {
		return len(srv.Hub().Roster("r1")) == 1
	}, waitFor, 5*time.Millisecond)

	endpoint := fmt.Sprintf("ws://%s/", srv.Addr().String())
	alice := join(t, endpoint, "r1", "alice")
	expectRoster(t, alice, SourceUserID, "alice")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * shutdownTimeout):
		t.Fatal("relay did not stop")
	}

	require.NoError(t, alice.SetReadDeadline(time.Now().Add(waitFor)))
	for {
		_, _, err := alice.ReadMessage()
		if err != nil {
			break
		}
	}
}

func TestServerRunFailsOnMissingAudioFile(t *testing.T) {
	srv := New(Config{Port: 0, AudioFile: filepath.Join(t.TempDir(), "nope.mp3")})
	err := srv.Run(context.Background())
	assert.Error(t, err)
}
