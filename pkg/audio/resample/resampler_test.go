// ABOUTME: Tests for the linear resampler
// ABOUTME: Covers ratios, interpolation and continuity across chunks
package resample

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ramp(frames, channels int) []int16 {
	out := make([]int16, frames*channels)
	for i := 0; i < frames; i++ {
		for ch := 0; ch < channels; ch++ {
			out[i*channels+ch] = int16(i * 10)
		}
	}
	return out
}

func TestNew(t *testing.T) {
	r := New(48000, 44100, 2)
	require.NotNil(t, r)
	assert.Equal(t, 48000, r.inputRate)
	assert.Equal(t, 44100, r.outputRate)
	assert.Equal(t, 2, r.channels)
	assert.InDelta(t, 48000.0/44100.0, r.ratio, 1e-9)
}

func TestSameRateCopies(t *testing.T) {
	r := New(44100, 44100, 2)
	input := ramp(10, 2)
	output := make([]int16, len(input))

	n := r.Resample(input, output)
	assert.Equal(t, len(input), n)
	assert.Equal(t, input, output)
}

func TestUpsampleDoublesFrames(t *testing.T) {
	r := New(22050, 44100, 1)
	input := []int16{0, 100, 200, 300}
	output := make([]int16, r.OutputLen(len(input)))

	n := r.Resample(input, output)
	// the last input frame is held for the next chunk
	assert.Equal(t, []int16{0, 50, 100, 150, 200, 250}, output[:n])
}

func TestDownsampleHalvesFrames(t *testing.T) {
	r := New(88200, 44100, 2)
	input := ramp(100, 2)
	output := make([]int16, r.OutputLen(len(input)))

	n := r.Resample(input, output)
	assert.Equal(t, 50*2, n)
	assert.Equal(t, int16(20), output[2])
	assert.Equal(t, output[2], output[3], "channels stay aligned")
}

func TestChunkedMatchesWhole(t *testing.T) {
	input := ramp(400, 2)

	whole := New(48000, 44100, 2)
	wholeOut := make([]int16, whole.OutputLen(len(input)))
	n := whole.Resample(input, wholeOut)
	wholeOut = wholeOut[:n]

	chunked := New(48000, 44100, 2)
	var chunkedOut []int16
	for start := 0; start < len(input); start += 64 * 2 {
		end := min(start+64*2, len(input))
		buf := make([]int16, chunked.OutputLen(end-start))
		m := chunked.Resample(input[start:end], buf)
		chunkedOut = append(chunkedOut, buf[:m]...)
	}

	require.GreaterOrEqual(t, len(chunkedOut), len(wholeOut))
	assert.Equal(t, wholeOut, chunkedOut[:len(wholeOut)])
}

func TestOutputLenFits(t *testing.T) {
	r := New(8000, 44100, 2)
	input := ramp(80, 2)
	output := make([]int16, r.OutputLen(len(input)))

	for i := 0; i < 5; i++ {
		n := r.Resample(input, output)
		assert.LessOrEqual(t, n, len(output))
		assert.Greater(t, n, 0)
	}
}

func TestEmptyInput(t *testing.T) {
	r := New(48000, 44100, 2)
	assert.Equal(t, 0, r.Resample(nil, make([]int16, 10)))
}

func TestReset(t *testing.T) {
	r := New(48000, 44100, 2)
	r.Resample(ramp(10, 2), make([]int16, 40))
	r.Reset()

	assert.Equal(t, 0.0, r.position)
	assert.False(t, r.primed)
	assert.Equal(t, []int16{0, 0}, r.last)
}
