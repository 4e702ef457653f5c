// ABOUTME: Linear resampler for interleaved 16-bit PCM
// ABOUTME: Carries the last frame across chunks so streams resample seamlessly
package resample

import "math"

// Resampler performs linear interpolation to convert between sample rates
type Resampler struct {
	inputRate  int
	outputRate int
	channels   int
	ratio      float64

	// position is in input frames relative to the current chunk; -1 is last
	position float64
	last     []int16
	primed   bool
}

// New creates a new resampler
func New(inputRate, outputRate, channels int) *Resampler {
	return &Resampler{
		inputRate:  inputRate,
		outputRate: outputRate,
		channels:   channels,
		ratio:      float64(inputRate) / float64(outputRate),
		last:       make([]int16, channels),
	}
}

// OutputLen returns a buffer size that always fits the output for an
// input of inputLen samples
func (r *Resampler) OutputLen(inputLen int) int {
	frames := inputLen / r.channels
	return (int(math.Ceil(float64(frames+1)/r.ratio)) + 1) * r.channels
}

// Resample converts interleaved input at inputRate into output at
// outputRate and returns the number of samples written. The final input
// frame is held back and interpolated against the next chunk.
func (r *Resampler) Resample(input, output []int16) int {
	inputFrames := len(input) / r.channels
	if inputFrames == 0 {
		return 0
	}
	if r.inputRate == r.outputRate {
		return copy(output, input[:inputFrames*r.channels])
	}

	outputFrames := len(output) / r.channels
	outIdx := 0

	for outIdx < outputFrames && r.position+1 < float64(inputFrames) {
		idx := int(math.Floor(r.position))
		if idx < 0 && !r.primed {
			idx = 0
			r.position = 0
		}
		frac := r.position - float64(idx)

		for ch := 0; ch < r.channels; ch++ {
			s1 := r.sample(input, idx, ch)
			s2 := r.sample(input, idx+1, ch)
			v := float64(s1)*(1.0-frac) + float64(s2)*frac
			output[outIdx*r.channels+ch] = int16(math.Round(v))
		}

		outIdx++
		r.position += r.ratio
	}

	r.position -= float64(inputFrames)
	copy(r.last, input[(inputFrames-1)*r.channels:inputFrames*r.channels])
	r.primed = true

	return outIdx * r.channels
}

func (r *Resampler) sample(input []int16, frame, ch int) int16 {
	if frame < 0 {
		return r.last[ch]
	}
	return input[frame*r.channels+ch]
}

// Reset resets the resampler state
func (r *Resampler) Reset() {
	r.position = 0
	r.primed = false
	for i := range r.last {
		r.last[i] = 0
	}
}
