// ABOUTME: Audio resampling package using linear interpolation
// ABOUTME: Converts interleaved 16-bit PCM between sample rates
// Package resample provides audio sample rate conversion.
//
// Uses linear interpolation for converting between sample rates and keeps
// state between calls, so a stream can be fed in arbitrary chunks.
//
// Example:
//
//	r := resample.New(48000, 44100, 2)
//	out := make([]int16, r.OutputLen(len(in)))
//	n := r.Resample(in, out)
package resample
