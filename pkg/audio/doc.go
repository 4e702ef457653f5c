// ABOUTME: Audio fundamentals package providing core types and utilities
// ABOUTME: Defines the PCM Format, buffer sizing and sample conversion helpers
// Package audio provides the PCM stream format shared by the receiver, the
// playback backends and the relay.
//
// The wire carries raw interleaved signed 16-bit little-endian samples. The
// helpers here size device buffers for a Format and convert between byte
// payloads and samples:
//   - Format: sample rate, channel count and bit depth
//   - MinBufferSize / BufferSize: device buffer sizing (one 20ms period minimum)
//   - Int16sToBytes / BytesToInt16s: s16le packing
//
// Example:
//
//	format := audio.DefaultFormat()
//	size := format.BufferSize(4) // 4x the platform minimum
//	samples := audio.BytesToInt16s(payload)
package audio
