// ABOUTME: Audio output package for playing audio
// ABOUTME: Provides the Output interface with malgo and oto backends
// Package output provides PCM playback devices.
//
// An Output owns its device buffer: Open sizes it from the stream format,
// Write copies s16le bytes into it and may block briefly while the device
// drains, and Close releases the device exactly once. Two backends are
// available: malgo (miniaudio, the default) and oto.
//
// Example:
//
//	out, err := output.New(output.BackendMalgo, output.Config{})
//	err = out.Open(audio.DefaultFormat())
//	err = out.Start()
//	n, err := out.Write(pcm)
//	err = out.Close()
package output
