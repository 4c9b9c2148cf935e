// ABOUTME: Audio fundamentals package providing core types and utilities
// ABOUTME: Defines Format, Data and Event plus PCM sample conversion functions
// Package audio provides the PCM types shared by sources, the audio driver and
// the backend outputs.
//
//   - Format: sample rate, channel count and bit depth of an interleaved PCM stream
//   - Data: a timestamped chunk of decoded audio with its timeline events
//   - Event: a media timeline event dispatched when playback passes it
//
// Example:
//
//	format := audio.Format{SampleRate: 44100, Channels: 2, BitDepth: 16}
//	n := format.DurationToBytes(900 * time.Millisecond) // 158760
package audio
