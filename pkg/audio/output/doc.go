// ABOUTME: Audio output package for playing audio
// ABOUTME: Provides the Host/Output contract and the oto, malgo and silent backends
// Package output provides thin adapters over host audio libraries.
//
// A Host opens one Output per playback session. Outputs accept PCM bytes without
// blocking, report how many bytes the device has rendered and can be cleared while
// stopped. Outputs whose device runs on its own thread may also report starvation.
//
// Example:
//
//	host := output.NewSilentHost()
//	out, err := host.Open(audio.Format{SampleRate: 44100, Channels: 2, BitDepth: 16})
//	n, err := out.Write(pcm)
//	err = out.Start()
package output
