// ABOUTME: Audio output interface definition
// ABOUTME: Common host/output contract shared by the oto, malgo and silent backends
package output

import (
	"time"

	"github.com/Resonate-Protocol/resonate-media/pkg/audio"
)

const (
	// DefaultCapacity is how much audio an output can hold ahead of the play position
	DefaultCapacity = 2 * time.Second

	// DefaultLatency is the read-ahead a device keeps past the ring
	DefaultLatency = 50 * time.Millisecond
)

// Host is an audio backend able to open outputs for a PCM format
type Host interface {
	// Name identifies the backend ("oto", "malgo", "silent")
	Name() string

	// Open prepares an output for the format. The output starts stopped.
	Open(format audio.Format) (Output, error)

	// Close releases the backend
	Close() error
}

// Output is one playback stream on a Host. Write never blocks; it accepts as many
// bytes as fit and returns that count.
type Output interface {
	Start() error
	Stop() error

	// Write queues PCM bytes in the output's format
	Write(p []byte) (int, error)

	// Free is how many bytes Write would currently accept
	Free() int

	// PlayCursor is the number of written bytes rendered since the last Clear
	PlayCursor() int64

	// Clear drops everything queued and rewinds the play cursor. Only valid while stopped.
	Clear() error

	Close() error
}

// StarvationNotifier is implemented by outputs whose device thread can report that
// queued data ran out. The callback runs on the device thread and must not block.
type StarvationNotifier interface {
	OnStarved(fn func())
}

// VolumeSetter is implemented by outputs with software gain
type VolumeSetter interface {
	SetVolume(v float64)
}

// Panner is implemented by outputs that can balance stereo audio. pan runs from
// -1 (left only) to 1 (right only).
type Panner interface {
	SetPan(pan float64)
}

func capacityFor(format audio.Format) int {
	n := format.DurationToBytes(DefaultCapacity)
	if min := format.Align(1 << 16); n < min {
		n = min
	}
	return n
}
