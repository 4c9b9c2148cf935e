// ABOUTME: Shared ring-backed playback state for callback driven outputs
// ABOUTME: Tracks rendered bytes, software gain, stereo balance and starvation edges
package output

import (
	"sync"

	"github.com/Resonate-Protocol/resonate-media/pkg/audio"
)

// ringStream is the part of an output that the device thread pulls from
type ringStream struct {
	mu       sync.Mutex
	format   audio.Format // format of the bytes held in the ring
	ring     *Ring
	rendered int64 // real bytes handed to the device since reset
	gain     float64
	pan      float64
	starving bool
	onStarve func()
}

func newRingStream(format audio.Format) *ringStream {
	return &ringStream{
		format: format,
		ring:   NewRing(capacityFor(format)),
		gain:   1.0,
	}
}

func (s *ringStream) push(p []byte) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.ring.Write(p[:s.format.Align(len(p))])
	if n > 0 {
		s.starving = false
	}
	return n
}

func (s *ringStream) free() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.format.Align(s.ring.Free())
}

// pull fills p for the device. The returned callback is non-nil when the ring just
// ran dry and must be invoked after the caller is done with device state.
func (s *ringStream) pull(p []byte) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.ring.Read(p, s.format.SilenceByte())
	s.rendered += int64(n)
	if s.gain != 1.0 {
		applyGain(p[:n], s.format.BitDepth, s.gain)
	}
	applyPan(p[:n], s.format, s.pan)

	if n < len(p) && !s.starving {
		s.starving = true
		return s.onStarve
	}
	return nil
}

func (s *ringStream) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ring.Reset()
	s.rendered = 0
	s.starving = false
}

func (s *ringStream) renderedBytes() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rendered
}

func (s *ringStream) setGain(v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gain = clampGain(v)
}

func (s *ringStream) setPan(v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pan = clampPan(v)
}

func (s *ringStream) setStarvationCallback(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onStarve = fn
}
