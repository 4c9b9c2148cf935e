// ABOUTME: Silent audio backend that consumes data on the wall clock
// ABOUTME: Used when no real device is available and by headless tools
package output

import (
	"sync"
	"time"

	"github.com/Resonate-Protocol/resonate-media/pkg/audio"
)

// SilentHost never makes a sound but renders queued audio at real-time speed, so
// cursors, drift correction and end-of-stream behave as on a real device.
type SilentHost struct {
	now func() time.Time
}

// SilentOption configures a SilentHost
type SilentOption func(*SilentHost)

// WithClock replaces the wall clock used to advance play cursors
func WithClock(now func() time.Time) SilentOption {
	return func(h *SilentHost) {
		h.now = now
	}
}

// NewSilentHost creates the silent backend
func NewSilentHost(opts ...SilentOption) *SilentHost {
	h := &SilentHost{now: time.Now}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Name returns "silent"
func (h *SilentHost) Name() string {
	return "silent"
}

// Open creates a silent output for the format
func (h *SilentHost) Open(format audio.Format) (Output, error) {
	if err := format.Validate(); err != nil {
		return nil, err
	}
	return &Silent{
		format:   format,
		now:      h.now,
		capacity: int64(capacityFor(format)),
	}, nil
}

// Close is a no-op
func (h *SilentHost) Close() error {
	return nil
}

// Silent is an output that discards audio at the format's byte rate
type Silent struct {
	mu        sync.Mutex
	format    audio.Format
	now       func() time.Time
	capacity  int64
	written   int64
	base      int64 // play cursor when last started or stopped
	startedAt time.Time
	playing   bool
	closed    bool
}

func (s *Silent) cursorLocked() int64 {
	if !s.playing {
		return s.base
	}
	elapsed := s.now().Sub(s.startedAt)
	c := s.base + int64(s.format.DurationToBytes(elapsed))
	if c > s.written {
		c = s.written
	}
	return c
}

// Start begins consuming queued audio
func (s *Silent) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.playing {
		s.playing = true
		s.startedAt = s.now()
	}
	return nil
}

// Stop freezes the play cursor
func (s *Silent) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.playing {
		s.base = s.cursorLocked()
		s.playing = false
	}
	return nil
}

// Write accepts bytes up to the free capacity
func (s *Silent) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := int64(s.format.Align(len(p)))
	if free := s.freeLocked(); n > free {
		n = free
	}
	if s.playing && s.cursorLocked() >= s.written {
		// restart the render clock after an underrun so silence is not counted
		s.base = s.written
		s.startedAt = s.now()
	}
	s.written += n
	return int(n), nil
}

func (s *Silent) freeLocked() int64 {
	return int64(s.format.Align(int(s.capacity - (s.written - s.cursorLocked()))))
}

// Free returns how many bytes Write would accept
func (s *Silent) Free() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int(s.freeLocked())
}

// PlayCursor returns the number of bytes rendered since the last Clear
func (s *Silent) PlayCursor() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursorLocked()
}

// Clear drops queued audio
func (s *Silent) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.written = 0
	s.base = 0
	s.startedAt = s.now()
	return nil
}

// Close releases the output
func (s *Silent) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.playing = false
	return nil
}
