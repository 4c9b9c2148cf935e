// ABOUTME: Pausable master media clock owned by the player
// ABOUTME: Single writer, lock-free readers via an atomically swapped snapshot
package clock

import (
	"sync/atomic"
	"time"
)

// snapshot is immutable once published
type snapshot struct {
	base      time.Duration // media time at startedAt, or the frozen time while paused
	startedAt time.Time
	running   bool
}

// Master is the media clock that audio and video synchronize against. Play,
// Pause and Set must be called from a single goroutine; Time and Running may be
// called from any goroutine.
type Master struct {
	now   func() time.Time
	state atomic.Pointer[snapshot]
}

// Option configures a Master
type Option func(*Master)

// WithNow replaces the wall clock, mainly for tests
func WithNow(now func() time.Time) Option {
	return func(m *Master) {
		m.now = now
	}
}

// New creates a paused clock at time zero
func New(opts ...Option) *Master {
	m := &Master{now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	m.state.Store(&snapshot{})
	return m
}

// Time returns the current media time
func (m *Master) Time() time.Duration {
	s := m.state.Load()
	if !s.running {
		return s.base
	}
	return s.base + m.now().Sub(s.startedAt)
}

// Running reports whether the clock is advancing
func (m *Master) Running() bool {
	return m.state.Load().running
}

// Play starts advancing from the current time. No-op if already running.
func (m *Master) Play() {
	s := m.state.Load()
	if s.running {
		return
	}
	m.state.Store(&snapshot{base: s.base, startedAt: m.now(), running: true})
}

// Pause freezes the clock at the current time
func (m *Master) Pause() {
	s := m.state.Load()
	if !s.running {
		return
	}
	m.state.Store(&snapshot{base: m.Time()})
}

// Set jumps to t, keeping the running state
func (m *Master) Set(t time.Duration) {
	s := m.state.Load()
	m.state.Store(&snapshot{base: t, startedAt: m.now(), running: s.running})
}

// Reset pauses the clock at zero
func (m *Master) Reset() {
	m.state.Store(&snapshot{})
}
