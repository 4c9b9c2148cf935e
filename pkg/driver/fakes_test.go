// ABOUTME: Test doubles for driver tests
// ABOUTME: Scriptable output/host, recording owner and event-emitting source
package driver

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Resonate-Protocol/resonate-media/pkg/audio"
	"github.com/Resonate-Protocol/resonate-media/pkg/audio/output"
	"github.com/Resonate-Protocol/resonate-media/pkg/source"
)

var cd = audio.Format{SampleRate: 44100, Channels: 2, BitDepth: 16}

// fakeOutput renders only when the test moves its cursor
type fakeOutput struct {
	mu       sync.Mutex
	format   audio.Format
	capacity int
	started  bool
	written  int64
	cursor   int64
	closes   int
	clears   int
	gain     float64
	pan      float64
	starve   func()
}

func (o *fakeOutput) Start() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started = true
	return nil
}

func (o *fakeOutput) Stop() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started = false
	return nil
}

func (o *fakeOutput) Write(p []byte) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := len(p)
	if free := o.freeLocked(); n > free {
		n = free
	}
	o.written += int64(n)
	return n, nil
}

func (o *fakeOutput) freeLocked() int {
	return o.capacity - int(o.written-o.cursor)
}

func (o *fakeOutput) Free() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.freeLocked()
}

func (o *fakeOutput) PlayCursor() int64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.cursor
}

func (o *fakeOutput) Clear() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.written, o.cursor = 0, 0
	o.clears++
	return nil
}

func (o *fakeOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closes++
	return nil
}

func (o *fakeOutput) SetVolume(v float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.gain = v
}

func (o *fakeOutput) SetPan(pan float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pan = pan
}

func (o *fakeOutput) levels() (gain, pan float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.gain, o.pan
}

func (o *fakeOutput) OnStarved(fn func()) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.starve = fn
}

// playTo renders everything up to n bytes
func (o *fakeOutput) playTo(n int64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if n > o.written {
		n = o.written
	}
	o.cursor = n
}

// playAll renders everything written
func (o *fakeOutput) playAll() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cursor = o.written
}

func (o *fakeOutput) stats() (written, cursor int64, closes, clears int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.written, o.cursor, o.closes, o.clears
}

type fakeHost struct {
	mu      sync.Mutex
	outputs []*fakeOutput
}

func (h *fakeHost) Name() string { return "fake" }

func (h *fakeHost) Open(format audio.Format) (output.Output, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	capacity := format.DurationToBytes(output.DefaultCapacity)
	if capacity < 1<<16 {
		capacity = format.Align(1 << 16)
	}
	o := &fakeOutput{format: format, capacity: capacity, gain: 1}
	h.outputs = append(h.outputs, o)
	return o, nil
}

func (h *fakeHost) Close() error { return nil }

func (h *fakeHost) last() *fakeOutput {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.outputs[len(h.outputs)-1]
}

// fakeOwner records callbacks and serves a settable master time
type fakeOwner struct {
	now    atomic.Int64
	eos    atomic.Int32
	mu     sync.Mutex
	events []audio.Event
}

func (o *fakeOwner) Time() time.Duration { return time.Duration(o.now.Load()) }

func (o *fakeOwner) setTime(t time.Duration) { o.now.Store(int64(t)) }

func (o *fakeOwner) OnAudioEOS(*AudioPlayer) { o.eos.Add(1) }

func (o *fakeOwner) OnMediaEvent(_ *AudioPlayer, ev audio.Event) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, ev)
}

func (o *fakeOwner) received() []audio.Event {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]audio.Event(nil), o.events...)
}

// eventSource attaches one timeline event to the chunk that covers it
type eventSource struct {
	*source.Silence
	at   time.Duration
	sent bool
}

func (s *eventSource) GetAudioData(n int) (*audio.Data, error) {
	data, err := s.Silence.GetAudioData(n)
	if err != nil {
		return nil, err
	}
	if !s.sent && s.at >= data.Timestamp && s.at < data.Timestamp+data.Duration {
		data.Events = append(data.Events, audio.Event{Timestamp: s.at, Name: "cue"})
		s.sent = true
	}
	return data, nil
}

// gatedSource reports ErrWouldBlock until opened
type gatedSource struct {
	*source.Silence
	open atomic.Bool
}

func (s *gatedSource) GetAudioData(n int) (*audio.Data, error) {
	if !s.open.Load() {
		return nil, source.ErrWouldBlock
	}
	return s.Silence.GetAudioData(n)
}

// newTestDriver returns a driver whose worker never ticks on its own, so tests
// drive Work by hand
func newTestDriver(t *testing.T) (*Driver, *fakeHost) {
	t.Helper()
	host := &fakeHost{}
	d := New(host, WithWorkerInterval(time.Hour))
	t.Cleanup(func() { require.NoError(t, d.Close()) })
	return d, host
}
