// ABOUTME: Per-session audio buffer manager synchronized to a player's master clock
// ABOUTME: Keeps the backend fed, dispatches timeline events and end-of-stream, corrects drift
package driver

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/Resonate-Protocol/resonate-media/pkg/audio"
	"github.com/Resonate-Protocol/resonate-media/pkg/audio/output"
	"github.com/Resonate-Protocol/resonate-media/pkg/source"
)

const (
	// minBufferSize is the floor for the ideal buffered amount
	minBufferSize = 32768

	// maxReadsPerFill bounds source reads in one refill
	maxReadsPerFill = 8
)

// Owner is the playback session an AudioPlayer reports to. The callbacks run on
// the worker goroutine or a device thread; they must not block and must not call
// Stop or Delete on the AudioPlayer synchronously.
type Owner interface {
	// Time returns the master clock time
	Time() time.Duration

	// OnAudioEOS is called once the exhausted source has fully played
	OnAudioEOS(p *AudioPlayer)

	// OnMediaEvent delivers a timeline event whose position has been played
	OnMediaEvent(p *AudioPlayer, ev audio.Event)
}

// Stats is a snapshot of an AudioPlayer's buffering and sync state
type Stats struct {
	PlayCursor     int64
	WriteCursor    int64
	Buffered       int64
	AverageDrift   time.Duration
	DriftSamples   int
	Corrections    int64
	DiscardedBytes int64
	Underruns      int64
	Exhausted      bool
}

type timedEvent struct {
	pos int64
	ev  audio.Event
}

// AudioPlayer feeds one Source into one backend Output. It starts stopped; Play
// registers it with the Worker and Stop deregisters it, so it is registered
// exactly while playing.
type AudioPlayer struct {
	id       uuid.UUID
	src      source.Source
	owner    Owner
	format   audio.Format
	out      output.Output
	worker   *Worker
	listener *Listener
	logger   *log.Logger
	desync   rate.Sometimes

	idealSize       int
	comfortableSize int
	stretchBytes    int

	stateMu  sync.Mutex // serializes Play, Stop, Prefill, Clear and Delete
	playing  bool
	deleted  bool
	volume   float64
	position Vec3
	release  sync.Once
	onDelete func(*AudioPlayer)

	// mu guards everything below. It is never held while reading the source.
	mu          sync.Mutex
	playCursor  int64
	writeCursor int64
	underrun    bool
	eosSent     bool
	exhausted   bool
	events      []timedEvent
	timeBase    time.Duration
	baseSet     bool
	compensated int64
	comp        compensator
	stats       Stats
}

func newAudioPlayer(src source.Source, owner Owner, format audio.Format, out output.Output, d *Driver) *AudioPlayer {
	ideal := format.DurationToBytes(d.bufferDuration)
	if ideal < minBufferSize {
		ideal = format.Align(minBufferSize)
	}

	id := uuid.New()
	p := &AudioPlayer{
		id:              id,
		src:             src,
		owner:           owner,
		format:          format,
		out:             out,
		worker:          d.worker,
		listener:        d.listener,
		logger:          d.logger.With("player", id.String()[:8]),
		desync:          rate.Sometimes{Interval: time.Second},
		idealSize:       ideal,
		comfortableSize: format.Align(ideal * 2 / 3),
		stretchBytes:    format.DurationToBytes(driftStretch),
		volume:          1.0,
		onDelete:        d.forget,
	}

	if n, ok := out.(output.StarvationNotifier); ok {
		n.OnStarved(p.onStarved)
	}
	p.applyVolume()
	return p
}

// ID identifies the playback session in logs
func (p *AudioPlayer) ID() uuid.UUID {
	return p.id
}

// Format returns the PCM format the player is bound to
func (p *AudioPlayer) Format() audio.Format {
	return p.format
}

// Source returns the source being played
func (p *AudioPlayer) Source() source.Source {
	return p.src
}

// Playing reports whether the player is registered with the Worker
func (p *AudioPlayer) Playing() bool {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	return p.playing
}

// Play starts the backend and registers with the Worker, in that order
func (p *AudioPlayer) Play() error {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()

	if p.deleted {
		return ErrDeleted
	}
	if p.playing {
		return nil
	}
	if err := p.out.Start(); err != nil {
		return fmt.Errorf("failed to start output: %w", err)
	}
	p.playing = true
	p.worker.Add(p)
	p.logger.Debug("playing")
	return nil
}

// Stop deregisters from the Worker, waiting out an in-flight Work, then stops the
// backend
func (p *AudioPlayer) Stop() error {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	return p.stopLocked()
}

func (p *AudioPlayer) stopLocked() error {
	if !p.playing {
		return nil
	}
	p.worker.Remove(p)
	p.playing = false
	if err := p.out.Stop(); err != nil {
		return fmt.Errorf("failed to stop output: %w", err)
	}

	p.mu.Lock()
	p.updatePlayCursorLocked()
	p.mu.Unlock()
	p.logger.Debug("stopped")
	return nil
}

// Prefill synchronously buffers up to the ideal amount. It does nothing while
// playing, when the Worker owns refilling.
func (p *AudioPlayer) Prefill() {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	if p.playing || p.deleted {
		return
	}

	p.mu.Lock()
	p.updatePlayCursorLocked()
	buffered := p.writeCursor - p.playCursor
	exhausted := p.exhausted
	p.mu.Unlock()

	if !exhausted {
		p.refill(p.idealSize-int(buffered), false)
	}
}

// Work is one servicing step, called by the Worker while playing
func (p *AudioPlayer) Work() {
	p.mu.Lock()
	p.updatePlayCursorLocked()
	due := p.takeDueEventsLocked()
	exhausted := p.exhausted
	buffered := p.writeCursor - p.playCursor
	p.mu.Unlock()

	for _, ev := range due {
		p.owner.OnMediaEvent(p, ev)
	}

	if !exhausted {
		if buffered < int64(p.comfortableSize) {
			p.refill(p.idealSize-int(buffered), true)
		}

		p.mu.Lock()
		exhausted = p.exhausted
		if exhausted {
			// the last data may already have played
			p.updatePlayCursorLocked()
		}
		starved := p.playCursor >= p.writeCursor
		p.mu.Unlock()

		if !exhausted && !starved {
			return
		}
	}

	p.checkUnderrun()
}

func (p *AudioPlayer) checkUnderrun() {
	p.mu.Lock()
	if p.playCursor < p.writeCursor {
		p.mu.Unlock()
		return
	}
	if !p.underrun {
		p.underrun = true
		if !p.exhausted {
			p.stats.Underruns++
		}
	}
	fire := p.exhausted && !p.eosSent
	if fire {
		p.eosSent = true
	}
	p.mu.Unlock()

	if fire {
		p.logger.Debug("end of stream")
		p.owner.OnAudioEOS(p)
	} else {
		p.logger.Debug("underrun, waiting for source")
	}
}

// onStarved runs on the device thread when the backend ran out of data
func (p *AudioPlayer) onStarved() {
	p.mu.Lock()
	if !p.exhausted || p.eosSent {
		p.mu.Unlock()
		return
	}
	p.updatePlayCursorLocked()
	fire := p.playCursor >= p.writeCursor
	if fire {
		p.underrun = true
		p.eosSent = true
	}
	p.mu.Unlock()

	if fire {
		p.logger.Debug("end of stream reported by device")
		p.owner.OnAudioEOS(p)
	}
}

func (p *AudioPlayer) updatePlayCursorLocked() {
	c := p.out.PlayCursor()
	if c > p.writeCursor {
		c = p.writeCursor
	}
	if c > p.playCursor {
		p.playCursor = c
	}
}

func (p *AudioPlayer) takeDueEventsLocked() []audio.Event {
	n := 0
	for n < len(p.events) && p.events[n].pos <= p.playCursor {
		n++
	}
	if n == 0 {
		return nil
	}
	due := make([]audio.Event, n)
	for i := range due {
		due[i] = p.events[i].ev
	}
	p.events = p.events[n:]
	return due
}

// refill pulls up to want bytes from the source. Only Prefill and Work call it and
// the Worker registration protocol keeps them from overlapping.
func (p *AudioPlayer) refill(want int, measure bool) {
	want = p.format.Align(want)
	for reads := 0; want > 0 && reads < maxReadsPerFill; reads++ {
		room := p.format.Align(p.out.Free() - p.stretchBytes)
		n := want
		if room < n {
			n = room
		}
		if n <= 0 {
			return
		}

		data, err := p.src.GetAudioData(n)
		switch {
		case errors.Is(err, io.EOF):
			p.markExhausted()
			return
		case errors.Is(err, source.ErrWouldBlock):
			return
		case err != nil:
			p.logger.Error("source read failed, ending stream", "err", err)
			p.markExhausted()
			return
		}

		p.mu.Lock()
		if !p.baseSet {
			p.timeBase = data.Timestamp
			p.baseSet = true
		}
		p.mu.Unlock()

		if measure {
			p.compensate(data)
		}
		if data.Len() == 0 {
			p.mu.Lock()
			p.queueEventsLocked(data)
			p.mu.Unlock()
			continue
		}
		want -= p.submit(data)
	}
}

func (p *AudioPlayer) markExhausted() {
	p.mu.Lock()
	p.exhausted = true
	p.mu.Unlock()
	p.logger.Debug("source exhausted")
}

// compensate measures drift against the master clock and stretches or trims data
func (p *AudioPlayer) compensate(data *audio.Data) {
	master := p.owner.Time()

	p.mu.Lock()
	drift := p.timeLocked() - master
	corr := p.comp.measure(drift)
	p.mu.Unlock()

	var delta int64
	switch corr.kind {
	case correctNone:
		return
	case correctPad:
		n := p.stretchBytes
		if n > data.Len() {
			n = data.Len()
		}
		padded := make([]byte, 0, data.Len()+n)
		padded = append(padded, data.Bytes[:n]...)
		data.Bytes = append(padded, data.Bytes...)
		data.Duration += p.format.BytesToDuration(int64(n))
		delta = int64(n)
	case correctDrop:
		n := p.stretchBytes
		if n > data.Len() {
			n = data.Len()
		}
		p.trim(data, n)
		delta = -int64(n)
	case correctDiscard:
		n := p.format.DurationToBytes(corr.amount)
		if n > data.Len() {
			n = data.Len()
		}
		p.trim(data, n)
		delta = -int64(n)
		p.desync.Do(func() {
			p.logger.Warn("audio far behind master clock, discarding", "drift", drift, "bytes", n)
		})
	}

	p.mu.Lock()
	p.compensated += delta
	p.stats.Corrections++
	if corr.kind == correctDiscard {
		p.stats.DiscardedBytes += -delta
	}
	p.mu.Unlock()
}

// trim drops n bytes from the front of data. Events inside the cut move to the
// new start of the chunk so they still dispatch.
func (p *AudioPlayer) trim(data *audio.Data, n int) {
	end := data.Timestamp + p.format.BytesToDuration(int64(n))
	var cut []audio.Event
	for _, ev := range data.Events {
		if ev.Timestamp < end {
			cut = append(cut, ev)
		}
	}
	data.Consume(n, p.format)
	if len(cut) > 0 {
		data.Events = append(cut, data.Events...)
	}
}

// queueEventsLocked schedules data's events at their byte offset from the write
// cursor. Events stamped before the chunk start are due at the write cursor.
func (p *AudioPlayer) queueEventsLocked(data *audio.Data) {
	for _, ev := range data.Events {
		off := int64(0)
		if ev.Timestamp > data.Timestamp {
			off = int64(p.format.DurationToBytes(ev.Timestamp - data.Timestamp))
		}
		p.events = append(p.events, timedEvent{pos: p.writeCursor + off, ev: ev})
	}
}

// submit writes data to the backend and returns the bytes accepted
func (p *AudioPlayer) submit(data *audio.Data) int {
	n, err := p.out.Write(data.Bytes)
	if err != nil {
		p.logger.Error("output write failed", "err", err)
		return 0
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.queueEventsLocked(data)
	if short := len(data.Bytes) - n; short > 0 {
		// keep perceived time honest about what the backend refused
		p.compensated -= int64(short)
		p.logger.Warn("output accepted a partial write", "wanted", len(data.Bytes), "accepted", n)
	}
	p.writeCursor += int64(n)
	p.underrun = false
	return n
}

// Clear drops all buffered audio and sync state. Only legal while stopped.
func (p *AudioPlayer) Clear() error {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()

	if p.deleted {
		return ErrDeleted
	}
	if p.playing {
		return ErrPlaying
	}
	if err := p.out.Clear(); err != nil {
		return fmt.Errorf("failed to clear output: %w", err)
	}

	p.mu.Lock()
	p.playCursor = 0
	p.writeCursor = 0
	p.underrun = false
	p.eosSent = false
	p.exhausted = false
	p.events = nil
	p.baseSet = false
	p.timeBase = 0
	p.compensated = 0
	p.comp.reset()
	p.mu.Unlock()
	return nil
}

// Delete stops the player if needed and releases the backend output. Safe to
// call more than once.
func (p *AudioPlayer) Delete() {
	p.stateMu.Lock()
	if err := p.stopLocked(); err != nil {
		p.logger.Warn("stop during delete failed", "err", err)
	}
	p.deleted = true
	p.stateMu.Unlock()

	p.release.Do(func() {
		if err := p.out.Close(); err != nil {
			p.logger.Warn("failed to close output", "err", err)
		}
		if p.onDelete != nil {
			p.onDelete(p)
		}
		p.logger.Debug("deleted")
	})
}

// Time returns the perceived audio time: the timestamp of the first data since
// the last Clear plus the played bytes net of drift compensation. ok is false
// until data has been buffered.
func (p *AudioPlayer) Time() (t time.Duration, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.baseSet {
		return 0, false
	}
	return p.timeLocked(), true
}

func (p *AudioPlayer) timeLocked() time.Duration {
	return p.timeBase + p.format.BytesToDuration(p.playCursor-p.compensated)
}

// SetVolume sets this player's gain (0..1), scaled by the listener volume and
// placement
func (p *AudioPlayer) SetVolume(v float64) {
	p.stateMu.Lock()
	p.volume = v
	p.stateMu.Unlock()
	p.applyVolume()
}

// Volume returns this player's gain
func (p *AudioPlayer) Volume() float64 {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	return p.volume
}

// SetPosition places this player's audio relative to the listener
func (p *AudioPlayer) SetPosition(pos Vec3) {
	p.stateMu.Lock()
	p.position = pos
	p.stateMu.Unlock()
	p.applyVolume()
}

// Position returns where this player's audio is placed
func (p *AudioPlayer) Position() Vec3 {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	return p.position
}

// applyVolume pushes the player volume, listener volume, distance attenuation and
// pan to the output
func (p *AudioPlayer) applyVolume() {
	p.stateMu.Lock()
	v, pos := p.volume, p.position
	p.stateMu.Unlock()

	gain, pan := p.listener.spatialize(pos)
	if vs, ok := p.out.(output.VolumeSetter); ok {
		vs.SetVolume(v * gain)
	}
	if pn, ok := p.out.(output.Panner); ok {
		pn.SetPan(pan)
	}
}

// Stats returns a snapshot of cursors and drift state
func (p *AudioPlayer) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.stats
	s.PlayCursor = p.playCursor
	s.WriteCursor = p.writeCursor
	s.Buffered = p.writeCursor - p.playCursor
	s.AverageDrift, _ = p.comp.average()
	s.DriftSamples = p.comp.len()
	s.Exhausted = p.exhausted
	return s
}
