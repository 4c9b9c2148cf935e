// ABOUTME: Media player sequencing sources against a master clock
// ABOUTME: Drives an AudioPlayer for sound and schedules video texture updates
package player

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/Resonate-Protocol/resonate-media/pkg/audio"
	"github.com/Resonate-Protocol/resonate-media/pkg/clock"
	"github.com/Resonate-Protocol/resonate-media/pkg/driver"
	"github.com/Resonate-Protocol/resonate-media/pkg/source"
)

// ErrNoSource is returned when an operation needs a current source
var ErrNoSource = errors.New("no source queued")

// Handle identifies a scheduled callback; the zero Handle is never returned
type Handle uint64

// Scheduler is the event loop the player runs its callbacks on. Post and
// ScheduleOnce must not block and may be called from any goroutine.
type Scheduler interface {
	ScheduleOnce(fn func(), delay time.Duration) Handle
	Unschedule(h Handle)
	Post(fn func())
}

// Config wires a Player to its collaborators
type Config struct {
	// Driver plays audio; nil plays video only
	Driver *driver.Driver

	// Scheduler runs texture updates and event delivery; required
	Scheduler Scheduler

	// Textures creates video surfaces; nil plays audio only
	Textures TextureFactory

	// Clock replaces the master clock, mainly for tests
	Clock *clock.Master

	// Loop repeats the current source instead of advancing
	Loop bool

	Logger *log.Logger
}

// Stats is a snapshot of the player
type Stats struct {
	Time          time.Duration
	Playing       bool
	HasAudio      bool
	Audio         driver.Stats
	FramesShown   int64
	FramesSkipped int64
	Queued        int
}

// Player plays a playlist of sources. Its methods may be called from any
// goroutine; observers and texture updates run on the Scheduler.
type Player struct {
	driver   *driver.Driver
	sched    Scheduler
	textures TextureFactory
	clock    *clock.Master
	logger   *log.Logger

	// audioGen changes whenever buffered audio is thrown away, so end-of-stream
	// notices from before the change are ignored
	audioGen atomic.Uint64

	mu          sync.Mutex
	playlist    []source.Source
	current     source.Source
	audio       *driver.AudioPlayer
	texture     Texture
	frameHandle Handle
	playing     bool
	loop        bool
	volume      float64
	position    driver.Vec3
	deleted     bool
	shown       int64
	skipped     int64

	obsMu        sync.Mutex
	observers    map[uint64]Observer
	nextObserver uint64
}

// New creates a stopped player with an empty playlist
func New(cfg Config) *Player {
	p := &Player{
		driver:    cfg.Driver,
		sched:     cfg.Scheduler,
		textures:  cfg.Textures,
		clock:     cfg.Clock,
		logger:    cfg.Logger,
		loop:      cfg.Loop,
		volume:    1.0,
		observers: make(map[uint64]Observer),
	}
	if p.clock == nil {
		p.clock = clock.New()
	}
	if p.logger == nil {
		p.logger = log.WithPrefix("player")
	}
	return p
}

// Queue appends src to the playlist. If nothing is current it becomes current and,
// when the player is playing, starts immediately.
func (p *Player) Queue(src source.Source) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current != nil {
		p.playlist = append(p.playlist, src)
		return
	}
	p.current = src
	p.clock.Reset()
	p.logger.Info("Source queued", "title", src.Info().Title)
	if p.playing {
		p.playing = false
		if err := p.playLocked(); err != nil {
			p.logger.Warn("failed to start queued source", "err", err)
		}
	}
}

// Play starts or resumes the current source
func (p *Player) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playLocked()
}

func (p *Player) playLocked() error {
	if p.playing {
		return nil
	}
	if p.current == nil {
		return ErrNoSource
	}
	src := p.current

	if src.AudioFormat() != nil && p.driver != nil && p.audio == nil {
		ap, err := p.driver.CreateAudioPlayer(src, &audioOwner{p: p})
		if err != nil {
			p.logger.Warn("audio unavailable, playing video only", "err", err)
		} else {
			ap.SetVolume(p.volume)
			ap.SetPosition(p.position)
			p.audio = ap
		}
	}
	if p.audio != nil {
		p.audio.Prefill()
		if err := p.audio.Play(); err != nil {
			return fmt.Errorf("failed to start audio: %w", err)
		}
	}

	if vf := src.VideoFormat(); vf != nil && p.textures != nil && p.texture == nil {
		tex, err := p.textures.CreateTexture(vf.Width, vf.Height)
		if err != nil {
			p.logger.Warn("texture unavailable, playing audio only", "err", err)
		} else {
			p.texture = tex
		}
	}

	p.clock.Play()
	p.playing = true

	if p.texture != nil {
		p.scheduleFrameLocked(0)
	}
	if p.audio == nil && p.texture == nil {
		gen := p.audioGen.Load()
		p.sched.Post(func() { p.sourceEnded(src, gen) })
	}
	p.logger.Debug("playing", "title", src.Info().Title, "time", p.clock.Time())
	return nil
}

// Pause stops audio and freezes the clock, keeping everything buffered
func (p *Player) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pauseLocked()
}

func (p *Player) pauseLocked() {
	if !p.playing {
		return
	}
	if p.audio != nil {
		if err := p.audio.Stop(); err != nil {
			p.logger.Warn("failed to stop audio", "err", err)
		}
	}
	p.unscheduleFrameLocked()
	p.clock.Pause()
	p.playing = false
	p.logger.Debug("paused", "time", p.clock.Time())
}

// Seek moves the current source to t. Playback resumes if it was playing.
func (p *Player) Seek(t time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.seekLocked(t)
}

func (p *Player) seekLocked(t time.Duration) error {
	if p.current == nil {
		return ErrNoSource
	}
	if t < 0 {
		t = 0
	}

	wasPlaying := p.playing
	p.pauseLocked()

	var seekErr error
	if err := p.current.Seek(t); err != nil {
		seekErr = fmt.Errorf("failed to seek to %v: %w", t, err)
	} else {
		if p.audio != nil {
			p.audioGen.Add(1)
			if err := p.audio.Clear(); err != nil {
				seekErr = fmt.Errorf("failed to clear audio: %w", err)
			}
		}
		p.clock.Set(t)
		p.updateTextureLocked()
	}

	if wasPlaying {
		if err := p.playLocked(); err != nil && seekErr == nil {
			seekErr = err
		}
	}
	return seekErr
}

// NextSource drops the current source and moves to the next one
func (p *Player) NextSource() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextSourceLocked()
}

func (p *Player) nextSourceLocked() {
	if p.current == nil {
		return
	}
	wasPlaying := p.playing
	p.pauseLocked()
	p.releaseLocked()

	if err := p.current.Close(); err != nil {
		p.logger.Warn("failed to close source", "err", err)
	}
	p.clock.Reset()

	if len(p.playlist) == 0 {
		p.current = nil
		p.logger.Info("Playlist finished")
		p.emit(Event{Kind: EventPlayerEOS})
		return
	}

	p.current = p.playlist[0]
	p.playlist = p.playlist[1:]
	p.logger.Info("Next source", "title", p.current.Info().Title)
	p.emit(Event{Kind: EventNextSource, Source: p.current})

	if wasPlaying {
		if err := p.playLocked(); err != nil {
			p.logger.Warn("failed to start next source", "err", err)
		}
	}
}

// releaseLocked drops the audio player and texture of the current source
func (p *Player) releaseLocked() {
	p.unscheduleFrameLocked()
	if p.audio != nil {
		p.audioGen.Add(1)
		p.audio.Delete()
		p.audio = nil
	}
	if p.texture != nil {
		p.texture.Release()
		p.texture = nil
	}
	p.shown, p.skipped = 0, 0
}

// sourceEnded handles the end of src, ignoring notices about a source or audio
// buffer that has since been replaced
func (p *Player) sourceEnded(src source.Source, gen uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.deleted || p.current != src || p.audioGen.Load() != gen {
		return
	}

	p.logger.Debug("source ended", "title", src.Info().Title)
	p.emit(Event{Kind: EventEOS, Source: src, Time: p.clock.Time()})

	if p.loop {
		if err := p.seekLocked(0); err != nil {
			p.logger.Warn("failed to loop source", "err", err)
			p.nextSourceLocked()
		}
		return
	}
	p.nextSourceLocked()
}

// UpdateTexture shows the video frame due at the current clock time and schedules
// the next update. It runs on the Scheduler.
func (p *Player) UpdateTexture() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.frameHandle = 0
	p.updateTextureLocked()
}

func (p *Player) updateTextureLocked() {
	src := p.current
	if src == nil || p.texture == nil {
		return
	}
	vf := src.VideoFormat()
	if vf == nil {
		return
	}
	frameDuration := vf.FrameDuration()
	now := p.clock.Time()

	// drop frames that are more than a frame late; video never goes backward
	ts, ok := src.NextVideoTimestamp()
	for ok && ts+frameDuration < now {
		if _, err := src.NextVideoFrame(); err != nil {
			ok = false
			break
		}
		p.skipped++
		ts, ok = src.NextVideoTimestamp()
	}
	if !ok {
		p.videoFinishedLocked(src)
		return
	}
	if ts > now {
		if p.playing {
			p.scheduleFrameLocked(ts - now)
		}
		return
	}

	frame, err := src.NextVideoFrame()
	if err != nil && !errors.Is(err, io.EOF) {
		p.logger.Warn("failed to decode video frame", "err", err)
	}
	if frame != nil {
		p.texture.Blit(frame)
		p.shown++
	}

	if !p.playing {
		return
	}
	delay := frameDuration
	if next, ok := src.NextVideoTimestamp(); ok {
		delay = next - now
	}
	if delay < 0 {
		delay = 0
	}
	p.scheduleFrameLocked(delay)
}

// videoFinishedLocked ends a video-only source; with audio the audio EOS does it
func (p *Player) videoFinishedLocked(src source.Source) {
	p.unscheduleFrameLocked()
	if p.audio != nil || !p.playing {
		return
	}
	gen := p.audioGen.Load()
	p.sched.Post(func() { p.sourceEnded(src, gen) })
}

func (p *Player) scheduleFrameLocked(delay time.Duration) {
	p.unscheduleFrameLocked()
	p.frameHandle = p.sched.ScheduleOnce(p.UpdateTexture, delay)
}

func (p *Player) unscheduleFrameLocked() {
	if p.frameHandle != 0 {
		p.sched.Unschedule(p.frameHandle)
		p.frameHandle = 0
	}
}

// Texture returns the video surface, nil without video
func (p *Player) Texture() Texture {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.texture
}

// Time returns the master clock time
func (p *Player) Time() time.Duration {
	return p.clock.Time()
}

// Playing reports whether the player is playing
func (p *Player) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// Source returns the current source, nil when the playlist is empty
func (p *Player) Source() source.Source {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// SetVolume sets the playback volume (0..1)
func (p *Player) SetVolume(v float64) {
	if v < 0 {
		v = 0
	} else if v > 1 {
		v = 1
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.volume = v
	if p.audio != nil {
		p.audio.SetVolume(v)
	}
}

// Volume returns the playback volume
func (p *Player) Volume() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

// SetPosition places the player's audio relative to the driver's listener
func (p *Player) SetPosition(pos driver.Vec3) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.position = pos
	if p.audio != nil {
		p.audio.SetPosition(pos)
	}
}

// Position returns where the player's audio is placed
func (p *Player) Position() driver.Vec3 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.position
}

// SetLoop makes the current source repeat instead of advancing
func (p *Player) SetLoop(loop bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loop = loop
}

// Loop reports whether the current source repeats
func (p *Player) Loop() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loop
}

// Stats returns a snapshot of playback state
func (p *Player) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := Stats{
		Time:          p.clock.Time(),
		Playing:       p.playing,
		HasAudio:      p.audio != nil,
		FramesShown:   p.shown,
		FramesSkipped: p.skipped,
		Queued:        len(p.playlist),
	}
	if p.audio != nil {
		s.Audio = p.audio.Stats()
	}
	return s
}

// Delete stops playback and releases the audio player and texture. Queued sources
// are closed. Safe to call more than once.
func (p *Player) Delete() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.deleted {
		return
	}
	p.pauseLocked()
	p.releaseLocked()
	for _, src := range append([]source.Source{p.current}, p.playlist...) {
		if src == nil {
			continue
		}
		if err := src.Close(); err != nil {
			p.logger.Warn("failed to close source", "err", err)
		}
	}
	p.current = nil
	p.playlist = nil
	p.deleted = true
}

// audioOwner connects an AudioPlayer to the player. Its callbacks run on the
// worker or device goroutine, so they only read the clock or post to the
// Scheduler.
type audioOwner struct {
	p *Player
}

func (o *audioOwner) Time() time.Duration {
	return o.p.clock.Time()
}

func (o *audioOwner) OnAudioEOS(ap *driver.AudioPlayer) {
	src := ap.Source()
	gen := o.p.audioGen.Load()
	o.p.sched.Post(func() { o.p.sourceEnded(src, gen) })
}

func (o *audioOwner) OnMediaEvent(ap *driver.AudioPlayer, ev audio.Event) {
	o.p.emit(Event{Kind: EventMedia, Source: ap.Source(), Time: ev.Timestamp, Media: &ev})
}
