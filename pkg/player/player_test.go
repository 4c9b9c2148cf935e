// ABOUTME: Tests for playlist sequencing, audio/video sync and event delivery
// ABOUTME: Runs on a manual scheduler and the silent backend with a fake clock
package player

import (
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Resonate-Protocol/resonate-media/pkg/audio"
	"github.com/Resonate-Protocol/resonate-media/pkg/audio/output"
	"github.com/Resonate-Protocol/resonate-media/pkg/clock"
	"github.com/Resonate-Protocol/resonate-media/pkg/driver"
	"github.com/Resonate-Protocol/resonate-media/pkg/source"
)

var cd = audio.Format{SampleRate: 44100, Channels: 2, BitDepth: 16}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type scheduled struct {
	fn    func()
	delay time.Duration
}

// manualScheduler runs nothing until the test asks it to
type manualScheduler struct {
	mu     sync.Mutex
	next   Handle
	timers map[Handle]scheduled
	posted []func()
}

func newManualScheduler() *manualScheduler {
	return &manualScheduler{timers: make(map[Handle]scheduled)}
}

func (s *manualScheduler) ScheduleOnce(fn func(), delay time.Duration) Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	s.timers[s.next] = scheduled{fn: fn, delay: delay}
	return s.next
}

func (s *manualScheduler) Unschedule(h Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.timers, h)
}

func (s *manualScheduler) Post(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.posted = append(s.posted, fn)
}

// drain runs posted callbacks, including ones posted while draining
func (s *manualScheduler) drain() {
	for {
		s.mu.Lock()
		if len(s.posted) == 0 {
			s.mu.Unlock()
			return
		}
		fn := s.posted[0]
		s.posted = s.posted[1:]
		s.mu.Unlock()
		fn()
	}
}

// pending returns the only scheduled timer
func (s *manualScheduler) pending(t *testing.T) scheduled {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.Len(t, s.timers, 1)
	for _, sc := range s.timers {
		return sc
	}
	return scheduled{}
}

// fire runs the only scheduled timer, as the loop would once it is due
func (s *manualScheduler) fire(t *testing.T) {
	t.Helper()
	s.mu.Lock()
	require.Len(t, s.timers, 1)
	var fn func()
	for h, sc := range s.timers {
		fn = sc.fn
		delete(s.timers, h)
	}
	s.mu.Unlock()
	fn()
}

func (s *manualScheduler) timerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) OnPlayerEvent(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) kinds() []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventKind, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Kind
	}
	return out
}

// emptySource has neither audio nor video
type emptySource struct {
	closed bool
}

func (s *emptySource) AudioFormat() *audio.Format                { return nil }
func (s *emptySource) VideoFormat() *source.VideoFormat          { return nil }
func (s *emptySource) Duration() (time.Duration, bool)           { return 0, true }
func (s *emptySource) Info() source.Info                         { return source.Info{Title: "empty"} }
func (s *emptySource) GetAudioData(int) (*audio.Data, error)     { return nil, io.EOF }
func (s *emptySource) NextVideoTimestamp() (time.Duration, bool) { return 0, false }
func (s *emptySource) NextVideoFrame() (*source.VideoFrame, error) {
	return nil, source.ErrNoVideo
}
func (s *emptySource) Seek(time.Duration) error { return nil }
func (s *emptySource) Close() error             { s.closed = true; return nil }

type harness struct {
	player *Player
	sched  *manualScheduler
	clock  *fakeClock
	events *recorder
	driver *driver.Driver
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	fc := &fakeClock{now: time.Unix(1000, 0)}
	d := driver.New(output.NewSilentHost(output.WithClock(fc.Now)), driver.WithWorkerInterval(time.Hour))
	t.Cleanup(func() { require.NoError(t, d.Close()) })

	sched := newManualScheduler()
	p := New(Config{
		Driver:    d,
		Scheduler: sched,
		Textures:  ImageTextures{},
		Clock:     clock.New(clock.WithNow(fc.Now)),
	})
	rec := &recorder{}
	p.Subscribe(rec)
	return &harness{player: p, sched: sched, clock: fc, events: rec, driver: d}
}

// work runs one worker pass for the current audio player
func (h *harness) work() {
	h.player.mu.Lock()
	ap := h.player.audio
	h.player.mu.Unlock()
	if ap != nil {
		ap.Work()
	}
}

func TestPlayWithoutSource(t *testing.T) {
	h := newHarness(t)
	assert.ErrorIs(t, h.player.Play(), ErrNoSource)
	assert.ErrorIs(t, h.player.Seek(time.Second), ErrNoSource)
}

func TestPlayAudioSource(t *testing.T) {
	h := newHarness(t)
	h.player.Queue(source.NewTone(cd, 440, 10*time.Second))
	require.NoError(t, h.player.Play())
	require.NoError(t, h.player.Play())

	assert.True(t, h.player.Playing())
	assert.Nil(t, h.player.Texture(), "audio only sources get no texture")
	assert.Equal(t, 1, h.driver.Players())

	stats := h.player.Stats()
	require.True(t, stats.HasAudio)
	assert.Greater(t, stats.Audio.WriteCursor, int64(0), "audio is prefilled before playing")

	h.clock.Advance(250 * time.Millisecond)
	assert.Equal(t, 250*time.Millisecond, h.player.Time())

	h.player.Pause()
	assert.False(t, h.player.Playing())
	h.clock.Advance(time.Second)
	assert.Equal(t, 250*time.Millisecond, h.player.Time(), "clock is frozen while paused")
}

func TestAudioEOSAdvancesPlaylist(t *testing.T) {
	h := newHarness(t)
	first := source.NewSilence(cd, 50*time.Millisecond)
	second := source.NewTone(cd, 440, 10*time.Second)
	h.player.Queue(first)
	h.player.Queue(second)
	require.NoError(t, h.player.Play())

	h.clock.Advance(100 * time.Millisecond)
	h.work()
	h.sched.drain()

	assert.Equal(t, []EventKind{EventEOS, EventNextSource}, h.events.kinds())
	assert.Same(t, second, h.player.Source())
	assert.True(t, h.player.Playing())
	assert.Equal(t, time.Duration(0), h.player.Time(), "clock restarts for the next source")
	assert.Equal(t, 1, h.driver.Players(), "old audio player is deleted")
}

func TestPlaylistEnd(t *testing.T) {
	h := newHarness(t)
	h.player.Queue(source.NewSilence(cd, 50*time.Millisecond))
	require.NoError(t, h.player.Play())

	h.clock.Advance(100 * time.Millisecond)
	h.work()
	h.work()
	h.sched.drain()

	assert.Equal(t, []EventKind{EventEOS, EventPlayerEOS}, h.events.kinds())
	assert.Nil(t, h.player.Source())
	assert.False(t, h.player.Playing())
	assert.Zero(t, h.driver.Players())
}

func TestEmptySourceEndsImmediately(t *testing.T) {
	h := newHarness(t)
	src := &emptySource{}
	h.player.Queue(src)
	require.NoError(t, h.player.Play())
	h.sched.drain()

	assert.Equal(t, []EventKind{EventEOS, EventPlayerEOS}, h.events.kinds())
	assert.True(t, src.closed)
}

func TestStaleEOSAfterSeekIgnored(t *testing.T) {
	h := newHarness(t)
	h.player.Queue(source.NewSilence(cd, 50*time.Millisecond))
	require.NoError(t, h.player.Play())

	h.clock.Advance(100 * time.Millisecond)
	h.work()

	// the end notice is queued, then the user seeks back before it is handled
	require.NoError(t, h.player.Seek(0))
	h.sched.drain()

	assert.Empty(t, h.events.kinds())
	assert.NotNil(t, h.player.Source())
	assert.True(t, h.player.Playing())
}

func TestSeekRepositionsClockAndAudio(t *testing.T) {
	h := newHarness(t)
	h.player.Queue(source.NewTone(cd, 440, 10*time.Second))
	require.NoError(t, h.player.Play())
	h.clock.Advance(200 * time.Millisecond)

	require.NoError(t, h.player.Seek(4*time.Second))
	assert.True(t, h.player.Playing())
	assert.Equal(t, 4*time.Second, h.player.Time())

	h.player.mu.Lock()
	ap := h.player.audio
	h.player.mu.Unlock()
	audioTime, ok := ap.Time()
	require.True(t, ok)
	assert.Equal(t, 4*time.Second, audioTime, "audio restarts at the seek target")
}

func TestLoopRepeatsSource(t *testing.T) {
	h := newHarness(t)
	h.player.SetLoop(true)
	assert.True(t, h.player.Loop())
	src := source.NewSilence(cd, 50*time.Millisecond)
	h.player.Queue(src)
	require.NoError(t, h.player.Play())

	h.clock.Advance(100 * time.Millisecond)
	h.work()
	h.sched.drain()

	assert.Equal(t, []EventKind{EventEOS}, h.events.kinds())
	assert.Same(t, src, h.player.Source())
	assert.True(t, h.player.Playing())
	assert.Equal(t, time.Duration(0), h.player.Time())
}

func TestUpdateTextureSkipsLateFrames(t *testing.T) {
	h := newHarness(t)
	video := source.VideoFormat{Width: 8, Height: 8, FrameRate: 30}
	h.player.Queue(source.NewTestPattern(video, 10*time.Second, nil))
	require.NoError(t, h.player.Play())

	assert.Equal(t, time.Duration(0), h.sched.pending(t).delay, "first frame is shown immediately")
	tex, ok := h.player.Texture().(*ImageTexture)
	require.True(t, ok)

	h.clock.Advance(time.Second)
	h.sched.fire(t)

	stats := h.player.Stats()
	assert.GreaterOrEqual(t, stats.FramesSkipped, int64(29))
	assert.Equal(t, int64(1), stats.FramesShown)

	_, ts := tex.Frame()
	now := h.player.Time()
	assert.LessOrEqual(t, ts, now)
	assert.Less(t, now-ts, video.FrameDuration(), "shown frame is within one frame of the clock")

	next := h.sched.pending(t)
	assert.Greater(t, next.delay, time.Duration(0))
	assert.LessOrEqual(t, next.delay, video.FrameDuration())

	// running the update early only reschedules it
	h.sched.fire(t)
	assert.Equal(t, int64(1), h.player.Stats().FramesShown)
	assert.LessOrEqual(t, h.sched.pending(t).delay, video.FrameDuration())
}

func TestVideoOnlySourceEndsWithVideo(t *testing.T) {
	h := newHarness(t)
	video := source.VideoFormat{Width: 2, Height: 2, FrameRate: 25}
	h.player.Queue(source.NewTestPattern(video, 100*time.Millisecond, nil))
	require.NoError(t, h.player.Play())

	h.sched.fire(t)
	assert.Empty(t, h.events.kinds())

	h.clock.Advance(200 * time.Millisecond)
	h.sched.fire(t)
	h.sched.drain()

	assert.Equal(t, []EventKind{EventEOS, EventPlayerEOS}, h.events.kinds())
	assert.Zero(t, h.sched.timerCount())
}

func TestPauseUnschedulesTextureUpdates(t *testing.T) {
	h := newHarness(t)
	video := source.VideoFormat{Width: 2, Height: 2, FrameRate: 25}
	h.player.Queue(source.NewTestPattern(video, time.Second, &cd))
	require.NoError(t, h.player.Play())
	require.Equal(t, 1, h.sched.timerCount())
	assert.True(t, h.player.Stats().HasAudio)

	h.player.Pause()
	assert.Zero(t, h.sched.timerCount())
}

func TestNextSourceAtEndOfPlaylist(t *testing.T) {
	h := newHarness(t)
	h.player.Queue(source.NewTone(cd, 440, 0))
	require.NoError(t, h.player.Play())

	h.player.NextSource()
	h.sched.drain()
	assert.Equal(t, []EventKind{EventPlayerEOS}, h.events.kinds())
	assert.False(t, h.player.Playing())
	assert.ErrorIs(t, h.player.Play(), ErrNoSource)
}

func TestUnsubscribe(t *testing.T) {
	h := newHarness(t)
	var got []EventKind
	unsubscribe := h.player.Subscribe(ObserverFunc(func(ev Event) { got = append(got, ev.Kind) }))

	h.player.Queue(&emptySource{})
	require.NoError(t, h.player.Play())
	h.sched.drain()
	assert.Equal(t, []EventKind{EventEOS, EventPlayerEOS}, got)

	unsubscribe()
	h.player.Queue(&emptySource{})
	require.NoError(t, h.player.Play())
	h.sched.drain()
	assert.Len(t, got, 2)
}

func TestVolumeAppliesToAudio(t *testing.T) {
	h := newHarness(t)
	h.player.SetVolume(2)
	assert.Equal(t, 1.0, h.player.Volume())

	h.player.Queue(source.NewTone(cd, 440, 0))
	require.NoError(t, h.player.Play())
	h.player.SetVolume(0.3)

	h.player.mu.Lock()
	ap := h.player.audio
	h.player.mu.Unlock()
	assert.Equal(t, 0.3, ap.Volume())
}

func TestPositionCarriesToAudio(t *testing.T) {
	h := newHarness(t)
	h.player.SetPosition(driver.Vec3{3, 0, 0})

	h.player.Queue(source.NewTone(cd, 440, 0))
	require.NoError(t, h.player.Play())

	h.player.mu.Lock()
	ap := h.player.audio
	h.player.mu.Unlock()
	assert.Equal(t, driver.Vec3{3, 0, 0}, ap.Position())

	h.player.SetPosition(driver.Vec3{0, 0, -2})
	assert.Equal(t, driver.Vec3{0, 0, -2}, ap.Position())
	assert.Equal(t, driver.Vec3{0, 0, -2}, h.player.Position())
}

func TestDeleteReleasesEverything(t *testing.T) {
	h := newHarness(t)
	queued := &emptySource{}
	h.player.Queue(source.NewTone(cd, 440, 0))
	h.player.Queue(queued)
	require.NoError(t, h.player.Play())

	h.player.Delete()
	h.player.Delete()
	assert.Zero(t, h.driver.Players())
	assert.True(t, queued.closed)
	assert.Nil(t, h.player.Source())
}

func TestEventKindString(t *testing.T) {
	assert.Equal(t, "eos", EventEOS.String())
	assert.Equal(t, "player_eos", EventPlayerEOS.String())
	assert.Equal(t, "next_source", EventNextSource.String())
	assert.Equal(t, "media", EventMedia.String())
	assert.Equal(t, "unknown", EventKind(42).String())
}
