// ABOUTME: Tests for the remote control server and client
// ABOUTME: Runs both ends over httptest against a fake controller
package remote

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Resonate-Protocol/resonate-media/internal/version"
	"github.com/Resonate-Protocol/resonate-media/pkg/audio"
	"github.com/Resonate-Protocol/resonate-media/pkg/player"
	"github.com/Resonate-Protocol/resonate-media/pkg/source"
)

type fakeController struct {
	mu       sync.Mutex
	playing  bool
	position time.Duration
	volume   float64
	next     int
	src      source.Source
}

func (f *fakeController) Play() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.src == nil {
		return player.ErrNoSource
	}
	f.playing = true
	return nil
}

func (f *fakeController) Pause() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.playing = false
}

func (f *fakeController) Seek(t time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.position = t
	return nil
}

func (f *fakeController) NextSource() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
}

func (f *fakeController) SetVolume(v float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.volume = v
}

func (f *fakeController) Volume() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.volume
}

func (f *fakeController) Time() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.position
}

func (f *fakeController) Playing() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.playing
}

func (f *fakeController) Loop() bool { return false }

func (f *fakeController) Source() source.Source {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.src
}

func startServer(t *testing.T, ctrl Controller) (*Server, string) {
	t.Helper()
	srv := New(Config{Name: "test room"}, ctrl)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, strings.TrimPrefix(ts.URL, "http://")
}

func dial(t *testing.T, addr string) *Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := Dial(ctx, addr, "tester")
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func nextState(t *testing.T, c *Client) State {
	t.Helper()
	select {
	case st, ok := <-c.States:
		require.True(t, ok, "connection closed")
		return st
	case <-time.After(5 * time.Second):
		t.Fatal("no state received")
	}
	return State{}
}

func TestHandshakeSendsHelloAndState(t *testing.T) {
	ctrl := &fakeController{volume: 0.5, src: source.NewSilence(audio.Format{SampleRate: 8000, Channels: 1, BitDepth: 16}, time.Second)}
	srv, addr := startServer(t, ctrl)
	c := dial(t, addr)

	assert.Equal(t, "test room", c.Server.Name)
	assert.Equal(t, ProtocolVersion, c.Server.Version)
	assert.Equal(t, version.Product, c.Server.Product)
	assert.NotEmpty(t, c.Server.ServerID)

	st := nextState(t, c)
	assert.Equal(t, "paused", st.State)
	assert.Equal(t, "Silence", st.Title)
	assert.Equal(t, 0.5, st.Volume)

	require.Eventually(t, func() bool { return srv.Clients() == 1 }, time.Second, 5*time.Millisecond)
}

func TestCommandsDriveController(t *testing.T) {
	ctrl := &fakeController{src: source.NewSilence(audio.Format{SampleRate: 8000, Channels: 1, BitDepth: 16}, time.Second)}
	_, addr := startServer(t, ctrl)
	c := dial(t, addr)
	nextState(t, c)

	require.NoError(t, c.Send(Command{Command: CommandPlay}))
	st := nextState(t, c)
	assert.Equal(t, "playing", st.State)

	require.NoError(t, c.Send(Command{Command: CommandSeek, PositionMs: 1500}))
	st = nextState(t, c)
	assert.Equal(t, int64(1500), st.PositionMs)

	require.NoError(t, c.Send(Command{Command: CommandVolume, Volume: 0.25}))
	st = nextState(t, c)
	assert.Equal(t, 0.25, st.Volume)

	require.NoError(t, c.Send(Command{Command: CommandNext}))
	nextState(t, c)
	require.NoError(t, c.Send(Command{Command: CommandPause}))
	st = nextState(t, c)
	assert.Equal(t, "paused", st.State)

	ctrl.mu.Lock()
	assert.Equal(t, 1, ctrl.next)
	ctrl.mu.Unlock()
}

func TestRejectedCommandReportsError(t *testing.T) {
	_, addr := startServer(t, &fakeController{})
	c := dial(t, addr)
	st := nextState(t, c)
	assert.Equal(t, "idle", st.State)

	require.NoError(t, c.Send(Command{Command: CommandPlay}))
	select {
	case e := <-c.Errors:
		assert.Contains(t, e.Message, "no source")
	case <-time.After(5 * time.Second):
		t.Fatal("no error received")
	}

	require.NoError(t, c.Send(Command{Command: "rewind"}))
	select {
	case e := <-c.Errors:
		assert.Contains(t, e.Message, "unknown command")
	case <-time.After(5 * time.Second):
		t.Fatal("no error received")
	}
}

func TestPlayerEventsAreBroadcast(t *testing.T) {
	ctrl := &fakeController{}
	srv, addr := startServer(t, ctrl)
	c := dial(t, addr)
	nextState(t, c)
	require.Eventually(t, func() bool { return srv.Clients() == 1 }, time.Second, 5*time.Millisecond)

	srv.OnPlayerEvent(player.Event{Kind: player.EventMedia, Time: 2 * time.Second, Media: &audio.Event{Name: "chapter"}})

	select {
	case ev := <-c.Events:
		assert.Equal(t, "media", ev.Event)
		assert.Equal(t, "chapter", ev.Name)
		assert.Equal(t, int64(2000), ev.PositionMs)
	case <-time.After(5 * time.Second):
		t.Fatal("no event received")
	}
}

func TestServeStopsWithContext(t *testing.T) {
	srv := New(Config{}, &fakeController{})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- srv.ListenAndServe(ctx, "127.0.0.1:0") }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
