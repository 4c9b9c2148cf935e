// ABOUTME: Tests for the silent backend
// ABOUTME: Verifies wall-clock cursor advance, capacity and clear semantics
package output

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Resonate-Protocol/resonate-media/pkg/audio"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

var cdFormat = audio.Format{SampleRate: 44100, Channels: 2, BitDepth: 16}

func openSilent(t *testing.T) (*Silent, *fakeClock) {
	t.Helper()
	clk := &fakeClock{t: time.Unix(1000, 0)}
	host := NewSilentHost(WithClock(clk.now))
	assert.Equal(t, "silent", host.Name())

	out, err := host.Open(cdFormat)
	require.NoError(t, err)
	return out.(*Silent), clk
}

func TestSilentCursorFollowsWallClock(t *testing.T) {
	out, clk := openSilent(t)

	n, err := out.Write(make([]byte, 176400))
	require.NoError(t, err)
	require.Equal(t, 176400, n)

	clk.advance(time.Second)
	assert.Zero(t, out.PlayCursor(), "stopped output must not advance")

	require.NoError(t, out.Start())
	clk.advance(250 * time.Millisecond)
	assert.Equal(t, int64(44100), out.PlayCursor())

	require.NoError(t, out.Stop())
	clk.advance(time.Second)
	assert.Equal(t, int64(44100), out.PlayCursor())

	require.NoError(t, out.Start())
	clk.advance(10 * time.Second)
	assert.Equal(t, int64(176400), out.PlayCursor(), "cursor never passes written data")
}

func TestSilentWriteRespectsCapacity(t *testing.T) {
	out, _ := openSilent(t)

	capacity := cdFormat.DurationToBytes(DefaultCapacity)
	n, err := out.Write(make([]byte, capacity+1000))
	require.NoError(t, err)
	assert.Equal(t, capacity, n)
	assert.Zero(t, out.Free())
}

func TestSilentUnderrunDoesNotCountSilence(t *testing.T) {
	out, clk := openSilent(t)
	require.NoError(t, out.Start())

	out.Write(make([]byte, 4410*4))
	clk.advance(time.Second)
	assert.Equal(t, int64(4410*4), out.PlayCursor())

	out.Write(make([]byte, 4410*4))
	assert.Equal(t, int64(4410*4), out.PlayCursor())
	clk.advance(50 * time.Millisecond)
	assert.Equal(t, int64(4410*4+2205*4), out.PlayCursor())
}

func TestSilentClear(t *testing.T) {
	out, clk := openSilent(t)
	out.Write(make([]byte, 1000))
	require.NoError(t, out.Start())
	clk.advance(time.Millisecond)
	require.NoError(t, out.Stop())

	require.NoError(t, out.Clear())
	assert.Zero(t, out.PlayCursor())
	assert.Equal(t, cdFormat.DurationToBytes(DefaultCapacity), out.Free())
}

func TestSilentRejectsInvalidFormat(t *testing.T) {
	_, err := NewSilentHost().Open(audio.Format{SampleRate: 44100, Channels: 2, BitDepth: 12})
	assert.Error(t, err)
}
