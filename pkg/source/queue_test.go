// ABOUTME: Tests for the bounded packet queue and read-ahead source
// ABOUTME: Covers blocking puts, cancellation, flushing and non-blocking pulls
package source

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Resonate-Protocol/resonate-media/pkg/audio"
)

func packet(n int) *audio.Data {
	return &audio.Data{Bytes: make([]byte, n)}
}

func TestQueueFIFO(t *testing.T) {
	q := NewPacketQueue(4)
	ctx := context.Background()
	require.NoError(t, q.Put(ctx, packet(1)))
	require.NoError(t, q.Put(ctx, packet(2)))
	assert.Equal(t, 2, q.Len())
	assert.Equal(t, 3, q.Bytes())

	p, ok := q.Get()
	require.True(t, ok)
	assert.Equal(t, 1, p.Len())
	p, ok = q.Get()
	require.True(t, ok)
	assert.Equal(t, 2, p.Len())

	_, ok = q.Get()
	assert.False(t, ok)
}

func TestQueuePutBlocksUntilGet(t *testing.T) {
	q := NewPacketQueue(1)
	require.NoError(t, q.Put(context.Background(), packet(1)))

	done := make(chan error, 1)
	go func() {
		done <- q.Put(context.Background(), packet(2))
	}()

	select {
	case <-done:
		t.Fatal("put on a full queue should block")
	case <-time.After(30 * time.Millisecond):
	}

	_, ok := q.Get()
	require.True(t, ok)
	require.NoError(t, <-done)
	assert.Equal(t, 1, q.Len())
}

func TestQueuePutHonoursContext(t *testing.T) {
	q := NewPacketQueue(1)
	require.NoError(t, q.Put(context.Background(), packet(1)))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := q.Put(ctx, packet(1))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestQueueCloseWakesProducers(t *testing.T) {
	q := NewPacketQueue(1)
	require.NoError(t, q.Put(context.Background(), packet(1)))

	done := make(chan error, 1)
	go func() {
		done <- q.Put(context.Background(), packet(1))
	}()
	time.Sleep(10 * time.Millisecond)
	q.Close()
	assert.ErrorIs(t, <-done, ErrQueueClosed)
}

func TestQueueFlush(t *testing.T) {
	q := NewPacketQueue(3)
	for i := 0; i < 3; i++ {
		require.NoError(t, q.Put(context.Background(), packet(10)))
	}
	q.Flush()
	assert.Zero(t, q.Len())
	assert.Zero(t, q.Bytes())
}

// gatedSource holds back audio until released
type gatedSource struct {
	*Tone
	mu       sync.Mutex
	released bool
}

func (g *gatedSource) GetAudioData(n int) (*audio.Data, error) {
	g.mu.Lock()
	open := g.released
	g.mu.Unlock()
	if !open {
		return nil, ErrWouldBlock
	}
	return g.Tone.GetAudioData(n)
}

func (g *gatedSource) release() {
	g.mu.Lock()
	g.released = true
	g.mu.Unlock()
}

func drain(t *testing.T, b *Buffered, chunk int) (int, time.Duration) {
	t.Helper()
	total := 0
	var next time.Duration
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		data, err := b.GetAudioData(chunk)
		if errors.Is(err, ErrWouldBlock) {
			time.Sleep(time.Millisecond)
			continue
		}
		if errors.Is(err, io.EOF) {
			return total, next
		}
		require.NoError(t, err)
		require.Equal(t, next, data.Timestamp)
		require.LessOrEqual(t, data.Len(), chunk)
		next = data.Timestamp + data.Duration
		total += data.Len()
	}
	t.Fatal("buffered source never reached the end")
	return 0, 0
}

func TestBufferedWouldBlockThenDelivers(t *testing.T) {
	src := &gatedSource{Tone: NewTone(cd, 440, time.Second)}
	b := NewBuffered(src)
	defer b.Close()

	_, err := b.GetAudioData(4096)
	assert.ErrorIs(t, err, ErrWouldBlock)

	src.release()
	total, end := drain(t, b, 7000)
	assert.Equal(t, cd.BytesPerSecond(), total)
	assert.Equal(t, time.Second, end)
}

func TestBufferedSplitsPackets(t *testing.T) {
	b := NewBuffered(NewTone(cd, 440, 500*time.Millisecond), WithPacketDuration(100*time.Millisecond), WithQueuePackets(2))
	defer b.Close()

	total, _ := drain(t, b, 1000)
	assert.Equal(t, cd.DurationToBytes(500*time.Millisecond), total)
}

func TestBufferedSeekRestartsDecoding(t *testing.T) {
	b := NewBuffered(NewTone(cd, 440, 2*time.Second))
	defer b.Close()

	require.Eventually(t, func() bool { return b.Queued() > 0 }, time.Second, time.Millisecond)
	require.NoError(t, b.Seek(1500*time.Millisecond))

	var data *audio.Data
	require.Eventually(t, func() bool {
		d, err := b.GetAudioData(64)
		if err != nil {
			return false
		}
		data = d
		return true
	}, time.Second, time.Millisecond)
	assert.Equal(t, 1500*time.Millisecond, data.Timestamp)
}

func TestBufferedPassesVideoOnlySourcesThrough(t *testing.T) {
	p := NewTestPattern(VideoFormat{Width: 1, Height: 1, FrameRate: 10}, time.Second, nil)
	b := NewBuffered(p)
	defer b.Close()

	assert.Nil(t, b.AudioFormat())
	_, err := b.GetAudioData(64)
	assert.ErrorIs(t, err, io.EOF)
	ts, ok := b.NextVideoTimestamp()
	assert.True(t, ok)
	assert.Zero(t, ts)
}
