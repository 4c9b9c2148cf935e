// ABOUTME: Read-ahead wrapper decoding audio on its own goroutine
// ABOUTME: Lets the audio worker pull without ever waiting on a decoder
package source

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/Resonate-Protocol/resonate-media/pkg/audio"
)

const (
	defaultPacketDuration = 50 * time.Millisecond
	defaultQueuePackets   = 40
	wouldBlockBackoff     = 5 * time.Millisecond
)

// Buffered decodes the wrapped source's audio ahead of time into a PacketQueue.
// GetAudioData never blocks: it returns ErrWouldBlock until the decoder catches
// up. Video calls go straight to the wrapped source, which must tolerate them
// concurrently with audio reads.
type Buffered struct {
	Source

	format     audio.Format
	active     bool // false for sources without audio
	packetSize int
	capacity   int

	mu      sync.Mutex
	queue   *PacketQueue
	pending *audio.Data
	done    bool
	err     error
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// BufferedOption configures a Buffered source
type BufferedOption func(*Buffered)

// WithPacketDuration sets how much audio one queued packet holds
func WithPacketDuration(d time.Duration) BufferedOption {
	return func(b *Buffered) {
		b.packetSize = b.format.DurationToBytes(d)
	}
}

// WithQueuePackets bounds the read-ahead in packets
func WithQueuePackets(n int) BufferedOption {
	return func(b *Buffered) {
		b.capacity = n
	}
}

// NewBuffered wraps src and starts decoding. Sources without audio are passed
// through unbuffered.
func NewBuffered(src Source, opts ...BufferedOption) *Buffered {
	b := &Buffered{Source: src, capacity: defaultQueuePackets}
	format := src.AudioFormat()
	if format == nil {
		return b
	}
	b.format = *format
	b.packetSize = format.DurationToBytes(defaultPacketDuration)
	for _, opt := range opts {
		opt(b)
	}
	if b.packetSize < format.BytesPerFrame() {
		b.packetSize = format.BytesPerFrame()
	}
	b.active = true
	b.start()
	return b
}

func (b *Buffered) start() {
	ctx, cancel := context.WithCancel(context.Background())
	q := NewPacketQueue(b.capacity)

	b.mu.Lock()
	b.queue = q
	b.pending = nil
	b.done = false
	b.err = nil
	b.cancel = cancel
	b.mu.Unlock()

	b.wg.Add(1)
	go b.produce(ctx, q)
}

func (b *Buffered) stop() {
	b.mu.Lock()
	cancel, q := b.cancel, b.queue
	b.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	q.Close()
	b.wg.Wait()
}

func (b *Buffered) produce(ctx context.Context, q *PacketQueue) {
	defer b.wg.Done()
	for ctx.Err() == nil {
		data, err := b.Source.GetAudioData(b.packetSize)
		if errors.Is(err, ErrWouldBlock) {
			select {
			case <-ctx.Done():
				return
			case <-time.After(wouldBlockBackoff):
			}
			continue
		}
		if err != nil {
			b.mu.Lock()
			b.done = true
			if !errors.Is(err, io.EOF) {
				b.err = err
				logger().Error("read-ahead stopped", "err", err)
			}
			b.mu.Unlock()
			return
		}
		if err := q.Put(ctx, data); err != nil {
			return
		}
	}
}

// GetAudioData assembles up to n bytes from decoded packets
func (b *Buffered) GetAudioData(n int) (*audio.Data, error) {
	if !b.active {
		return b.Source.GetAudioData(n)
	}
	n = b.format.Align(n)

	b.mu.Lock()
	q, pending, done, err := b.queue, b.pending, b.done, b.err
	b.pending = nil
	b.mu.Unlock()

	var chunks []*audio.Data
	total := 0
	if pending != nil {
		chunks = append(chunks, pending)
		total += pending.Len()
	}
	for total < n {
		pkt, ok := q.Get()
		if !ok {
			break
		}
		chunks = append(chunks, pkt)
		total += pkt.Len()
	}

	if total == 0 {
		if done {
			if err != nil {
				return nil, err
			}
			return nil, io.EOF
		}
		return nil, ErrWouldBlock
	}

	out := &audio.Data{Timestamp: chunks[0].Timestamp}
	for _, c := range chunks {
		out.Bytes = append(out.Bytes, c.Bytes...)
		out.Events = append(out.Events, c.Events...)
	}
	out.Duration = b.format.BytesToDuration(int64(len(out.Bytes)))

	if len(out.Bytes) > n {
		rest := &audio.Data{
			Bytes:     out.Bytes,
			Timestamp: out.Timestamp,
			Duration:  out.Duration,
			Events:    append([]audio.Event(nil), out.Events...),
		}
		rest.Consume(n, b.format)

		out.Bytes = out.Bytes[:n:n]
		out.Duration = b.format.BytesToDuration(int64(n))
		end := out.Timestamp + out.Duration
		keep := out.Events[:0]
		for _, ev := range out.Events {
			if ev.Timestamp < end {
				keep = append(keep, ev)
			}
		}
		out.Events = keep

		b.mu.Lock()
		b.pending = rest
		b.mu.Unlock()
	}
	return out, nil
}

// Queued returns the number of decoded bytes waiting
func (b *Buffered) Queued() int {
	if !b.active {
		return 0
	}
	b.mu.Lock()
	q := b.queue
	pending := 0
	if b.pending != nil {
		pending = b.pending.Len()
	}
	b.mu.Unlock()
	return q.Bytes() + pending
}

// Seek stops the decoder, repositions the wrapped source and restarts decoding
func (b *Buffered) Seek(t time.Duration) error {
	if !b.active {
		return b.Source.Seek(t)
	}
	b.stop()
	b.mu.Lock()
	b.queue.Flush()
	b.mu.Unlock()
	err := b.Source.Seek(t)
	b.start()
	return err
}

// Close stops the decoder and closes the wrapped source
func (b *Buffered) Close() error {
	b.stop()
	return b.Source.Close()
}
