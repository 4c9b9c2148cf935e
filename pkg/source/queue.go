// ABOUTME: Bounded packet queue between a decoder goroutine and the audio driver
// ABOUTME: Blocking Put with context cancellation, non-blocking Get, Flush on seek
package source

import (
	"context"
	"sync"

	"github.com/Resonate-Protocol/resonate-media/pkg/audio"
)

// PacketQueue is a bounded FIFO of decoded audio packets
type PacketQueue struct {
	mu       sync.Mutex
	cond     *sync.Cond
	packets  []*audio.Data
	capacity int
	bytes    int
	closed   bool
}

// NewPacketQueue creates a queue holding at most capacity packets
func NewPacketQueue(capacity int) *PacketQueue {
	if capacity < 1 {
		capacity = 1
	}
	q := &PacketQueue{capacity: capacity}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Put appends a packet, blocking while the queue is full
func (q *PacketQueue) Put(ctx context.Context, pkt *audio.Data) error {
	stop := context.AfterFunc(ctx, func() {
		q.mu.Lock()
		q.cond.Broadcast()
		q.mu.Unlock()
	})
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.packets) >= q.capacity && !q.closed {
		if err := ctx.Err(); err != nil {
			return err
		}
		q.cond.Wait()
	}
	if q.closed {
		return ErrQueueClosed
	}

	q.packets = append(q.packets, pkt)
	q.bytes += pkt.Len()
	return nil
}

// Get pops the oldest packet without blocking
func (q *PacketQueue) Get() (*audio.Data, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.packets) == 0 {
		return nil, false
	}
	pkt := q.packets[0]
	q.packets[0] = nil
	q.packets = q.packets[1:]
	q.bytes -= pkt.Len()
	q.cond.Broadcast()
	return pkt, true
}

// Flush drops every queued packet
func (q *PacketQueue) Flush() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.packets = nil
	q.bytes = 0
	q.cond.Broadcast()
}

// Close wakes blocked producers; further Puts fail
func (q *PacketQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}

// Len returns the number of queued packets
func (q *PacketQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.packets)
}

// Bytes returns the number of queued audio bytes
func (q *PacketQueue) Bytes() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.bytes
}
