// ABOUTME: Tests for the background worker
// ABOUTME: Verifies periodic servicing, registration and Remove waiting on Work
package driver

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingWork struct {
	calls atomic.Int32
}

func (c *countingWork) Work() { c.calls.Add(1) }

type sleepyWork struct {
	entered  chan struct{}
	finished atomic.Bool
	once     atomic.Bool
	sleep    time.Duration
}

func (s *sleepyWork) Work() {
	if s.once.Swap(true) {
		return
	}
	close(s.entered)
	time.Sleep(s.sleep)
	s.finished.Store(true)
}

func TestWorkerServicesRegisteredPlayers(t *testing.T) {
	w := NewWorker(time.Millisecond)
	w.Start()
	defer w.Stop()

	c := &countingWork{}
	w.Add(c)
	assert.True(t, w.Contains(c))
	assert.Equal(t, 1, w.Len())

	require.Eventually(t, func() bool { return c.calls.Load() >= 3 }, time.Second, time.Millisecond)

	w.Remove(c)
	assert.False(t, w.Contains(c))
	after := c.calls.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, c.calls.Load(), "removed players are not serviced")
}

func TestRemoveWaitsForInFlightWork(t *testing.T) {
	w := NewWorker(time.Millisecond)
	w.Start()
	defer w.Stop()

	s := &sleepyWork{entered: make(chan struct{}), sleep: 80 * time.Millisecond}
	w.Add(s)

	select {
	case <-s.entered:
	case <-time.After(time.Second):
		t.Fatal("work never started")
	}

	w.Remove(s)
	assert.True(t, s.finished.Load(), "Remove returned while Work was still running")
}

func TestWorkerStopIsIdempotent(t *testing.T) {
	w := NewWorker(0)
	assert.Equal(t, DefaultWorkerInterval, w.interval)
	w.Start()
	w.Stop()
	w.Stop()

	unstarted := NewWorker(time.Millisecond)
	unstarted.Stop()
}
