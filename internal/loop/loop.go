// ABOUTME: Single-goroutine event loop running posted and timed callbacks
// ABOUTME: Implements the player's Scheduler with a due-time heap and a ticker
package loop

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/Resonate-Protocol/resonate-media/pkg/player"
)

// DefaultResolution is how often timers are checked
const DefaultResolution = 5 * time.Millisecond

type timer struct {
	handle player.Handle
	due    time.Time
	fn     func()
	index  int
}

// timerQueue is a min-heap ordered by due time, then by scheduling order
type timerQueue []*timer

func (q timerQueue) Len() int { return len(q) }

func (q timerQueue) Less(i, j int) bool {
	if q[i].due.Equal(q[j].due) {
		return q[i].handle < q[j].handle
	}
	return q[i].due.Before(q[j].due)
}

func (q timerQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *timerQueue) Push(x any) {
	t := x.(*timer)
	t.index = len(*q)
	*q = append(*q, t)
}

func (q *timerQueue) Pop() any {
	old := *q
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*q = old[:n-1]
	return t
}

// Loop runs callbacks one at a time on the goroutine that calls Run. Callbacks
// never run while the loop's lock is held, so they may schedule more work.
type Loop struct {
	resolution time.Duration
	now        func() time.Time
	logger     *log.Logger

	mu     sync.Mutex
	timers timerQueue
	byID   map[player.Handle]*timer
	posted []func()
	next   player.Handle
	wake   chan struct{}
}

// Option configures a Loop
type Option func(*Loop)

// WithResolution sets the timer check interval
func WithResolution(d time.Duration) Option {
	return func(l *Loop) {
		if d > 0 {
			l.resolution = d
		}
	}
}

// WithNow replaces the wall clock, mainly for tests
func WithNow(now func() time.Time) Option {
	return func(l *Loop) {
		l.now = now
	}
}

// New creates an idle loop
func New(opts ...Option) *Loop {
	l := &Loop{
		resolution: DefaultResolution,
		now:        time.Now,
		logger:     log.WithPrefix("loop"),
		byID:       make(map[player.Handle]*timer),
		wake:       make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// ScheduleOnce runs fn after delay
func (l *Loop) ScheduleOnce(fn func(), delay time.Duration) player.Handle {
	if delay < 0 {
		delay = 0
	}
	l.mu.Lock()
	l.next++
	t := &timer{handle: l.next, due: l.now().Add(delay), fn: fn}
	heap.Push(&l.timers, t)
	l.byID[t.handle] = t
	l.mu.Unlock()

	if delay == 0 {
		l.signal()
	}
	return t.handle
}

// Unschedule cancels a pending timer; unknown or fired handles are ignored
func (l *Loop) Unschedule(h player.Handle) {
	l.mu.Lock()
	defer l.mu.Unlock()
	t, ok := l.byID[h]
	if !ok {
		return
	}
	delete(l.byID, h)
	heap.Remove(&l.timers, t.index)
}

// Post runs fn on the loop as soon as possible, after earlier posts
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	l.posted = append(l.posted, fn)
	l.mu.Unlock()
	l.signal()
}

func (l *Loop) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Pending returns the number of queued callbacks and timers
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.posted) + len(l.timers)
}

// Run services callbacks until ctx is done
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.resolution)
	defer ticker.Stop()

	l.logger.Debug("event loop started", "resolution", l.resolution)
	for {
		l.RunPending()
		select {
		case <-ctx.Done():
			l.logger.Debug("event loop stopped")
			return ctx.Err()
		case <-l.wake:
		case <-ticker.C:
		}
	}
}

// RunPending runs everything posted so far and every timer that is due, then
// returns how many callbacks ran. Run calls it; tests and hosts with their own
// loop may call it directly.
func (l *Loop) RunPending() int {
	ran := 0
	for {
		fn := l.take()
		if fn == nil {
			return ran
		}
		fn()
		ran++
	}
}

// take pops the next runnable callback: posts first, then due timers
func (l *Loop) take() func() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.posted) > 0 {
		fn := l.posted[0]
		l.posted[0] = nil
		l.posted = l.posted[1:]
		return fn
	}
	if len(l.timers) == 0 || l.timers[0].due.After(l.now()) {
		return nil
	}
	t := heap.Pop(&l.timers).(*timer)
	delete(l.byID, t.handle)
	return t.fn
}

var _ player.Scheduler = (*Loop)(nil)
