// ABOUTME: Background worker servicing every playing AudioPlayer
// ABOUTME: Fixed-interval ticker loop; Remove waits out an in-flight pass
package driver

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// DefaultWorkerInterval is how often playing AudioPlayers are serviced
const DefaultWorkerInterval = 20 * time.Millisecond

// Workable is serviced by the Worker on every tick
type Workable interface {
	Work()
}

// Worker runs one goroutine that periodically calls Work on registered players.
// Work must never call Remove: a pass holds the lock Remove waits for.
type Worker struct {
	interval time.Duration
	logger   *log.Logger

	mu      sync.Mutex // guards players
	players map[Workable]struct{}

	passMu sync.Mutex // held for a whole servicing pass

	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
	stopped sync.Once
}

// NewWorker creates a stopped worker
func NewWorker(interval time.Duration) *Worker {
	if interval <= 0 {
		interval = DefaultWorkerInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		interval: interval,
		logger:   log.WithPrefix("worker"),
		players:  make(map[Workable]struct{}),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// Start launches the servicing goroutine
func (w *Worker) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return
	}
	w.started = true
	go w.run()
}

func (w *Worker) run() {
	defer close(w.done)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Debug("worker started", "interval", w.interval)
	for {
		select {
		case <-w.ctx.Done():
			w.logger.Debug("worker stopped")
			return
		case <-ticker.C:
			w.servicePass()
		}
	}
}

func (w *Worker) servicePass() {
	w.passMu.Lock()
	defer w.passMu.Unlock()

	w.mu.Lock()
	batch := make([]Workable, 0, len(w.players))
	for p := range w.players {
		batch = append(batch, p)
	}
	w.mu.Unlock()

	for _, p := range batch {
		p.Work()
	}
}

// Add registers a player; it is serviced from the next pass on
func (w *Worker) Add(p Workable) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.players[p] = struct{}{}
}

// Remove deregisters a player. It blocks until an in-flight pass has returned, so
// once it returns Work will not run again for p.
func (w *Worker) Remove(p Workable) {
	w.passMu.Lock()
	defer w.passMu.Unlock()

	w.mu.Lock()
	delete(w.players, p)
	w.mu.Unlock()
}

// Contains reports whether p is registered
func (w *Worker) Contains(p Workable) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.players[p]
	return ok
}

// Len returns the number of registered players
func (w *Worker) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.players)
}

// Stop ends the goroutine and waits for it
func (w *Worker) Stop() {
	w.stopped.Do(func() {
		w.cancel()
		w.mu.Lock()
		started := w.started
		w.mu.Unlock()
		if started {
			<-w.done
		}
	})
}
