// ABOUTME: Audio driver owning one backend host, the worker and the listener
// ABOUTME: Creates AudioPlayers and falls back to the silent backend when no device works
package driver

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/Resonate-Protocol/resonate-media/pkg/audio/output"
	"github.com/Resonate-Protocol/resonate-media/pkg/source"
)

// DefaultBufferDuration is the ideal amount of audio kept queued on the backend
const DefaultBufferDuration = 900 * time.Millisecond

var (
	// ErrPlaying is returned by Clear while the AudioPlayer is playing
	ErrPlaying = errors.New("audio player is playing")

	// ErrDeleted is returned by operations on a deleted AudioPlayer
	ErrDeleted = errors.New("audio player was deleted")

	// ErrNoAudio is returned when creating an AudioPlayer for a source without audio
	ErrNoAudio = errors.New("source has no audio")

	// ErrClosed is returned after the driver was closed
	ErrClosed = errors.New("audio driver is closed")
)

// Backend names accepted by Open
const (
	BackendAuto   = "auto"
	BackendOto    = "oto"
	BackendMalgo  = "malgo"
	BackendSilent = "silent"
)

// Driver is the audio service of a process: one backend, one Worker and one
// Listener shared by every AudioPlayer it creates.
type Driver struct {
	host           output.Host
	worker         *Worker
	listener       *Listener
	bufferDuration time.Duration
	workerInterval time.Duration
	logger         *log.Logger

	mu      sync.Mutex
	players map[*AudioPlayer]struct{}
	closed  bool
}

// Option configures a Driver
type Option func(*Driver)

// WithBufferDuration sets the ideal buffered audio per player
func WithBufferDuration(d time.Duration) Option {
	return func(drv *Driver) {
		if d > 0 {
			drv.bufferDuration = d
		}
	}
}

// WithWorkerInterval sets how often players are serviced
func WithWorkerInterval(d time.Duration) Option {
	return func(drv *Driver) {
		if d > 0 {
			drv.workerInterval = d
		}
	}
}

// WithLogger replaces the driver logger
func WithLogger(l *log.Logger) Option {
	return func(drv *Driver) {
		drv.logger = l
	}
}

// New creates a driver over host and starts its Worker
func New(host output.Host, opts ...Option) *Driver {
	d := &Driver{
		host:           host,
		listener:       newListener(),
		bufferDuration: DefaultBufferDuration,
		workerInterval: DefaultWorkerInterval,
		logger:         log.WithPrefix("driver"),
		players:        make(map[*AudioPlayer]struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.listener.onChange = d.applyVolume

	d.worker = NewWorker(d.workerInterval)
	d.worker.Start()

	d.logger.Info("Audio driver ready", "backend", host.Name(), "buffer", d.bufferDuration)
	return d
}

// Open creates a driver over the first backend that initializes, trying backend
// first and then the rest of oto, malgo and silent in that order. The silent
// backend always works.
func Open(backend string, opts ...Option) *Driver {
	logger := log.WithPrefix("driver")

	for _, name := range backendOrder(backend) {
		host, err := openHost(name)
		if err != nil {
			logger.Warn("Audio backend unavailable", "backend", name, "err", err)
			continue
		}
		return New(host, opts...)
	}
	return New(output.NewSilentHost(), opts...)
}

func backendOrder(preferred string) []string {
	order := []string{BackendOto, BackendMalgo, BackendSilent}
	preferred = strings.ToLower(strings.TrimSpace(preferred))
	if preferred == "" || preferred == BackendAuto {
		return order
	}
	out := []string{preferred}
	for _, name := range order {
		if name != preferred {
			out = append(out, name)
		}
	}
	return out
}

func openHost(name string) (output.Host, error) {
	switch name {
	case BackendOto:
		return output.NewOtoHost(0, 0)
	case BackendMalgo:
		return output.NewMalgoHost()
	case BackendSilent:
		return output.NewSilentHost(), nil
	default:
		return nil, fmt.Errorf("unknown audio backend %q", name)
	}
}

// CreateAudioPlayer returns a stopped AudioPlayer bound to src's audio format
func (d *Driver) CreateAudioPlayer(src source.Source, owner Owner) (*AudioPlayer, error) {
	format := src.AudioFormat()
	if format == nil {
		return nil, ErrNoAudio
	}

	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	out, err := d.host.Open(*format)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s output for %s: %w", d.host.Name(), format, err)
	}

	p := newAudioPlayer(src, owner, *format, out, d)

	d.mu.Lock()
	d.players[p] = struct{}{}
	d.mu.Unlock()

	d.logger.Debug("audio player created", "player", p.ID(), "format", format)
	return p, nil
}

// forget drops a deleted player from the registry
func (d *Driver) forget(p *AudioPlayer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.players, p)
}

func (d *Driver) applyVolume() {
	d.mu.Lock()
	players := make([]*AudioPlayer, 0, len(d.players))
	for p := range d.players {
		players = append(players, p)
	}
	d.mu.Unlock()

	for _, p := range players {
		p.applyVolume()
	}
}

// Listener returns the shared listener
func (d *Driver) Listener() *Listener {
	return d.listener
}

// Worker returns the worker servicing this driver's players
func (d *Driver) Worker() *Worker {
	return d.worker
}

// Backend returns the active backend name
func (d *Driver) Backend() string {
	return d.host.Name()
}

// Players returns the number of live AudioPlayers
func (d *Driver) Players() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.players)
}

// Close deletes every live AudioPlayer, stops the Worker and closes the backend
func (d *Driver) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	players := make([]*AudioPlayer, 0, len(d.players))
	for p := range d.players {
		players = append(players, p)
	}
	d.mu.Unlock()

	for _, p := range players {
		p.Delete()
	}
	d.worker.Stop()

	if err := d.host.Close(); err != nil {
		return fmt.Errorf("failed to close %s backend: %w", d.host.Name(), err)
	}
	d.logger.Info("Audio driver closed")
	return nil
}
