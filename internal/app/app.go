// ABOUTME: Player application orchestration
// ABOUTME: Wires driver, event loop, player, remote control, discovery and TUI together
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/Resonate-Protocol/resonate-media/internal/config"
	"github.com/Resonate-Protocol/resonate-media/internal/discovery"
	"github.com/Resonate-Protocol/resonate-media/internal/loop"
	"github.com/Resonate-Protocol/resonate-media/internal/remote"
	"github.com/Resonate-Protocol/resonate-media/internal/ui"
	"github.com/Resonate-Protocol/resonate-media/pkg/audio"
	"github.com/Resonate-Protocol/resonate-media/pkg/driver"
	"github.com/Resonate-Protocol/resonate-media/pkg/player"
	"github.com/Resonate-Protocol/resonate-media/pkg/source"
)

// statusInterval is how often the TUI is refreshed
const statusInterval = 250 * time.Millisecond

// DefaultToneFormat is used for the test tone when no input is given
var DefaultToneFormat = audio.Format{SampleRate: 44100, Channels: 2, BitDepth: 16}

// Config holds application configuration
type Config struct {
	config.Config

	// Inputs are files or http(s) URLs; empty plays a test tone
	Inputs []string

	// ToneDuration is the length of the test tone
	ToneDuration time.Duration
}

// App is one running player process
type App struct {
	config    Config
	logger    *log.Logger
	driver    *driver.Driver
	loop      *loop.Loop
	player    *player.Player
	remote    *remote.Server
	discovery *discovery.Manager
	controls  *ui.Controls
	tui       *tea.Program
	finished  chan struct{}
}

// New opens the audio driver and queues every input
func New(cfg Config, opts ...driver.Option) (*App, error) {
	a := &App{
		config:   cfg,
		logger:   log.WithPrefix("app"),
		loop:     loop.New(),
		finished: make(chan struct{}),
	}

	a.driver = driver.Open(cfg.Driver, append(cfg.DriverOptions(), opts...)...)
	a.player = player.New(player.Config{
		Driver:    a.driver,
		Scheduler: a.loop,
		Textures:  player.ImageTextures{},
		Loop:      cfg.Loop,
	})
	a.player.SetVolume(cfg.Volume)

	sources, err := openInputs(cfg)
	if err != nil {
		a.player.Delete()
		_ = a.driver.Close()
		return nil, err
	}
	for _, src := range sources {
		a.player.Queue(src)
	}

	a.player.Subscribe(player.ObserverFunc(a.onPlayerEvent))
	if cfg.Remote.Enabled {
		a.remote = remote.New(remote.Config{Name: cfg.Remote.Name}, a.player)
		a.player.Subscribe(a.remote)
	}
	return a, nil
}

func openInputs(cfg Config) ([]source.Source, error) {
	if len(cfg.Inputs) == 0 {
		d := cfg.ToneDuration
		if d <= 0 {
			d = 10 * time.Second
		}
		return []source.Source{source.NewTone(DefaultToneFormat, source.DefaultToneFrequency, d)}, nil
	}

	var sources []source.Source
	for _, in := range cfg.Inputs {
		src, err := source.Open(in)
		if err != nil {
			for _, s := range sources {
				_ = s.Close()
			}
			return nil, fmt.Errorf("failed to open %s: %w", in, err)
		}
		sources = append(sources, source.NewBuffered(src))
	}
	return sources, nil
}

// Player returns the media player
func (a *App) Player() *player.Player {
	return a.player
}

// Driver returns the audio driver
func (a *App) Driver() *driver.Driver {
	return a.driver
}

// Run plays the playlist until it ends, the user quits or ctx is cancelled
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := a.loop.Run(ctx); !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	if a.remote != nil {
		addr := fmt.Sprintf(":%d", a.config.Remote.Port)
		g.Go(func() error { return a.remote.ListenAndServe(ctx, addr) })
		if a.config.Remote.MDNS {
			a.advertise()
		}
	}

	if a.config.TUI {
		a.controls = ui.NewControls()
		a.tui = ui.New(a.controls)
		g.Go(func() error {
			_, err := a.tui.Run()
			cancel()
			return err
		})
		g.Go(func() error { return a.handleControls(ctx) })
		g.Go(func() error { return a.statusLoop(ctx) })
	}

	a.loop.Post(func() {
		if err := a.player.Play(); err != nil {
			a.logger.Error("Failed to start playback", "err", err)
			a.finish()
		}
	})

	g.Go(func() error {
		select {
		case <-a.finished:
			a.logger.Info("Playback finished")
		case <-ctx.Done():
		}
		if a.tui != nil {
			a.tui.Quit()
		}
		cancel()
		return nil
	})

	err := g.Wait()
	a.shutdown()
	return err
}

func (a *App) advertise() {
	name := a.config.Remote.Name
	if name == "" {
		host, err := os.Hostname()
		if err != nil {
			host = "unknown"
		}
		name = host + "-resonate-media"
	}
	a.discovery = discovery.NewManager(discovery.Config{
		ServiceName: name,
		Port:        a.config.Remote.Port,
		Path:        remote.Path,
	})
	if err := a.discovery.Advertise(); err != nil {
		a.logger.Warn("mDNS advertisement failed", "err", err)
	}
}

func (a *App) onPlayerEvent(ev player.Event) {
	if ev.Kind == player.EventPlayerEOS {
		a.finish()
	}
	if a.tui != nil {
		// Send blocks until the program reads it; keep the loop free
		go a.tui.Send(ui.EventMsg(ev.Kind.String()))
	}
}

func (a *App) finish() {
	select {
	case <-a.finished:
	default:
		close(a.finished)
	}
}

// handleControls applies TUI actions on the event loop
func (a *App) handleControls(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case act := <-a.controls.Actions:
			a.loop.Post(func() { a.apply(act) })
		}
	}
}

func (a *App) apply(act ui.Action) {
	var err error
	switch act.Kind {
	case ui.ActionPlay:
		err = a.player.Play()
	case ui.ActionPause:
		a.player.Pause()
	case ui.ActionSeek:
		err = a.player.Seek(act.Position)
	case ui.ActionNext:
		a.player.NextSource()
	case ui.ActionVolume:
		a.player.SetVolume(act.Volume)
	case ui.ActionLoop:
		a.player.SetLoop(act.Loop)
	case ui.ActionQuit:
		a.finish()
	}
	if err != nil {
		a.logger.Warn("Action failed", "action", act.Kind, "err", err)
	}
	if a.remote != nil {
		a.remote.BroadcastState()
	}
}

func (a *App) statusLoop(ctx context.Context) error {
	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			a.tui.Send(a.Status())
		}
	}
}

// Status returns a TUI snapshot of the player
func (a *App) Status() ui.StatusMsg {
	stats := a.player.Stats()
	vol := a.player.Volume()
	msg := ui.StatusMsg{
		State:       "idle",
		Backend:     a.driver.Backend(),
		Position:    stats.Time,
		Volume:      &vol,
		Loop:        a.player.Loop(),
		Buffered:    stats.Audio.Buffered,
		Drift:       stats.Audio.AverageDrift,
		Corrections: stats.Audio.Corrections,
		Discarded:   stats.Audio.DiscardedBytes,
		Underruns:   stats.Audio.Underruns,
		Frames:      stats.FramesShown,
		Skipped:     stats.FramesSkipped,
	}
	if a.remote != nil {
		msg.Remotes = a.remote.Clients()
	}
	if src := a.player.Source(); src != nil {
		info := src.Info()
		msg.Title, msg.Artist, msg.Album = info.Title, info.Artist, info.Album
		if f := src.AudioFormat(); f != nil {
			msg.Format = f.String()
		}
		if d, ok := src.Duration(); ok {
			msg.Duration = d
		}
		msg.State = "paused"
		if stats.Playing {
			msg.State = "playing"
		}
	}
	return msg
}

func (a *App) shutdown() {
	if a.discovery != nil {
		a.discovery.Stop()
	}
	a.player.Delete()
	if err := a.driver.Close(); err != nil {
		a.logger.Warn("Failed to close audio driver", "err", err)
	}
}
