// ABOUTME: Bubbletea model for the player TUI
// ABOUTME: Shows playback, buffering and sync state and turns keys into player actions
package ui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
)

// seekStep is how far the arrow keys seek
const seekStep = 5 * time.Second

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#89F0CB"))
	playingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00"))
	pausedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFF00"))
	idleStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#7D7D7D"))
)

// Model represents the TUI state
type Model struct {
	// Source
	title    string
	artist   string
	album    string
	format   string
	backend  string
	duration time.Duration

	// Playback
	state    string
	position time.Duration
	volume   int
	loop     bool

	// Sync
	buffered    int64
	drift       time.Duration
	corrections int64
	discarded   int64
	underruns   int64
	frames      int64
	skipped     int64
	remotes     int

	lastEvent string
	showDebug bool
	controls  *Controls

	width  int
	height int
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case StatusMsg:
		m.applyStatus(msg)
	case EventMsg:
		m.lastEvent = string(msg)
	}
	return m, nil
}

// View renders the TUI
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString(m.renderSource())
	b.WriteString(m.renderPlayback())
	b.WriteString(m.renderSync())
	if m.showDebug {
		b.WriteString(m.renderDebug())
	}
	b.WriteString(m.renderHelp())
	return b.String()
}

func (m Model) renderHeader() string {
	var state string
	switch m.state {
	case "playing":
		state = playingStyle.Render("▶ Playing")
	case "paused":
		state = pausedStyle.Render("⏸ Paused")
	default:
		state = idleStyle.Render("■ Idle")
	}
	return fmt.Sprintf("%s  %s\n\n", titleStyle.Render("Resonate Media"), state)
}

func (m Model) renderSource() string {
	if m.title == "" && m.format == "" {
		return dimStyle.Render("No source") + "\n\n"
	}
	s := fmt.Sprintf("  Track:  %s\n", truncate(m.title, 48))
	if m.artist != "" {
		s += fmt.Sprintf("  Artist: %s\n", truncate(m.artist, 48))
	}
	if m.album != "" {
		s += fmt.Sprintf("  Album:  %s\n", truncate(m.album, 48))
	}
	if m.format != "" {
		s += dimStyle.Render(fmt.Sprintf("  %s via %s", m.format, m.backend)) + "\n"
	}
	return s + "\n"
}

func (m Model) renderPlayback() string {
	progress := formatClock(m.position)
	if m.duration > 0 {
		progress += " / " + formatClock(m.duration)
		progress = fmt.Sprintf("[%s] %s", renderBar(int(m.position/time.Millisecond), int(m.duration/time.Millisecond), 30), progress)
	}
	loop := ""
	if m.loop {
		loop = "  ⟳ loop"
	}
	return fmt.Sprintf("  %s\n  Volume: [%s] %d%%%s\n\n", progress, renderBar(m.volume, 100, 10), m.volume, loop)
}

func (m Model) renderSync() string {
	drift := fmt.Sprintf("%+.1fms", float64(m.drift)/float64(time.Millisecond))
	if m.drift > 30*time.Millisecond || m.drift < -30*time.Millisecond {
		drift = warnStyle.Render(drift)
	}
	s := fmt.Sprintf("  Buffer: %s  Drift: %s  Corrections: %d\n",
		humanize.Bytes(uint64(m.buffered)), drift, m.corrections)
	if m.discarded > 0 || m.underruns > 0 {
		s += warnStyle.Render(fmt.Sprintf("  Discarded: %s  Underruns: %d",
			humanize.Bytes(uint64(m.discarded)), m.underruns)) + "\n"
	}
	if m.frames > 0 || m.skipped > 0 {
		s += fmt.Sprintf("  Video: %s frames shown, %s skipped\n", humanize.Comma(m.frames), humanize.Comma(m.skipped))
	}
	return s + "\n"
}

func (m Model) renderDebug() string {
	s := dimStyle.Render("  DEBUG") + "\n"
	s += fmt.Sprintf("  Remote clients: %d\n", m.remotes)
	if m.lastEvent != "" {
		s += fmt.Sprintf("  Last event: %s\n", m.lastEvent)
	}
	return s + "\n"
}

func (m Model) renderHelp() string {
	return dimStyle.Render("space:Play/Pause  ←/→:Seek  ↑/↓:Volume  n:Next  l:Loop  d:Debug  q:Quit") + "\n"
}

// handleKey turns keys into actions
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.controls.send(Action{Kind: ActionQuit})
		return m, tea.Quit
	case " ", "p":
		if m.state == "playing" {
			m.state = "paused"
			m.controls.send(Action{Kind: ActionPause})
		} else {
			m.state = "playing"
			m.controls.send(Action{Kind: ActionPlay})
		}
	case "left":
		m.position -= seekStep
		if m.position < 0 {
			m.position = 0
		}
		m.controls.send(Action{Kind: ActionSeek, Position: m.position})
	case "right":
		m.position += seekStep
		if m.duration > 0 && m.position > m.duration {
			m.position = m.duration
		}
		m.controls.send(Action{Kind: ActionSeek, Position: m.position})
	case "up":
		m.volume = min(m.volume+5, 100)
		m.controls.send(Action{Kind: ActionVolume, Volume: float64(m.volume) / 100})
	case "down":
		m.volume = max(m.volume-5, 0)
		m.controls.send(Action{Kind: ActionVolume, Volume: float64(m.volume) / 100})
	case "n":
		m.controls.send(Action{Kind: ActionNext})
	case "l":
		m.loop = !m.loop
		m.controls.send(Action{Kind: ActionLoop, Loop: m.loop})
	case "d":
		m.showDebug = !m.showDebug
	}
	return m, nil
}

// applyStatus updates the model from a status snapshot
func (m *Model) applyStatus(msg StatusMsg) {
	if msg.State != "" {
		m.state = msg.State
	}
	if msg.Title != "" || msg.Format != "" {
		m.title = msg.Title
		m.artist = msg.Artist
		m.album = msg.Album
		m.format = msg.Format
		m.backend = msg.Backend
		m.duration = msg.Duration
	}
	m.position = msg.Position
	if msg.Volume != nil {
		m.volume = int(*msg.Volume*100 + 0.5)
	}
	m.loop = msg.Loop
	m.buffered = msg.Buffered
	m.drift = msg.Drift
	m.corrections = msg.Corrections
	m.discarded = msg.Discarded
	m.underruns = msg.Underruns
	m.frames = msg.Frames
	m.skipped = msg.Skipped
	m.remotes = msg.Remotes
}

// StatusMsg is a periodic snapshot of the player
type StatusMsg struct {
	State    string
	Title    string
	Artist   string
	Album    string
	Format   string
	Backend  string
	Duration time.Duration
	Position time.Duration
	Volume   *float64
	Loop     bool

	Buffered    int64
	Drift       time.Duration
	Corrections int64
	Discarded   int64
	Underruns   int64
	Frames      int64
	Skipped     int64
	Remotes     int
}

// EventMsg reports a player event by name
type EventMsg string

func renderBar(value, max, width int) string {
	if max <= 0 {
		return strings.Repeat("░", width)
	}
	filled := (value * width) / max
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func truncate(s string, length int) string {
	if len(s) <= length {
		return s
	}
	return s[:length-3] + "..."
}

func formatClock(d time.Duration) string {
	d = d.Truncate(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	mins := d / time.Minute
	d -= mins * time.Minute
	secs := d / time.Second
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, mins, secs)
	}
	return fmt.Sprintf("%d:%02d", mins, secs)
}
