// ABOUTME: TUI initialization and control
// ABOUTME: Wraps the bubbletea program and the action channel back to the player
package ui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// ActionKind is a user request from the TUI
type ActionKind int

const (
	ActionPlay ActionKind = iota
	ActionPause
	ActionSeek
	ActionNext
	ActionVolume
	ActionLoop
	ActionQuit
)

// Action carries a request and its argument
type Action struct {
	Kind     ActionKind
	Position time.Duration
	Volume   float64
	Loop     bool
}

// Controls carries actions from the TUI to the player
type Controls struct {
	Actions chan Action
}

// NewControls creates a control channel
func NewControls() *Controls {
	return &Controls{Actions: make(chan Action, 16)}
}

// send never blocks the UI; a full channel drops the action
func (c *Controls) send(a Action) {
	if c == nil {
		return
	}
	select {
	case c.Actions <- a:
	default:
	}
}

// NewModel creates a new TUI model; controls may be nil
func NewModel(controls *Controls) Model {
	return Model{
		volume:   100,
		state:    "idle",
		controls: controls,
	}
}

// New creates the TUI program
func New(controls *Controls) *tea.Program {
	return tea.NewProgram(NewModel(controls), tea.WithAltScreen())
}
