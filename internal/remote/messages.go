// ABOUTME: Remote control message definitions
// ABOUTME: JSON envelopes for the handshake, player commands, state and events
package remote

import (
	"encoding/json"
	"fmt"
)

// Message types
const (
	TypeClientHello = "client/hello"
	TypeServerHello = "server/hello"
	TypeCommand     = "player/command"
	TypeState       = "player/state"
	TypeEvent       = "player/event"
	TypeError       = "server/error"
)

// Commands accepted in player/command
const (
	CommandPlay   = "play"
	CommandPause  = "pause"
	CommandSeek   = "seek"
	CommandNext   = "next"
	CommandVolume = "volume"
)

// ProtocolVersion is sent in server/hello
const ProtocolVersion = 1

// Message is the top-level wrapper for all messages
type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// envelope is a received message whose payload is decoded once its type is known
type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func (e envelope) decode(v any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("%s: missing payload", e.Type)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("%s: %w", e.Type, err)
	}
	return nil
}

// ClientHello opens a session
type ClientHello struct {
	ClientID string `json:"client_id"`
	Name     string `json:"name"`
}

// ServerHello answers client/hello
type ServerHello struct {
	ServerID string `json:"server_id"`
	Name     string `json:"name"`
	Version  int    `json:"version"`
	Product  string `json:"product"`
}

// Command asks the player to do something
type Command struct {
	Command    string  `json:"command"`
	PositionMs int64   `json:"position_ms,omitempty"`
	Volume     float64 `json:"volume,omitempty"`
}

// State describes the player
type State struct {
	State      string  `json:"state"` // "playing", "paused" or "idle"
	PositionMs int64   `json:"position_ms"`
	Title      string  `json:"title,omitempty"`
	Artist     string  `json:"artist,omitempty"`
	Volume     float64 `json:"volume"`
	Loop       bool    `json:"loop"`
}

// Event reports a player event
type Event struct {
	Event      string `json:"event"`
	PositionMs int64  `json:"position_ms"`
	Title      string `json:"title,omitempty"`
	Name       string `json:"name,omitempty"` // media event name
}

// ErrorPayload reports a rejected command
type ErrorPayload struct {
	Message string `json:"message"`
}
