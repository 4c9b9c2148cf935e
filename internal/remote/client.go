// ABOUTME: WebSocket client for the remote control endpoint
// ABOUTME: Performs the hello handshake, sends commands and routes state and events
package remote

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Client is a connected remote control session
type Client struct {
	ID     string
	Server ServerHello

	// States and Events deliver what the server broadcasts; they are closed when
	// the connection ends
	States chan State
	Events chan Event
	Errors chan ErrorPayload

	conn   *websocket.Conn
	logger *log.Logger
	mu     sync.Mutex // serializes writes
	done   chan struct{}
}

// Dial connects to a server at host:port and completes the handshake
func Dial(ctx context.Context, addr, name string) (*Client, error) {
	u := url.URL{Scheme: "ws", Host: addr, Path: Path}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s failed: %w", u.String(), err)
	}

	c := &Client{
		ID:     uuid.New().String(),
		States: make(chan State, 16),
		Events: make(chan Event, 16),
		Errors: make(chan ErrorPayload, 4),
		conn:   conn,
		logger: log.WithPrefix("remote"),
		done:   make(chan struct{}),
	}
	if err := c.handshake(name); err != nil {
		conn.Close()
		return nil, fmt.Errorf("handshake failed: %w", err)
	}

	go c.readMessages()
	return c, nil
}

func (c *Client) handshake(name string) error {
	if err := c.write(Message{Type: TypeClientHello, Payload: ClientHello{ClientID: c.ID, Name: name}}); err != nil {
		return err
	}

	_ = c.conn.SetReadDeadline(time.Now().Add(helloTimeout))
	env, err := readEnvelope(c.conn)
	if err != nil {
		return err
	}
	_ = c.conn.SetReadDeadline(time.Time{})

	if env.Type != TypeServerHello {
		return fmt.Errorf("expected %s, got %s", TypeServerHello, env.Type)
	}
	return env.decode(&c.Server)
}

func (c *Client) write(msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	return c.conn.WriteJSON(msg)
}

// Send issues a player command
func (c *Client) Send(cmd Command) error {
	if err := c.write(Message{Type: TypeCommand, Payload: cmd}); err != nil {
		return fmt.Errorf("failed to send %s: %w", cmd.Command, err)
	}
	return nil
}

func (c *Client) readMessages() {
	defer close(c.done)
	defer close(c.States)
	defer close(c.Events)
	defer close(c.Errors)

	for {
		env, err := readEnvelope(c.conn)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Warn("connection lost", "err", err)
			}
			return
		}

		switch env.Type {
		case TypeState:
			var st State
			if err := env.decode(&st); err == nil {
				deliver(c.States, st)
			}
		case TypeEvent:
			var ev Event
			if err := env.decode(&ev); err == nil {
				deliver(c.Events, ev)
			}
		case TypeError:
			var e ErrorPayload
			if err := env.decode(&e); err == nil {
				deliver(c.Errors, e)
			}
		default:
			c.logger.Debug("unknown message type", "type", env.Type)
		}
	}
}

// deliver drops the oldest value when the reader is not keeping up
func deliver[T any](ch chan T, v T) {
	for {
		select {
		case ch <- v:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

// Done is closed once the connection has ended
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Close sends a close frame and closes the connection
func (c *Client) Close() error {
	c.mu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	c.mu.Unlock()
	return c.conn.Close()
}
