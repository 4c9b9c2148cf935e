// ABOUTME: WebSocket remote control server for a running player
// ABOUTME: Accepts player/command messages and broadcasts player/state and player/event
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Resonate-Protocol/resonate-media/internal/version"
	"github.com/Resonate-Protocol/resonate-media/pkg/player"
	"github.com/Resonate-Protocol/resonate-media/pkg/source"
)

// Path is the control endpoint
const Path = "/control"

const (
	writeDeadline = 10 * time.Second
	pingInterval  = 30 * time.Second
	helloTimeout  = 5 * time.Second
	sendBuffer    = 32
)

// Controller is the player surface the server drives
type Controller interface {
	Play() error
	Pause()
	Seek(t time.Duration) error
	NextSource()
	SetVolume(v float64)
	Volume() float64
	Time() time.Duration
	Playing() bool
	Loop() bool
	Source() source.Source
}

// Config holds server configuration
type Config struct {
	Name string
}

type client struct {
	id       string
	name     string
	conn     *websocket.Conn
	sendChan chan Message

	mu     sync.Mutex
	closed bool
}

// queue hands msg to the writer; false if the client is closed or backed up
func (c *client) queue(msg Message) (ok bool, closed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false, true
	}
	select {
	case c.sendChan <- msg:
		return true, false
	default:
		return false, false
	}
}

func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.sendChan)
	}
}

// Server serves the control endpoint
type Server struct {
	config   Config
	ctrl     Controller
	serverID string
	upgrader websocket.Upgrader
	logger   *log.Logger

	mu      sync.RWMutex
	clients map[string]*client
	wg      sync.WaitGroup
}

// New creates a server controlling ctrl
func New(config Config, ctrl Controller) *Server {
	if config.Name == "" {
		config.Name = version.Product
	}
	return &Server{
		config:   config,
		ctrl:     ctrl,
		serverID: uuid.New().String(),
		upgrader: websocket.Upgrader{
			// local network control only; browsers are not expected
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger:  log.WithPrefix("remote"),
		clients: make(map[string]*client),
	}
}

// Handler returns the HTTP handler serving Path
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(Path, s.handleWebSocket)
	return mux
}

// Serve accepts connections on ln until ctx is done
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	s.logger.Info("Remote control listening", "addr", ln.Addr().String(), "path", Path)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("remote server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.closeClients()
	s.wg.Wait()
	if err != nil {
		return fmt.Errorf("remote server shutdown: %w", err)
	}
	return nil
}

// ListenAndServe listens on addr and serves until ctx is done
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Clients returns the number of connected clients
func (s *Server) Clients() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed", "err", err)
		return
	}
	s.logger.Debug("new connection", "remote", r.RemoteAddr)
	s.handleConnection(conn)
}

func (s *Server) handleConnection(conn *websocket.Conn) {
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(helloTimeout))
	var hello ClientHello
	env, err := readEnvelope(conn)
	if err == nil && env.Type != TypeClientHello {
		err = fmt.Errorf("expected %s, got %s", TypeClientHello, env.Type)
	}
	if err == nil {
		err = env.decode(&hello)
	}
	if err != nil {
		s.logger.Warn("handshake failed", "err", err)
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	if hello.ClientID == "" {
		hello.ClientID = uuid.New().String()
	}
	c := &client{
		id:       hello.ClientID,
		name:     hello.Name,
		conn:     conn,
		sendChan: make(chan Message, sendBuffer),
	}

	s.mu.Lock()
	if old, ok := s.clients[c.id]; ok {
		old.close()
	}
	s.clients[c.id] = c
	s.mu.Unlock()
	s.logger.Info("Remote client connected", "client", c.name, "id", c.id)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.clientWriter(c)
	}()

	defer func() {
		s.mu.Lock()
		if s.clients[c.id] == c {
			delete(s.clients, c.id)
		}
		s.mu.Unlock()
		c.close()
		s.logger.Info("Remote client disconnected", "client", c.name)
	}()

	s.send(c, TypeServerHello, ServerHello{
		ServerID: s.serverID,
		Name:     s.config.Name,
		Version:  ProtocolVersion,
		Product:  version.Product,
	})
	s.send(c, TypeState, s.state())

	for {
		env, err := readEnvelope(conn)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("WebSocket error", "err", err)
			}
			return
		}
		s.handleMessage(c, env)
	}
}

func readEnvelope(conn *websocket.Conn) (envelope, error) {
	var env envelope
	_, data, err := conn.ReadMessage()
	if err != nil {
		return env, err
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return env, fmt.Errorf("invalid message: %w", err)
	}
	return env, nil
}

// clientWriter owns all writes to the connection
func (s *Server) clientWriter(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.sendChan:
			if !ok {
				_ = c.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteJSON(msg); err != nil {
				s.logger.Warn("write failed", "client", c.name, "err", err)
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeDeadline)); err != nil {
				return
			}
		}
	}
}

func (s *Server) handleMessage(c *client, env envelope) {
	switch env.Type {
	case TypeCommand:
		var cmd Command
		if err := env.decode(&cmd); err != nil {
			s.send(c, TypeError, ErrorPayload{Message: err.Error()})
			return
		}
		if err := s.apply(cmd); err != nil {
			s.logger.Warn("command failed", "command", cmd.Command, "err", err)
			s.send(c, TypeError, ErrorPayload{Message: err.Error()})
			return
		}
		s.logger.Debug("command applied", "client", c.name, "command", cmd.Command)
		s.BroadcastState()
	default:
		s.logger.Debug("unknown message type", "type", env.Type)
	}
}

func (s *Server) apply(cmd Command) error {
	switch cmd.Command {
	case CommandPlay:
		return s.ctrl.Play()
	case CommandPause:
		s.ctrl.Pause()
	case CommandSeek:
		return s.ctrl.Seek(time.Duration(cmd.PositionMs) * time.Millisecond)
	case CommandNext:
		s.ctrl.NextSource()
	case CommandVolume:
		s.ctrl.SetVolume(cmd.Volume)
	default:
		return fmt.Errorf("unknown command %q", cmd.Command)
	}
	return nil
}

func (s *Server) state() State {
	st := State{
		State:      "idle",
		PositionMs: s.ctrl.Time().Milliseconds(),
		Volume:     s.ctrl.Volume(),
		Loop:       s.ctrl.Loop(),
	}
	if src := s.ctrl.Source(); src != nil {
		info := src.Info()
		st.Title, st.Artist = info.Title, info.Artist
		st.State = "paused"
		if s.ctrl.Playing() {
			st.State = "playing"
		}
	}
	return st
}

// send queues a message; a client that cannot keep up misses it
func (s *Server) send(c *client, msgType string, payload any) {
	ok, closed := c.queue(Message{Type: msgType, Payload: payload})
	if !ok && !closed {
		s.logger.Warn("client send buffer full, dropping message", "client", c.name, "type", msgType)
	}
}

// Broadcast sends a message to every client
func (s *Server) Broadcast(msgType string, payload any) {
	s.mu.RLock()
	clients := make([]*client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.RUnlock()

	for _, c := range clients {
		s.send(c, msgType, payload)
	}
}

// BroadcastState sends the current player state to every client
func (s *Server) BroadcastState() {
	s.Broadcast(TypeState, s.state())
}

// OnPlayerEvent forwards player events to clients
func (s *Server) OnPlayerEvent(ev player.Event) {
	msg := Event{
		Event:      ev.Kind.String(),
		PositionMs: ev.Time.Milliseconds(),
	}
	if ev.Source != nil {
		msg.Title = ev.Source.Info().Title
	}
	if ev.Media != nil {
		msg.Name = ev.Media.Name
	}
	s.Broadcast(TypeEvent, msg)
	if ev.Kind != player.EventMedia {
		s.BroadcastState()
	}
}

func (s *Server) closeClients() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, c := range s.clients {
		c.close()
		delete(s.clients, id)
	}
}
