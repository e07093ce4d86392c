// Package client implements the client-side protocol coordinator: it owns
// the connection lifecycle and feeds decoded state changes to a Handler
// supplied by the presentation layer.
package client

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/storres20/chat-sync/pkg/protocol"
)

// State is the lifecycle state of a connection attempt.
type State int

const (
	StateConnecting State = iota
	StateOpen
	StateRegistered
	StateClosed
)

// String returns the string representation of State.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateOpen:
		return "OPEN"
	case StateRegistered:
		return "REGISTERED"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Handler receives server-driven state updates. It is the view-adapter
// contract: implementations render, they never talk to the wire. Calls
// arrive from the client's receive goroutine.
type Handler interface {
	// HandleHistory replaces the local message list with the replayed log.
	HandleHistory(events []protocol.ChatEvent)

	// HandleEvent appends one new event to the local message list.
	HandleEvent(ev protocol.ChatEvent)

	// HandlePresence replaces the local participant list.
	HandlePresence(users []protocol.User)

	// HandleStateChange reports lifecycle transitions.
	HandleStateChange(state State)
}

var (
	ErrNotConnected  = errors.New("not connected to server")
	ErrNotRegistered = errors.New("username not registered yet")
	ErrBlankUsername = errors.New("username is blank")
	ErrBlankMessage  = errors.New("message is blank")
)

// Client is a chat client over a single WebSocket connection. A Client
// drives one connection attempt; reconnecting means a new Client.
type Client struct {
	url     string
	handler Handler
	log     *slog.Logger

	mu       sync.Mutex
	state    State
	username string
	conn     net.Conn
	rw       io.ReadWriter

	wmu       sync.Mutex
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New creates a Client for the given ws:// URL. The handler must not be nil.
func New(url string, handler Handler, log *slog.Logger) *Client {
	return &Client{
		url:     url,
		handler: handler,
		log:     log,
		state:   StateConnecting,
	}
}

// Connect establishes the WebSocket connection and starts the receive loop.
func (c *Client) Connect(ctx context.Context) error {
	c.handler.HandleStateChange(StateConnecting)

	conn, br, _, err := ws.Dial(ctx, c.url)
	if err != nil {
		c.close()
		return err
	}

	var rw io.ReadWriter = conn
	if br != nil {
		// The dialer may have buffered server bytes past the handshake.
		rw = struct {
			io.Reader
			io.Writer
		}{br, conn}
	}

	c.mu.Lock()
	c.conn = conn
	c.rw = rw
	c.state = StateOpen
	c.mu.Unlock()
	c.handler.HandleStateChange(StateOpen)

	c.wg.Add(1)
	go c.receive()

	return nil
}

// Disconnect closes the connection and waits for the receive loop to stop.
func (c *Client) Disconnect() {
	c.close()
	c.wg.Wait()
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SetUsername requests registration. The server confirms by replaying the
// history, which moves the client to StateRegistered.
func (c *Client) SetUsername(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrBlankUsername
	}

	c.mu.Lock()
	if c.state != StateOpen {
		c.mu.Unlock()
		return ErrNotConnected
	}
	c.username = name
	c.mu.Unlock()

	return c.send(&protocol.SetUsername{Username: name})
}

// SendMessage sends a chat message. Registration must have been confirmed
// first.
func (c *Client) SendMessage(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrBlankMessage
	}

	c.mu.Lock()
	state, username := c.state, c.username
	c.mu.Unlock()

	switch state {
	case StateRegistered:
	case StateClosed, StateConnecting:
		return ErrNotConnected
	default:
		return ErrNotRegistered
	}

	return c.send(&protocol.ChatMessage{Username: username, Message: text})
}

func (c *Client) send(m protocol.Message) error {
	data, err := protocol.Encode(m)
	if err != nil {
		return err
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	c.wmu.Lock()
	defer c.wmu.Unlock()
	return wsutil.WriteClientText(conn, data)
}

func (c *Client) receive() {
	defer c.wg.Done()

	for {
		data, err := wsutil.ReadServerText(c.rw)
		if err != nil {
			if c.State() != StateClosed {
				c.log.Debug("connection lost", "error", err)
			}
			c.close()
			return
		}

		msg, err := protocol.Decode(data)
		if err != nil {
			c.log.Warn("drop undecodable frame", "error", err)
			continue
		}
		c.dispatch(msg)
	}
}

func (c *Client) dispatch(msg protocol.Message) {
	switch m := msg.(type) {
	case *protocol.History:
		// History is only ever sent to a freshly registered session, so it
		// doubles as the registration acknowledgement.
		c.mu.Lock()
		confirmed := c.state == StateOpen
		if confirmed {
			c.state = StateRegistered
		}
		c.mu.Unlock()
		if confirmed {
			c.handler.HandleStateChange(StateRegistered)
		}
		c.handler.HandleHistory(m.Data)
	case *protocol.Event:
		c.handler.HandleEvent(m.Data)
	case *protocol.Users:
		c.handler.HandlePresence(m.Data)
	case *protocol.SetUsername, *protocol.ChatMessage:
		c.log.Warn("drop client-only frame from server", "type", msg.Type())
	default:
		c.log.Warn("drop frame with unhandled variant", "type", msg.Type())
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		conn := c.conn
		c.state = StateClosed
		c.mu.Unlock()

		if conn != nil {
			_ = conn.Close()
		}
		c.handler.HandleStateChange(StateClosed)
	})
}
