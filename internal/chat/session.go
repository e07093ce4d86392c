package chat

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/storres20/chat-sync/pkg/protocol"
)

// State is the lifecycle state of a session.
type State int

const (
	StateConnecting State = iota
	StateOpen                // connected, no participant registered yet
	StateRegistered          // participant registered, may send messages
	StateClosed              // terminal
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

// outgoingBuffer bounds the per-session delivery queue. Broadcasts never
// block on a slow session; frames beyond the buffer are dropped.
const outgoingBuffer = 16

// Session coordinates one connection: it drives the lifecycle state
// machine, applies inbound frames to the hub's shared state and delivers
// outbound frames. Identity lives here, not on the transport handle.
type Session struct {
	ID uuid.UUID

	conn Conn
	hub  *Hub
	log  *slog.Logger

	mu       sync.Mutex
	state    State
	username string

	outgoing  chan []byte
	closeOnce sync.Once
}

func newSession(conn Conn, hub *Hub, log *slog.Logger) *Session {
	id := uuid.New()
	return &Session{
		ID:       id,
		conn:     conn,
		hub:      hub,
		log:      log.With("session_id", id, "remote_addr", conn.RemoteAddr()),
		state:    StateConnecting,
		outgoing: make(chan []byte, outgoingBuffer),
	}
}

// State returns the session's current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Username returns the registered username, or "" before registration.
func (s *Session) Username() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.username
}

// Run drives the session until the connection closes, then runs the
// teardown. It blocks for the lifetime of the connection.
func (s *Session) Run(ctx context.Context) {
	s.mu.Lock()
	if s.state != StateConnecting {
		// Closed before the session ever started; teardown already ran.
		s.mu.Unlock()
		return
	}
	s.state = StateOpen
	s.mu.Unlock()
	s.log.Info("session open")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.writeLoop()
	}()

	s.readLoop(ctx)
	s.Close()
	wg.Wait()
}

// Close runs the terminal transition exactly once: deregister if needed,
// announce the leave, detach from the hub and close the transport. Safe to
// call from any goroutine, any number of times.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		registered := s.state == StateRegistered
		username := s.username
		s.state = StateClosed
		s.mu.Unlock()

		s.hub.detach(s, username, registered)
		if err := s.conn.Close(); err != nil {
			s.log.Debug("close connection", "error", err)
		}
		s.log.Info("session closed")
	})
}

func (s *Session) readLoop(ctx context.Context) {
	for {
		data, err := s.conn.Read(ctx)
		if err != nil {
			if !errors.Is(err, io.EOF) && s.State() != StateClosed {
				s.log.Warn("read frame", "error", err)
			}
			return
		}

		msg, err := protocol.Decode(data)
		if err != nil {
			// Malformed frames are dropped; the connection stays up.
			s.log.Warn("drop undecodable frame", "error", err)
			continue
		}
		s.handle(msg)
	}
}

func (s *Session) writeLoop() {
	for data := range s.outgoing {
		if err := s.conn.Write(context.Background(), data); err != nil {
			if s.State() != StateClosed {
				s.log.Warn("write frame", "error", err)
			}
			// A failed delivery closes this session only; broadcasts to
			// other sessions are unaffected.
			s.Close()
			return
		}
	}
}

// handle applies one inbound frame according to the current state.
func (s *Session) handle(msg protocol.Message) {
	switch m := msg.(type) {
	case *protocol.SetUsername:
		s.handleSetUsername(m)
	case *protocol.ChatMessage:
		s.handleChatMessage(m)
	case *protocol.Event, *protocol.Users, *protocol.History:
		// Outbound-only variants have no meaning inbound.
		s.log.Warn("drop server-only frame from client", "type", msg.Type())
	default:
		s.log.Warn("drop frame with unhandled variant", "type", msg.Type())
	}
}

func (s *Session) handleSetUsername(m *protocol.SetUsername) {
	username := strings.TrimSpace(m.Username)
	if username == "" {
		s.log.Warn("drop registration with blank username")
		return
	}

	s.mu.Lock()
	if s.state != StateOpen {
		state := s.state
		s.mu.Unlock()
		// Renaming mid-session is not part of the observed protocol.
		s.log.Warn("drop set_username", "state", state)
		return
	}
	s.state = StateRegistered
	s.username = username
	s.mu.Unlock()

	s.hub.register(s, username)
}

func (s *Session) handleChatMessage(m *protocol.ChatMessage) {
	s.mu.Lock()
	state := s.state
	username := s.username
	s.mu.Unlock()

	if state != StateRegistered {
		// No identity to attribute the message to yet.
		s.log.Warn("drop chat_message", "state", state)
		return
	}

	text := strings.TrimSpace(m.Message)
	if text == "" {
		s.log.Warn("drop blank chat_message", "username", username)
		return
	}

	// The sender field of the frame is ignored: identity is owned by the
	// session, not self-reported per message.
	s.hub.post(username, text)
}

// enqueue queues an outbound frame without blocking. Frames are dropped
// when the session cannot keep up.
func (s *Session) enqueue(data []byte) {
	if data == nil {
		return
	}
	select {
	case s.outgoing <- data:
	default:
		s.log.Warn("outgoing queue full, dropping frame")
	}
}
