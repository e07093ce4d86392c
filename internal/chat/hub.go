package chat

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/storres20/chat-sync/pkg/protocol"
)

const systemUsername = "System"

// Hub owns the state shared by every connection: the session set, the
// presence directory and the history log. All transports attach their
// connections to a single Hub instance.
//
// Every mutation runs under one mutex together with the broadcasts it
// triggers, so no session can observe a half-applied update: a history
// snapshot handed to a registering session can never miss or duplicate an
// event relative to the broadcasts around it.
type Hub struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*Session

	presence *Presence
	history  *History
	log      *slog.Logger
}

// NewHub creates a Hub around the given presence directory and history log.
func NewHub(presence *Presence, history *History, log *slog.Logger) *Hub {
	return &Hub{
		sessions: make(map[uuid.UUID]*Session),
		presence: presence,
		history:  history,
		log:      log,
	}
}

// Attach wraps conn in a new session and adds it to the broadcast set. The
// caller drives the session with Run.
func (h *Hub) Attach(conn Conn) *Session {
	s := newSession(conn, h, h.log)

	h.mu.Lock()
	h.sessions[s.ID] = s
	h.mu.Unlock()

	return s
}

// SessionCount returns the number of attached sessions.
func (h *Hub) SessionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// History returns the hub's history log.
func (h *Hub) History() *History { return h.history }

// Presence returns the hub's presence directory.
func (h *Hub) Presence() *Presence { return h.presence }

// Close tears down every attached session.
func (h *Hub) Close() {
	h.mu.Lock()
	sessions := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}

// register records a participant for the session, replays history to it and
// announces the join to every open session including the registering one.
func (h *Hub) register(s *Session, username string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	// The connection may have died between the state transition and this
	// lock; a detached session must not re-enter the directory.
	if _, ok := h.sessions[s.ID]; !ok {
		return
	}

	// The snapshot is taken before the join event is appended: the new
	// session sees its own join arrive as a broadcast, not as history.
	snapshot := h.history.ReadAll()
	h.presence.Register(s.ID, username)
	ev := h.history.Append(protocol.ChatEvent{
		Kind:     protocol.KindJoin,
		Username: systemUsername,
		Message:  fmt.Sprintf("%s has joined the chat.", username),
	})

	s.enqueue(h.encode(&protocol.History{Data: snapshot}))
	h.broadcastLocked(h.encode(&protocol.Users{Data: h.presence.Snapshot()}))
	h.broadcastLocked(h.encode(&protocol.Event{Data: ev}))

	h.log.Info("participant joined", "username", username, "session_id", s.ID)
}

// post appends a user message and delivers it to every open session.
func (h *Hub) post(username, text string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ev := h.history.Append(protocol.ChatEvent{
		Kind:     protocol.KindMessage,
		Username: username,
		Message:  text,
	})
	h.broadcastLocked(h.encode(&protocol.Event{Data: ev}))
}

// detach removes the session from the broadcast set and, if it had a
// registered participant, announces the leave to the remaining sessions.
// Called exactly once per session.
func (h *Hub) detach(s *Session, username string, registered bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.sessions, s.ID)
	// No broadcast can reach the session once it left the map; closing its
	// queue here, under the same lock, is safe.
	close(s.outgoing)

	if !registered || !h.presence.Deregister(s.ID) {
		return
	}

	ev := h.history.Append(protocol.ChatEvent{
		Kind:     protocol.KindLeave,
		Username: systemUsername,
		Message:  fmt.Sprintf("%s has left the chat.", username),
	})
	h.broadcastLocked(h.encode(&protocol.Users{Data: h.presence.Snapshot()}))
	h.broadcastLocked(h.encode(&protocol.Event{Data: ev}))

	h.log.Info("participant left", "username", username, "session_id", s.ID)
}

// broadcastLocked queues data on every attached session. Delivery is
// fire-and-forget per recipient: a session that cannot keep up drops frames
// and a dead one fails in its own write loop, never here. Callers hold h.mu.
func (h *Hub) broadcastLocked(data []byte) {
	if data == nil {
		return
	}
	for _, s := range h.sessions {
		s.enqueue(data)
	}
}

// encode serializes an outbound frame. All outbound variants are
// structurally valid, so a failure is a bug; it is logged and the frame
// skipped rather than taking connections down.
func (h *Hub) encode(m protocol.Message) []byte {
	data, err := protocol.Encode(m)
	if err != nil {
		h.log.Error("encode outbound frame", "type", m.Type(), "error", err)
		return nil
	}
	return data
}
