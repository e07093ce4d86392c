package chat

import (
	"sync"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/storres20/chat-sync/pkg/protocol"
)

// Presence tracks registered participants keyed by connection id. A
// connection maps to zero or one participant; snapshots iterate in
// registration order.
type Presence struct {
	mu     sync.Mutex
	order  []uuid.UUID
	byConn map[uuid.UUID]string
}

// NewPresence creates an empty presence directory.
func NewPresence() *Presence {
	return &Presence{byConn: make(map[uuid.UUID]string)}
}

// Register binds a username to a connection. Registering a connection that
// already has a participant replaces the username in place without a second
// directory entry.
func (p *Presence) Register(connID uuid.UUID, username string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.byConn[connID]; !ok {
		p.order = append(p.order, connID)
	}
	p.byConn[connID] = username
}

// Deregister removes the participant bound to the connection, reporting
// whether one was removed. Unknown connections are a no-op.
func (p *Presence) Deregister(connID uuid.UUID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.byConn[connID]; !ok {
		return false
	}
	delete(p.byConn, connID)
	for i, id := range p.order {
		if id == connID {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
	return true
}

// Snapshot returns the current participants in registration order.
func (p *Presence) Snapshot() []protocol.User {
	p.mu.Lock()
	defer p.mu.Unlock()

	return lo.Map(p.order, func(id uuid.UUID, _ int) protocol.User {
		return protocol.User{Username: p.byConn[id]}
	})
}

// Count returns the number of registered participants.
func (p *Presence) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.byConn)
}
