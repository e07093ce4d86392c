package chat

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/storres20/chat-sync/pkg/protocol"
)

// Store is an opaque append/read log backing the history beyond process
// lifetime. Implementations must preserve append order on read.
type Store interface {
	Append(ev protocol.ChatEvent) error
	ReadAll() ([]protocol.ChatEvent, error)
	Close() error
}

// History is the append-only, totally ordered chat log. Append assigns
// server-side, non-decreasing timestamps; replay order is always insertion
// order, never a re-sort by timestamp.
type History struct {
	mu     sync.Mutex
	events []protocol.ChatEvent
	last   time.Time

	now   func() time.Time
	store Store
	log   *slog.Logger
}

// NewHistory creates an in-memory history log.
func NewHistory(log *slog.Logger) *History {
	return &History{now: time.Now, log: log}
}

// NewHistoryWithStore creates a history log backed by store, replaying any
// previously persisted events into memory.
func NewHistoryWithStore(store Store, log *slog.Logger) (*History, error) {
	events, err := store.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("replay history store: %w", err)
	}

	h := &History{events: events, now: time.Now, store: store, log: log}
	if n := len(events); n > 0 {
		h.last = events[n-1].Timestamp
		log.Info("history replayed from store", "events", n)
	}
	return h, nil
}

// Append assigns the event its timestamp and stores it, returning the event
// as recorded. Timestamps never decrease even if the wall clock does.
func (h *History) Append(ev protocol.ChatEvent) protocol.ChatEvent {
	h.mu.Lock()
	defer h.mu.Unlock()

	ts := h.now()
	if ts.Before(h.last) {
		ts = h.last
	}
	h.last = ts
	ev.Timestamp = ts

	h.events = append(h.events, ev)
	if h.store != nil {
		// Persistence is best-effort: a failing store must not take the
		// chat down with it.
		if err := h.store.Append(ev); err != nil {
			h.log.Error("persist chat event", "error", err)
		}
	}
	return ev
}

// ReadAll returns a point-in-time copy of the log, safe to hand out while
// appends continue.
func (h *History) ReadAll() []protocol.ChatEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.events)
}

// Len returns the number of recorded events.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.events)
}
