package chat

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/storres20/chat-sync/pkg/protocol"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHistory_ReadAllIsAppendOrderedPrefix(t *testing.T) {
	req := require.New(t)
	h := NewHistory(testLogger())

	h.Append(protocol.ChatEvent{Kind: protocol.KindJoin, Username: "System", Message: "alice has joined the chat."})
	h.Append(protocol.ChatEvent{Kind: protocol.KindMessage, Username: "alice", Message: "one"})

	before := h.ReadAll()

	h.Append(protocol.ChatEvent{Kind: protocol.KindMessage, Username: "alice", Message: "two"})
	h.Append(protocol.ChatEvent{Kind: protocol.KindMessage, Username: "alice", Message: "three"})

	after := h.ReadAll()
	req.Len(after, 4)
	req.Equal(before, after[:len(before)], "earlier snapshot must be a prefix of the later one")
	req.Equal("two", after[2].Message)
	req.Equal("three", after[3].Message)
}

func TestHistory_SnapshotIsIsolatedFromLaterAppends(t *testing.T) {
	req := require.New(t)
	h := NewHistory(testLogger())

	h.Append(protocol.ChatEvent{Kind: protocol.KindMessage, Username: "alice", Message: "one"})
	snapshot := h.ReadAll()

	h.Append(protocol.ChatEvent{Kind: protocol.KindMessage, Username: "alice", Message: "two"})

	req.Len(snapshot, 1)
	req.Equal(2, h.Len())
}

func TestHistory_TimestampsNeverDecrease(t *testing.T) {
	req := require.New(t)
	h := NewHistory(testLogger())

	// Clock that jumps backwards between appends.
	times := []time.Time{
		time.Date(2025, 3, 14, 9, 0, 2, 0, time.UTC),
		time.Date(2025, 3, 14, 9, 0, 1, 0, time.UTC),
		time.Date(2025, 3, 14, 9, 0, 5, 0, time.UTC),
	}
	h.now = func() time.Time {
		ts := times[0]
		times = times[1:]
		return ts
	}

	first := h.Append(protocol.ChatEvent{Kind: protocol.KindMessage, Username: "a", Message: "1"})
	second := h.Append(protocol.ChatEvent{Kind: protocol.KindMessage, Username: "a", Message: "2"})
	third := h.Append(protocol.ChatEvent{Kind: protocol.KindMessage, Username: "a", Message: "3"})

	req.False(second.Timestamp.Before(first.Timestamp))
	req.False(third.Timestamp.Before(second.Timestamp))
	req.Equal(first.Timestamp, second.Timestamp, "a backwards clock pins the previous timestamp")
}

type memStore struct {
	events []protocol.ChatEvent
	fail   bool
}

func (s *memStore) Append(ev protocol.ChatEvent) error {
	if s.fail {
		return errors.New("disk full")
	}
	s.events = append(s.events, ev)
	return nil
}

func (s *memStore) ReadAll() ([]protocol.ChatEvent, error) {
	return append([]protocol.ChatEvent(nil), s.events...), nil
}

func (s *memStore) Close() error { return nil }

func TestHistory_ReplaysStoreOnStartup(t *testing.T) {
	req := require.New(t)
	store := &memStore{events: []protocol.ChatEvent{
		{Kind: protocol.KindJoin, Username: "System", Message: "alice has joined the chat.", Timestamp: time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)},
		{Kind: protocol.KindMessage, Username: "alice", Message: "hi", Timestamp: time.Date(2025, 3, 14, 9, 0, 1, 0, time.UTC)},
	}}

	h, err := NewHistoryWithStore(store, testLogger())
	req.NoError(err)
	req.Equal(2, h.Len())

	// New appends land after the replayed events, in the store too.
	h.Append(protocol.ChatEvent{Kind: protocol.KindMessage, Username: "alice", Message: "again"})
	req.Len(store.events, 3)

	all := h.ReadAll()
	req.Equal("again", all[2].Message)
	req.False(all[2].Timestamp.Before(all[1].Timestamp))
}

func TestHistory_StoreFailureDoesNotLoseTheEvent(t *testing.T) {
	req := require.New(t)
	store := &memStore{fail: true}

	h, err := NewHistoryWithStore(store, testLogger())
	req.NoError(err)

	h.Append(protocol.ChatEvent{Kind: protocol.KindMessage, Username: "alice", Message: "hi"})
	req.Equal(1, h.Len(), "in-memory log keeps the event even if persistence fails")
}
