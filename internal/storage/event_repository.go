// Package storage persists the chat history in BadgerDB. It implements the
// opaque append/read log the history replays from on startup.
package storage

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"

	"github.com/storres20/chat-sync/pkg/protocol"
)

const (
	// Zero-padded sequence keys keep Badger's key order equal to append
	// order, so ReadAll is a single prefix scan.
	eventKeyFormat = "event:%020d"
	eventKeyPrefix = "event:"
	sequenceKey    = "seq:event"
)

// EventRepository stores chat events as JSON values under ordered keys.
// Events are encoded exactly as they appear on the wire, so a replayed
// record is byte-equivalent to a broadcast one.
type EventRepository struct {
	db  *badger.DB
	seq *badger.Sequence
	log *slog.Logger
}

// NewEventRepository creates a repository on top of an open Badger database.
func NewEventRepository(db *badger.DB, log *slog.Logger) (*EventRepository, error) {
	seq, err := db.GetSequence([]byte(sequenceKey), 64)
	if err != nil {
		return nil, fmt.Errorf("open event sequence: %w", err)
	}
	return &EventRepository{db: db, seq: seq, log: log}, nil
}

// Append persists one event at the next sequence position.
func (r *EventRepository) Append(ev protocol.ChatEvent) error {
	n, err := r.seq.Next()
	if err != nil {
		return fmt.Errorf("next event sequence: %w", err)
	}

	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	key := []byte(fmt.Sprintf(eventKeyFormat, n))
	err = r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
	if err != nil {
		return fmt.Errorf("store event: %w", err)
	}
	return nil
}

// ReadAll returns every persisted event in append order.
func (r *EventRepository) ReadAll() ([]protocol.ChatEvent, error) {
	var events []protocol.ChatEvent

	err := r.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(eventKeyPrefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			err := item.Value(func(value []byte) error {
				var ev protocol.ChatEvent
				if err := json.Unmarshal(value, &ev); err != nil {
					return fmt.Errorf("unmarshal event %s: %w", item.Key(), err)
				}
				events = append(events, ev)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}

	r.log.Debug("events loaded from store", "count", len(events))
	return events, nil
}

// Close releases the sequence. The database itself is owned by the caller.
func (r *EventRepository) Close() error {
	if err := r.seq.Release(); err != nil {
		return fmt.Errorf("release event sequence: %w", err)
	}
	return nil
}
