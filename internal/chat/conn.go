// Package chat provides the core synchronization logic shared by all
// transports: the presence directory, the history log and the per-connection
// session coordinators.
package chat

import "context"

// Conn abstracts a bidirectional connection carrying one protocol frame per
// Read/Write. This interface isolates transport details from chat logic.
type Conn interface {
	// Read reads a single frame. Returns io.EOF when the connection is
	// closed by the peer.
	Read(ctx context.Context) ([]byte, error)

	// Write sends a single frame.
	Write(ctx context.Context, data []byte) error

	// Close closes the connection. Safe to call more than once.
	Close() error

	// RemoteAddr returns the remote address for logging.
	RemoteAddr() string
}
