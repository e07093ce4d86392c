// Package ws provides the WebSocket transport for the chat server.
package ws

import (
	"context"
	"errors"
	"io"
	"net"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// Conn adapts an upgraded gobwas/ws connection to chat.Conn. Frames are
// WebSocket text messages, one protocol frame each.
type Conn struct {
	conn       net.Conn
	remoteAddr string
}

// NewConn wraps an upgraded server-side connection.
func NewConn(conn net.Conn, remoteAddr string) *Conn {
	return &Conn{conn: conn, remoteAddr: remoteAddr}
}

// Read implements chat.Conn. A close frame from the peer is reported as
// io.EOF.
func (c *Conn) Read(ctx context.Context) ([]byte, error) {
	if err := c.applyDeadline(ctx); err != nil {
		return nil, err
	}

	data, err := wsutil.ReadClientText(c.conn)
	if err != nil {
		var closed wsutil.ClosedError
		if errors.As(err, &closed) {
			return nil, io.EOF
		}
		return nil, err
	}
	return data, nil
}

// Write implements chat.Conn.
func (c *Conn) Write(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return wsutil.WriteServerText(c.conn, data)
}

// Close implements chat.Conn.
func (c *Conn) Close() error {
	// Best-effort close frame before the TCP teardown.
	_ = wsutil.WriteServerMessage(c.conn, ws.OpClose, nil)
	return c.conn.Close()
}

// RemoteAddr implements chat.Conn.
func (c *Conn) RemoteAddr() string {
	return c.remoteAddr
}

func (c *Conn) applyDeadline(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Time{}
	}
	return c.conn.SetReadDeadline(deadline)
}
