// Package tcp provides a raw TCP transport for the chat server, carrying
// one newline-delimited JSON frame per protocol message.
package tcp

import (
	"bufio"
	"bytes"
	"context"
	"net"
	"time"
)

// Conn adapts a net.Conn to chat.Conn. json.Marshal escapes newlines
// inside string values, so '\n' is a safe frame delimiter.
type Conn struct {
	conn   net.Conn
	reader *bufio.Reader
}

// NewConn wraps an accepted TCP connection.
func NewConn(conn net.Conn) *Conn {
	return &Conn{conn: conn, reader: bufio.NewReader(conn)}
}

// Read implements chat.Conn. Returns io.EOF when the peer closes.
func (c *Conn) Read(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Time{}
	}
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return nil, err
	}

	line, err := c.reader.ReadBytes('\n')
	if err != nil {
		return nil, err
	}
	return bytes.TrimRight(line, "\n"), nil
}

// Write implements chat.Conn.
func (c *Conn) Write(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	// Broadcasts hand the same frame slice to every session; appending the
	// delimiter in place would race with the other write loops.
	buf := make([]byte, len(data)+1)
	copy(buf, data)
	buf[len(data)] = '\n'
	_, err := c.conn.Write(buf)
	return err
}

// Close implements chat.Conn.
func (c *Conn) Close() error {
	return c.conn.Close()
}

// RemoteAddr implements chat.Conn.
func (c *Conn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}
