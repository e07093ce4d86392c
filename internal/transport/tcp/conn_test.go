package tcp

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConn_FramesAreNewlineDelimited(t *testing.T) {
	req := require.New(t)
	clientSide, serverSide := net.Pipe()
	defer clientSide.Close()

	conn := NewConn(serverSide)
	defer conn.Close()

	go func() {
		clientSide.Write([]byte(`{"type":"set_username","username":"alice"}` + "\n"))
		clientSide.Write([]byte(`{"type":"chat_message","username":"alice","message":"hi\nthere"}` + "\n"))
	}()

	frame, err := conn.Read(context.Background())
	req.NoError(err)
	req.JSONEq(`{"type":"set_username","username":"alice"}`, string(frame))

	// Newlines inside JSON strings are escaped, so they never split frames.
	frame, err = conn.Read(context.Background())
	req.NoError(err)
	req.JSONEq(`{"type":"chat_message","username":"alice","message":"hi\nthere"}`, string(frame))
}

func TestConn_WriteAppendsDelimiter(t *testing.T) {
	req := require.New(t)
	clientSide, serverSide := net.Pipe()
	defer clientSide.Close()

	conn := NewConn(serverSide)
	defer conn.Close()

	done := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 256)
		n, _ := clientSide.Read(buf)
		done <- buf[:n]
	}()

	req.NoError(conn.Write(context.Background(), []byte(`{"type":"users","data":[]}`)))
	req.Equal(`{"type":"users","data":[]}`+"\n", string(<-done))
}

func TestConn_ReadReportsPeerClose(t *testing.T) {
	req := require.New(t)
	clientSide, serverSide := net.Pipe()

	conn := NewConn(serverSide)
	defer conn.Close()

	clientSide.Close()
	_, err := conn.Read(context.Background())
	req.ErrorIs(err, io.EOF)
}

func TestConn_ReadHonorsContextDeadline(t *testing.T) {
	req := require.New(t)
	clientSide, serverSide := net.Pipe()
	defer clientSide.Close()

	conn := NewConn(serverSide)
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := conn.Read(ctx)
	req.Error(err)

	var netErr net.Error
	req.ErrorAs(err, &netErr)
	req.True(netErr.Timeout())
}
