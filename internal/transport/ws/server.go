package ws

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/gobwas/ws"

	"github.com/storres20/chat-sync/internal/chat"
)

// Server accepts WebSocket connections and attaches them to the Hub.
type Server struct {
	address  string
	listener net.Listener
	hub      *chat.Hub
	server   *http.Server
	log      *slog.Logger
	wg       sync.WaitGroup
}

// New creates a WebSocket server that uses the provided Hub.
func New(address string, hub *chat.Hub, log *slog.Logger) *Server {
	return &Server{address: address, hub: hub, log: log}
}

// Start starts accepting WebSocket connections. It blocks until Stop is
// called or the listener fails.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	s.listener = listener

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleWebSocket)
	s.server = &http.Server{Handler: mux}

	s.log.Info("websocket server started", "addr", listener.Addr().String())

	if err := s.server.Serve(listener); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop stops the server and waits for active sessions to finish their
// teardown.
func (s *Server) Stop() {
	if s.server != nil {
		_ = s.server.Shutdown(context.Background())
	}
	s.hub.Close()
	s.wg.Wait()
}

// Addr returns the listening address.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}

	session := s.hub.Attach(NewConn(conn, r.RemoteAddr))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		session.Run(context.Background())
	}()
}
