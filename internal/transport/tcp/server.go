package tcp

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/storres20/chat-sync/internal/chat"
)

// Server accepts raw TCP connections and attaches them to the Hub.
type Server struct {
	address  string
	listener net.Listener
	hub      *chat.Hub
	log      *slog.Logger
	quit     chan struct{}
	wg       sync.WaitGroup
}

// New creates a TCP server that uses the provided Hub.
func New(address string, hub *chat.Hub, log *slog.Logger) *Server {
	return &Server{
		address: address,
		hub:     hub,
		log:     log,
		quit:    make(chan struct{}),
	}
}

// Start starts accepting TCP connections. It blocks until Stop is called or
// the listener fails.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("start tcp server: %w", err)
	}
	s.listener = listener

	s.log.Info("tcp server started", "addr", listener.Addr().String())

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-s.quit:
				return nil
			default:
				s.log.Warn("accept tcp connection", "error", err)
				continue
			}
		}

		session := s.hub.Attach(NewConn(conn))

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			session.Run(context.Background())
		}()
	}
}

// Stop stops the server and waits for active sessions to finish.
func (s *Server) Stop() {
	close(s.quit)
	if s.listener != nil {
		s.listener.Close()
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
