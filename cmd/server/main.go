package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"

	"github.com/storres20/chat-sync/internal/chat"
	"github.com/storres20/chat-sync/internal/config"
	"github.com/storres20/chat-sync/internal/storage"
	"github.com/storres20/chat-sync/internal/transport/tcp"
	"github.com/storres20/chat-sync/internal/transport/ws"
)

func main() {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))

	history, cleanup, err := buildHistory(cfg, log)
	if err != nil {
		log.Error("open history", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	hub := chat.NewHub(chat.NewPresence(), history, log)
	wsServer := ws.New(cfg.Addr, hub, log)

	errChan := make(chan error, 2)
	go func() {
		errChan <- wsServer.Start()
	}()

	var tcpServer *tcp.Server
	if cfg.TCPAddr != "" {
		tcpServer = tcp.New(cfg.TCPAddr, hub, log)
		go func() {
			errChan <- tcpServer.Start()
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		if err != nil {
			log.Error("server failed", "error", err)
			os.Exit(1)
		}
	case sig := <-sigChan:
		log.Info("shutting down", "signal", sig.String())
	}

	wsServer.Stop()
	if tcpServer != nil {
		tcpServer.Stop()
	}
	log.Info("server stopped")
}

// buildHistory wires the history log, backed by Badger when a directory is
// configured.
func buildHistory(cfg config.Config, log *slog.Logger) (*chat.History, func(), error) {
	if cfg.HistoryDir == "" {
		return chat.NewHistory(log), func() {}, nil
	}

	opts := badger.DefaultOptions(cfg.HistoryDir).WithLoggingLevel(badger.WARNING)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, nil, err
	}

	repo, err := storage.NewEventRepository(db, log)
	if err != nil {
		db.Close()
		return nil, nil, err
	}

	history, err := chat.NewHistoryWithStore(repo, log)
	if err != nil {
		repo.Close()
		db.Close()
		return nil, nil, err
	}

	cleanup := func() {
		if err := repo.Close(); err != nil {
			log.Warn("close event repository", "error", err)
		}
		if err := db.Close(); err != nil {
			log.Warn("close badger", "error", err)
		}
	}
	return history, cleanup, nil
}
