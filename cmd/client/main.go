package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/gookit/color"
	"github.com/samber/lo"

	"github.com/storres20/chat-sync/internal/client"
	"github.com/storres20/chat-sync/pkg/protocol"
)

// consoleHandler renders chat state to the terminal.
type consoleHandler struct {
	registered chan struct{}
	closed     chan struct{}
}

func newConsoleHandler() *consoleHandler {
	return &consoleHandler{
		registered: make(chan struct{}),
		closed:     make(chan struct{}),
	}
}

func (h *consoleHandler) HandleHistory(events []protocol.ChatEvent) {
	for _, ev := range events {
		printEvent(ev)
	}
}

func (h *consoleHandler) HandleEvent(ev protocol.ChatEvent) {
	printEvent(ev)
}

func (h *consoleHandler) HandlePresence(users []protocol.User) {
	names := lo.Map(users, func(u protocol.User, _ int) string { return u.Username })
	color.Cyan.Printf("online: %s\n", strings.Join(names, ", "))
}

func (h *consoleHandler) HandleStateChange(state client.State) {
	switch state {
	case client.StateRegistered:
		close(h.registered)
	case client.StateClosed:
		close(h.closed)
	}
}

func printEvent(ev protocol.ChatEvent) {
	switch ev.Kind {
	case protocol.KindJoin, protocol.KindLeave:
		color.Yellow.Printf("*** %s ***\n", ev.Message)
	default:
		color.Green.Printf("[%s]", ev.Username)
		fmt.Printf(" %s\n", ev.Message)
	}
}

func main() {
	serverURL := flag.String("server", "ws://localhost:3001", "Server URL (e.g., ws://localhost:3001)")
	username := flag.String("username", "", "Username for chat")
	flag.Parse()

	if *username == "" {
		fmt.Fprintln(os.Stderr, "Username is required. Use -username flag")
		os.Exit(1)
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	handler := newConsoleHandler()
	c := client.New(*serverURL, handler, log)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.Connect(ctx); err != nil {
		log.Error("connect", "error", err)
		os.Exit(1)
	}
	defer c.Disconnect()

	if err := c.SetUsername(*username); err != nil {
		log.Error("set username", "error", err)
		os.Exit(1)
	}

	// Input is disabled until the server confirms registration.
	select {
	case <-handler.registered:
	case <-handler.closed:
		log.Error("connection closed before registration")
		os.Exit(1)
	case <-time.After(10 * time.Second):
		log.Error("registration timed out")
		os.Exit(1)
	}

	fmt.Println("Type your messages (or 'quit' to exit):")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		if text == "quit" || text == "exit" {
			break
		}

		if err := c.SendMessage(text); err != nil {
			log.Warn("send message", "error", err)
		}

		select {
		case <-handler.closed:
			log.Error("connection closed")
			os.Exit(1)
		default:
		}
	}
	if err := scanner.Err(); err != nil {
		log.Warn("read input", "error", err)
	}
}
