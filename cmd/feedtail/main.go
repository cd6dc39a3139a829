// feedtail connects to the discord-user-api event feed and prints every
// event to the console.
// Usage: go run ./cmd/feedtail --url ws://localhost:8080/websocket --guild 123
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rickgao/guildfeed/internal/config"
	"github.com/rickgao/guildfeed/internal/connection"
	"github.com/rickgao/guildfeed/internal/journal"
)

func main() {
	wsURL := flag.String("url", config.Default().WebSocketURL(), "feed websocket URL")
	guildID := flag.String("guild", "", "guild to subscribe to")
	userID := flag.String("user", "", "user_id query parameter")
	verbose := flag.Bool("verbose", false, "print full event JSON")
	flag.Parse()

	// Setup logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	mgr, err := connection.NewManager(connection.DefaultManagerConfig(),
		connection.Endpoint{BaseURL: *wsURL, GuildID: *guildID, UserID: *userID},
		connection.WithLogger(logger),
	)
	if err != nil {
		logger.Error("failed to create connection manager", "error", err)
		os.Exit(1)
	}

	// Events are printed off the read path.
	events := journal.NewQueue[connection.InboundEvent](1000)
	mgr.OnMessage(func(ev connection.InboundEvent) {
		events.Push(ev)
	})

	mgr.OnConnected(func() {
		if *guildID == "" {
			return
		}
		if err := mgr.Subscribe(*guildID); err != nil {
			logger.Warn("subscribe failed", "error", err)
		}
	})
	mgr.OnClosed(func(code int, reason string) {
		logger.Warn("connection closed", "code", code, "reason", reason)
	})
	mgr.OnMaxReconnectAttempts(func() {
		logger.Error("giving up after max reconnect attempts")
		cancel()
	})

	logger.Info("connecting", "url", mgr.URL())
	if err := mgr.Connect(ctx); err != nil {
		logger.Error("failed to connect", "error", err)
		os.Exit(1)
	}

	printed := make(chan struct{})
	go func() {
		defer close(printed)
		printEvents(events, *verbose)
	}()

	// Stats printer
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				connStats := mgr.Stats()
				queueStats := events.Stats()
				logger.Info("stats",
					"state", connStats.State,
					"messages", connStats.MessagesReceived,
					"parse_errors", connStats.ParseErrors,
					"reconnects", connStats.Reconnects,
					"pending", queueStats.Len,
				)
			}
		}
	}()

	logger.Info("streaming started - press Ctrl+C to stop")

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")
	mgr.Disconnect()
	events.Close()
	<-printed

	logger.Info("shutdown complete")
}

// printEvents prints queued events until the queue is closed and drained.
func printEvents(events *journal.Queue[connection.InboundEvent], verbose bool) {
	for {
		ev, ok := events.Pop()
		if !ok {
			return
		}

		if verbose {
			data, _ := json.MarshalIndent(ev, "", "  ")
			fmt.Printf("[%s] %s\n", ev.Type, data)
			continue
		}

		fmt.Printf("[%s] guild=%s user=%s ts=%s bytes=%d\n",
			ev.Type, ev.GuildID, ev.UserID, ev.Timestamp, len(ev.Data))
	}
}
