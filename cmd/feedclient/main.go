// feedclient keeps a live session to the discord-user-api event feed,
// optionally journaling every event to PostgreSQL.
// Usage: go run ./cmd/feedclient --config configs/feedclient.example.yaml
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/guildfeed/internal/api"
	"github.com/rickgao/guildfeed/internal/config"
	"github.com/rickgao/guildfeed/internal/connection"
	"github.com/rickgao/guildfeed/internal/database"
	"github.com/rickgao/guildfeed/internal/journal"
	"github.com/rickgao/guildfeed/internal/logging"
	"github.com/rickgao/guildfeed/internal/poller"
	"github.com/rickgao/guildfeed/internal/version"
)

func main() {
	configPath := flag.String("config", "", "path to config file (defaults apply when empty)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("feedclient failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg := config.Default()
	if configPath != "" {
		var err error
		cfg, err = config.LoadAndValidate(configPath)
		if err != nil {
			return err
		}
	}

	// Set up structured logging
	logger, err := logging.New(cfg.Logging, os.Stdout)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	logger.Info("starting feedclient",
		"version", version.Version,
		"commit", version.Commit,
		"config", configPath,
		"websocket_url", cfg.WebSocketURL(),
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Optional event journal
	var pool *pgxpool.Pool
	var writer *journal.Writer
	if cfg.Journal.Enabled {
		logger.Info("connecting to database",
			"host", cfg.Database.Host,
			"port", cfg.Database.Port,
			"database", cfg.Database.Name,
		)

		pool, err = database.Connect(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer pool.Close()

		if err := journal.EnsureSchema(ctx, pool); err != nil {
			return err
		}

		writer = journal.NewWriter(journal.Config{
			BatchSize:     cfg.Journal.BatchSize,
			FlushInterval: cfg.Journal.FlushInterval,
			BufferSize:    cfg.Journal.BufferSize,
		}, pool, logger.With("component", "journal"))
		if err := writer.Start(ctx); err != nil {
			return err
		}
		defer func() {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer stopCancel()
			if err := writer.Stop(stopCtx); err != nil {
				logger.Error("journal stop", "error", err)
			}
		}()
	}

	mgr, err := newManager(cfg, logger)
	if err != nil {
		return err
	}
	if writer != nil {
		writer.Attach(mgr)
	}

	// Optional guild snapshot poller
	var snapPoller *poller.Poller
	if cfg.Poller.Enabled {
		snapPoller = newPoller(cfg, pool, logger)
		snapPoller.Attach(mgr)
		if err := snapPoller.Start(ctx); err != nil {
			return err
		}
		defer func() {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer stopCancel()
			if err := snapPoller.Stop(stopCtx); err != nil {
				logger.Error("poller stop", "error", err)
			}
		}()
	}

	gaveUp := make(chan struct{})
	wireManager(mgr, cfg.WebSocket.GuildID, gaveUp, logger)

	// The first connect is not retried.
	if err := mgr.Connect(ctx); err != nil {
		return err
	}
	defer mgr.Disconnect()

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Health.Port > 0 {
		healthServer := &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Health.Port),
			Handler: createHealthHandler(healthSources(mgr, pool, writer, snapPoller)),
		}

		g.Go(func() error {
			logger.Info("starting health server", "port", cfg.Health.Port)
			if err := healthServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("health server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			return healthServer.Shutdown(shutdownCtx)
		})
	}

	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case <-gaveUp:
			return connection.ErrMaxReconnectAttempts
		}
	})

	logger.Info("feedclient running", "guild_id", cfg.WebSocket.GuildID)

	// Wait for shutdown
	err = g.Wait()

	logger.Info("shutting down...", "stats", mgr.Stats())
	return err
}

// newManager builds a connection manager from configuration.
func newManager(cfg *config.Config, logger *slog.Logger) (*connection.Manager, error) {
	mgrCfg := connection.ManagerConfig{
		AutoReconnect:        cfg.WebSocket.Reconnect(),
		PingInterval:         cfg.WebSocket.PingInterval,
		PongTimeout:          cfg.WebSocket.PongTimeout,
		ReconnectInterval:    cfg.WebSocket.ReconnectInterval,
		MaxReconnectAttempts: cfg.WebSocket.MaxReconnectAttempts,
	}

	transportCfg := connection.DefaultTransportConfig()
	transportCfg.HandshakeTimeout = cfg.WebSocket.HandshakeTimeout
	transportCfg.WriteTimeout = cfg.WebSocket.WriteTimeout

	connLogger := logger.With("component", "connection")

	return connection.NewManager(mgrCfg,
		connection.Endpoint{
			BaseURL: cfg.WebSocketURL(),
			GuildID: cfg.WebSocket.GuildID,
			UserID:  cfg.WebSocket.UserID,
		},
		connection.WithLogger(connLogger),
		connection.WithTransport(connection.NewTransport(transportCfg, connLogger)),
	)
}

// newPoller builds the guild snapshot poller. Snapshots are stored when a
// database is available and logged otherwise.
func newPoller(cfg *config.Config, pool *pgxpool.Pool, logger *slog.Logger) *poller.Poller {
	pollLogger := logger.With("component", "poller")

	client := api.NewClient(cfg.ServerURL(),
		api.WithTimeout(cfg.API.Timeout),
		api.WithRetries(cfg.API.Retries, cfg.API.RetryDelay),
		api.WithLogger(logger.With("component", "api")),
	)

	var handler poller.SnapshotHandler = poller.SnapshotHandlerFunc(func(_ context.Context, s *api.GuildSnapshot) error {
		pollLogger.Info("guild snapshot",
			"guild_id", s.Guild.ID,
			"name", s.Guild.Name,
			"members", len(s.Members),
		)
		return nil
	})
	if pool != nil {
		handler = journal.NewSnapshotStore(pool, pollLogger)
	}

	return poller.New(poller.Config{
		Interval:    cfg.Poller.Interval,
		Concurrency: cfg.Poller.Concurrency,
		Timeout:     cfg.Poller.Timeout,
		MemberLimit: cfg.Poller.MemberLimit,
		GuildIDs:    cfg.Poller.GuildIDs,
	}, client, handler, pollLogger)
}

// wireManager subscribes on every open and reports lifecycle events.
// gaveUp is closed when reconnecting stops for good.
func wireManager(mgr *connection.Manager, guildID string, gaveUp chan<- struct{}, logger *slog.Logger) {
	mgr.OnConnected(func() {
		if guildID == "" {
			return
		}
		if err := mgr.Subscribe(guildID); err != nil {
			logger.Warn("subscribe failed", "guild_id", guildID, "error", err)
		}
	})

	mgr.OnClosed(func(code int, reason string) {
		logger.Warn("feed connection lost", "code", code, "reason", reason)
	})

	mgr.OnReconnecting(func(attempt, maxAttempts int, delay time.Duration) {
		logger.Info("reconnecting", "attempt", attempt, "max_attempts", maxAttempts, "delay", delay)
	})

	mgr.OnError(func(err error) {
		logger.Warn("feed error", "error", err)
	})

	mgr.On("pong", func(_ json.RawMessage, ev connection.InboundEvent) {
		logger.Debug("server pong", "timestamp", ev.Timestamp)
	})

	var once sync.Once
	mgr.OnMaxReconnectAttempts(func() {
		once.Do(func() { close(gaveUp) })
	})
}
