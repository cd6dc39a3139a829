package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rickgao/guildfeed/internal/connection"
	"github.com/rickgao/guildfeed/internal/journal"
	"github.com/rickgao/guildfeed/internal/poller"
)

// connStats is satisfied by *connection.Manager.
type connStats interface {
	Stats() connection.ManagerStats
}

// pinger is satisfied by *pgxpool.Pool.
type pinger interface {
	Ping(ctx context.Context) error
}

// journalStats is satisfied by *journal.Writer.
type journalStats interface {
	Stats() journal.Metrics
}

// pollerStats is satisfied by *poller.Poller.
type pollerStats interface {
	Stats() poller.Stats
}

// healthDeps are the components reported by /health. db and journal are
// nil when the journal is disabled, poller when polling is.
type healthDeps struct {
	conn    connStats
	db      pinger
	journal journalStats
	poller  pollerStats
}

// healthSources keeps nil pointers out of the interface fields.
func healthSources(mgr *connection.Manager, pool *pgxpool.Pool, writer *journal.Writer, p *poller.Poller) healthDeps {
	deps := healthDeps{conn: mgr}
	if p != nil {
		deps.poller = p
	}
	if pool != nil {
		deps.db = pool
	}
	if writer != nil {
		deps.journal = writer
	}
	return deps
}

// createHealthHandler creates the HTTP handler for health checks.
func createHealthHandler(deps healthDeps) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status     string         `json:"status"`
			Components map[string]any `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]any),
		}

		// Check feed connection
		stats := deps.conn.Stats()
		health.Components["feed"] = map[string]any{
			"state":             stats.State.String(),
			"socket_id":         stats.SocketID,
			"reconnect_attempt": stats.ReconnectAttempt,
			"reconnects":        stats.Reconnects,
			"messages":          stats.MessagesReceived,
			"parse_errors":      stats.ParseErrors,
		}
		switch stats.State {
		case connection.StateOpen:
		case connection.StateConnecting, connection.StateReconnecting:
			health.Status = "degraded"
		default:
			health.Status = "unhealthy"
		}

		// Check database
		if deps.db != nil {
			if err := deps.db.Ping(ctx); err != nil {
				health.Status = "unhealthy"
				health.Components["postgres"] = map[string]string{
					"status": "disconnected",
					"error":  err.Error(),
				}
			} else {
				health.Components["postgres"] = "connected"
			}
		}

		if deps.journal != nil {
			health.Components["journal"] = deps.journal.Stats()
		}

		if deps.poller != nil {
			health.Components["poller"] = deps.poller.Stats()
		}

		// Set response
		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	return mux
}
