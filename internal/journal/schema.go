package journal

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// Execer runs a statement. *pgxpool.Pool implements it.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS feed_events (
		id          uuid PRIMARY KEY,
		socket_id   text NOT NULL,
		event_type  text NOT NULL,
		guild_id    text NOT NULL DEFAULT '',
		user_id     text NOT NULL DEFAULT '',
		server_ts   timestamptz,
		received_at timestamptz NOT NULL,
		data        jsonb
	)`,
	`CREATE INDEX IF NOT EXISTS feed_events_guild_received_idx
		ON feed_events (guild_id, received_at)`,
	`CREATE INDEX IF NOT EXISTS feed_events_type_received_idx
		ON feed_events (event_type, received_at)`,
	`CREATE TABLE IF NOT EXISTS guild_snapshots (
		guild_id     text NOT NULL,
		fetched_at   timestamptz NOT NULL,
		name         text NOT NULL DEFAULT '',
		member_count integer NOT NULL,
		guild        jsonb NOT NULL,
		members      jsonb NOT NULL,
		PRIMARY KEY (guild_id, fetched_at)
	)`,
}

// EnsureSchema creates the journal tables and indexes if missing.
func EnsureSchema(ctx context.Context, db Execer) error {
	for _, stmt := range schemaStatements {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
