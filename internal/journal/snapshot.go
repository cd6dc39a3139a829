package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/rickgao/guildfeed/internal/api"
)

const insertSnapshotSQL = `
	INSERT INTO guild_snapshots (guild_id, fetched_at, name, member_count, guild, members)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (guild_id, fetched_at) DO NOTHING`

// SnapshotStore persists guild snapshots fetched over the REST API.
type SnapshotStore struct {
	db     Execer
	logger *slog.Logger
}

// NewSnapshotStore creates a SnapshotStore.
func NewSnapshotStore(db Execer, logger *slog.Logger) *SnapshotStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &SnapshotStore{db: db, logger: logger}
}

// HandleSnapshot inserts one snapshot row.
func (s *SnapshotStore) HandleSnapshot(ctx context.Context, snap *api.GuildSnapshot) error {
	guild, err := json.Marshal(snap.Guild)
	if err != nil {
		return fmt.Errorf("encode guild: %w", err)
	}
	members := snap.Members
	if members == nil {
		members = []api.GuildMember{}
	}
	memberData, err := json.Marshal(members)
	if err != nil {
		return fmt.Errorf("encode members: %w", err)
	}

	tag, err := s.db.Exec(ctx, insertSnapshotSQL,
		snap.Guild.ID,
		snap.FetchedAt,
		snap.Guild.Name,
		len(members),
		string(guild),
		string(memberData),
	)
	if err != nil {
		return fmt.Errorf("insert snapshot %s: %w", snap.Guild.ID, err)
	}

	s.logger.Debug("stored guild snapshot",
		"guild_id", snap.Guild.ID,
		"members", len(members),
		"inserted", tag.RowsAffected(),
	)
	return nil
}
