package api

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultMemberLimit is the member page size used when limit <= 0.
const DefaultMemberLimit = 1000

// GetGuilds fetches every guild the server knows.
func (c *Client) GetGuilds(ctx context.Context) (*Response[[]Guild], error) {
	resp, err := get[[]Guild](ctx, c, "/guilds", nil)
	if err != nil {
		return nil, fmt.Errorf("get guilds: %w", err)
	}
	return resp, nil
}

// GetGuild fetches one guild by query parameter.
func (c *Client) GetGuild(ctx context.Context, guildID string) (*Guild, error) {
	resp, err := get[Guild](ctx, c, "/guilds", url.Values{"id": {guildID}})
	if err != nil {
		return nil, fmt.Errorf("get guild %s: %w", guildID, err)
	}
	return &resp.Data, nil
}

// GetGuildByID fetches one guild by path.
func (c *Client) GetGuildByID(ctx context.Context, guildID string) (*Guild, error) {
	resp, err := get[Guild](ctx, c, "/guilds/"+url.PathEscape(guildID), nil)
	if err != nil {
		return nil, fmt.Errorf("get guild %s: %w", guildID, err)
	}
	return &resp.Data, nil
}

// GetGuildMembers fetches up to limit members of a guild.
func (c *Client) GetGuildMembers(ctx context.Context, guildID string, limit int) ([]GuildMember, error) {
	resp, err := get[[]GuildMember](ctx, c, "/guilds/members", memberQuery(guildID, limit))
	if err != nil {
		return nil, fmt.Errorf("get guild members %s: %w", guildID, err)
	}
	return resp.Data, nil
}

// RefreshGuild asks the server to refetch a guild from Discord.
func (c *Client) RefreshGuild(ctx context.Context, guildID string) error {
	if _, err := post[any](ctx, c, "/guilds/refresh", url.Values{"guild_id": {guildID}}); err != nil {
		return fmt.Errorf("refresh guild %s: %w", guildID, err)
	}
	return nil
}

// RefreshGuildMembers asks the server to refetch a guild's members.
func (c *Client) RefreshGuildMembers(ctx context.Context, guildID string, limit int) error {
	if _, err := post[any](ctx, c, "/guilds/members/refresh", memberQuery(guildID, limit)); err != nil {
		return fmt.Errorf("refresh guild members %s: %w", guildID, err)
	}
	return nil
}

// FetchGuildSnapshot fetches a guild and its members concurrently.
func (c *Client) FetchGuildSnapshot(ctx context.Context, guildID string, memberLimit int) (*GuildSnapshot, error) {
	g, ctx := errgroup.WithContext(ctx)

	var guild *Guild
	var members []GuildMember

	g.Go(func() error {
		var err error
		guild, err = c.GetGuildByID(ctx, guildID)
		return err
	})
	g.Go(func() error {
		var err error
		members, err = c.GetGuildMembers(ctx, guildID, memberLimit)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("fetch guild snapshot: %w", err)
	}

	return &GuildSnapshot{
		Guild:     *guild,
		Members:   members,
		FetchedAt: time.Now(),
	}, nil
}

func memberQuery(guildID string, limit int) url.Values {
	if limit <= 0 {
		limit = DefaultMemberLimit
	}
	return url.Values{
		"guild_id": {guildID},
		"limit":    {strconv.Itoa(limit)},
	}
}
