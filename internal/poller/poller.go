package poller

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/guildfeed/internal/api"
	"github.com/rickgao/guildfeed/internal/connection"
)

// triggerBuffer is how many early polls may be pending at once.
const triggerBuffer = 64

// SnapshotHandler receives fetched snapshots.
type SnapshotHandler interface {
	HandleSnapshot(ctx context.Context, snapshot *api.GuildSnapshot) error
}

// SnapshotHandlerFunc is a function adapter for SnapshotHandler.
type SnapshotHandlerFunc func(context.Context, *api.GuildSnapshot) error

func (f SnapshotHandlerFunc) HandleSnapshot(ctx context.Context, s *api.GuildSnapshot) error {
	return f(ctx, s)
}

// Config holds poller configuration.
type Config struct {
	Interval    time.Duration // Poll interval (default: 15m)
	Concurrency int           // Max concurrent guild fetches (default: 4)
	Timeout     time.Duration // Per-guild timeout (default: 30s)
	MemberLimit int           // Members fetched per guild
	GuildIDs    []string      // Empty polls every guild the server lists
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval:    15 * time.Minute,
		Concurrency: 4,
		Timeout:     30 * time.Second,
		MemberLimit: api.DefaultMemberLimit,
	}
}

// Stats contains poller statistics.
type Stats struct {
	Cycles    int64
	Fetched   int64
	Errors    int64
	Triggered int64 // Early polls requested by feed events
	LastCycle time.Time
}

// Poller periodically fetches guild snapshots via the REST API.
type Poller struct {
	cfg     Config
	client  *api.Client
	handler SnapshotHandler
	logger  *slog.Logger

	trigger chan string

	cycles    atomic.Int64
	fetched   atomic.Int64
	errors    atomic.Int64
	triggered atomic.Int64
	lastCycle atomic.Int64 // Unix nanos

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new Poller.
func New(cfg Config, client *api.Client, handler SnapshotHandler, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &Poller{
		cfg:     cfg,
		client:  client,
		handler: handler,
		logger:  logger,
		trigger: make(chan string, triggerBuffer),
	}
}

// Start begins the polling loop.
func (p *Poller) Start(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go p.run()

	p.logger.Info("snapshot poller started",
		"interval", p.cfg.Interval,
		"concurrency", p.cfg.Concurrency,
		"guilds", len(p.cfg.GuildIDs),
	)

	return nil
}

// Stop gracefully shuts down the poller.
func (p *Poller) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("snapshot poller stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Trigger requests an early poll of one guild. It never blocks; requests
// beyond the pending limit are dropped.
func (p *Poller) Trigger(guildID string) {
	if guildID == "" {
		return
	}
	select {
	case p.trigger <- guildID:
		p.triggered.Add(1)
	default:
		p.logger.Debug("early poll dropped", "guild_id", guildID)
	}
}

// Attach triggers an early poll whenever the feed reports a guild or its
// members were refreshed. The returned func detaches.
func (p *Poller) Attach(m *connection.Manager) func() {
	onRefresh := func(data json.RawMessage, ev connection.InboundEvent) {
		p.Trigger(refreshedGuild(data, ev))
	}
	offGuild := m.On("guild_refreshed", onRefresh)
	offMembers := m.On("members_refreshed", onRefresh)
	return func() {
		offGuild()
		offMembers()
	}
}

// refreshedGuild returns the guild a refresh event names, preferring the
// frame's guild_id over the payload's.
func refreshedGuild(data json.RawMessage, ev connection.InboundEvent) string {
	if ev.GuildID != "" {
		return ev.GuildID
	}
	var payload struct {
		GuildID string `json:"guild_id"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return ""
	}
	return payload.GuildID
}

// Stats returns current statistics.
func (p *Poller) Stats() Stats {
	s := Stats{
		Cycles:    p.cycles.Load(),
		Fetched:   p.fetched.Load(),
		Errors:    p.errors.Load(),
		Triggered: p.triggered.Load(),
	}
	if ns := p.lastCycle.Load(); ns != 0 {
		s.LastCycle = time.Unix(0, ns)
	}
	return s
}

// run is the main polling loop.
func (p *Poller) run() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	// Poll immediately on start.
	p.pollAll()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.pollAll()
		case guildID := <-p.trigger:
			if err := p.pollGuild(guildID); err != nil {
				p.errors.Add(1)
				p.logger.Warn("failed to poll guild", "guild_id", guildID, "error", err)
				continue
			}
			p.fetched.Add(1)
		}
	}
}

// guildIDs returns the configured guilds, or every guild the server lists.
func (p *Poller) guildIDs() ([]string, error) {
	if len(p.cfg.GuildIDs) > 0 {
		return p.cfg.GuildIDs, nil
	}

	ctx, cancel := context.WithTimeout(p.ctx, p.cfg.Timeout)
	defer cancel()

	resp, err := p.client.GetGuilds(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(resp.Data))
	for _, g := range resp.Data {
		ids = append(ids, g.ID)
	}
	return ids, nil
}

// pollAll fetches snapshots for all guilds with bounded concurrency.
func (p *Poller) pollAll() {
	start := time.Now()
	defer func() {
		p.cycles.Add(1)
		p.lastCycle.Store(time.Now().UnixNano())
	}()

	guilds, err := p.guildIDs()
	if err != nil {
		p.errors.Add(1)
		p.logger.Warn("failed to list guilds", "error", err)
		return
	}
	if len(guilds) == 0 {
		p.logger.Debug("no guilds to poll")
		return
	}

	var g errgroup.Group
	g.SetLimit(p.cfg.Concurrency)

	var fetched, failed atomic.Int64
	for _, guildID := range guilds {
		if p.ctx.Err() != nil {
			break
		}
		guildID := guildID
		g.Go(func() error {
			if err := p.pollGuild(guildID); err != nil {
				p.logger.Warn("failed to poll guild",
					"guild_id", guildID,
					"error", err,
				)
				failed.Add(1)
				return nil
			}
			fetched.Add(1)
			return nil
		})
	}
	g.Wait()

	p.fetched.Add(fetched.Load())
	p.errors.Add(failed.Load())

	p.logger.Info("poll cycle complete",
		"guilds", len(guilds),
		"fetched", fetched.Load(),
		"errors", failed.Load(),
		"duration", time.Since(start),
	)
}

// pollGuild fetches and handles a single guild's snapshot.
func (p *Poller) pollGuild(guildID string) error {
	ctx, cancel := context.WithTimeout(p.ctx, p.cfg.Timeout)
	defer cancel()

	snap, err := p.client.FetchGuildSnapshot(ctx, guildID, p.cfg.MemberLimit)
	if err != nil {
		return err
	}

	if p.handler != nil {
		if err := p.handler.HandleSnapshot(ctx, snap); err != nil {
			return fmt.Errorf("handle snapshot %s: %w", guildID, err)
		}
	}

	return nil
}
