package poller

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rickgao/guildfeed/internal/api"
	"github.com/rickgao/guildfeed/internal/connection"
)

func writeEnvelope(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"success":   true,
		"data":      data,
		"timestamp": "2024-01-02T03:04:05Z",
	})
}

// guildServer serves /guilds, /guilds/{id} and /guilds/members for the
// listed guild ids.
func guildServer(t *testing.T, listed []string, delay time.Duration, inFlight, maxInFlight *atomic.Int32) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if inFlight != nil {
			current := inFlight.Add(1)
			defer inFlight.Add(-1)
			// Track max concurrent requests.
			for {
				old := maxInFlight.Load()
				if current <= old || maxInFlight.CompareAndSwap(old, current) {
					break
				}
			}
		}
		time.Sleep(delay)

		switch {
		case r.URL.Path == "/guilds":
			guilds := make([]map[string]string, 0, len(listed))
			for _, id := range listed {
				guilds = append(guilds, map[string]string{"id": id})
			}
			writeEnvelope(w, guilds)
		case r.URL.Path == "/guilds/members":
			writeEnvelope(w, []map[string]any{
				{"user": map[string]string{"id": "u1"}},
			})
		case strings.HasPrefix(r.URL.Path, "/guilds/"):
			id := strings.TrimPrefix(r.URL.Path, "/guilds/")
			writeEnvelope(w, map[string]string{"id": id, "name": "guild " + id})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func newClient(server *httptest.Server) *api.Client {
	return api.NewClient(server.URL,
		api.WithTimeout(5*time.Second),
		api.WithRetries(0, time.Millisecond),
		api.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
}

// recorder collects handled guild ids.
type recorder struct {
	mu  sync.Mutex
	ids []string
}

func (r *recorder) HandleSnapshot(_ context.Context, s *api.GuildSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, s.Guild.ID)
	return nil
}

func (r *recorder) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ids...)
}

func TestPoller_PollAllConfigured(t *testing.T) {
	server := guildServer(t, nil, 0, nil, nil)

	rec := &recorder{}
	cfg := Config{
		Interval:    time.Hour, // Long interval, we'll trigger manually.
		Concurrency: 10,
		Timeout:     5 * time.Second,
		MemberLimit: 10,
		GuildIDs:    []string{"g1", "g2", "g3"},
	}

	p := New(cfg, newClient(server), rec, slog.New(slog.NewTextHandler(io.Discard, nil)))

	// Call pollAll directly.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	p.ctx = ctx

	p.pollAll()

	if got := len(rec.seen()); got != 3 {
		t.Errorf("snapshots = %d, want 3", got)
	}
	stats := p.Stats()
	if stats.Cycles != 1 || stats.Fetched != 3 || stats.Errors != 0 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.LastCycle.IsZero() {
		t.Error("LastCycle not set")
	}
}

func TestPoller_PollAllListed(t *testing.T) {
	server := guildServer(t, []string{"a", "b"}, 0, nil, nil)

	rec := &recorder{}
	p := New(Config{Interval: time.Hour, Concurrency: 2, Timeout: 5 * time.Second},
		newClient(server), rec, slog.New(slog.NewTextHandler(io.Discard, nil)))
	p.ctx = context.Background()

	p.pollAll()

	got := rec.seen()
	if len(got) != 2 {
		t.Fatalf("snapshots = %v, want a and b", got)
	}
}

func TestPoller_FetchError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]any{"success": false, "error": "guild not found"})
	}))
	defer server.Close()

	rec := &recorder{}
	p := New(Config{Interval: time.Hour, Concurrency: 1, Timeout: 5 * time.Second, GuildIDs: []string{"missing"}},
		newClient(server), rec, slog.New(slog.NewTextHandler(io.Discard, nil)))
	p.ctx = context.Background()

	p.pollAll()

	if len(rec.seen()) != 0 {
		t.Error("handler called for failed fetch")
	}
	if got := p.Stats().Errors; got != 1 {
		t.Errorf("Errors = %d, want 1", got)
	}
}

func TestPoller_StartStop(t *testing.T) {
	server := guildServer(t, []string{"g1"}, 0, nil, nil)

	var called atomic.Bool
	handler := SnapshotHandlerFunc(func(context.Context, *api.GuildSnapshot) error {
		called.Store(true)
		return nil
	})

	cfg := Config{
		Interval:    100 * time.Millisecond,
		Concurrency: 10,
		Timeout:     5 * time.Second,
	}

	p := New(cfg, newClient(server), handler, nil)

	ctx := context.Background()
	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Wait for at least one poll.
	time.Sleep(150 * time.Millisecond)

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	if err := p.Stop(stopCtx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if !called.Load() {
		t.Error("handler was never called")
	}
}

func TestPoller_Concurrency(t *testing.T) {
	var inFlight, maxInFlight atomic.Int32
	server := guildServer(t, nil, 50*time.Millisecond, &inFlight, &maxInFlight)

	// Create 20 guilds.
	var ids []string
	for i := 0; i < 20; i++ {
		ids = append(ids, "guild-"+string(rune('A'+i)))
	}

	cfg := Config{
		Interval:    time.Hour,
		Concurrency: 5, // Limit to 5 concurrent guilds.
		Timeout:     5 * time.Second,
		GuildIDs:    ids,
	}

	p := New(cfg, newClient(server), &recorder{}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	p.ctx = ctx

	p.pollAll()

	// Each snapshot is two requests.
	if got := maxInFlight.Load(); got > 10 {
		t.Errorf("maxInFlight = %d, want <= 10", got)
	}
	if got := p.Stats().Fetched; got != 20 {
		t.Errorf("Fetched = %d, want 20", got)
	}
}

func TestPoller_Trigger(t *testing.T) {
	server := guildServer(t, nil, 0, nil, nil)

	rec := &recorder{}
	p := New(Config{Interval: time.Hour, Concurrency: 1, Timeout: 5 * time.Second},
		newClient(server), rec, slog.New(slog.NewTextHandler(io.Discard, nil)))

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer p.Stop(context.Background())

	p.Trigger("")
	p.Trigger("g7")

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if ids := rec.seen(); len(ids) == 1 && ids[0] == "g7" {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	if ids := rec.seen(); len(ids) != 1 || ids[0] != "g7" {
		t.Fatalf("snapshots = %v, want [g7]", ids)
	}
	if got := p.Stats().Triggered; got != 1 {
		t.Errorf("Triggered = %d, want 1", got)
	}
}

func TestPoller_TriggerDropsWhenFull(t *testing.T) {
	p := New(DefaultConfig(), nil, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	for i := 0; i < triggerBuffer+5; i++ {
		p.Trigger("g1")
	}

	if got := p.Stats().Triggered; got != triggerBuffer {
		t.Errorf("Triggered = %d, want %d", got, triggerBuffer)
	}
}

func TestRefreshedGuild(t *testing.T) {
	tests := []struct {
		name string
		data string
		ev   connection.InboundEvent
		want string
	}{
		{"frame guild id", `{"guild_id":"other"}`, connection.InboundEvent{GuildID: "g1"}, "g1"},
		{"payload guild id", `{"guild_id":"g2","timestamp":"x"}`, connection.InboundEvent{}, "g2"},
		{"missing", `{}`, connection.InboundEvent{}, ""},
		{"not an object", `"refresh"`, connection.InboundEvent{}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := refreshedGuild(json.RawMessage(tt.data), tt.ev); got != tt.want {
				t.Errorf("refreshedGuild() = %q, want %q", got, tt.want)
			}
		})
	}
}
