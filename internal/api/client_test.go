package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// writeEnvelope writes a success envelope around data.
func writeEnvelope(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"success":   true,
		"data":      data,
		"timestamp": "2024-01-02T03:04:05Z",
	})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"success":   false,
		"error":     msg,
		"timestamp": "2024-01-02T03:04:05Z",
	})
}

func newTestClient(server *httptest.Server, opts ...ClientOption) *Client {
	base := []ClientOption{
		WithRetries(3, time.Millisecond),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	return NewClient(server.URL, append(base, opts...)...)
}

// TestNewClient tests client construction with various options.
func TestNewClient(t *testing.T) {
	t.Run("default values", func(t *testing.T) {
		c := NewClient("http://localhost:8080")

		if c.baseURL != "http://localhost:8080" {
			t.Errorf("baseURL = %q, want %q", c.baseURL, "http://localhost:8080")
		}
		if c.httpClient.Timeout != 30*time.Second {
			t.Errorf("Timeout = %v, want %v", c.httpClient.Timeout, 30*time.Second)
		}
		if c.maxRetries != 3 {
			t.Errorf("maxRetries = %d, want %d", c.maxRetries, 3)
		}
		if c.retryBackoff != time.Second {
			t.Errorf("retryBackoff = %v, want %v", c.retryBackoff, time.Second)
		}
		if !strings.HasPrefix(c.userAgent, "guildfeed/") {
			t.Errorf("userAgent = %q", c.userAgent)
		}
	})

	t.Run("with options", func(t *testing.T) {
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
		hc := &http.Client{}
		c := NewClient("http://localhost:8080",
			WithHTTPClient(hc),
			WithTimeout(15*time.Second),
			WithRetries(10, 500*time.Millisecond),
			WithLogger(logger),
			WithUserAgent("probe/1"),
		)
		if c.httpClient != hc || hc.Timeout != 15*time.Second {
			t.Errorf("http client not configured: %+v", c.httpClient)
		}
		if c.maxRetries != 10 || c.retryBackoff != 500*time.Millisecond {
			t.Errorf("retries = %d/%v", c.maxRetries, c.retryBackoff)
		}
		if c.logger != logger {
			t.Error("logger not set correctly")
		}
		if c.userAgent != "probe/1" {
			t.Errorf("userAgent = %q", c.userAgent)
		}
	})
}

// TestAPIError tests the APIError type.
func TestAPIError(t *testing.T) {
	err := &APIError{StatusCode: 404, Message: "Guild bulunamadı"}
	if err.Error() != "feed api error 404: Guild bulunamadı" {
		t.Errorf("Error() = %q", err.Error())
	}

	tests := []struct {
		code int
		want bool
	}{
		{400, false},
		{404, false},
		{405, false},
		{429, true},
		{500, true},
		{503, true},
	}
	for _, tt := range tests {
		e := &APIError{StatusCode: tt.code}
		if got := e.IsRetryable(); got != tt.want {
			t.Errorf("IsRetryable(%d) = %v, want %v", tt.code, got, tt.want)
		}
	}
}

func TestNewAPIError(t *testing.T) {
	t.Run("envelope error", func(t *testing.T) {
		body := []byte(`{"success":false,"error":"rate limited","rate_limit":{"limit":50,"remaining":0,"reset":1700000000}}`)
		e := newAPIError(429, body)
		if e.Message != "rate limited" {
			t.Errorf("Message = %q", e.Message)
		}
		if e.RateLimit == nil || e.RateLimit.Remaining != 0 || e.RateLimit.Limit != 50 {
			t.Errorf("RateLimit = %+v", e.RateLimit)
		}
		if !e.RateLimit.ResetAt().Equal(time.Unix(1700000000, 0)) {
			t.Errorf("ResetAt() = %v", e.RateLimit.ResetAt())
		}
	})

	t.Run("non-json body", func(t *testing.T) {
		e := newAPIError(502, []byte("<html>bad gateway</html>"))
		if e.Message != "Bad Gateway" {
			t.Errorf("Message = %q, want status text", e.Message)
		}
	})
}

func TestGetGuilds(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/guilds" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Accept") != "application/json" {
			t.Errorf("Accept = %q", r.Header.Get("Accept"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"success": true,
			"data": [{"id":"1","name":"one"},{"id":"2","name":"two"}],
			"count": 2,
			"timestamp": "2024-01-02T03:04:05Z",
			"rate_limit": {"limit":50,"remaining":49,"reset":1700000000,"reset_time":"2023-11-14T22:13:20Z"}
		}`))
	}))
	defer server.Close()

	resp, err := newTestClient(server).GetGuilds(context.Background())
	if err != nil {
		t.Fatalf("GetGuilds failed: %v", err)
	}

	if resp.Count != 2 || len(resp.Data) != 2 {
		t.Fatalf("count = %d, len = %d, want 2", resp.Count, len(resp.Data))
	}
	if resp.Data[1].Name != "two" {
		t.Errorf("Data[1].Name = %q", resp.Data[1].Name)
	}
	if resp.RateLimit == nil || resp.RateLimit.Remaining != 49 {
		t.Errorf("RateLimit = %+v", resp.RateLimit)
	}
}

func TestGetGuild(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/guilds" && r.URL.Query().Get("id") == "42":
			writeEnvelope(w, map[string]any{"id": "42", "name": "by query"})
		case r.URL.Path == "/guilds/42":
			writeEnvelope(w, map[string]any{"id": "42", "name": "by path", "roles": []map[string]any{{"id": "r1", "name": "admin"}}})
		default:
			writeError(w, http.StatusNotFound, "Guild bulunamadı")
		}
	}))
	defer server.Close()

	c := newTestClient(server)

	g, err := c.GetGuild(context.Background(), "42")
	if err != nil {
		t.Fatalf("GetGuild failed: %v", err)
	}
	if g.Name != "by query" {
		t.Errorf("Name = %q", g.Name)
	}

	g, err = c.GetGuildByID(context.Background(), "42")
	if err != nil {
		t.Fatalf("GetGuildByID failed: %v", err)
	}
	if g.Name != "by path" || len(g.Roles) != 1 || g.Roles[0].Name != "admin" {
		t.Errorf("guild = %+v", g)
	}

	_, err = c.GetGuildByID(context.Background(), "404")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.StatusCode != 404 || apiErr.Message != "Guild bulunamadı" {
		t.Errorf("apiErr = %d %q", apiErr.StatusCode, apiErr.Message)
	}
}

func TestGetGuildMembers_DefaultLimit(t *testing.T) {
	var gotLimit, gotGuild string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotLimit = r.URL.Query().Get("limit")
		gotGuild = r.URL.Query().Get("guild_id")
		writeEnvelope(w, []map[string]any{
			{"user": map[string]any{"id": "u1", "username": "alice"}, "nick": "al", "roles": []string{"r1"}},
		})
	}))
	defer server.Close()

	members, err := newTestClient(server).GetGuildMembers(context.Background(), "G1", 0)
	if err != nil {
		t.Fatalf("GetGuildMembers failed: %v", err)
	}

	if gotLimit != "1000" || gotGuild != "G1" {
		t.Errorf("query = guild_id=%s limit=%s", gotGuild, gotLimit)
	}
	if len(members) != 1 || members[0].User.Username != "alice" || members[0].Nick != "al" {
		t.Errorf("members = %+v", members)
	}
}

func TestRefreshAndClear(t *testing.T) {
	var calls []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		calls = append(calls, r.URL.Path+"?"+r.URL.RawQuery)
		w.Write([]byte(`{"success":true,"message":"ok","timestamp":"2024-01-02T03:04:05Z"}`))
	}))
	defer server.Close()

	c := newTestClient(server)
	ctx := context.Background()

	if err := c.RefreshGuild(ctx, "G1"); err != nil {
		t.Errorf("RefreshGuild failed: %v", err)
	}
	if err := c.RefreshGuildMembers(ctx, "G1", 50); err != nil {
		t.Errorf("RefreshGuildMembers failed: %v", err)
	}
	if err := c.ClearCache(ctx); err != nil {
		t.Errorf("ClearCache failed: %v", err)
	}

	want := []string{
		"/guilds/refresh?guild_id=G1",
		"/guilds/members/refresh?guild_id=G1&limit=50",
		"/cache/clear?",
	}
	if strings.Join(calls, " ") != strings.Join(want, " ") {
		t.Errorf("calls = %v, want %v", calls, want)
	}
}

func TestStatsEndpoints(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/stats":
			writeEnvelope(w, map[string]any{
				"cache":      map[string]any{"hits": 10, "misses": 2, "size": 5},
				"rate_limit": map[string]any{"limit": 50, "remaining": 40},
				"websocket":  map[string]any{"connected_clients": 1},
				"server":     map[string]any{"start_time": "2024-01-01T00:00:00Z"},
			})
		case "/cache/stats":
			writeEnvelope(w, map[string]any{"hits": 7, "evictions": 1, "last_cleanup": "2024-01-01T00:00:00Z"})
		case "/websocket/stats":
			writeEnvelope(w, map[string]any{
				"connected_clients": 2,
				"clients_info": []map[string]any{
					{"user_id": "u1", "guild_id": "G1", "address": "10.0.0.1:5000"},
					{"user_id": "", "guild_id": "", "address": "10.0.0.2:5000"},
				},
			})
		case "/users":
			writeEnvelope(w, map[string]any{"user": map[string]any{"id": r.URL.Query().Get("id"), "username": "bob"}})
		case "/health":
			writeEnvelope(w, map[string]any{"status": "healthy"})
		case "/":
			writeEnvelope(w, map[string]any{"name": "Discord API Server", "version": "2.0.0"})
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	c := newTestClient(server)
	ctx := context.Background()

	stats, err := c.GetStats(ctx)
	if err != nil {
		t.Fatalf("GetStats failed: %v", err)
	}
	if stats.Cache.Hits != 10 || stats.RateLimit.Remaining != 40 || stats.WebSocket.ConnectedClients != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.Server.StartTime != "2024-01-01T00:00:00Z" {
		t.Errorf("StartTime = %q", stats.Server.StartTime)
	}

	cs, err := c.GetCacheStats(ctx)
	if err != nil {
		t.Fatalf("GetCacheStats failed: %v", err)
	}
	if cs.Hits != 7 || cs.Evictions != 1 {
		t.Errorf("cache stats = %+v", cs)
	}

	ws, err := c.GetWebSocketStats(ctx)
	if err != nil {
		t.Fatalf("GetWebSocketStats failed: %v", err)
	}
	if ws.ConnectedClients != 2 || len(ws.ClientsInfo) != 2 || ws.ClientsInfo[0].GuildID != "G1" {
		t.Errorf("websocket stats = %+v", ws)
	}

	p, err := c.GetUser(ctx, "u9")
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if p.User.ID != "u9" || p.User.Username != "bob" {
		t.Errorf("profile = %+v", p.User)
	}

	health, err := c.HealthCheck(ctx)
	if err != nil {
		t.Fatalf("HealthCheck failed: %v", err)
	}
	if !strings.Contains(string(health), "healthy") {
		t.Errorf("health = %s", health)
	}

	info, err := c.GetServerInfo(ctx)
	if err != nil {
		t.Fatalf("GetServerInfo failed: %v", err)
	}
	if !strings.Contains(string(info), "2.0.0") {
		t.Errorf("info = %s", info)
	}
}

func TestRetry(t *testing.T) {
	t.Run("retries 5xx then succeeds", func(t *testing.T) {
		var attempts atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if attempts.Add(1) < 3 {
				writeError(w, http.StatusServiceUnavailable, "busy")
				return
			}
			writeEnvelope(w, map[string]any{"hits": 1})
		}))
		defer server.Close()

		cs, err := newTestClient(server).GetCacheStats(context.Background())
		if err != nil {
			t.Fatalf("GetCacheStats failed: %v", err)
		}
		if cs.Hits != 1 {
			t.Errorf("Hits = %d", cs.Hits)
		}
		if attempts.Load() != 3 {
			t.Errorf("attempts = %d, want 3", attempts.Load())
		}
	})

	t.Run("does not retry 4xx", func(t *testing.T) {
		var attempts atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			attempts.Add(1)
			writeError(w, http.StatusBadRequest, "guild_id parametresi gerekli")
		}))
		defer server.Close()

		_, err := newTestClient(server).GetGuildMembers(context.Background(), "", 10)
		if err == nil {
			t.Fatal("expected error")
		}
		if attempts.Load() != 1 {
			t.Errorf("attempts = %d, want 1", attempts.Load())
		}
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		var attempts atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			attempts.Add(1)
			writeError(w, http.StatusTooManyRequests, "slow down")
		}))
		defer server.Close()

		_, err := newTestClient(server).GetStats(context.Background())
		if err == nil || !strings.Contains(err.Error(), "max retries exceeded") {
			t.Fatalf("err = %v, want max retries exceeded", err)
		}
		var apiErr *APIError
		if !errors.As(err, &apiErr) || apiErr.StatusCode != 429 {
			t.Errorf("expected wrapped 429 APIError, got %v", err)
		}
		if attempts.Load() != 4 {
			t.Errorf("attempts = %d, want 4", attempts.Load())
		}
	})

	t.Run("context cancelled during backoff", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			writeError(w, http.StatusInternalServerError, "boom")
		}))
		defer server.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		c := newTestClient(server, WithRetries(3, time.Hour))
		_, err := c.GetStats(ctx)
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("err = %v, want deadline exceeded", err)
		}
	})
}

func TestUnsuccessfulEnvelope(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":false,"error":"cache disabled","timestamp":"2024-01-02T03:04:05Z"}`))
	}))
	defer server.Close()

	_, err := newTestClient(server).GetCacheStats(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusOK || apiErr.Message != "cache disabled" {
		t.Errorf("apiErr = %d %q", apiErr.StatusCode, apiErr.Message)
	}
}

func TestFetchGuildSnapshot(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/guilds/G1":
			writeEnvelope(w, map[string]any{"id": "G1", "name": "guild one"})
		case "/guilds/members":
			writeEnvelope(w, []map[string]any{
				{"user": map[string]any{"id": "u1"}},
				{"user": map[string]any{"id": "u2"}},
			})
		default:
			writeError(w, http.StatusNotFound, "not found")
		}
	}))
	defer server.Close()

	c := newTestClient(server)

	snap, err := c.FetchGuildSnapshot(context.Background(), "G1", 100)
	if err != nil {
		t.Fatalf("FetchGuildSnapshot failed: %v", err)
	}
	if snap.Guild.Name != "guild one" || len(snap.Members) != 2 || snap.FetchedAt.IsZero() {
		t.Errorf("snapshot = %+v", snap)
	}

	if _, err := c.FetchGuildSnapshot(context.Background(), "G2", 100); err == nil {
		t.Error("expected error for unknown guild")
	}
}
