// apiprobe exercises the discord-user-api REST endpoints and prints what
// comes back.
// Usage: go run ./cmd/apiprobe --url http://localhost:8080 --guild 123
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/rickgao/guildfeed/internal/api"
	"github.com/rickgao/guildfeed/internal/config"
)

func main() {
	baseURL := flag.String("url", config.Default().ServerURL(), "server base URL")
	guildID := flag.String("guild", "", "guild to inspect (defaults to the first listed)")
	userID := flag.String("user", "", "user profile to fetch")
	members := flag.Int("members", 10, "member limit for the snapshot")
	flag.Parse()

	client := api.NewClient(*baseURL, api.WithTimeout(30*time.Second))

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	// Test 1: Health
	fmt.Println("=== Testing Health ===")
	health, err := client.HealthCheck(ctx)
	if err != nil {
		log.Fatalf("HealthCheck failed: %v", err)
	}
	fmt.Printf("Health: %s\n", health)

	// Test 2: Guilds
	fmt.Println("\n=== Testing GetGuilds ===")
	guilds, err := client.GetGuilds(ctx)
	if err != nil {
		log.Fatalf("GetGuilds failed: %v", err)
	}
	fmt.Printf("Fetched %d guilds (count: %d)\n", len(guilds.Data), guilds.Count)
	for i, g := range guilds.Data {
		fmt.Printf("  %d. %s - %s (owner: %v)\n", i+1, g.ID, g.Name, g.Owner)
	}
	if rl := guilds.RateLimit; rl != nil {
		fmt.Printf("Rate limit: %d/%d, resets %s\n", rl.Remaining, rl.Limit, rl.ResetAt().Format(time.RFC3339))
	}

	id := *guildID
	if id == "" && len(guilds.Data) > 0 {
		id = guilds.Data[0].ID
	}

	// Test 3: Snapshot
	if id != "" {
		fmt.Printf("\n=== Testing FetchGuildSnapshot (%s) ===\n", id)
		snap, err := client.FetchGuildSnapshot(ctx, id, *members)
		if err != nil {
			log.Fatalf("FetchGuildSnapshot failed: %v", err)
		}
		fmt.Printf("Name: %s\n", snap.Guild.Name)
		fmt.Printf("Roles: %d, Emojis: %d\n", len(snap.Guild.Roles), len(snap.Guild.Emojis))
		fmt.Printf("Members fetched: %d\n", len(snap.Members))
		for i, m := range snap.Members {
			if i >= 5 {
				break
			}
			fmt.Printf("  %s (%s) roles=%d\n", m.User.Username, m.User.ID, len(m.Roles))
		}
	}

	// Test 4: Profile
	if *userID != "" {
		fmt.Printf("\n=== Testing GetUser (%s) ===\n", *userID)
		profile, err := client.GetUser(ctx, *userID)
		var apiErr *api.APIError
		switch {
		case errors.As(err, &apiErr):
			fmt.Printf("API error %d: %s\n", apiErr.StatusCode, apiErr.Message)
		case err != nil:
			log.Fatalf("GetUser failed: %v", err)
		default:
			fmt.Printf("User: %s (%s)\n", profile.User.Username, profile.User.GlobalName)
		}
	}

	// Test 5: Stats
	fmt.Println("\n=== Testing GetStats ===")
	stats, err := client.GetStats(ctx)
	if err != nil {
		log.Fatalf("GetStats failed: %v", err)
	}
	fmt.Printf("Cache: size=%d hits=%d misses=%d\n", stats.Cache.Size, stats.Cache.Hits, stats.Cache.Misses)
	fmt.Printf("WebSocket clients: %d\n", stats.WebSocket.ConnectedClients)
	fmt.Printf("Server started: %s\n", stats.Server.StartTime)

	fmt.Println("\n=== All tests passed! ===")
}
