package api

import (
	"encoding/json"
	"time"
)

// Response is the envelope every endpoint returns.
type Response[T any] struct {
	Success   bool       `json:"success"`
	Data      T          `json:"data"`
	Error     string     `json:"error,omitempty"`
	Message   string     `json:"message,omitempty"`
	Timestamp string     `json:"timestamp"`
	Count     int        `json:"count,omitempty"`
	RateLimit *RateLimit `json:"rate_limit,omitempty"`
}

// RateLimit reports the server's upstream Discord rate-limit budget.
type RateLimit struct {
	Limit     int    `json:"limit"`
	Remaining int    `json:"remaining"`
	Reset     int64  `json:"reset"` // Unix seconds
	ResetTime string `json:"reset_time"`
}

// ResetAt returns Reset as a time.
func (r RateLimit) ResetAt() time.Time {
	return time.Unix(r.Reset, 0)
}

// Guild is a Discord guild as cached by the server. Fields the client does
// not interpret are kept raw.
type Guild struct {
	ID                       string          `json:"id"`
	Name                     string          `json:"name"`
	Icon                     string          `json:"icon"`
	Description              string          `json:"description"`
	Banner                   string          `json:"banner"`
	OwnerID                  string          `json:"owner_id"`
	Region                   string          `json:"region"`
	Features                 []string        `json:"features"`
	VerificationLevel        int             `json:"verification_level"`
	Roles                    []Role          `json:"roles"`
	Emojis                   []Emoji         `json:"emojis"`
	Stickers                 json.RawMessage `json:"stickers,omitempty"`
	MaxMembers               int             `json:"max_members"`
	VanityURLCode            string          `json:"vanity_url_code"`
	PremiumTier              int             `json:"premium_tier"`
	PremiumSubscriptionCount int             `json:"premium_subscription_count"`
	PreferredLocale          string          `json:"preferred_locale"`
	NSFW                     bool            `json:"nsfw"`
	NSFWLevel                int             `json:"nsfw_level"`
	Owner                    bool            `json:"owner"`
	Permissions              string          `json:"permissions"`
	ApproximateMemberCount   int             `json:"approximate_member_count,omitempty"`
	ApproximatePresenceCount int             `json:"approximate_presence_count,omitempty"`
}

// Role is a guild role.
type Role struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description"`
	Permissions  string `json:"permissions"`
	Position     int    `json:"position"`
	Color        int    `json:"color"`
	Hoist        bool   `json:"hoist"`
	Managed      bool   `json:"managed"`
	Mentionable  bool   `json:"mentionable"`
	Icon         string `json:"icon"`
	UnicodeEmoji string `json:"unicode_emoji"`
	Flags        int    `json:"flags"`
}

// Emoji is a custom guild emoji.
type Emoji struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	Roles         []string `json:"roles"`
	RequireColons bool     `json:"require_colons"`
	Managed       bool     `json:"managed"`
	Animated      bool     `json:"animated"`
	Available     bool     `json:"available"`
}

// User is a Discord user.
type User struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	GlobalName    string `json:"global_name"`
	Discriminator string `json:"discriminator"`
	Avatar        string `json:"avatar"`
	Verified      bool   `json:"verified"`
	MFAEnabled    bool   `json:"mfa_enabled"`
	PremiumType   int    `json:"premium_type,omitempty"`
	PublicFlags   int    `json:"public_flags"`
	Flags         int    `json:"flags"`
	Banner        string `json:"banner"`
	BannerColor   string `json:"banner_color"`
	AccentColor   int    `json:"accent_color"`
	Bio           string `json:"bio"`
}

// GuildMember is a member of a guild.
type GuildMember struct {
	User                       User     `json:"user"`
	Nick                       string   `json:"nick"`
	Roles                      []string `json:"roles"`
	JoinedAt                   string   `json:"joined_at"`
	PremiumSince               string   `json:"premium_since,omitempty"`
	Avatar                     string   `json:"avatar,omitempty"`
	CommunicationDisabledUntil string   `json:"communication_disabled_until,omitempty"`
}

// Profile is a user profile.
type Profile struct {
	User              User `json:"user"`
	ConnectedAccounts []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
		Type string `json:"type"`
	} `json:"connected_accounts"`
	PremiumType       int    `json:"premium_type"`
	PremiumSince      string `json:"premium_since"`
	PremiumGuildSince string `json:"premium_guild_since"`
	UserProfile       struct {
		Bio         string `json:"bio"`
		AccentColor int    `json:"accent_color"`
		Pronouns    string `json:"pronouns"`
	} `json:"user_profile"`
	Badges []struct {
		ID          string `json:"id"`
		Description string `json:"description"`
		Icon        string `json:"icon"`
		Link        string `json:"link"`
	} `json:"badges"`
	MutualGuilds []struct {
		ID   string `json:"id"`
		Nick string `json:"nick"`
	} `json:"mutual_guilds"`
}

// CacheStats reports the server's cache counters.
type CacheStats struct {
	Hits        int64  `json:"hits"`
	Misses      int64  `json:"misses"`
	Evictions   int64  `json:"evictions"`
	Refreshes   int64  `json:"refreshes"`
	Size        int    `json:"size"`
	LastCleanup string `json:"last_cleanup"`
}

// WebSocketStats reports the server's connected feed clients.
type WebSocketStats struct {
	ConnectedClients int          `json:"connected_clients"`
	ClientsInfo      []ClientInfo `json:"clients_info"`
}

// ClientInfo describes one connected feed client.
type ClientInfo struct {
	UserID  string `json:"user_id"`
	GuildID string `json:"guild_id"`
	Address string `json:"address"`
}

// ServerStats aggregates every server counter.
type ServerStats struct {
	Cache     CacheStats     `json:"cache"`
	RateLimit RateLimit      `json:"rate_limit"`
	WebSocket WebSocketStats `json:"websocket"`
	Server    struct {
		StartTime string `json:"start_time"`
	} `json:"server"`
}

// GuildSnapshot is a guild together with its members.
type GuildSnapshot struct {
	Guild     Guild
	Members   []GuildMember
	FetchedAt time.Time
}
