package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for a feed client.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	API       APIConfig       `yaml:"api"`
	Logging   LoggingConfig   `yaml:"logging"`
	Database  DBConfig        `yaml:"database"`
	Journal   JournalConfig   `yaml:"journal"`
	Health    HealthConfig    `yaml:"health"`
	Poller    PollerConfig    `yaml:"poller"`
}

// ServerConfig locates the discord-user-api server.
type ServerConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	Protocol   string `yaml:"protocol"`    // http or https
	WSProtocol string `yaml:"ws_protocol"` // ws or wss
	WSPath     string `yaml:"ws_path"`
}

// WebSocketConfig holds connection manager settings.
type WebSocketConfig struct {
	AutoReconnect        *bool         `yaml:"auto_reconnect"` // nil means true
	ReconnectInterval    time.Duration `yaml:"reconnect_interval"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
	PingInterval         time.Duration `yaml:"ping_interval"`
	PongTimeout          time.Duration `yaml:"pong_timeout"`
	HandshakeTimeout     time.Duration `yaml:"handshake_timeout"`
	WriteTimeout         time.Duration `yaml:"write_timeout"`
	GuildID              string        `yaml:"guild_id"` // Subscribed on every connect when set
	UserID               string        `yaml:"user_id"`
}

// Reconnect reports whether automatic reconnection is enabled.
func (w WebSocketConfig) Reconnect() bool {
	return w.AutoReconnect == nil || *w.AutoReconnect
}

// APIConfig holds REST helper settings.
type APIConfig struct {
	Timeout    time.Duration `yaml:"timeout"`
	Retries    int           `yaml:"retries"`
	RetryDelay time.Duration `yaml:"retry_delay"`
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// DBConfig holds the journal database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// JournalConfig holds event journal settings.
type JournalConfig struct {
	Enabled       bool          `yaml:"enabled"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"` // Initial queue capacity
}

// HealthConfig holds the health endpoint settings. Port 0 disables it.
type HealthConfig struct {
	Port int `yaml:"port"`
}

// PollerConfig holds guild snapshot poller settings.
type PollerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Interval    time.Duration `yaml:"interval"`
	Concurrency int           `yaml:"concurrency"`
	Timeout     time.Duration `yaml:"timeout"` // Per-guild fetch timeout
	MemberLimit int           `yaml:"member_limit"`
	GuildIDs    []string      `yaml:"guild_ids"` // Empty polls every guild the server lists
}

// ServerURL returns the REST base URL, e.g. http://localhost:8080.
func (c *Config) ServerURL() string {
	return fmt.Sprintf("%s://%s:%d", c.Server.Protocol, c.Server.Host, c.Server.Port)
}

// WebSocketURL returns the event feed URL, e.g. ws://localhost:8080/websocket.
func (c *Config) WebSocketURL() string {
	return fmt.Sprintf("%s://%s:%d%s", c.Server.WSProtocol, c.Server.Host, c.Server.Port, c.Server.WSPath)
}
