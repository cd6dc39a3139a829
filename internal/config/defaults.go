package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultHost                 = "localhost"
	DefaultPort                 = 8080
	DefaultProtocol             = "http"
	DefaultWSProtocol           = "ws"
	DefaultWSPath               = "/websocket"
	DefaultReconnectInterval    = 5 * time.Second
	DefaultMaxReconnectAttempts = 10
	DefaultPingInterval         = 30 * time.Second
	DefaultPongTimeout          = 10 * time.Second
	DefaultHandshakeTimeout     = 10 * time.Second
	DefaultWriteTimeout         = 5 * time.Second
	DefaultAPITimeout           = 30 * time.Second
	DefaultAPIRetries           = 3
	DefaultAPIRetryDelay        = 1 * time.Second
	DefaultLogLevel             = "info"
	DefaultLogFormat            = "text"
	DefaultDBPort               = 5432
	DefaultDBSSLMode            = "prefer"
	DefaultMaxConns             = 4
	DefaultMinConns             = 1
	DefaultBatchSize            = 500
	DefaultFlushInterval        = 1 * time.Second
	DefaultBufferSize           = 1024
	DefaultPollInterval         = 15 * time.Minute
	DefaultPollConcurrency      = 4
	DefaultPollTimeout          = 30 * time.Second
	DefaultPollMemberLimit      = 1000
)

func (c *Config) applyDefaults() {
	// Server defaults
	if c.Server.Host == "" {
		c.Server.Host = DefaultHost
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.Server.Protocol == "" {
		c.Server.Protocol = DefaultProtocol
	}
	if c.Server.WSProtocol == "" {
		c.Server.WSProtocol = DefaultWSProtocol
	}
	if c.Server.WSPath == "" {
		c.Server.WSPath = DefaultWSPath
	}

	// WebSocket defaults
	if c.WebSocket.ReconnectInterval == 0 {
		c.WebSocket.ReconnectInterval = DefaultReconnectInterval
	}
	if c.WebSocket.MaxReconnectAttempts == 0 {
		c.WebSocket.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if c.WebSocket.PingInterval == 0 {
		c.WebSocket.PingInterval = DefaultPingInterval
	}
	if c.WebSocket.PongTimeout == 0 {
		c.WebSocket.PongTimeout = DefaultPongTimeout
	}
	if c.WebSocket.HandshakeTimeout == 0 {
		c.WebSocket.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.WebSocket.WriteTimeout == 0 {
		c.WebSocket.WriteTimeout = DefaultWriteTimeout
	}

	// API defaults
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultAPITimeout
	}
	if c.API.Retries == 0 {
		c.API.Retries = DefaultAPIRetries
	}
	if c.API.RetryDelay == 0 {
		c.API.RetryDelay = DefaultAPIRetryDelay
	}

	// Logging defaults
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}

	// Database defaults
	if c.Database.Port == 0 {
		c.Database.Port = DefaultDBPort
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = DefaultDBSSLMode
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = DefaultMaxConns
	}
	if c.Database.MinConns == 0 {
		c.Database.MinConns = DefaultMinConns
	}

	// Journal defaults
	if c.Journal.BatchSize == 0 {
		c.Journal.BatchSize = DefaultBatchSize
	}
	if c.Journal.FlushInterval == 0 {
		c.Journal.FlushInterval = DefaultFlushInterval
	}
	if c.Journal.BufferSize == 0 {
		c.Journal.BufferSize = DefaultBufferSize
	}

	// Poller defaults
	if c.Poller.Interval == 0 {
		c.Poller.Interval = DefaultPollInterval
	}
	if c.Poller.Concurrency == 0 {
		c.Poller.Concurrency = DefaultPollConcurrency
	}
	if c.Poller.Timeout == 0 {
		c.Poller.Timeout = DefaultPollTimeout
	}
	if c.Poller.MemberLimit == 0 {
		c.Poller.MemberLimit = DefaultPollMemberLimit
	}
}
