package config

import (
	"errors"
	"fmt"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Server.Host == "" {
		return errors.New("server.host is required")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.Protocol != "http" && c.Server.Protocol != "https" {
		return fmt.Errorf("server.protocol must be http or https, got %q", c.Server.Protocol)
	}
	if c.Server.WSProtocol != "ws" && c.Server.WSProtocol != "wss" {
		return fmt.Errorf("server.ws_protocol must be ws or wss, got %q", c.Server.WSProtocol)
	}

	if c.WebSocket.ReconnectInterval < 0 {
		return errors.New("websocket.reconnect_interval must be >= 0")
	}
	if c.WebSocket.MaxReconnectAttempts < 0 {
		return errors.New("websocket.max_reconnect_attempts must be >= 0")
	}
	if c.WebSocket.PingInterval <= 0 {
		return errors.New("websocket.ping_interval must be > 0")
	}
	if c.WebSocket.PongTimeout <= 0 {
		return errors.New("websocket.pong_timeout must be > 0")
	}

	if c.API.Retries < 0 {
		return errors.New("api.retries must be >= 0")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	if c.Journal.Enabled {
		if err := c.Database.validate("database"); err != nil {
			return err
		}
		if c.Journal.BatchSize < 1 {
			return errors.New("journal.batch_size must be >= 1")
		}
		if c.Journal.BufferSize < 1 {
			return errors.New("journal.buffer_size must be >= 1")
		}
	}

	if c.Poller.Enabled {
		if c.Poller.Interval <= 0 {
			return errors.New("poller.interval must be > 0")
		}
		if c.Poller.Timeout <= 0 {
			return errors.New("poller.timeout must be > 0")
		}
		if c.Poller.Concurrency < 1 {
			return errors.New("poller.concurrency must be >= 1")
		}
		if c.Poller.MemberLimit < 1 {
			return errors.New("poller.member_limit must be >= 1")
		}
	}

	if c.Health.Port < 0 || c.Health.Port > 65535 {
		return fmt.Errorf("health.port must be between 0 and 65535, got %d", c.Health.Port)
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
