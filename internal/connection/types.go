package connection

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// Errors
var (
	ErrAlreadyConnecting    = errors.New("connection already in progress")
	ErrNotConnected         = errors.New("not connected")
	ErrConnectAborted       = errors.New("connect aborted by disconnect")
	ErrHeartbeatTimeout     = errors.New("pong timeout")
	ErrMaxReconnectAttempts = errors.New("max reconnect attempts reached")
	ErrSocketClosed         = errors.New("socket closed")
)

// OpenError is returned when the transport fails to open a socket.
type OpenError struct {
	URL string
	Err error
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("open %s: %v", e.URL, e.Err)
}

func (e *OpenError) Unwrap() error {
	return e.Err
}

// Close codes used by the manager.
const (
	CloseNormal    = 1000 // Explicit Disconnect
	CloseAbnormal  = 1006 // Dropped without a close frame; never sent on the wire
	CloseHeartbeat = 4000 // Sent when the pong deadline expires
)

// State is the connection state of a Manager.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosing
	StateClosed
	StateReconnecting // Closed with a reconnect attempt outstanding
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateReconnecting:
		return "reconnecting"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Endpoint identifies the event feed to connect to.
type Endpoint struct {
	BaseURL string // e.g. ws://localhost:8080/websocket
	GuildID string // Optional guild_id query parameter
	UserID  string // Optional user_id query parameter
}

// URL returns the base URL with guild_id/user_id appended when set.
func (e Endpoint) URL() (string, error) {
	u, err := url.Parse(e.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return "", fmt.Errorf("parse endpoint: unsupported scheme %q", u.Scheme)
	}

	q := u.Query()
	if e.GuildID != "" {
		q.Set("guild_id", e.GuildID)
	}
	if e.UserID != "" {
		q.Set("user_id", e.UserID)
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// ManagerConfig configures the Manager's heartbeat and reconnect behavior.
type ManagerConfig struct {
	AutoReconnect        bool          // Reconnect after unexpected closes
	PingInterval         time.Duration // Interval between heartbeat pings
	PongTimeout          time.Duration // Max wait for a pong after a ping
	ReconnectInterval    time.Duration // Base delay; attempt N waits N*ReconnectInterval
	MaxReconnectAttempts int           // Attempts before giving up
}

// DefaultManagerConfig returns sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		AutoReconnect:        true,
		PingInterval:         30 * time.Second,
		PongTimeout:          10 * time.Second,
		ReconnectInterval:    5 * time.Second,
		MaxReconnectAttempts: 10,
	}
}

// TransportConfig configures the gorilla/websocket transport.
type TransportConfig struct {
	HandshakeTimeout time.Duration // Dial handshake timeout
	WriteTimeout     time.Duration // Write deadline for sends and control frames
	ReadLimit        int64         // Max inbound frame size in bytes (0 = unlimited)
}

// DefaultTransportConfig returns sensible defaults.
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		ReadLimit:        1 << 20,
	}
}

// ManagerStats provides statistics about the connection manager.
type ManagerStats struct {
	State            State
	SocketID         string // Empty when no socket is current
	ReconnectAttempt int
	Reconnects       int64 // Successful opens after the first
	MessagesReceived int64
	ParseErrors      int64
	LastConnectedAt  time.Time
}
