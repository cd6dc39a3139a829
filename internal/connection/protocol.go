package connection

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// CommandType is the discriminator of an outbound command.
type CommandType string

const (
	CmdSubscribe   CommandType = "subscribe"
	CmdUnsubscribe CommandType = "unsubscribe"
	CmdPing        CommandType = "ping"
)

// Command is a control frame sent to the feed server.
type Command struct {
	Type    CommandType `json:"type"`
	GuildID string      `json:"guild_id,omitempty"` // subscribe only
}

// SubscribeCommand builds a subscribe command for a guild.
func SubscribeCommand(guildID string) Command {
	return Command{Type: CmdSubscribe, GuildID: guildID}
}

// UnsubscribeCommand builds an unsubscribe command.
func UnsubscribeCommand() Command {
	return Command{Type: CmdUnsubscribe}
}

// PingCommand builds an application-level ping command.
func PingCommand() Command {
	return Command{Type: CmdPing}
}

// InboundEvent is an event frame received from the feed server.
type InboundEvent struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp string          `json:"timestamp"` // RFC 3339, as sent by the server
	GuildID   string          `json:"guild_id,omitempty"`
	UserID    string          `json:"user_id,omitempty"`

	SocketID   string    `json:"-"` // Socket the frame arrived on
	ReceivedAt time.Time `json:"-"` // Local time the frame was read
}

// Time parses the server timestamp.
func (e InboundEvent) Time() (time.Time, error) {
	return time.Parse(time.RFC3339Nano, e.Timestamp)
}

var errMissingType = errors.New("missing type")

// parseEvent decodes one raw frame. Frames without a type are rejected.
func parseEvent(data []byte) (InboundEvent, error) {
	var ev InboundEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return InboundEvent{}, fmt.Errorf("decode event: %w", err)
	}
	if ev.Type == "" {
		return InboundEvent{}, fmt.Errorf("decode event: %w", errMissingType)
	}
	return ev, nil
}
