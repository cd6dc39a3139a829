package journal

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/guildfeed/internal/connection"
)

// eventNamespace scopes content-derived event ids.
var eventNamespace = uuid.MustParse("5b0a4f0e-3c1d-4e8a-9b57-6f2d7c1e0a93")

// eventRow is one feed_events row.
type eventRow struct {
	ID         uuid.UUID
	SocketID   string
	Type       string
	GuildID    string
	UserID     string
	ServerTs   *time.Time
	ReceivedAt time.Time
	Data       json.RawMessage
}

// rowFromEvent converts an inbound event into a row.
func rowFromEvent(ev connection.InboundEvent) eventRow {
	row := eventRow{
		ID:         eventID(ev),
		SocketID:   ev.SocketID,
		Type:       ev.Type,
		GuildID:    ev.GuildID,
		UserID:     ev.UserID,
		ReceivedAt: ev.ReceivedAt,
	}

	if ts, err := ev.Time(); err == nil {
		row.ServerTs = &ts
	}
	if row.ReceivedAt.IsZero() {
		row.ReceivedAt = time.Now()
	}
	if len(ev.Data) > 0 && !bytes.Equal(ev.Data, []byte("null")) {
		row.Data = ev.Data
	}

	return row
}

// eventID hashes the fields the server sets, so the same event seen on two
// sockets gets the same id.
func eventID(ev connection.InboundEvent) uuid.UUID {
	var b bytes.Buffer
	for _, s := range []string{ev.Type, ev.GuildID, ev.UserID, ev.Timestamp} {
		b.WriteString(s)
		b.WriteByte(0)
	}
	b.Write(ev.Data)
	return uuid.NewSHA1(eventNamespace, b.Bytes())
}
