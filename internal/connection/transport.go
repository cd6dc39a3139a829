package connection

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/rickgao/guildfeed/internal/version"
)

// Transport opens sockets to the feed server.
type Transport interface {
	// Open dials url. A nil error means the socket is open.
	Open(ctx context.Context, url string) (Socket, error)
}

// Socket is a single raw WebSocket connection.
type Socket interface {
	// ID uniquely identifies this socket for logging.
	ID() string

	// Start begins delivering inbound signals to h. Call at most once.
	Start(h SocketHandler)

	// Send writes one text frame.
	Send(data []byte) error

	// Ping writes a transport-level ping control frame.
	Ping() error

	// Close sends a close frame with code and reason, then drops the connection.
	Close(code int, reason string) error
}

// SocketHandler receives a socket's inbound signals. Calls for one socket
// are made from a single goroutine in the order the transport saw them.
type SocketHandler interface {
	HandleMessage(data []byte, receivedAt time.Time)
	HandlePong()
	HandleError(err error)
	HandleClose(code int, reason string)
}

// wsTransport implements Transport with gorilla/websocket.
type wsTransport struct {
	cfg    TransportConfig
	logger *slog.Logger
}

// NewTransport creates a gorilla/websocket Transport.
func NewTransport(cfg TransportConfig, logger *slog.Logger) Transport {
	if logger == nil {
		logger = slog.Default()
	}

	return &wsTransport{
		cfg:    cfg,
		logger: logger,
	}
}

// Open dials the WebSocket endpoint.
func (t *wsTransport) Open(ctx context.Context, url string) (Socket, error) {
	header := http.Header{}
	header.Set("User-Agent", "guildfeed/"+version.Version)

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: t.cfg.HandshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, err
	}

	if t.cfg.ReadLimit > 0 {
		conn.SetReadLimit(t.cfg.ReadLimit)
	}

	id := uuid.NewString()
	s := &wsSocket{
		id:     id,
		conn:   conn,
		cfg:    t.cfg,
		logger: t.logger.With("socket_id", id),
	}

	s.logger.Debug("websocket connected", "url", url)

	return s, nil
}

// wsSocket implements Socket over a *websocket.Conn.
type wsSocket struct {
	id     string
	conn   *websocket.Conn
	cfg    TransportConfig
	logger *slog.Logger

	// Write serialization
	writeMu sync.Mutex

	mu      sync.Mutex
	started bool
	closed  bool
}

func (s *wsSocket) ID() string {
	return s.id
}

// Start installs the pong handler and starts the read loop.
func (s *wsSocket) Start(h SocketHandler) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	// Pong handler runs inside ReadMessage, on the read loop goroutine.
	s.conn.SetPongHandler(func(string) error {
		h.HandlePong()
		return nil
	})

	go s.readLoop(h)
}

// Send writes a text frame.
func (s *wsSocket) Send(data []byte) error {
	if s.isClosed() {
		return ErrSocketClosed
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// Ping writes a ping control frame.
func (s *wsSocket) Ping() error {
	if s.isClosed() {
		return ErrSocketClosed
	}

	return s.conn.WriteControl(
		websocket.PingMessage,
		[]byte("keepalive"),
		time.Now().Add(s.cfg.WriteTimeout),
	)
}

// Close sends a close frame and closes the network connection.
func (s *wsSocket) Close(code int, reason string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	// Best effort; the peer may already be gone. 1006 is never sent.
	if code != CloseAbnormal {
		s.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(code, reason),
			time.Now().Add(time.Second),
		)
	}
	return s.conn.Close()
}

func (s *wsSocket) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// readLoop reads frames until the connection fails or is closed.
func (s *wsSocket) readLoop(h SocketHandler) {
	for {
		_, data, err := s.conn.ReadMessage()
		receivedAt := time.Now() // Capture timestamp immediately

		if err != nil {
			// Ignore errors after Close() is called
			if s.isClosed() {
				return
			}

			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				s.logger.Debug("websocket closed by peer",
					"code", closeErr.Code,
					"reason", closeErr.Text,
				)
				h.HandleClose(closeErr.Code, closeErr.Text)
				return
			}

			h.HandleError(err)
			h.HandleClose(CloseAbnormal, err.Error())
			return
		}

		h.HandleMessage(data, receivedAt)
	}
}
