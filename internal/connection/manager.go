package connection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Manager maintains a single WebSocket session to the event feed. It owns
// the current socket, the heartbeat timers and the reconnect state, and
// republishes inbound events to registered handlers.
//
// All state transitions happen under one mutex. Handlers are called after
// the mutex is released and may call back into the Manager.
type Manager struct {
	cfg       ManagerConfig
	url       string
	transport Transport
	clock     Clock
	logger    *slog.Logger

	obs observers

	mu         sync.Mutex
	state      State
	socket     Socket
	dialCancel context.CancelFunc
	dialSeq    uint64 // Bumped by Disconnect to abort an in-flight dial

	// Heartbeat
	pingTimer timerSlot
	pongTimer timerSlot

	// Reconnect
	reconnectTimer timerSlot
	reconnecting   bool
	attempts       int

	// Stats
	reconnects      int64
	lastConnectedAt time.Time
	received        atomic.Int64
	parseErrors     atomic.Int64
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithClock sets the clock used for heartbeat and reconnect timers.
func WithClock(clock Clock) Option {
	return func(m *Manager) {
		m.clock = clock
	}
}

// WithTransport sets the socket transport.
func WithTransport(t Transport) Option {
	return func(m *Manager) {
		m.transport = t
	}
}

// NewManager creates a Manager for endpoint. The endpoint URL is resolved
// once here and never changes.
func NewManager(cfg ManagerConfig, endpoint Endpoint, opts ...Option) (*Manager, error) {
	if cfg.PingInterval <= 0 {
		return nil, errors.New("ping interval must be > 0")
	}
	if cfg.PongTimeout <= 0 {
		return nil, errors.New("pong timeout must be > 0")
	}
	if cfg.ReconnectInterval < 0 {
		return nil, errors.New("reconnect interval must be >= 0")
	}
	if cfg.MaxReconnectAttempts < 0 {
		return nil, errors.New("max reconnect attempts must be >= 0")
	}

	u, err := endpoint.URL()
	if err != nil {
		return nil, err
	}

	m := &Manager{
		cfg:    cfg,
		url:    u,
		clock:  SystemClock(),
		logger: slog.Default(),
		state:  StateIdle,
	}

	for _, opt := range opts {
		opt(m)
	}

	if m.logger == nil {
		m.logger = slog.Default()
	}
	if m.transport == nil {
		m.transport = NewTransport(DefaultTransportConfig(), m.logger)
	}

	return m, nil
}

// URL returns the resolved endpoint URL.
func (m *Manager) URL() string {
	return m.url
}

// Connect opens a socket and blocks until it is open or the attempt fails.
// It returns nil immediately when already open, and ErrAlreadyConnecting when
// another attempt is in flight. A failed attempt is returned as *OpenError
// and does not trigger automatic reconnection.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	switch m.state {
	case StateOpen:
		m.mu.Unlock()
		return nil
	case StateConnecting:
		m.mu.Unlock()
		return ErrAlreadyConnecting
	}
	d := m.beginConnectLocked(ctx)
	m.mu.Unlock()

	return m.dial(d)
}

// pendingDial is a connect attempt claimed under the mutex.
type pendingDial struct {
	ctx    context.Context
	cancel context.CancelFunc
	seq    uint64
}

// beginConnectLocked moves to Connecting and claims a dial sequence number.
// Disconnect bumps the sequence and cancels the dial context.
func (m *Manager) beginConnectLocked(ctx context.Context) pendingDial {
	m.state = StateConnecting
	dialCtx, cancel := context.WithCancel(ctx)
	m.dialCancel = cancel
	m.dialSeq++
	return pendingDial{ctx: dialCtx, cancel: cancel, seq: m.dialSeq}
}

// dial opens the socket for a claimed attempt and installs it.
func (m *Manager) dial(d pendingDial) error {
	defer d.cancel()

	m.logger.Info("connecting to websocket", "url", m.url)

	var sock Socket
	err := d.ctx.Err()
	if err == nil {
		sock, err = m.transport.Open(d.ctx, m.url)
	}

	var out notices
	m.mu.Lock()

	if d.seq != m.dialSeq {
		// Disconnect ran while dialing and already moved the state on.
		m.mu.Unlock()
		if sock != nil {
			sock.Close(CloseNormal, "client disconnect")
		}
		return ErrConnectAborted
	}
	m.dialCancel = nil

	if err != nil {
		openErr := &OpenError{URL: m.url, Err: err}
		m.state = StateClosed
		m.obs.notifyError(&out, openErr)
		m.mu.Unlock()

		m.logger.Warn("websocket connection failed", "url", m.url, "error", err)
		out.fire()
		return openErr
	}

	m.socket = sock
	m.state = StateOpen
	m.attempts = 0
	m.reconnecting = false
	m.reconnectTimer.stop()
	if !m.lastConnectedAt.IsZero() {
		m.reconnects++
	}
	m.lastConnectedAt = time.Now()
	m.startHeartbeatLocked(sock)
	m.obs.notifyConnected(&out)
	m.mu.Unlock()

	m.logger.Info("websocket connection established", "socket_id", sock.ID())

	// connected is delivered before the first message.
	out.fire()
	sock.Start(&socketEvents{m: m, socket: sock})

	return nil
}

// Disconnect closes the connection with a normal closure and cancels every
// pending heartbeat, reconnect and dial. It never triggers a reconnect.
// disconnected fires only when there was something to close: calls on an
// Idle manager, or repeat calls once Closed, are silent no-ops.
func (m *Manager) Disconnect() {
	m.mu.Lock()

	pending := m.reconnecting || m.reconnectTimer.armed()
	prev := m.state

	m.stopHeartbeatLocked()
	m.reconnectTimer.stop()
	m.reconnecting = false
	if m.dialCancel != nil {
		m.dialCancel()
		m.dialCancel = nil
	}
	m.dialSeq++

	if prev == StateIdle || (prev == StateClosed && !pending) {
		m.mu.Unlock()
		return
	}

	sock := m.socket
	m.socket = nil
	m.state = StateClosing
	m.mu.Unlock()

	if sock != nil {
		if err := sock.Close(CloseNormal, "client disconnect"); err != nil {
			m.logger.Debug("close socket", "socket_id", sock.ID(), "error", err)
		}
	}

	var out notices
	m.mu.Lock()
	if m.state == StateClosing {
		m.state = StateClosed
	}
	m.obs.notifyDisconnected(&out)
	m.mu.Unlock()

	m.logger.Info("websocket connection closed")
	out.fire()
}

// Subscribe asks the server for events of one guild.
func (m *Manager) Subscribe(guildID string) error {
	if err := m.send(SubscribeCommand(guildID)); err != nil {
		return err
	}
	m.logger.Info("subscribed to guild", "guild_id", guildID)
	return nil
}

// Unsubscribe drops the current guild subscription.
func (m *Manager) Unsubscribe() error {
	if err := m.send(UnsubscribeCommand()); err != nil {
		return err
	}
	m.logger.Info("unsubscribed from all guilds")
	return nil
}

// Ping sends an application-level ping command.
func (m *Manager) Ping() error {
	return m.send(PingCommand())
}

// IsConnected reports whether the connection is open.
func (m *Manager) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == StateOpen
}

// State returns the current connection state. A closed manager waiting on
// a reconnect reports StateReconnecting.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stateLocked()
}

func (m *Manager) stateLocked() State {
	if m.state == StateClosed && m.reconnecting {
		return StateReconnecting
	}
	return m.state
}

// Stats returns current statistics.
func (m *Manager) Stats() ManagerStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	var socketID string
	if m.socket != nil {
		socketID = m.socket.ID()
	}

	return ManagerStats{
		State:            m.stateLocked(),
		SocketID:         socketID,
		ReconnectAttempt: m.attempts,
		Reconnects:       m.reconnects,
		MessagesReceived: m.received.Load(),
		ParseErrors:      m.parseErrors.Load(),
		LastConnectedAt:  m.lastConnectedAt,
	}
}

// OnConnected registers fn for successful opens. The returned func removes it.
func (m *Manager) OnConnected(fn func()) func() {
	return m.obs.connected.add(fn)
}

// OnDisconnected registers fn for explicit disconnects.
func (m *Manager) OnDisconnected(fn func()) func() {
	return m.obs.disconnected.add(fn)
}

// OnClosed registers fn for unexpected closes, including heartbeat timeouts.
func (m *Manager) OnClosed(fn func(code int, reason string)) func() {
	return m.obs.closed.add(fn)
}

// OnError registers fn for transport failures and heartbeat timeouts.
func (m *Manager) OnError(fn func(error)) func() {
	return m.obs.errors.add(fn)
}

// OnReconnecting registers fn for each scheduled reconnect attempt.
func (m *Manager) OnReconnecting(fn ReconnectHandler) func() {
	return m.obs.reconnecting.add(fn)
}

// OnMaxReconnectAttempts registers fn for when reconnecting gives up.
func (m *Manager) OnMaxReconnectAttempts(fn func()) func() {
	return m.obs.maxAttempts.add(fn)
}

// OnMessage registers fn for every parsed inbound event.
func (m *Manager) OnMessage(fn func(InboundEvent)) func() {
	return m.obs.message.add(fn)
}

// On registers fn for inbound events whose type equals eventType. It runs
// after the OnMessage handlers for the same event.
func (m *Manager) On(eventType string, fn EventHandler) func() {
	return m.obs.typedList(eventType, true).add(fn)
}

// send serializes cmd and writes it to the current socket. Commands issued
// while not open are dropped, never queued.
func (m *Manager) send(cmd Command) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sendLocked(cmd)
}

func (m *Manager) sendLocked(cmd Command) error {
	if m.state != StateOpen || m.socket == nil {
		m.logger.Warn("websocket is not connected, cannot send message",
			"type", cmd.Type,
			"state", m.stateLocked(),
		)
		return ErrNotConnected
	}

	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", cmd.Type, err)
	}

	if err := m.socket.Send(data); err != nil {
		return fmt.Errorf("send %s: %w", cmd.Type, err)
	}

	m.logger.Debug("sent message", "type", cmd.Type, "socket_id", m.socket.ID())
	return nil
}

// socketEvents routes one socket's signals back to the Manager.
type socketEvents struct {
	m      *Manager
	socket Socket
}

func (e *socketEvents) HandleMessage(data []byte, receivedAt time.Time) {
	e.m.handleMessage(e.socket, data, receivedAt)
}

func (e *socketEvents) HandlePong() {
	e.m.handlePong(e.socket)
}

func (e *socketEvents) HandleError(err error) {
	e.m.handleSocketError(e.socket, err)
}

func (e *socketEvents) HandleClose(code int, reason string) {
	e.m.handleClose(e.socket, code, reason)
}

// isCurrent reports whether sock is the open socket.
func (m *Manager) isCurrent(sock Socket) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.socket == sock && m.state == StateOpen
}

// handleMessage parses one frame and dispatches it. Bad frames are dropped.
func (m *Manager) handleMessage(sock Socket, data []byte, receivedAt time.Time) {
	if !m.isCurrent(sock) {
		return
	}
	m.received.Add(1)

	ev, err := parseEvent(data)
	if err != nil {
		m.parseErrors.Add(1)
		m.logger.Error("failed to parse websocket message",
			"socket_id", sock.ID(),
			"error", err,
		)
		return
	}
	ev.SocketID = sock.ID()
	ev.ReceivedAt = receivedAt

	m.logger.Debug("websocket event",
		"type", ev.Type,
		"guild_id", ev.GuildID,
		"user_id", ev.UserID,
	)

	m.obs.dispatch(ev)
}

func (m *Manager) handleSocketError(sock Socket, err error) {
	if !m.isCurrent(sock) {
		return
	}

	m.logger.Warn("websocket error", "socket_id", sock.ID(), "error", err)

	var out notices
	m.obs.notifyError(&out, err)
	out.fire()
}

// handleClose handles a close the Manager did not initiate.
func (m *Manager) handleClose(sock Socket, code int, reason string) {
	var out notices

	m.mu.Lock()
	if m.socket != sock {
		m.mu.Unlock()
		return
	}
	m.teardownLocked(&out, code, reason)
	m.mu.Unlock()

	// Release the network connection; the peer already closed.
	sock.Close(code, reason)

	m.logger.Info("websocket closed",
		"socket_id", sock.ID(),
		"code", code,
		"reason", reason,
	)
	out.fire()
}

// teardownLocked discards the current socket after an unexpected close and
// evaluates the reconnect policy.
func (m *Manager) teardownLocked(out *notices, code int, reason string) {
	m.stopHeartbeatLocked()
	m.socket = nil
	m.state = StateClosed
	m.obs.notifyClosed(out, code, reason)

	if m.cfg.AutoReconnect && !m.reconnecting {
		m.scheduleReconnectLocked(out)
	}
}
