package connection

// startHeartbeatLocked begins the ping ticker for sock.
func (m *Manager) startHeartbeatLocked(sock Socket) {
	m.pingTimer.replace(func(gen uint64) Timer {
		return m.clock.TickFunc(m.cfg.PingInterval, func() {
			m.heartbeatTick(sock, gen)
		})
	})
}

// stopHeartbeatLocked cancels the ping ticker and any armed pong deadline.
func (m *Manager) stopHeartbeatLocked() {
	m.pingTimer.stop()
	m.pongTimer.stop()
}

// heartbeatTick sends a ping and arms the pong deadline.
func (m *Manager) heartbeatTick(sock Socket, gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.socket != sock || m.state != StateOpen || !m.pingTimer.current(gen) {
		return
	}

	if err := m.sendLocked(PingCommand()); err != nil {
		m.logger.Warn("failed to send ping", "socket_id", sock.ID(), "error", err)
	}

	// The server acknowledges transport-level pings; the pong is the
	// liveness signal.
	if err := sock.Ping(); err != nil {
		m.logger.Debug("failed to send ping frame", "socket_id", sock.ID(), "error", err)
	}

	m.pongTimer.replace(func(gen uint64) Timer {
		return m.clock.AfterFunc(m.cfg.PongTimeout, func() {
			m.handlePongTimeout(sock, gen)
		})
	})
}

// handlePong disarms the pong deadline.
func (m *Manager) handlePong(sock Socket) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.socket != sock || !m.pongTimer.armed() {
		return
	}
	m.pongTimer.stop()

	m.logger.Debug("received pong", "socket_id", sock.ID())
}

// handlePongTimeout treats a missed pong as an unexpected close.
func (m *Manager) handlePongTimeout(sock Socket, gen uint64) {
	var out notices

	m.mu.Lock()
	if m.socket != sock || !m.pongTimer.take(gen) {
		m.mu.Unlock()
		return
	}

	m.logger.Warn("pong timeout, closing connection",
		"socket_id", sock.ID(),
		"timeout", m.cfg.PongTimeout,
	)

	m.obs.notifyError(&out, ErrHeartbeatTimeout)
	m.teardownLocked(&out, CloseHeartbeat, "pong timeout")
	m.mu.Unlock()

	if err := sock.Close(CloseHeartbeat, "pong timeout"); err != nil {
		m.logger.Debug("close socket", "socket_id", sock.ID(), "error", err)
	}

	out.fire()
}
