package connection

import (
	"context"
	"errors"
	"time"
)

// reconnectDelay returns the wait before attempt (1-based): linear in the
// attempt number, uncapped, no jitter.
func reconnectDelay(base time.Duration, attempt int) time.Duration {
	return base * time.Duration(attempt)
}

// scheduleReconnectLocked arms the next reconnect attempt, or reports that
// the attempt budget is spent.
func (m *Manager) scheduleReconnectLocked(out *notices) {
	if m.attempts >= m.cfg.MaxReconnectAttempts {
		m.reconnecting = false
		m.logger.Error("max reconnection attempts reached",
			"attempts", m.attempts,
		)
		m.obs.notifyMaxAttempts(out)
		return
	}

	m.reconnecting = true
	m.attempts++
	attempt := m.attempts
	delay := reconnectDelay(m.cfg.ReconnectInterval, attempt)

	m.logger.Info("scheduling reconnect",
		"attempt", attempt,
		"max_attempts", m.cfg.MaxReconnectAttempts,
		"delay", delay,
	)
	m.obs.notifyReconnecting(out, attempt, m.cfg.MaxReconnectAttempts, delay)

	m.reconnectTimer.replace(func(gen uint64) Timer {
		return m.clock.AfterFunc(delay, func() {
			m.reconnect(gen)
		})
	})
}

// reconnect runs one scheduled attempt. The attempt is claimed in the same
// critical section that consumes the timer, so a Disconnect after that point
// aborts the dial instead of racing it. A failed attempt schedules the next
// one; nothing is returned to any caller.
func (m *Manager) reconnect(gen uint64) {
	m.mu.Lock()
	if !m.reconnectTimer.take(gen) || !m.reconnecting {
		m.mu.Unlock()
		return
	}
	switch m.state {
	case StateConnecting:
		// A caller's Connect is in flight and owns the outcome.
		m.reconnecting = false
		m.mu.Unlock()
		return
	case StateOpen:
		m.mu.Unlock()
		return
	}
	attempt := m.attempts
	d := m.beginConnectLocked(context.Background())
	m.mu.Unlock()

	m.logger.Info("attempting reconnection", "attempt", attempt)

	err := m.dial(d)
	if err == nil || errors.Is(err, ErrConnectAborted) {
		return
	}

	var out notices
	m.mu.Lock()
	if m.reconnecting && m.state == StateClosed {
		m.logger.Warn("reconnection failed", "attempt", attempt, "error", err)
		m.scheduleReconnectLocked(&out)
	}
	m.mu.Unlock()

	out.fire()
}
