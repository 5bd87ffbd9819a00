package session

import "time"

// heartbeatLoop probes liveness while the session is active.
func (m *manager) heartbeatLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.sendHeartbeat()
		}
	}
}

// sendHeartbeat writes one heartbeat op. Ticks are skipped unless the
// session is active: a degraded session already belongs to the recovery
// loop.
func (m *manager) sendHeartbeat() {
	if State(m.state.Load()) != StateActive || !m.tr.IsConnected() {
		return
	}

	if err := m.tr.SendHeartbeat(); err != nil {
		m.stats.heartbeatFailures.Add(1)
		m.logger.Warn("heartbeat failed", "error", err)

		if IsTransient(err) {
			m.setState(StateDegraded)
			m.triggerRecovery()
		}
		return
	}

	m.stats.heartbeatsSent.Add(1)
}
