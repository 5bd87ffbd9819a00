package session

import "time"

// monitorLoop periodically verifies session health and refreshes
// subscriptions.
func (m *manager) monitorLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.cfg.MonitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.checkSession()
		}
	}
}

// checkSession verifies connection health and, on a healthy session,
// replays subscriptions once the refresh interval has elapsed. The refresh
// guards against silently dropped subscriptions: replay is idempotent, so
// re-issuing held ones costs nothing.
func (m *manager) checkSession() {
	state := State(m.state.Load())
	if state != StateActive && state != StateDegraded {
		return
	}

	if !m.tr.IsConnected() || !m.tr.IsAuthenticated() {
		if state == StateActive {
			m.logger.Warn("session unhealthy",
				"connected", m.tr.IsConnected(),
				"authenticated", m.tr.IsAuthenticated(),
			)
			m.setState(StateDegraded)
		}
		m.triggerRecovery()
		return
	}

	if state != StateActive {
		return
	}

	m.refreshMu.Lock()
	due := time.Since(m.lastRefresh) >= m.cfg.RefreshInterval
	if due {
		// Reset before the attempt so a failing replay cannot retry on
		// every monitor tick.
		m.lastRefresh = time.Now()
	}
	m.refreshMu.Unlock()

	if !due {
		return
	}

	m.logger.Info("refreshing subscriptions")
	if err := m.replaySubscriptions(m.ctx); err != nil {
		m.logger.Warn("subscription refresh failed", "error", err)
		m.setState(StateDegraded)
		m.triggerRecovery()
		return
	}

	m.stats.refreshes.Add(1)
}
