package session

import "time"

// backoffDelay returns the wait before reconnect attempt n (1-based): a
// linear ramp of n times the base delay.
func backoffDelay(base time.Duration, attempt int) time.Duration {
	return base * time.Duration(attempt)
}

// triggerRecovery starts a recovery sequence unless one is already running.
func (m *manager) triggerRecovery() {
	if !m.recovering.CompareAndSwap(false, true) {
		return
	}

	m.wg.Add(1)
	go m.recover()
}

// recover runs one recovery sequence: up to MaxReconnectAttempts full
// connect, authenticate, replay cycles with linearly growing delays. The
// guard taken in triggerRecovery is released on exit, so a later fault
// starts a fresh sequence with a fresh attempt budget.
func (m *manager) recover() {
	defer m.wg.Done()
	defer m.recovering.Store(false)

	m.setState(StateDegraded)

	for attempt := 1; attempt <= m.cfg.MaxReconnectAttempts; attempt++ {
		// Tear down whatever is left of the old connection.
		if err := m.tr.Disconnect(); err != nil {
			m.logger.Debug("pre-recovery disconnect failed", "error", err)
		}

		wait := backoffDelay(m.cfg.ReconnectBaseDelay, attempt)
		m.logger.Info("attempting reconnection",
			"attempt", attempt,
			"max_attempts", m.cfg.MaxReconnectAttempts,
			"wait", wait,
		)

		select {
		case <-m.ctx.Done():
			return
		case <-time.After(wait):
		}

		if err := m.establish(m.ctx); err != nil {
			m.stats.recoveryFailures.Add(1)
			m.setState(StateDegraded)
			m.logger.Warn("reconnection failed",
				"attempt", attempt,
				"error", err,
			)
			continue
		}

		m.stats.recoveries.Add(1)
		m.logger.Info("session recovered", "attempt", attempt)
		return
	}

	m.logger.Error("recovery exhausted, session remains degraded",
		"attempts", m.cfg.MaxReconnectAttempts,
	)
}
