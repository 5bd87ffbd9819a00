package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ckohler/betstream/internal/creds"
	"github.com/ckohler/betstream/internal/transport"
)

// Manager runs the exchange stream session: one authenticated connection,
// its heartbeat, health monitoring, and recovery.
type Manager interface {
	// Start brings the session up. When streaming is disabled it records
	// Idle and returns nil without touching the transport. A missing app
	// key is a hard error; a failed connection attempt is not, it leaves
	// the session degraded with recovery running. Start must be called at
	// most once.
	Start(ctx context.Context) error

	// Stop tears the session down and leaves it Closed.
	Stop(ctx context.Context) error

	// Status returns a point-in-time view of the session.
	Status() ConnectionStatus

	// Stats returns counters accumulated since Start.
	Stats() Stats

	// SubscribeToMarket adds an ad-hoc market subscription that survives
	// reconnects until unsubscribed.
	SubscribeToMarket(ctx context.Context, marketID string) error

	// UnsubscribeFromMarket removes an ad-hoc market subscription. There
	// is no wire op for removal; the stream keeps delivering until the
	// next replay rebuilds the subscription set without it.
	UnsubscribeFromMarket(marketID string)

	// RegisterHandlers attaches a named consumer of dispatched events.
	RegisterHandlers(name string, h Handlers)

	// UnregisterHandlers detaches a consumer.
	UnregisterHandlers(name string)
}

// manager implements the Manager interface.
type manager struct {
	cfg      Config
	tr       transport.Transport
	provider creds.Provider
	registry *registry
	logger   *slog.Logger

	state atomic.Int32

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Recovery single-flight guard
	recovering atomic.Bool

	// Handlers keyed by consumer name
	handlersMu sync.RWMutex
	handlers   map[string]Handlers

	// Refresh bookkeeping
	refreshMu   sync.Mutex
	lastRefresh time.Time

	stats statsCounters
}

type statsCounters struct {
	heartbeatsSent    atomic.Int64
	heartbeatFailures atomic.Int64
	recoveries        atomic.Int64
	recoveryFailures  atomic.Int64
	refreshes         atomic.Int64
	eventsDispatched  atomic.Int64
}

// NewManager creates a session manager. The transport and provider must be
// non-nil; a nil logger falls back to slog.Default(). Zero intervals and
// counts are replaced with defaults.
func NewManager(cfg Config, tr transport.Transport, provider creds.Provider, logger *slog.Logger) Manager {
	if logger == nil {
		logger = slog.Default()
	}

	def := DefaultConfig()
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = def.HeartbeatInterval
	}
	if cfg.MonitorInterval <= 0 {
		cfg.MonitorInterval = def.MonitorInterval
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = def.RefreshInterval
	}
	if cfg.MaxReconnectAttempts <= 0 {
		cfg.MaxReconnectAttempts = def.MaxReconnectAttempts
	}
	if cfg.ReconnectBaseDelay <= 0 {
		cfg.ReconnectBaseDelay = def.ReconnectBaseDelay
	}

	return &manager{
		cfg:      cfg,
		tr:       tr,
		provider: provider,
		registry: newRegistry(cfg.OrderStream, cfg.MarketFilters),
		logger:   logger,
		handlers: make(map[string]Handlers),
	}
}

// Start brings the session up.
func (m *manager) Start(ctx context.Context) error {
	if !m.cfg.Enabled {
		m.setState(StateIdle)
		m.logger.Info("streaming disabled, session not started")
		return nil
	}

	if m.cfg.AppKey == "" {
		return ErrMissingAppKey
	}

	m.ctx, m.cancel = context.WithCancel(ctx)

	if err := m.establish(m.ctx); err != nil {
		m.setState(StateDegraded)
		m.logger.Error("session establishment failed, entering recovery",
			"error", err,
		)
		m.triggerRecovery()
	}

	m.wg.Add(1)
	go m.dispatchLoop()

	m.wg.Add(1)
	go m.heartbeatLoop()

	m.wg.Add(1)
	go m.monitorLoop()

	m.logger.Info("session manager started",
		"heartbeat_interval", m.cfg.HeartbeatInterval,
		"monitor_interval", m.cfg.MonitorInterval,
		"refresh_interval", m.cfg.RefreshInterval,
	)

	return nil
}

// Stop tears the session down.
func (m *manager) Stop(ctx context.Context) error {
	if m.cancel == nil {
		// Never started, or started disabled: nothing to tear down.
		m.setState(StateClosed)
		return nil
	}

	m.logger.Info("stopping session manager")
	m.cancel()

	// Wait for loops with timeout
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		m.logger.Warn("shutdown timeout, forcing close")
	}

	if err := m.tr.Disconnect(); err != nil {
		m.logger.Warn("disconnect failed", "error", err)
	}

	m.setState(StateClosed)
	m.logger.Info("session manager stopped")
	return nil
}

// Status returns a point-in-time view of the session.
func (m *manager) Status() ConnectionStatus {
	m.refreshMu.Lock()
	lastRefresh := m.lastRefresh
	m.refreshMu.Unlock()

	return ConnectionStatus{
		State:         State(m.state.Load()),
		Connected:     m.tr.IsConnected(),
		Authenticated: m.tr.IsAuthenticated(),
		LastRefresh:   lastRefresh,
		Subscriptions: m.registry.count(),
	}
}

// Stats returns counters accumulated since Start.
func (m *manager) Stats() Stats {
	return Stats{
		HeartbeatsSent:    m.stats.heartbeatsSent.Load(),
		HeartbeatFailures: m.stats.heartbeatFailures.Load(),
		Recoveries:        m.stats.recoveries.Load(),
		RecoveryFailures:  m.stats.recoveryFailures.Load(),
		Refreshes:         m.stats.refreshes.Load(),
		EventsDispatched:  m.stats.eventsDispatched.Load(),
	}
}

// SubscribeToMarket adds an ad-hoc market subscription.
func (m *manager) SubscribeToMarket(ctx context.Context, marketID string) error {
	if !m.registry.addMarket(marketID) {
		return nil
	}

	// Only push to the wire when the session is up; otherwise the next
	// replay picks it up.
	if State(m.state.Load()) != StateActive || !m.tr.IsConnected() {
		m.logger.Debug("market queued for next replay", "market_id", marketID)
		return nil
	}

	filter := transport.MarketFilter{MarketIDs: []string{marketID}}
	if err := m.tr.SubscribeToMarkets(ctx, filter); err != nil {
		if IsTransient(err) {
			// Stays registered: replay re-issues it once the
			// connection is back.
			m.logger.Warn("market subscribe failed, queued for replay",
				"market_id", marketID,
				"error", err,
			)
			m.setState(StateDegraded)
			m.triggerRecovery()
			return nil
		}

		// Rejected outright. Drop it so replay does not re-issue a
		// subscription the server refuses.
		m.registry.removeMarket(marketID)
		return fmt.Errorf("subscribe market %s: %w", marketID, err)
	}

	m.logger.Info("subscribed to market", "market_id", marketID)
	return nil
}

// UnsubscribeFromMarket removes an ad-hoc market subscription.
func (m *manager) UnsubscribeFromMarket(marketID string) {
	if m.registry.removeMarket(marketID) {
		m.logger.Info("unsubscribed from market", "market_id", marketID)
	}
}

// RegisterHandlers attaches a consumer.
func (m *manager) RegisterHandlers(name string, h Handlers) {
	m.handlersMu.Lock()
	defer m.handlersMu.Unlock()
	m.handlers[name] = h
}

// UnregisterHandlers detaches a consumer.
func (m *manager) UnregisterHandlers(name string) {
	m.handlersMu.Lock()
	defer m.handlersMu.Unlock()
	delete(m.handlers, name)
}

// setState records a state transition.
func (m *manager) setState(s State) {
	old := State(m.state.Swap(int32(s)))
	if old != s {
		m.logger.Debug("session state change", "from", old, "to", s)
	}
}

// establish runs the connect, authenticate, replay sequence.
func (m *manager) establish(ctx context.Context) error {
	m.setState(StateConnecting)
	if err := m.tr.Connect(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	m.setState(StateAuthenticating)
	if err := m.authenticate(ctx); err != nil {
		return fmt.Errorf("authenticate: %w", err)
	}

	m.setState(StateSubscribing)
	if err := m.replaySubscriptions(ctx); err != nil {
		return fmt.Errorf("replay subscriptions: %w", err)
	}

	m.refreshMu.Lock()
	m.lastRefresh = time.Now()
	m.refreshMu.Unlock()

	m.setState(StateActive)
	m.logger.Info("session established")
	return nil
}

// authenticate fetches a fresh session token and runs the auth handshake.
// Tokens are fetched per attempt; a token that authenticated the previous
// connection may already be expired.
func (m *manager) authenticate(ctx context.Context) error {
	token, err := m.provider.SessionToken(ctx)
	if err != nil {
		return fmt.Errorf("session token: %w", err)
	}
	return m.tr.Authenticate(ctx, m.cfg.AppKey, token)
}

// replaySubscriptions re-issues every registered subscription. Subscribing
// is additive and idempotent on the server side, so replaying an
// already-held subscription is harmless. A transient failure aborts the
// replay; a status rejection is logged and skipped so one bad filter cannot
// block the rest.
func (m *manager) replaySubscriptions(ctx context.Context) error {
	orders, filters, markets := m.registry.snapshot()

	if orders {
		if err := m.tr.SubscribeToOrders(ctx); err != nil {
			if IsTransient(err) {
				return fmt.Errorf("subscribe orders: %w", err)
			}
			m.logger.Warn("order subscription rejected", "error", err)
		}
	}

	for i, f := range filters {
		if err := m.tr.SubscribeToMarkets(ctx, f); err != nil {
			if IsTransient(err) {
				return fmt.Errorf("subscribe filter %d: %w", i, err)
			}
			m.logger.Warn("market filter rejected", "filter", i, "error", err)
		}
	}

	if len(markets) > 0 {
		f := transport.MarketFilter{MarketIDs: markets}
		if err := m.tr.SubscribeToMarkets(ctx, f); err != nil {
			if IsTransient(err) {
				return fmt.Errorf("subscribe markets: %w", err)
			}
			m.logger.Warn("ad-hoc market subscription rejected",
				"markets", len(markets),
				"error", err,
			)
		}
	}

	return nil
}

// dispatchLoop fans stream traffic out to registered handlers and reacts to
// connection faults.
func (m *manager) dispatchLoop() {
	defer m.wg.Done()

	for {
		select {
		case <-m.ctx.Done():
			return

		case err := <-m.tr.Errors():
			m.logger.Warn("connection fault", "error", err)
			if IsTransient(err) {
				m.setState(StateDegraded)
				m.triggerRecovery()
			}

		case ev := <-m.tr.Events():
			m.dispatch(ev)
		}
	}
}

// dispatch delivers one event to every registered handler. Dispatch keeps
// running while the session is degraded; status traffic in particular is
// how consumers learn what went wrong.
func (m *manager) dispatch(ev transport.Event) {
	if ev.Kind == transport.KindStatus && ev.Status != nil && ev.Status.ConnectionClosed {
		m.logger.Warn("server closed the connection",
			"error_code", ev.Status.ErrorCode,
			"error_message", ev.Status.ErrorMessage,
		)
		m.setState(StateDegraded)
		m.triggerRecovery()
	}

	m.handlersMu.RLock()
	for _, h := range m.handlers {
		switch ev.Kind {
		case transport.KindMarketChange:
			if h.OnMarketChange != nil {
				h.OnMarketChange(ev)
			}
		case transport.KindOrderChange:
			if h.OnOrderChange != nil {
				h.OnOrderChange(ev)
			}
		case transport.KindStatus:
			if h.OnStatus != nil {
				h.OnStatus(ev)
			}
		}
	}
	m.handlersMu.RUnlock()

	m.stats.eventsDispatched.Add(1)
}
