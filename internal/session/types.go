package session

import (
	"time"

	"github.com/ckohler/betstream/internal/transport"
)

// State is the lifecycle state of a managed session.
type State int32

const (
	// StateIdle is the initial state, before Start.
	StateIdle State = iota
	// StateConnecting covers the dial and connection greeting.
	StateConnecting
	// StateAuthenticating covers the credential fetch and auth handshake.
	StateAuthenticating
	// StateSubscribing covers subscription replay.
	StateSubscribing
	// StateActive is a healthy authenticated session.
	StateActive
	// StateDegraded is an unhealthy session awaiting recovery.
	StateDegraded
	// StateClosed is the terminal state after Stop.
	StateClosed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateSubscribing:
		return "subscribing"
	case StateActive:
		return "active"
	case StateDegraded:
		return "degraded"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ConnectionStatus is a point-in-time view of the session.
type ConnectionStatus struct {
	State         State
	Connected     bool
	Authenticated bool
	LastRefresh   time.Time
	Subscriptions int
}

// Stats counts session activity since Start.
type Stats struct {
	HeartbeatsSent    int64
	HeartbeatFailures int64
	Recoveries        int64
	RecoveryFailures  int64
	Refreshes         int64
	EventsDispatched  int64
}

// Handlers receives dispatched stream traffic. Nil funcs are skipped.
type Handlers struct {
	OnMarketChange func(transport.Event)
	OnOrderChange  func(transport.Event)
	OnStatus       func(transport.Event)
}

// Config controls the session lifecycle.
type Config struct {
	// Enabled gates the whole session. When false, Start records Idle and
	// returns without touching the transport.
	Enabled bool

	// AppKey identifies the application to the exchange. Required when
	// Enabled.
	AppKey string

	// OrderStream subscribes the caller's order stream.
	OrderStream bool

	// MarketFilters are the standing market subscriptions, replayed after
	// every reconnect.
	MarketFilters []transport.MarketFilter

	HeartbeatInterval    time.Duration // Liveness probe period
	MonitorInterval      time.Duration // Health check period
	RefreshInterval      time.Duration // Subscription refresh period
	MaxReconnectAttempts int           // Attempts per recovery sequence
	ReconnectBaseDelay   time.Duration // Delay unit: attempt n waits n*base
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		HeartbeatInterval:    5 * time.Second,
		MonitorInterval:      5 * time.Second,
		RefreshInterval:      5 * time.Minute,
		MaxReconnectAttempts: 3,
		ReconnectBaseDelay:   2 * time.Second,
	}
}
