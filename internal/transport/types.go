package transport

import (
	"errors"
	"fmt"
	"time"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrStaleConnection = errors.New("connection stale (no pong)")
	ErrTimeout         = errors.New("request timeout")
)

// StatusError is a FAILURE status reply to a client request. It is an
// ordinary negative result from the server, not a transport fault.
type StatusError struct {
	Op               string // Operation that was rejected
	Code             string // Server error code (e.g., "INVALID_SESSION_INFORMATION")
	Message          string // Human-readable detail, may be empty
	ConnectionClosed bool   // True if the server closed the connection with the rejection
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s rejected: %s (%s)", e.Op, e.Code, e.Message)
	}
	return fmt.Sprintf("%s rejected: %s", e.Op, e.Code)
}

// Client → server operations.
const (
	opAuthentication     = "authentication"
	opMarketSubscription = "marketSubscription"
	opOrderSubscription  = "orderSubscription"
	opHeartbeat          = "heartbeat"
)

// Server → client operations.
const (
	opConnection   = "connection"
	opStatus       = "status"
	opMarketChange = "mcm"
	opOrderChange  = "ocm"
)

// Status codes carried by status replies.
const (
	statusSuccess = "SUCCESS"
	statusFailure = "FAILURE"
)

// EventKind identifies the type of an inbound stream event.
type EventKind int

const (
	KindMarketChange EventKind = iota
	KindOrderChange
	KindStatus
)

func (k EventKind) String() string {
	switch k {
	case KindMarketChange:
		return "market_change"
	case KindOrderChange:
		return "order_change"
	case KindStatus:
		return "status"
	}
	return "unknown"
}

// Event is an inbound stream frame with a local receive timestamp.
// For change events the payload in Data is opaque beyond the envelope.
type Event struct {
	Kind        EventKind
	Op          string         // Wire op ("mcm", "ocm", "status")
	Clk         string         // Stream clock token, empty for status events
	PublishTime int64          // Server publish time (ms since epoch), 0 for status events
	Status      *StatusMessage // Populated for KindStatus events
	Data        []byte         // Raw frame bytes as received
	ReceivedAt  time.Time      // Local timestamp when the frame was read
}

// StatusMessage is the server's status op: a reply to a client request or an
// unsolicited connection notice.
type StatusMessage struct {
	Op               string `json:"op"`
	ID               int64  `json:"id"`
	StatusCode       string `json:"statusCode"`
	ErrorCode        string `json:"errorCode"`
	ErrorMessage     string `json:"errorMessage"`
	ConnectionClosed bool   `json:"connectionClosed"`
	ConnectionID     string `json:"connectionId"`
}

// MarketFilter selects the markets a subscription covers. Empty slices are
// omitted on the wire; a zero TimeWindow omits the start-time bound.
type MarketFilter struct {
	MarketIDs    []string      // Explicit market ids
	EventTypeIDs []string      // Sport / event type ids (e.g., "7")
	MarketTypes  []string      // Market type codes (e.g., "WIN")
	CountryCodes []string      // ISO country codes
	TimeWindow   time.Duration // Cover markets starting within now+window
}

// wire converts the filter to its wire form. The start-time upper bound is
// recomputed from now on every call, so a replayed subscription always covers
// the window ahead of the reconnect rather than the original one.
func (f MarketFilter) wire(now time.Time) wireMarketFilter {
	w := wireMarketFilter{
		MarketIDs:    f.MarketIDs,
		EventTypeIDs: f.EventTypeIDs,
		MarketTypes:  f.MarketTypes,
		CountryCodes: f.CountryCodes,
	}
	if f.TimeWindow > 0 {
		w.MarketStartTime = &wireTimeRange{
			To: now.Add(f.TimeWindow).UTC().Format(time.RFC3339),
		}
	}
	return w
}

// envelope is the common header of every inbound frame.
type envelope struct {
	Op  string `json:"op"`
	ID  int64  `json:"id"`
	Clk string `json:"clk"`
	Pt  int64  `json:"pt"`
}

type connectionMessage struct {
	Op           string `json:"op"`
	ConnectionID string `json:"connectionId"`
}

type authenticationMessage struct {
	Op      string `json:"op"`
	ID      int64  `json:"id"`
	AppKey  string `json:"appKey"`
	Session string `json:"session"`
}

type marketSubscriptionMessage struct {
	Op           string           `json:"op"`
	ID           int64            `json:"id"`
	MarketFilter wireMarketFilter `json:"marketFilter"`
}

type wireMarketFilter struct {
	MarketIDs       []string       `json:"marketIds,omitempty"`
	EventTypeIDs    []string       `json:"eventTypeIds,omitempty"`
	MarketTypes     []string       `json:"marketTypes,omitempty"`
	CountryCodes    []string       `json:"countryCodes,omitempty"`
	MarketStartTime *wireTimeRange `json:"marketStartTime,omitempty"`
}

type wireTimeRange struct {
	To string `json:"to"`
}

type orderSubscriptionMessage struct {
	Op string `json:"op"`
	ID int64  `json:"id"`
}

type heartbeatMessage struct {
	Op string `json:"op"`
	ID int64  `json:"id"`
}

// Config configures a stream client.
type Config struct {
	URL            string        // Stream endpoint (e.g., wss://stream-api.betfair.com/api)
	ConnectTimeout time.Duration // Deadline for dial plus the connection greeting
	RequestTimeout time.Duration // Max wait for a correlated status reply
	WriteTimeout   time.Duration // Write deadline for sends
	PingInterval   time.Duration // Keepalive ping cadence
	StaleTimeout   time.Duration // Max silence before the connection is considered dead
	BufferSize     int           // Event channel buffer size
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ConnectTimeout: 10 * time.Second,
		RequestTimeout: 10 * time.Second,
		WriteTimeout:   5 * time.Second,
		PingInterval:   15 * time.Second,
		StaleTimeout:   60 * time.Second,
		BufferSize:     1000,
	}
}
