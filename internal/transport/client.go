package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Transport is a single authenticated connection to the exchange stream.
type Transport interface {
	// Connect dials the stream endpoint and waits for the connection greeting.
	Connect(ctx context.Context) error

	// Disconnect closes the connection. Disconnecting while already
	// disconnected is a no-op.
	Disconnect() error

	// Authenticate sends the authentication op and waits for the status reply.
	// A FAILURE reply is returned as a *StatusError.
	Authenticate(ctx context.Context, appKey, sessionToken string) error

	// SubscribeToOrders subscribes to the caller's order stream.
	SubscribeToOrders(ctx context.Context) error

	// SubscribeToMarkets subscribes to markets matching the filter. The
	// filter's time window is resolved to an absolute bound at send time.
	SubscribeToMarkets(ctx context.Context, filter MarketFilter) error

	// SendHeartbeat writes a heartbeat op without waiting for the reply.
	SendHeartbeat() error

	// IsConnected returns current connection state.
	IsConnected() bool

	// IsAuthenticated returns whether this connection has been authenticated.
	IsAuthenticated() bool

	// Events returns the inbound event channel. It stays open across
	// reconnects.
	Events() <-chan Event

	// Errors returns a channel of connection faults.
	Errors() <-chan error
}

// wsClient implements Transport over a gorilla WebSocket.
type wsClient struct {
	cfg    Config
	logger *slog.Logger

	// Connection state. conn and done are replaced on every Connect.
	mu            sync.RWMutex
	conn          *websocket.Conn
	done          chan struct{}
	connected     bool
	authenticated bool
	connectionID  string
	lastPongAt    time.Time

	// Write serialization
	writeMu sync.Mutex

	// Output channels, shared across reconnects
	events chan Event
	errs   chan error

	// Request/response correlation
	pendingMu sync.Mutex
	pending   map[int64]chan StatusMessage

	msgID atomic.Int64
}

// New creates a stream client.
func New(cfg Config, logger *slog.Logger) Transport {
	if logger == nil {
		logger = slog.Default()
	}
	return &wsClient{
		cfg:     cfg,
		logger:  logger,
		events:  make(chan Event, cfg.BufferSize),
		errs:    make(chan error, 1),
		pending: make(map[int64]chan StatusMessage),
	}
}

// Connect dials the endpoint and consumes the connection greeting.
func (c *wsClient) Connect(ctx context.Context) error {
	c.mu.RLock()
	connected := c.connected
	c.mu.RUnlock()
	if connected {
		return nil
	}

	header := http.Header{}
	header.Set("Accept", "application/json")

	dialer := websocket.Dialer{
		HandshakeTimeout: c.cfg.ConnectTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, header)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.cfg.URL, err)
	}

	// The server speaks first: a connection op carrying the connection id.
	conn.SetReadDeadline(time.Now().Add(c.cfg.ConnectTimeout))
	_, data, err := conn.ReadMessage()
	if err != nil {
		conn.Close()
		return fmt.Errorf("read connection greeting: %w", err)
	}
	conn.SetReadDeadline(time.Time{})

	var greeting connectionMessage
	if err := json.Unmarshal(data, &greeting); err != nil {
		conn.Close()
		return fmt.Errorf("parse connection greeting: %w", err)
	}
	if greeting.Op != opConnection {
		conn.Close()
		return fmt.Errorf("unexpected greeting op %q", greeting.Op)
	}

	done := make(chan struct{})

	c.mu.Lock()
	c.conn = conn
	c.done = done
	c.connected = true
	c.authenticated = false
	c.connectionID = greeting.ConnectionID
	c.lastPongAt = time.Now()
	c.mu.Unlock()

	// Server pings are answered with pongs; both directions refresh liveness.
	conn.SetPingHandler(func(payload string) error {
		c.mu.Lock()
		c.lastPongAt = time.Now()
		c.mu.Unlock()

		return conn.WriteControl(
			websocket.PongMessage,
			[]byte(payload),
			time.Now().Add(time.Second),
		)
	})

	conn.SetPongHandler(func(string) error {
		c.mu.Lock()
		c.lastPongAt = time.Now()
		c.mu.Unlock()
		return nil
	})

	go c.readLoop(conn, done)
	go c.keepaliveLoop(conn, done)

	c.logger.Debug("stream connected",
		"url", c.cfg.URL,
		"connection_id", greeting.ConnectionID,
	)

	return nil
}

// Disconnect closes the active connection.
func (c *wsClient) Disconnect() error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil {
		return nil
	}
	return c.closeConn(conn, true)
}

// closeConn tears down conn if it is still the active connection. The
// identity check makes concurrent teardown from Disconnect, the read loop,
// and the keepalive loop safe.
func (c *wsClient) closeConn(conn *websocket.Conn, sendClose bool) error {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return nil
	}
	done := c.done
	c.conn = nil
	c.connected = false
	c.authenticated = false
	c.mu.Unlock()

	close(done)

	if sendClose {
		conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
	}
	return conn.Close()
}

// Authenticate performs the authentication handshake.
func (c *wsClient) Authenticate(ctx context.Context, appKey, sessionToken string) error {
	id := c.msgID.Add(1)
	msg := authenticationMessage{
		Op:      opAuthentication,
		ID:      id,
		AppKey:  appKey,
		Session: sessionToken,
	}

	if err := c.request(ctx, opAuthentication, id, msg); err != nil {
		return err
	}

	c.mu.Lock()
	c.authenticated = true
	c.mu.Unlock()

	c.logger.Debug("stream authenticated")
	return nil
}

// SubscribeToOrders subscribes to the order stream.
func (c *wsClient) SubscribeToOrders(ctx context.Context) error {
	id := c.msgID.Add(1)
	msg := orderSubscriptionMessage{Op: opOrderSubscription, ID: id}

	if err := c.request(ctx, opOrderSubscription, id, msg); err != nil {
		return err
	}

	c.logger.Debug("order subscription confirmed")
	return nil
}

// SubscribeToMarkets subscribes to markets matching the filter.
func (c *wsClient) SubscribeToMarkets(ctx context.Context, filter MarketFilter) error {
	id := c.msgID.Add(1)
	msg := marketSubscriptionMessage{
		Op:           opMarketSubscription,
		ID:           id,
		MarketFilter: filter.wire(time.Now()),
	}

	if err := c.request(ctx, opMarketSubscription, id, msg); err != nil {
		return err
	}

	c.logger.Debug("market subscription confirmed",
		"event_types", filter.EventTypeIDs,
		"market_types", filter.MarketTypes,
		"markets", len(filter.MarketIDs),
	)
	return nil
}

// SendHeartbeat writes a heartbeat op. The status ack is consumed by the
// read loop; only write faults surface here.
func (c *wsClient) SendHeartbeat() error {
	id := c.msgID.Add(1)
	return c.send(heartbeatMessage{Op: opHeartbeat, ID: id})
}

// IsConnected returns the current connection state.
func (c *wsClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// IsAuthenticated returns whether the connection has been authenticated.
func (c *wsClient) IsAuthenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.authenticated
}

// Events returns the event channel.
func (c *wsClient) Events() <-chan Event {
	return c.events
}

// Errors returns the errors channel.
func (c *wsClient) Errors() <-chan error {
	return c.errs
}

// request sends a client op and waits for its correlated status reply.
func (c *wsClient) request(ctx context.Context, op string, id int64, payload any) error {
	c.mu.RLock()
	connected := c.connected
	done := c.done
	c.mu.RUnlock()

	if !connected {
		return ErrNotConnected
	}

	respCh := make(chan StatusMessage, 1)
	c.pendingMu.Lock()
	c.pending[id] = respCh
	c.pendingMu.Unlock()

	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	if err := c.send(payload); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return ErrNotConnected
	case <-time.After(c.cfg.RequestTimeout):
		return ErrTimeout
	case st := <-respCh:
		if st.StatusCode != statusSuccess {
			return &StatusError{
				Op:               op,
				Code:             st.ErrorCode,
				Message:          st.ErrorMessage,
				ConnectionClosed: st.ConnectionClosed,
			}
		}
		return nil
	}
}

// send marshals and writes a single op.
func (c *wsClient) send(payload any) error {
	c.mu.RLock()
	conn := c.conn
	connected := c.connected
	c.mu.RUnlock()

	if !connected || conn == nil {
		return ErrNotConnected
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %T: %w", payload, err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// readLoop reads frames from the connection until it dies.
func (c *wsClient) readLoop(conn *websocket.Conn, done chan struct{}) {
	for {
		_, data, err := conn.ReadMessage()
		receivedAt := time.Now()

		if err != nil {
			select {
			case <-done:
				// Deliberate disconnect.
			default:
				c.closeConn(conn, false)
				select {
				case c.errs <- err:
				default:
				}
			}
			return
		}

		c.handleFrame(data, receivedAt)
	}
}

// handleFrame parses the envelope and routes a single inbound frame.
func (c *wsClient) handleFrame(data []byte, receivedAt time.Time) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.logger.Warn("unparseable stream frame", "error", err)
		return
	}

	switch env.Op {
	case opStatus:
		var st StatusMessage
		if err := json.Unmarshal(data, &st); err != nil {
			c.logger.Warn("unparseable status frame", "error", err)
			return
		}
		c.handleStatus(st, data, receivedAt)

	case opMarketChange:
		c.deliver(Event{
			Kind:        KindMarketChange,
			Op:          env.Op,
			Clk:         env.Clk,
			PublishTime: env.Pt,
			Data:        data,
			ReceivedAt:  receivedAt,
		})

	case opOrderChange:
		c.deliver(Event{
			Kind:        KindOrderChange,
			Op:          env.Op,
			Clk:         env.Clk,
			PublishTime: env.Pt,
			Data:        data,
			ReceivedAt:  receivedAt,
		})

	case opConnection:
		// Greeting is consumed in Connect; a repeat is harmless.
		c.logger.Debug("unexpected connection op mid-stream")

	default:
		c.logger.Warn("unknown stream op", "op", env.Op)
	}
}

// handleStatus routes a status frame to its waiting request, or delivers it
// as an event when it is an unsolicited notice worth seeing.
func (c *wsClient) handleStatus(st StatusMessage, data []byte, receivedAt time.Time) {
	if st.ConnectionClosed {
		c.mu.Lock()
		c.connected = false
		c.authenticated = false
		c.mu.Unlock()
	}

	if st.ID != 0 {
		c.pendingMu.Lock()
		ch, ok := c.pending[st.ID]
		if ok {
			delete(c.pending, st.ID)
		}
		c.pendingMu.Unlock()

		if ok {
			select {
			case ch <- st:
			default:
			}
			return
		}
	}

	// Uncorrelated SUCCESS acks (heartbeat replies) carry no information.
	if st.StatusCode == statusSuccess && !st.ConnectionClosed {
		return
	}

	c.deliver(Event{
		Kind:       KindStatus,
		Op:         opStatus,
		Status:     &st,
		Data:       data,
		ReceivedAt: receivedAt,
	})
}

// deliver pushes an event without blocking the read loop.
func (c *wsClient) deliver(ev Event) {
	select {
	case c.events <- ev:
	default:
		c.logger.Warn("event buffer full, dropping", "op", ev.Op)
	}
}

// keepaliveLoop sends pings and watches for stale connections.
func (c *wsClient) keepaliveLoop(conn *websocket.Conn, done chan struct{}) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(c.cfg.WriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, []byte("keepalive"), deadline); err != nil {
				c.logger.Debug("failed to send ping", "error", err)
			}

			c.mu.RLock()
			lastPong := c.lastPongAt
			c.mu.RUnlock()

			if time.Since(lastPong) > c.cfg.StaleTimeout {
				c.logger.Warn("no pong received, connection stale",
					"last_pong", lastPong,
					"timeout", c.cfg.StaleTimeout,
				)
				c.closeConn(conn, false)
				select {
				case c.errs <- ErrStaleConnection:
				default:
				}
				return
			}
		}
	}
}
