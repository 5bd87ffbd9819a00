package session

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"syscall"

	"github.com/gorilla/websocket"

	"github.com/ckohler/betstream/internal/transport"
)

// ErrMissingAppKey is returned by Start when streaming is enabled without an
// application key.
var ErrMissingAppKey = errors.New("streaming enabled but app key missing")

// IsTransient reports whether err looks like an infrastructure fault worth a
// reconnect. Ordinary negative results, such as a FAILURE status from the
// exchange, are not transient: retrying them with the same inputs cannot
// succeed.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	// Cancellation is a caller decision, not an infrastructure fault.
	// context.DeadlineExceeded satisfies net.Error, so check it first.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var statusErr *transport.StatusError
	if errors.As(err, &statusErr) {
		return false
	}

	if errors.Is(err, transport.ErrNotConnected) ||
		errors.Is(err, transport.ErrStaleConnection) ||
		errors.Is(err, transport.ErrTimeout) {
		return true
	}

	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}

	if errors.Is(err, websocket.ErrCloseSent) {
		return true
	}

	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return true
	}

	var recordErr tls.RecordHeaderError
	if errors.As(err, &recordErr) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}
