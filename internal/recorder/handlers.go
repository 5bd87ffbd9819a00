package recorder

import (
	"github.com/ckohler/betstream/internal/session"
	"github.com/ckohler/betstream/internal/transport"
)

// Handlers returns session handlers that feed stream frames into the
// writers. A nil writer leaves the corresponding handler unset.
func Handlers(market, order *Writer) session.Handlers {
	var h session.Handlers
	if market != nil {
		h.OnMarketChange = func(ev transport.Event) {
			market.Enqueue(ev)
		}
	}
	if order != nil {
		h.OnOrderChange = func(ev transport.Event) {
			order.Enqueue(ev)
		}
	}
	return h
}
