package session

import (
	"sort"
	"sync"

	"github.com/ckohler/betstream/internal/transport"
)

// registry tracks the subscriptions a session must hold. It is the single
// source of truth for replay: after every reconnect the session re-issues
// exactly what the registry holds.
type registry struct {
	mu      sync.RWMutex
	orders  bool
	filters []transport.MarketFilter
	adHoc   map[string]struct{}
}

func newRegistry(orders bool, filters []transport.MarketFilter) *registry {
	r := &registry{
		orders:  orders,
		filters: make([]transport.MarketFilter, len(filters)),
		adHoc:   make(map[string]struct{}),
	}
	copy(r.filters, filters)
	return r
}

// addMarket registers an ad-hoc market subscription. It returns false when
// the market was already registered.
func (r *registry) addMarket(marketID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.adHoc[marketID]; ok {
		return false
	}
	r.adHoc[marketID] = struct{}{}
	return true
}

// removeMarket drops an ad-hoc market subscription. It returns false when
// the market was not registered.
func (r *registry) removeMarket(marketID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.adHoc[marketID]; !ok {
		return false
	}
	delete(r.adHoc, marketID)
	return true
}

// snapshot returns the replay plan: the order stream flag, the standing
// filters, and the ad-hoc market ids in sorted order.
func (r *registry) snapshot() (orders bool, filters []transport.MarketFilter, markets []string) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	filters = make([]transport.MarketFilter, len(r.filters))
	copy(filters, r.filters)

	markets = make([]string, 0, len(r.adHoc))
	for id := range r.adHoc {
		markets = append(markets, id)
	}
	sort.Strings(markets)

	return r.orders, filters, markets
}

// count returns the number of registered subscriptions.
func (r *registry) count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := len(r.filters) + len(r.adHoc)
	if r.orders {
		n++
	}
	return n
}
