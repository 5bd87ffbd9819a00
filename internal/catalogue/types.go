package catalogue

import "time"

// ListMarketsOptions filters a catalogue listing. Zero-value fields are
// omitted from the request.
type ListMarketsOptions struct {
	EventTypeIDs []string  // Sport / event type IDs
	MarketTypes  []string  // Market type codes (WIN, PLACE, ...)
	CountryCodes []string  // ISO country codes
	MarketIDs    []string  // Explicit market IDs
	StartTimeTo  time.Time // Only markets starting before this instant
	Limit        int       // Page size
	Cursor       string    // Pagination cursor from a previous page
}

// APIMarket is a catalogue entry as returned by the exchange.
type APIMarket struct {
	MarketID     string      `json:"marketId"`
	EventTypeID  string      `json:"eventTypeId"`
	EventID      string      `json:"eventId"`
	EventName    string      `json:"eventName"`
	Name         string      `json:"marketName"`
	MarketType   string      `json:"marketType"`
	CountryCode  string      `json:"countryCode"`
	StartTime    string      `json:"marketStartTime"`
	TotalMatched float64     `json:"totalMatched"`
	Runners      []APIRunner `json:"runners"`
}

// APIRunner is a single selection within a catalogue market.
type APIRunner struct {
	SelectionID  int64   `json:"selectionId"`
	Name         string  `json:"runnerName"`
	Handicap     float64 `json:"handicap"`
	SortPriority int     `json:"sortPriority"`
}

// MarketsResponse is one page of catalogue results.
type MarketsResponse struct {
	Markets []APIMarket `json:"markets"`
	Cursor  string      `json:"cursor"`
}

// APIPriceSize is a price level encoded as a [price, size] pair.
type APIPriceSize [2]float64

// APIRunnerBook is the priced state of one selection.
type APIRunnerBook struct {
	SelectionID     int64          `json:"selectionId"`
	Status          string         `json:"status"`
	LastPriceTraded float64        `json:"lastPriceTraded"`
	TotalMatched    float64        `json:"totalMatched"`
	BackPrices      []APIPriceSize `json:"backPrices"`
	LayPrices       []APIPriceSize `json:"layPrices"`
}

// MarketBookResponse is the order book for a single market.
type MarketBookResponse struct {
	MarketID     string          `json:"marketId"`
	Status       string          `json:"status"`
	BetDelay     int             `json:"betDelay"`
	InPlay       bool            `json:"inplay"`
	TotalMatched float64         `json:"totalMatched"`
	Runners      []APIRunnerBook `json:"runners"`
}
