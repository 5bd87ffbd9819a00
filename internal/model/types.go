package model

// -----------------------------------------------------------------------------
// Catalogue Types
// -----------------------------------------------------------------------------

// CatalogueMarket is a market discovered through the catalogue API.
type CatalogueMarket struct {
	MarketID     string  // Primary key (e.g., "1.234567890")
	EventTypeID  string  // Sport / event type (e.g., "7" for horse racing)
	EventID      string  // Parent event
	EventName    string  // Parent event display name
	Name         string  // Market display name
	MarketType   string  // Market type code (e.g., "WIN", "PLACE")
	CountryCode  string  // ISO country code of the event venue
	StartTime    int64   // Scheduled market start (µs since epoch)
	TotalMatched float64 // Total matched volume at discovery time
	RunnerCount  int     // Number of runners
	UpdatedAt    int64   // Last catalogue refresh (µs since epoch)
}

// Runner is a single selection within a catalogue market.
type Runner struct {
	MarketID     string
	SelectionID  int64
	Name         string
	Handicap     float64
	SortPriority int
}

// -----------------------------------------------------------------------------
// Book Types
// -----------------------------------------------------------------------------

// PriceSize is a single price level with available volume.
type PriceSize struct {
	Price float64 // Decimal odds
	Size  float64 // Available stake at this price
}

// RunnerBook is the priced state of one runner at snapshot time.
type RunnerBook struct {
	SelectionID     int64       // Exchange selection ID
	Status          string      // ACTIVE, REMOVED, WINNER, or LOSER
	LastPriceTraded float64     // Last traded price, 0 if never traded
	TotalMatched    float64     // Total matched on this runner
	BackPrices      []PriceSize // Best available to back, best first
	LayPrices       []PriceSize // Best available to lay, best first
}

// MarketBook is a full market price snapshot fetched over REST.
type MarketBook struct {
	SnapshotTS   int64  // Snapshot timestamp (µs since epoch)
	MarketID     string // Market this book belongs to
	Status       string // OPEN, SUSPENDED, or CLOSED
	BetDelay     int    // In-play bet delay in seconds
	InPlay       bool
	TotalMatched float64
	Runners      []RunnerBook
}
