package catalogue

import (
	"time"

	"github.com/ckohler/betstream/internal/model"
)

// ParseTimestamp converts an ISO timestamp string to microseconds since epoch.
// Returns 0 if the timestamp is empty or invalid.
func ParseTimestamp(ts string) int64 {
	if ts == "" {
		return 0
	}

	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		// Try without timezone
		t, err = time.Parse("2006-01-02T15:04:05", ts)
		if err != nil {
			return 0
		}
	}

	return t.UnixMicro()
}

// NowMicro returns the current time in microseconds since epoch.
func NowMicro() int64 {
	return time.Now().UnixMicro()
}

// ToModel converts an APIMarket to a model.CatalogueMarket.
func (m *APIMarket) ToModel() model.CatalogueMarket {
	return model.CatalogueMarket{
		MarketID:     m.MarketID,
		EventTypeID:  m.EventTypeID,
		EventID:      m.EventID,
		EventName:    m.EventName,
		Name:         m.Name,
		MarketType:   m.MarketType,
		CountryCode:  m.CountryCode,
		StartTime:    ParseTimestamp(m.StartTime),
		TotalMatched: m.TotalMatched,
		RunnerCount:  len(m.Runners),
		UpdatedAt:    NowMicro(),
	}
}

// ModelRunners converts the market's selections to model.Runner rows.
func (m *APIMarket) ModelRunners() []model.Runner {
	runners := make([]model.Runner, 0, len(m.Runners))
	for _, r := range m.Runners {
		runners = append(runners, model.Runner{
			MarketID:     m.MarketID,
			SelectionID:  r.SelectionID,
			Name:         r.Name,
			Handicap:     r.Handicap,
			SortPriority: r.SortPriority,
		})
	}

	return runners
}

// ToModel converts a MarketBookResponse to a model.MarketBook snapshot.
func (b *MarketBookResponse) ToModel() model.MarketBook {
	runners := make([]model.RunnerBook, 0, len(b.Runners))
	for _, r := range b.Runners {
		runners = append(runners, model.RunnerBook{
			SelectionID:     r.SelectionID,
			Status:          r.Status,
			LastPriceTraded: r.LastPriceTraded,
			TotalMatched:    r.TotalMatched,
			BackPrices:      toPriceSizes(r.BackPrices),
			LayPrices:       toPriceSizes(r.LayPrices),
		})
	}

	return model.MarketBook{
		SnapshotTS:   NowMicro(),
		MarketID:     b.MarketID,
		Status:       b.Status,
		BetDelay:     b.BetDelay,
		InPlay:       b.InPlay,
		TotalMatched: b.TotalMatched,
		Runners:      runners,
	}
}

func toPriceSizes(levels []APIPriceSize) []model.PriceSize {
	sizes := make([]model.PriceSize, 0, len(levels))
	for _, l := range levels {
		sizes = append(sizes, model.PriceSize{Price: l[0], Size: l[1]})
	}

	return sizes
}
