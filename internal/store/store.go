package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ckohler/betstream/internal/model"
)

// Store persists catalogue markets, runners, and book snapshots.
type Store struct {
	db     *pgxpool.Pool
	logger *slog.Logger
}

// New creates a Store backed by the given pool.
func New(db *pgxpool.Pool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}

// StoreMarkets upserts catalogue entries and their runners in one batch.
// Markets are keyed by market_id, runners by (market_id, selection_id).
func (s *Store) StoreMarkets(ctx context.Context, markets []model.CatalogueMarket, runners []model.Runner) error {
	if len(markets) == 0 {
		return nil
	}

	start := time.Now()

	batch := &pgx.Batch{}
	for _, m := range markets {
		batch.Queue(`
			INSERT INTO markets (market_id, event_type_id, event_id, event_name, market_name, market_type, country_code, start_time, total_matched, runner_count, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (market_id) DO UPDATE SET
				event_name = EXCLUDED.event_name,
				market_name = EXCLUDED.market_name,
				start_time = EXCLUDED.start_time,
				total_matched = EXCLUDED.total_matched,
				runner_count = EXCLUDED.runner_count,
				updated_at = EXCLUDED.updated_at
		`, m.MarketID, m.EventTypeID, m.EventID, m.EventName, m.Name, m.MarketType, m.CountryCode, m.StartTime, m.TotalMatched, m.RunnerCount, m.UpdatedAt)
	}
	for _, r := range runners {
		batch.Queue(`
			INSERT INTO runners (market_id, selection_id, runner_name, handicap, sort_priority)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (market_id, selection_id) DO UPDATE SET
				runner_name = EXCLUDED.runner_name,
				handicap = EXCLUDED.handicap,
				sort_priority = EXCLUDED.sort_priority
		`, r.MarketID, r.SelectionID, r.Name, r.Handicap, r.SortPriority)
	}

	results := s.db.SendBatch(ctx, batch)
	defer results.Close()

	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("upsert catalogue: %w", err)
		}
	}

	s.logger.Debug("stored catalogue batch",
		"markets", len(markets),
		"runners", len(runners),
		"duration", time.Since(start),
	)

	return nil
}

// StoreBook appends one order book snapshot. Runner books are stored as
// JSONB alongside the market-level fields.
func (s *Store) StoreBook(ctx context.Context, book model.MarketBook) error {
	payload, err := json.Marshal(book.Runners)
	if err != nil {
		return fmt.Errorf("marshal runner books: %w", err)
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO book_snapshots (snapshot_ts, market_id, status, bet_delay, inplay, total_matched, runners)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, book.SnapshotTS, book.MarketID, book.Status, book.BetDelay, book.InPlay, book.TotalMatched, payload)
	if err != nil {
		return fmt.Errorf("insert book snapshot: %w", err)
	}

	return nil
}

// Ping verifies the database connection is healthy.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}
