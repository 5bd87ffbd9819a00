package recorder

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ckohler/betstream/internal/transport"
)

// Config contains configuration for a change writer.
type Config struct {
	// BatchSize is the number of rows to accumulate before flushing.
	BatchSize int

	// FlushInterval is the maximum time between flushes.
	FlushInterval time.Duration

	// BufferSize is the capacity of the enqueue buffer.
	BufferSize int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:     500,
		FlushInterval: 2 * time.Second,
		BufferSize:    8192,
	}
}

// Metrics holds counters for a writer.
type Metrics struct {
	Inserts   int64
	Conflicts int64
	Errors    int64
	Flushes   int64
	Dropped   int64
}

// changeRow is a stream frame prepared for insertion.
type changeRow struct {
	ID          string // UUID
	ReceivedAt  int64  // Microseconds
	PublishTime int64  // Microseconds
	Clock       string
	Payload     []byte // Raw frame JSON
}

// Writer batches stream change frames into a Postgres table.
type Writer struct {
	cfg       Config
	table     string
	insertSQL string
	logger    *slog.Logger

	// Input from the session dispatcher
	input chan transport.Event

	// Database
	db *pgxpool.Pool

	// Batching
	batch       []changeRow
	batchMu     sync.Mutex
	flushTicker *time.Ticker

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Metrics
	metrics Metrics
}

// NewMarketWriter creates a writer for market change frames.
func NewMarketWriter(cfg Config, db *pgxpool.Pool, logger *slog.Logger) *Writer {
	return newWriter(cfg, "market_changes", db, logger)
}

// NewOrderWriter creates a writer for order change frames.
func NewOrderWriter(cfg Config, db *pgxpool.Pool, logger *slog.Logger) *Writer {
	return newWriter(cfg, "order_changes", db, logger)
}

func newWriter(cfg Config, table string, db *pgxpool.Pool, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}

	return &Writer{
		cfg:   cfg,
		table: table,
		insertSQL: fmt.Sprintf(`
			INSERT INTO %s (id, received_at, publish_time, clock, payload)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (publish_time, clock) DO NOTHING
		`, table),
		logger: logger,
		input:  make(chan transport.Event, cfg.BufferSize),
		db:     db,
		batch:  make([]changeRow, 0, cfg.BatchSize),
	}
}

// Start begins consuming events and writing to the database.
func (w *Writer) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.flushTicker = time.NewTicker(w.cfg.FlushInterval)

	// Consumer goroutine
	w.wg.Add(1)
	go w.consumeLoop()

	// Flush ticker goroutine
	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("change writer started",
		"table", w.table,
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop gracefully shuts down the writer. Whatever the loops accumulated
// is flushed under the caller's context.
func (w *Writer) Stop(ctx context.Context) error {
	w.logger.Info("stopping change writer", "table", w.table)

	if w.cancel != nil {
		w.cancel()
	}

	if w.flushTicker != nil {
		w.flushTicker.Stop()
	}

	// Wait for goroutines
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("change writer stopped", "table", w.table)
	case <-ctx.Done():
		w.logger.Warn("change writer stop timed out", "table", w.table)
	}

	// Final flush
	w.flush(ctx)

	return nil
}

// Enqueue adds an event to the write queue. It never blocks: when the
// buffer is full the event is dropped and counted.
func (w *Writer) Enqueue(ev transport.Event) {
	select {
	case w.input <- ev:
	default:
		w.batchMu.Lock()
		w.metrics.Dropped++
		w.batchMu.Unlock()
		w.logger.Debug("writer buffer full, dropping event", "table", w.table)
	}
}

// Stats returns current metrics.
func (w *Writer) Stats() Metrics {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.metrics
}

// consumeLoop reads from the input buffer and accumulates batches.
func (w *Writer) consumeLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case ev := <-w.input:
			w.handleEvent(ev)
		}
	}
}

// flushLoop periodically flushes the batch.
func (w *Writer) flushLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.flushTicker.C:
			w.flush(w.ctx)
		}
	}
}

// handleEvent transforms and adds an event to the batch.
func (w *Writer) handleEvent(ev transport.Event) {
	row := w.transform(ev)

	w.batchMu.Lock()
	w.batch = append(w.batch, row)
	shouldFlush := len(w.batch) >= w.cfg.BatchSize
	w.batchMu.Unlock()

	if shouldFlush {
		w.flush(w.ctx)
	}
}

// transform converts an Event to a changeRow.
func (w *Writer) transform(ev transport.Event) changeRow {
	return changeRow{
		ID:          uuid.NewString(),
		ReceivedAt:  ev.ReceivedAt.UnixMicro(),
		PublishTime: ev.PublishTime * 1000, // wire pt is milliseconds
		Clock:       ev.Clk,
		Payload:     ev.Data,
	}
}

// flush writes the current batch to the database.
func (w *Writer) flush(ctx context.Context) {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}

	// Take ownership of current batch
	batch := w.batch
	w.batch = make([]changeRow, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	start := time.Now()

	conflicts, err := w.batchInsert(ctx, batch)
	if err != nil {
		w.logger.Error("batch insert failed", "table", w.table, "error", err, "count", len(batch))
		w.batchMu.Lock()
		w.metrics.Errors++
		w.batchMu.Unlock()
		return
	}

	w.batchMu.Lock()
	w.metrics.Inserts += int64(len(batch) - conflicts)
	w.metrics.Conflicts += int64(conflicts)
	w.metrics.Flushes++
	w.batchMu.Unlock()

	w.logger.Debug("flushed changes",
		"table", w.table,
		"count", len(batch),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
}

// batchInsert inserts rows using pgx.Batch with ON CONFLICT DO NOTHING.
func (w *Writer) batchInsert(ctx context.Context, rows []changeRow) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(w.insertSQL, r.ID, r.ReceivedAt, r.PublishTime, r.Clock, r.Payload)
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}

	return conflicts, nil
}
