package catalogue

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ckohler/betstream/internal/model"
	"github.com/ckohler/betstream/internal/transport"
)

// Sink receives catalogue listings and book snapshots.
type Sink interface {
	// StoreMarkets upserts catalogue entries and their runners.
	StoreMarkets(ctx context.Context, markets []model.CatalogueMarket, runners []model.Runner) error

	// StoreBook records a single order book snapshot.
	StoreBook(ctx context.Context, book model.MarketBook) error
}

// Config holds poller configuration.
type Config struct {
	Interval    time.Duration // Poll interval (default: 15m)
	Concurrency int           // Max concurrent book fetches (default: 16)
	Timeout     time.Duration // Per-request timeout (default: 10s)

	// Filters select which markets to discover. The same filters that
	// drive the stream subscriptions are reused here so the catalogue
	// stays aligned with what the stream delivers.
	Filters []transport.MarketFilter
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval:    15 * time.Minute,
		Concurrency: 16,
		Timeout:     10 * time.Second,
	}
}

// Poller periodically syncs the market catalogue and order books over REST.
type Poller struct {
	cfg    Config
	client *Client
	sink   Sink
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new Poller.
func New(cfg Config, client *Client, sink Sink, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConfig().Concurrency
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}

	return &Poller{
		cfg:    cfg,
		client: client,
		sink:   sink,
		logger: logger,
	}
}

// Start begins the polling loop.
func (p *Poller) Start(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go p.run()

	p.logger.Info("catalogue poller started",
		"interval", p.cfg.Interval,
		"concurrency", p.cfg.Concurrency,
		"filters", len(p.cfg.Filters),
	)

	return nil
}

// Stop gracefully shuts down the poller.
func (p *Poller) Stop(ctx context.Context) error {
	p.logger.Info("stopping catalogue poller")
	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("catalogue poller stopped")
	case <-ctx.Done():
		p.logger.Warn("catalogue poller shutdown timeout")
	}

	return nil
}

func (p *Poller) run() {
	defer p.wg.Done()

	// Poll immediately on startup
	p.pollAll()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.pollAll()
		}
	}
}

// pollAll lists every configured filter, stores the merged catalogue, and
// fans out book fetches for the discovered markets.
func (p *Poller) pollAll() {
	start := time.Now()

	var listErrs int64
	seen := make(map[string]struct{})
	var apiMarkets []APIMarket

	for _, f := range p.cfg.Filters {
		listed, err := p.listFilter(f)
		if err != nil {
			p.logger.Error("catalogue listing failed", "error", err)
			listErrs++
			continue
		}

		// Overlapping filters can return the same market twice.
		for i := range listed {
			if _, ok := seen[listed[i].MarketID]; ok {
				continue
			}
			seen[listed[i].MarketID] = struct{}{}
			apiMarkets = append(apiMarkets, listed[i])
		}
	}

	if len(apiMarkets) == 0 {
		p.logger.Debug("no markets matched catalogue filters")
		return
	}

	if err := p.storeCatalogue(apiMarkets); err != nil {
		p.logger.Error("failed to store catalogue", "error", err)
		return
	}

	fetched, errs := p.pollBooks(apiMarkets)

	p.logger.Info("poll cycle complete",
		"markets", len(apiMarkets),
		"fetched", fetched,
		"errors", errs+listErrs,
		"duration", time.Since(start),
	)
}

// listFilter fetches the full catalogue for one market filter. The start
// time bound is recomputed per cycle so a rolling window keeps covering
// the period ahead.
func (p *Poller) listFilter(f transport.MarketFilter) ([]APIMarket, error) {
	opts := ListMarketsOptions{
		EventTypeIDs: f.EventTypeIDs,
		MarketTypes:  f.MarketTypes,
		CountryCodes: f.CountryCodes,
		MarketIDs:    f.MarketIDs,
	}
	if f.TimeWindow > 0 {
		opts.StartTimeTo = time.Now().Add(f.TimeWindow)
	}

	return p.client.ListAllMarkets(p.ctx, opts)
}

// storeCatalogue converts the listings and persists markets and runners
// in one call.
func (p *Poller) storeCatalogue(apiMarkets []APIMarket) error {
	markets := make([]model.CatalogueMarket, 0, len(apiMarkets))
	var runners []model.Runner

	for i := range apiMarkets {
		markets = append(markets, apiMarkets[i].ToModel())
		runners = append(runners, apiMarkets[i].ModelRunners()...)
	}

	ctx, cancel := context.WithTimeout(p.ctx, p.cfg.Timeout)
	defer cancel()

	return p.sink.StoreMarkets(ctx, markets, runners)
}

// pollBooks fetches and stores order books with bounded concurrency.
func (p *Poller) pollBooks(markets []APIMarket) (int64, int64) {
	g, ctx := errgroup.WithContext(p.ctx)
	g.SetLimit(p.cfg.Concurrency)

	var fetched, errs atomic.Int64

	for _, m := range markets {
		marketID := m.MarketID
		g.Go(func() error {
			reqCtx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
			defer cancel()

			book, err := p.client.GetMarketBook(reqCtx, marketID)
			if err != nil {
				p.logger.Warn("failed to fetch market book",
					"market_id", marketID,
					"error", err,
				)
				errs.Add(1)
				return nil
			}

			if err := p.sink.StoreBook(reqCtx, book.ToModel()); err != nil {
				p.logger.Warn("failed to store market book",
					"market_id", marketID,
					"error", err,
				)
				errs.Add(1)
				return nil
			}

			fetched.Add(1)
			return nil
		})
	}

	g.Wait()

	return fetched.Load(), errs.Load()
}
