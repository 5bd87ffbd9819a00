package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ckohler/betstream/internal/catalogue"
	"github.com/ckohler/betstream/internal/config"
	"github.com/ckohler/betstream/internal/creds"
	"github.com/ckohler/betstream/internal/recorder"
	"github.com/ckohler/betstream/internal/session"
	"github.com/ckohler/betstream/internal/store"
	"github.com/ckohler/betstream/internal/transport"
	"github.com/ckohler/betstream/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/streamer.local.yaml", "path to config file")
	flag.Parse()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting streamer",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"stream_url", cfg.Exchange.StreamURL,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Connect to database
	logger.Info("connecting to database",
		"host", cfg.Database.Postgres.Host,
		"port", cfg.Database.Postgres.Port,
		"database", cfg.Database.Postgres.Name,
	)

	pool, err := store.Connect(ctx, cfg.Database.Postgres)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	logger.Info("database connected")

	st := store.New(pool, logger)

	// Standing market filters, shared by the stream session and the
	// catalogue poller so discovery stays aligned with delivery.
	filters := toMarketFilters(cfg.Streaming.MarketFilters)

	// Start catalogue poller
	if !cfg.Catalogue.Disabled {
		client := catalogue.NewClient(
			cfg.Exchange.APIURL,
			cfg.Exchange.AppKey,
			catalogue.WithLogger(logger),
			catalogue.WithTimeout(cfg.Exchange.Timeout),
			catalogue.WithRetries(cfg.Exchange.MaxRetries, time.Second),
			catalogue.WithRateLimit(cfg.Exchange.RateLimit, cfg.Exchange.RateBurst),
		)

		poller := catalogue.New(catalogue.Config{
			Interval:    cfg.Catalogue.Interval,
			Concurrency: cfg.Catalogue.Concurrency,
			Timeout:     cfg.Catalogue.Timeout,
			Filters:     filters,
		}, client, st, logger)

		logger.Info("starting catalogue poller...")
		if err := poller.Start(ctx); err != nil {
			logger.Error("failed to start catalogue poller", "error", err)
			os.Exit(1)
		}
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			poller.Stop(shutdownCtx)
		}()
		logger.Info("catalogue poller started")
	}

	// Create and start writers BEFORE the session
	// (so they're ready to consume changes as soon as the stream is up)
	recCfg := recorder.Config{
		BatchSize:     cfg.Recorder.BatchSize,
		FlushInterval: cfg.Recorder.FlushInterval,
		BufferSize:    cfg.Recorder.BufferSize,
	}

	marketWriter := recorder.NewMarketWriter(recCfg, pool, logger)
	var orderWriter *recorder.Writer
	if cfg.Streaming.OrderStream {
		orderWriter = recorder.NewOrderWriter(recCfg, pool, logger)
	}

	logger.Info("starting writers...")
	if err := marketWriter.Start(ctx); err != nil {
		logger.Error("failed to start market writer", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		marketWriter.Stop(shutdownCtx)
	}()

	if orderWriter != nil {
		if err := orderWriter.Start(ctx); err != nil {
			logger.Error("failed to start order writer", "error", err)
			os.Exit(1)
		}
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			orderWriter.Stop(shutdownCtx)
		}()
	}
	logger.Info("writers started")

	// Create the stream session
	provider := creds.NewIdentityClient(
		cfg.Exchange.IdentityURL,
		cfg.Exchange.AppKey,
		cfg.Exchange.Username,
		cfg.Exchange.Password,
		creds.WithLogger(logger),
		creds.WithTimeout(cfg.Exchange.Timeout),
	)

	trCfg := transport.DefaultConfig()
	trCfg.URL = cfg.Exchange.StreamURL
	tr := transport.New(trCfg, logger)

	mgr := session.NewManager(session.Config{
		Enabled:              !cfg.Streaming.Disabled,
		AppKey:               cfg.Exchange.AppKey,
		OrderStream:          cfg.Streaming.OrderStream,
		MarketFilters:        filters,
		HeartbeatInterval:    cfg.Streaming.HeartbeatInterval,
		MonitorInterval:      cfg.Streaming.MonitorInterval,
		RefreshInterval:      cfg.Streaming.RefreshInterval,
		MaxReconnectAttempts: cfg.Streaming.MaxReconnectAttempts,
		ReconnectBaseDelay:   cfg.Streaming.ReconnectBaseDelay,
	}, tr, provider, logger)

	mgr.RegisterHandlers("recorder", recorder.Handlers(marketWriter, orderWriter))

	// NOW start the session (consumers are ready)
	logger.Info("starting stream session...")
	if err := mgr.Start(ctx); err != nil {
		logger.Error("failed to start stream session", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		mgr.Stop(shutdownCtx)
	}()
	logger.Info("stream session started", "state", mgr.Status().State.String())

	// Health server port
	healthPort := 8080
	if cfg.Metrics.Port > 0 {
		healthPort = cfg.Metrics.Port
	}

	healthServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", healthPort),
		Handler: createHealthHandler(pool, mgr, marketWriter, orderWriter, logger),
	}
	go func() {
		logger.Info("starting health server", "port", healthPort)
		if err := healthServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("health server error", "error", err)
		}
	}()

	logger.Info("streamer running",
		"instance_id", cfg.Instance.ID,
		"health_url", fmt.Sprintf("http://localhost:%d/health", healthPort),
	)

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")

	// Graceful shutdown of health server
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	healthServer.Shutdown(shutdownCtx)

	logger.Info("streamer stopped")
}

// toMarketFilters converts config filter entries to their wire form.
func toMarketFilters(filters []config.FilterConfig) []transport.MarketFilter {
	out := make([]transport.MarketFilter, 0, len(filters))
	for _, f := range filters {
		out = append(out, transport.MarketFilter{
			MarketIDs:    f.MarketIDs,
			EventTypeIDs: f.EventTypes,
			MarketTypes:  f.MarketTypes,
			CountryCodes: f.CountryCodes,
			TimeWindow:   f.TimeWindow,
		})
	}
	return out
}

// createHealthHandler creates the HTTP handler for health checks.
func createHealthHandler(pool *pgxpool.Pool, mgr session.Manager, marketWriter, orderWriter *recorder.Writer, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status     string                 `json:"status"`
			Components map[string]interface{} `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]interface{}),
		}

		// Check database
		if err := pool.Ping(ctx); err != nil {
			health.Status = "unhealthy"
			health.Components["postgres"] = map[string]string{
				"status": "disconnected",
				"error":  err.Error(),
			}
		} else {
			health.Components["postgres"] = "connected"
		}

		// Check stream session
		status := mgr.Status()
		health.Components["session"] = map[string]interface{}{
			"state":         status.State.String(),
			"connected":     status.Connected,
			"authenticated": status.Authenticated,
			"subscriptions": status.Subscriptions,
		}
		if status.State == session.StateDegraded && health.Status == "healthy" {
			health.Status = "degraded"
		}

		// Set response
		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	mux.HandleFunc("/debug/session", func(w http.ResponseWriter, r *http.Request) {
		status := mgr.Status()
		stats := mgr.Stats()

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"state":         status.State.String(),
			"connected":     status.Connected,
			"authenticated": status.Authenticated,
			"last_refresh":  status.LastRefresh,
			"subscriptions": status.Subscriptions,
			"stats": map[string]int64{
				"heartbeats_sent":    stats.HeartbeatsSent,
				"heartbeat_failures": stats.HeartbeatFailures,
				"recoveries":         stats.Recoveries,
				"recovery_failures":  stats.RecoveryFailures,
				"refreshes":          stats.Refreshes,
				"events_dispatched":  stats.EventsDispatched,
			},
		})
	})

	mux.HandleFunc("/debug/writers", func(w http.ResponseWriter, r *http.Request) {
		writers := map[string]interface{}{
			"market": writerStats(marketWriter.Stats()),
		}
		if orderWriter != nil {
			writers["order"] = writerStats(orderWriter.Stats())
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(writers)
	})

	return mux
}

func writerStats(m recorder.Metrics) map[string]int64 {
	return map[string]int64{
		"inserts":   m.Inserts,
		"conflicts": m.Conflicts,
		"errors":    m.Errors,
		"flushes":   m.Flushes,
		"dropped":   m.Dropped,
	}
}
