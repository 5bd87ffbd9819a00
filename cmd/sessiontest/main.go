// sessiontest connects to the exchange stream and prints dispatched changes
// to console.
// Usage: go run ./cmd/sessiontest --config configs/streamer.local.yaml
//
// Credentials are normally supplied through ${VAR} references in the config
// file, e.g. EXCHANGE_APP_KEY, EXCHANGE_USERNAME and EXCHANGE_PASSWORD.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ckohler/betstream/internal/config"
	"github.com/ckohler/betstream/internal/creds"
	"github.com/ckohler/betstream/internal/session"
	"github.com/ckohler/betstream/internal/transport"
)

func main() {
	configPath := flag.String("config", "configs/streamer.example.yaml", "path to config file")
	verbose := flag.Bool("verbose", false, "print full message JSON")
	markets := flag.String("markets", "", "comma-separated market ids to subscribe in addition to configured filters")
	flag.Parse()

	// Setup logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	// Load config
	cfg, err := config.LoadWithDefaults(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	// Check we have stream credentials
	if cfg.Exchange.AppKey == "" || cfg.Exchange.Username == "" || cfg.Exchange.Password == "" {
		logger.Error("exchange credentials required for streaming",
			"app_key_set", cfg.Exchange.AppKey != "",
			"username_set", cfg.Exchange.Username != "",
			"password_set", cfg.Exchange.Password != "",
		)
		logger.Info("Set environment variables: EXCHANGE_APP_KEY, EXCHANGE_USERNAME and EXCHANGE_PASSWORD")
		os.Exit(1)
	}

	provider := creds.NewIdentityClient(
		cfg.Exchange.IdentityURL,
		cfg.Exchange.AppKey,
		cfg.Exchange.Username,
		cfg.Exchange.Password,
		creds.WithLogger(logger),
	)

	trCfg := transport.DefaultConfig()
	trCfg.URL = cfg.Exchange.StreamURL
	tr := transport.New(trCfg, logger)

	// The tool exists to watch the stream, so streaming.disabled is ignored.
	mgr := session.NewManager(session.Config{
		Enabled:              true,
		AppKey:               cfg.Exchange.AppKey,
		OrderStream:          cfg.Streaming.OrderStream,
		MarketFilters:        toMarketFilters(cfg.Streaming.MarketFilters),
		HeartbeatInterval:    cfg.Streaming.HeartbeatInterval,
		MonitorInterval:      cfg.Streaming.MonitorInterval,
		RefreshInterval:      cfg.Streaming.RefreshInterval,
		MaxReconnectAttempts: cfg.Streaming.MaxReconnectAttempts,
		ReconnectBaseDelay:   cfg.Streaming.ReconnectBaseDelay,
	}, tr, provider, logger)

	// Console printers, registered before Start so nothing is missed
	mgr.RegisterHandlers("console", session.Handlers{
		OnMarketChange: func(ev transport.Event) { printMarketChange(ev, *verbose) },
		OnOrderChange:  func(ev transport.Event) { printOrderChange(ev, *verbose) },
		OnStatus:       printStatus,
	})

	logger.Info("starting stream session")
	if err := mgr.Start(ctx); err != nil {
		logger.Error("failed to start stream session", "error", err)
		os.Exit(1)
	}

	// Ad-hoc subscriptions on top of the configured filters
	if *markets != "" {
		for _, id := range strings.Split(*markets, ",") {
			id = strings.TrimSpace(id)
			if id == "" {
				continue
			}
			if err := mgr.SubscribeToMarket(ctx, id); err != nil {
				logger.Error("subscribe failed", "market_id", id, "error", err)
			} else {
				logger.Info("subscribed", "market_id", id)
			}
		}
	}

	// Stats printer
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				status := mgr.Status()
				stats := mgr.Stats()
				logger.Info("stats",
					"state", status.State.String(),
					"subscriptions", status.Subscriptions,
					"heartbeats_sent", stats.HeartbeatsSent,
					"heartbeat_failures", stats.HeartbeatFailures,
					"recoveries", stats.Recoveries,
					"events_dispatched", stats.EventsDispatched,
				)
			}
		}
	}()

	logger.Info("streaming started - press Ctrl+C to stop")

	// Wait for shutdown
	<-ctx.Done()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	logger.Info("shutting down...")
	mgr.Stop(shutdownCtx)

	logger.Info("shutdown complete")
}

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

func printMarketChange(ev transport.Event, verbose bool) {
	if verbose {
		printIndented("MCM", ev.Data)
		return
	}

	var frame struct {
		Ct string `json:"ct"`
		MC []struct {
			ID  string          `json:"id"`
			Img bool            `json:"img"`
			TV  float64         `json:"tv"`
			RC  json.RawMessage `json:"rc"`
		} `json:"mc"`
	}
	if err := json.Unmarshal(ev.Data, &frame); err != nil {
		fmt.Printf("[MCM] unparsed %d bytes: %v\n", len(ev.Data), err)
		return
	}

	fmt.Printf("[MCM] ct=%s markets=%d clk=%s pt=%d\n", frame.Ct, len(frame.MC), ev.Clk, ev.PublishTime)
	for _, mc := range frame.MC {
		fmt.Printf("  market=%s img=%v tv=%.2f\n", mc.ID, mc.Img, mc.TV)
	}
}

func printOrderChange(ev transport.Event, verbose bool) {
	if verbose {
		printIndented("OCM", ev.Data)
		return
	}

	var frame struct {
		OC []struct {
			ID string `json:"id"`
		} `json:"oc"`
	}
	if err := json.Unmarshal(ev.Data, &frame); err != nil {
		fmt.Printf("[OCM] unparsed %d bytes: %v\n", len(ev.Data), err)
		return
	}

	fmt.Printf("[OCM] markets=%d clk=%s pt=%d\n", len(frame.OC), ev.Clk, ev.PublishTime)
}

func printStatus(ev transport.Event) {
	s := ev.Status
	if s == nil {
		return
	}
	if s.StatusCode == "FAILURE" {
		fmt.Printf("[STATUS] id=%d code=%s error=%s closed=%v\n", s.ID, s.StatusCode, s.ErrorCode, s.ConnectionClosed)
		return
	}
	fmt.Printf("[STATUS] id=%d code=%s\n", s.ID, s.StatusCode)
}

func printIndented(tag string, data []byte) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		fmt.Printf("[%s] %s\n", tag, data)
		return
	}
	fmt.Printf("[%s] %s\n", tag, buf.Bytes())
}
