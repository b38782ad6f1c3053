package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/charleschow/trade-bridge/internal/adapters/inbound/webhook"
	"github.com/charleschow/trade-bridge/internal/adapters/outbound/discord"
	"github.com/charleschow/trade-bridge/internal/adapters/outbound/gateway_http"
	"github.com/charleschow/trade-bridge/internal/adapters/outbound/topstep_http"
	"github.com/charleschow/trade-bridge/internal/config"
	"github.com/charleschow/trade-bridge/internal/core/dispatch"
	"github.com/charleschow/trade-bridge/internal/core/execution"
	"github.com/charleschow/trade-bridge/internal/core/execution/lanes"
	"github.com/charleschow/trade-bridge/internal/core/ledger"
	"github.com/charleschow/trade-bridge/internal/core/status"
	"github.com/charleschow/trade-bridge/internal/core/venue"
	"github.com/charleschow/trade-bridge/internal/events"
	"github.com/charleschow/trade-bridge/internal/fanout"
	"github.com/charleschow/trade-bridge/internal/telemetry"
)

func main() {
	cfg := config.Load()
	telemetry.Init(telemetry.ParseLogLevel(cfg.LogLevel))
	telemetry.Infof("Starting trade bridge")

	if cfg.WebhookSecret == "" {
		telemetry.Errorf("WEBHOOK_SECRET is not set; refusing to start")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := events.NewBus()
	bus.OnError(func(e events.Event, err error) {
		telemetry.Warnf("bus: %s handler failed: %v", e.Type, err)
	})

	// ── Venues and lanes ────────────────────────────────────────
	venueCfgs, err := config.LoadVenues(cfg.VenuesPath)
	if err != nil {
		telemetry.Errorf("Failed to load venues: %v", err)
		os.Exit(1)
	}

	router := execution.NewLaneRouter()
	var keepAlive []*topstep_http.Venue
	for _, vc := range venueCfgs {
		v := buildVenue(vc)
		if ts, ok := v.(*topstep_http.Venue); ok && vc.KeepAlive && !vc.Mock {
			keepAlive = append(keepAlive, ts)
		}
		if err := router.Register(lanes.NewLane(vc.LaneConfig(), v)); err != nil {
			telemetry.Errorf("Lane %s: %v", vc.Name, err)
			os.Exit(1)
		}
		telemetry.Infof("Lane registered  venue=%s role=%s kind=%s mock=%v", vc.Name, vc.Role, vc.Kind, vc.Mock)
	}
	primary := router.Primary()

	// ── Ledger ──────────────────────────────────────────────────
	store, err := ledger.Open(ctx, cfg.LedgerDSN)
	if err != nil {
		telemetry.Errorf("Failed to open ledger: %v", err)
		os.Exit(1)
	}
	store.Subscribe(bus)

	// ── Status, stream, alerts ──────────────────────────────────
	tracker := status.NewTracker(router)
	tracker.Subscribe(bus)

	stream := fanout.NewServer(bus)

	alerter := discord.NewAlerter(discord.NewNotifier(cfg.DiscordWebhookURL), primary.Name)
	alerter.Subscribe(bus)

	// ── Execution ───────────────────────────────────────────────
	engine := execution.NewEngine()
	pool := dispatch.NewPool(cfg.DispatchWorkers, cfg.DispatchQueue)
	dispatcher := dispatch.New(bus, router, engine, pool, cfg.DispatchTimeout)
	service := execution.NewService(bus, router, engine, dispatcher)

	// ── HTTP ────────────────────────────────────────────────────
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if err := telemetry.RegisterPrometheus(reg); err != nil {
		telemetry.Errorf("Metrics registration: %v", err)
		os.Exit(1)
	}

	handler := webhook.NewHandler(webhook.NewAuthenticator(cfg.WebhookSecret), service, tracker, router, cfg.AdminSecret)
	handler.OnPanic = func(v any) { alerter.Panic("Webhook", v) }

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /ws", stream.HandleWS)

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			telemetry.Errorf("HTTP server: %v", err)
			os.Exit(1)
		}
	}()
	telemetry.Infof("Webhook listening on %q", addr)

	// ── Connect venues ──────────────────────────────────────────
	connectAll(ctx, router.All())
	tracker.MarkReady()

	var wg sync.WaitGroup
	for _, ts := range keepAlive {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ts.KeepAlive(ctx, topstep_http.KeepAliveInterval)
		}()
	}

	// ── Shutdown ────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	telemetry.Infof("Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	server.Shutdown(shutdownCtx)

	// Stop accepting webhooks first, then let queued secondary tasks finish
	// so their results still reach the ledger.
	pool.Close()
	wg.Wait()
	alerter.Wait()
	store.Close()

	telemetry.Infof("Shutdown complete  signals=%d  orders=%d  errors=%d  retries=%d  skipped=%d  dropped=%d  primary_p50=%v  primary_p99=%v",
		telemetry.Metrics.SignalsReceived.Value(),
		telemetry.Metrics.OrdersSent.Value(),
		telemetry.Metrics.OrderErrors.Value(),
		telemetry.Metrics.OrderRetries.Value(),
		telemetry.Metrics.DispatchSkipped.Value(),
		telemetry.Metrics.DispatchDropped.Value(),
		telemetry.Metrics.PrimaryLatency.P50(),
		telemetry.Metrics.PrimaryLatency.P99(),
	)
}

func buildVenue(vc config.VenueConfig) venue.Venue {
	timeout := time.Duration(vc.Retry.AttemptTimeoutMs) * time.Millisecond
	switch vc.Kind {
	case config.KindTopstep:
		return topstep_http.New(topstep_http.Options{
			Name:      vc.Name,
			BaseURL:   vc.BaseURL,
			APIKey:    vc.APIKey,
			AccountID: vc.AccountID,
			Timeout:   timeout,
		})
	default:
		return gateway_http.New(gateway_http.Options{
			Name:      vc.Name,
			BaseURL:   vc.BaseURL,
			APIKey:    vc.APIKey,
			APISecret: vc.APISecret,
			Timeout:   timeout,
			Bracket:   vc.Bracket,
		})
	}
}

// connectAll validates every non-mock venue once at startup. Failures are
// logged only: the engine reconnects on the next signal.
func connectAll(ctx context.Context, ls []*lanes.Lane) {
	var wg sync.WaitGroup
	for _, l := range ls {
		if l.Mock {
			telemetry.Infof("%s running in MOCK MODE; no connection check", l.Name)
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			if err := l.Venue.Connect(cctx); err != nil {
				telemetry.Warnf("%s: initial connect failed: %v", l.Name, err)
			}
		}()
	}
	wg.Wait()
}
