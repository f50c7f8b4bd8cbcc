package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/use-agent/haunt/alert"
	"github.com/use-agent/haunt/browser"
	"github.com/use-agent/haunt/config"
	"github.com/use-agent/haunt/loader"
	"github.com/use-agent/haunt/metrics"
	"github.com/use-agent/haunt/notify"
	"github.com/use-agent/haunt/ops"
	"github.com/use-agent/haunt/schedule"
	"github.com/use-agent/haunt/storage"
)

func main() {
	// ── 1. Load configuration ───────────────────────────────────────
	cfg := config.Load()

	// ── 2. Initialise structured logging ────────────────────────────
	initLogger(cfg.Log)
	slog.Info("hauntd starting",
		"targetsFile", cfg.TargetsFile,
		"tick", cfg.Schedule.TickInterval,
		"poolMax", cfg.Pool.MaxSize,
	)

	// ── 3. Seed the target store ────────────────────────────────────
	store, err := storage.LoadTargetsFile(cfg.TargetsFile)
	if err != nil {
		slog.Error("failed to load targets", "error", err)
		os.Exit(1)
	}

	// ── 4. Browser manager + rendering pool ─────────────────────────
	manager := browser.NewManager(cfg.Browser)
	defer manager.Close()
	pool := browser.NewPool(cfg.Pool.MaxSize, manager.NewPage)
	defer pool.Shutdown()

	// ── 5. Page loader with SSRF guard ──────────────────────────────
	ld := loader.New(cfg.Loader, nil)

	// ── 6. Optional collaborators ───────────────────────────────────
	var evaluator alert.Evaluator
	if cfg.Alert.Enabled {
		evaluator = alert.NewClient(cfg.Alert, nil)
		slog.Info("AI alert evaluator enabled", "model", cfg.Alert.Model)
	}
	publisher := notify.NewWebhook(cfg.Notify, nil)
	registry := metrics.NewRegistry()

	// ── 7. Schedule coordinator ─────────────────────────────────────
	coord := schedule.New(schedule.Options{
		Pool:      pool,
		Loader:    ld,
		Store:     store,
		Sink:      registry,
		Evaluator: evaluator,
		Publisher: publisher,
		Retry: schedule.RetryPolicy{
			MaxAttempts: cfg.Schedule.MaxAttempts,
			BaseDelay:   cfg.Schedule.RetryBaseDelay,
			MaxDelay:    cfg.Schedule.RetryMaxDelay,
			Jitter:      cfg.Schedule.RetryJitter,
		},
		ManualCooldown: cfg.Schedule.ManualCooldown,
		ExcerptTokens:  cfg.Alert.MaxExcerptTokens,
	})

	// ── 8. Optional ops HTTP surface ────────────────────────────────
	var opsSrv *ops.Server
	if cfg.Ops.Enabled {
		router := ops.NewRouter(pool, coord, registry, time.Now())
		opsSrv = ops.NewServer(cfg.Ops, router)
		go func() {
			slog.Info("ops server listening", "host", cfg.Ops.Host, "port", cfg.Ops.Port)
			if err := opsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("ops server error", "error", err)
				os.Exit(1)
			}
		}()
	}

	// ── 9. Tick loop ────────────────────────────────────────────────
	runCtx, cancelRuns := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(cfg.Schedule.TickInterval)
		defer ticker.Stop()

		// Sweep once at startup so fresh targets run immediately.
		coord.RunDue(runCtx)
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				coord.RunDue(runCtx)
			}
		}
	}()

	// ── 10. Graceful shutdown ───────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutdown signal received", "signal", sig.String())

	cancelRuns()
	select {
	case <-done:
	case <-time.After(cfg.Loader.LoadTimeout + 5*time.Second):
		slog.Warn("in-flight runs did not drain in time")
	}

	if opsSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := opsSrv.Shutdown(ctx); err != nil {
			slog.Error("ops server forced shutdown", "error", err)
		}
	}

	// pool.Shutdown and manager.Close run via defer.
	slog.Info("hauntd stopped")
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
