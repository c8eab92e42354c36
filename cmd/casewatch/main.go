// Casewatch - cyber-fraud complaint intake and case tracking.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/opensource-finance/casewatch/internal/api"
	"github.com/opensource-finance/casewatch/internal/auth"
	"github.com/opensource-finance/casewatch/internal/bus"
	"github.com/opensource-finance/casewatch/internal/cache"
	"github.com/opensource-finance/casewatch/internal/complaint"
	"github.com/opensource-finance/casewatch/internal/dashboard"
	"github.com/opensource-finance/casewatch/internal/domain"
	"github.com/opensource-finance/casewatch/internal/lifecycle"
	"github.com/opensource-finance/casewatch/internal/live"
	"github.com/opensource-finance/casewatch/internal/notify"
	"github.com/opensource-finance/casewatch/internal/policy"
	"github.com/opensource-finance/casewatch/internal/repository"
	"github.com/opensource-finance/casewatch/internal/telemetry"
	"github.com/opensource-finance/casewatch/internal/velocity"
	"github.com/opensource-finance/casewatch/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
		os.Exit(1)
	}

	cfg, err := domain.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	slog.SetDefault(newLogger(cfg.Logging))
	slog.Info("starting casewatch",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"sender", cfg.Notification.Sender,
		"policy", cfg.Policy.Mode,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("casewatch stopped with error", "error", err)
		os.Exit(1)
	}
	slog.Info("casewatch shutdown complete")
}

func run(ctx context.Context, cfg *domain.Config) error {
	shutdownTracing, err := telemetry.Setup(ctx, cfg.Tracing, Version)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			slog.Warn("failed to flush traces", "error", err)
		}
	}()

	repo, err := repository.New(cfg.Repository)
	if err != nil {
		return fmt.Errorf("init repository: %w", err)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		return fmt.Errorf("init cache: %w", err)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		return fmt.Errorf("init event bus: %w", err)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Peers hold their own L1 copies; deletes must reach them.
	if tp, ok := cacheImpl.(*cache.TwoPhaseCache); ok {
		if err := tp.Attach(ctx, busImpl); err != nil {
			return fmt.Errorf("attach cache to event bus: %w", err)
		}
	}

	// Delivery
	router, err := notify.NewRouterFromConfig(ctx, cfg.Notification)
	if err != nil {
		return fmt.Errorf("init senders: %w", err)
	}
	deliveryWorker := worker.NewWorker(busImpl, repo, router, worker.Config{
		MaxAttempts: cfg.Notification.MaxAttempts,
		RetryDelay:  cfg.Notification.RetryDelay,
	})
	if err := deliveryWorker.Start(); err != nil {
		return fmt.Errorf("start delivery worker: %w", err)
	}
	slog.Info("delivery worker started", "sender", cfg.Notification.Sender)

	channels, err := notify.ParseChannels(cfg.Notification.Channels)
	if err != nil {
		return err
	}
	notifier := notify.NewNotifier(notify.NewBusDispatcher(repo, busImpl), channels)

	// Case handling
	guard, err := policy.New(cfg.Policy)
	if err != nil {
		return fmt.Errorf("init transition policy: %w", err)
	}
	if expr, ok := guard.(*policy.CEL); ok {
		slog.Info("transition policy compiled", "expression", expr.Expression())
	}
	manager := lifecycle.NewManager(repo, notifier,
		lifecycle.WithPolicy(guard),
		lifecycle.WithCache(cacheImpl),
		lifecycle.WithEventBus(busImpl),
	)

	complaints := complaint.NewService(repo,
		complaint.WithThrottle(velocity.NewService(cacheImpl, repo, cfg.Intake)),
		complaint.WithAcknowledger(notifier),
		complaint.WithCache(cacheImpl, cfg.Cache.ComplaintTTL),
		complaint.WithEventBus(busImpl),
	)

	stats := dashboard.NewService(repo, dashboard.WithCache(cacheImpl, cfg.Cache.StatsTTL))
	if err := stats.Watch(ctx, busImpl); err != nil {
		return fmt.Errorf("watch case events: %w", err)
	}
	defer stats.Close()

	feed := live.NewFeed(cfg.Server.AllowedOrigins...)
	if err := feed.Watch(ctx, busImpl); err != nil {
		return fmt.Errorf("watch live feed: %w", err)
	}

	authSvc, err := auth.NewService(repo, cfg.Auth)
	if err != nil {
		return fmt.Errorf("init auth: %w", err)
	}
	if err := authSvc.EnsureAdmin(ctx, cfg.Auth.AdminUsername, cfg.Auth.AdminPassword); err != nil {
		return fmt.Errorf("bootstrap admin: %w", err)
	}

	srv := api.NewServer(cfg.Server, api.Deps{
		Complaints:    complaints,
		Lifecycle:     manager,
		Dashboard:     stats,
		Auth:          authSvc,
		Notifications: repo,
		Live:          feed,
		Repo:          repo,
		Cache:         cacheImpl,
		Bus:           busImpl,
	}, Version)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	slog.Info("casewatch is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)
	printBanner(cfg, Version)

	select {
	case <-ctx.Done():
		slog.Info("shutting down...")
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Hijacked websocket connections are not closed by Shutdown.
	feed.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	// Stop taking deliveries last so in-flight transitions can still queue.
	if err := deliveryWorker.Stop(); err != nil {
		slog.Error("failed to stop delivery worker", "error", err)
	}
	return nil
}

func newLogger(cfg domain.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if os.Getenv(domain.EnvPrefix+"DEBUG") == "true" {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  +-------------------------------------------+")
	fmt.Println("  |               CASEWATCH                   |")
	fmt.Println("  |   Cyber-fraud complaints, tracked end to  |")
	fmt.Println("  |   end from filing to refund.              |")
	fmt.Println("  +-------------------------------------------+")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /complaints                    - File a complaint")
	fmt.Println("    POST /complaints/track              - Track a complaint (victim)")
	fmt.Println("    GET  /statuses                      - Status labels and progress")
	fmt.Println("    POST /auth/login                    - Officer login")
	fmt.Println("    GET  /complaints                    - List complaints")
	fmt.Println("    GET  /complaints/{id}               - Get a complaint")
	fmt.Println("    GET  /complaints/{id}/updates       - Case history")
	fmt.Println("    POST /complaints/{id}/transitions   - Change status")
	fmt.Println("    GET  /complaints/{id}/notifications - Victim notifications")
	fmt.Println("    GET  /dashboard/stats               - Dashboard statistics")
	fmt.Println("    GET  /auth/session                  - Current officer")
	fmt.Println("    GET  /live                          - Live case feed (websocket)")
	fmt.Println("    POST /officers                      - Create officer (admin)")
	fmt.Println("    GET  /health, /ready, /metrics      - Probes and metrics")
	fmt.Println()
}
