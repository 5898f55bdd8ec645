package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/promptvault/internal/api"
	"github.com/MikeSquared-Agency/promptvault/internal/hermes"
	"github.com/MikeSquared-Agency/promptvault/internal/importer"
	"github.com/MikeSquared-Agency/promptvault/internal/metrics"
	"github.com/MikeSquared-Agency/promptvault/internal/progress"
	"github.com/MikeSquared-Agency/promptvault/internal/slack"
	"github.com/MikeSquared-Agency/promptvault/internal/store"
)

const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the import API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveRun()
	},
}

func serveRun() error {
	setupLogging(cfg.LogLevel, os.Stdout)
	logger := slog.Default()
	logger.Info("promptvault starting", "port", cfg.Port)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	// Database
	st, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("open prompt store: %w", err)
	}
	defer st.Close()
	logger.Info("prompt store ready")

	// NATS/Hermes is optional: progress mirror, finished events and the shared cache.
	var bus *hermes.Client
	if cfg.NatsURL != "" {
		bus, err = hermes.NewClient(ctx, cfg.NatsURL, cfg.NatsToken, logger)
		if err != nil {
			return fmt.Errorf("connect to NATS: %w", err)
		}
		defer bus.Close()
		logger.Info("NATS connected", "url", cfg.NatsURL)
	}

	trackerOpts := []progress.Option{progress.WithLogger(logger)}
	if bus != nil {
		trackerOpts = append(trackerOpts, progress.WithSink(bus))
	}
	tracker := progress.NewTracker(trackerOpts...)
	defer tracker.Close()

	importerOpts := []importer.Option{
		importer.WithMetrics(m),
		importer.WithLogger(logger),
		importer.WithDuplicateCheckLimit(cfg.Import.DuplicateCheckLimit),
	}
	if bus != nil {
		importerOpts = append(importerOpts, importer.WithEvents(bus))
	}
	if cfg.SlackBotToken != "" && cfg.SlackChannel != "" {
		importerOpts = append(importerOpts, importer.WithNotifier(slack.NewPoster(cfg.SlackBotToken, cfg.SlackChannel, logger)))
		logger.Info("slack poster ready", "channel", cfg.SlackChannel)
	} else {
		logger.Warn("slack not configured, import summaries will not be posted")
	}

	imp := importer.New(
		tracker,
		newOrchestrator(m, logger),
		st,
		newQuota(st, cfg.Quota),
		newCategorizer(ctx, cfg, bus, m, logger),
		importerOpts...,
	)

	srv := api.NewServer(cfg.Port, cfg.APIToken, api.Deps{
		Importer:       imp,
		Tracker:        tracker,
		Metrics:        m,
		Logger:         logger,
		Defaults:       batchOptions(cfg.Import),
		MaxUploadBytes: cfg.Import.MaxUploadBytes,
	})
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	if bus != nil {
		if err := bus.Publish("swarm.agent.promptvault.registered", map[string]any{
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"port":      cfg.Port,
		}); err != nil {
			logger.Warn("failed to publish registration", "error", err)
		}
	}

	logger.Info("promptvault ready", "port", cfg.Port)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("HTTP server: %w", err)
		}
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown", "error", err)
	}

	done := make(chan struct{})
	go func() {
		imp.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		logger.Warn("imports still running at shutdown")
	}
	logger.Info("promptvault stopped")
	return nil
}
