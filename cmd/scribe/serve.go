package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/scribe/internal/api"
	"github.com/MikeSquared-Agency/scribe/internal/config"
	"github.com/MikeSquared-Agency/scribe/internal/hermes"
	"github.com/MikeSquared-Agency/scribe/internal/processor"
	"github.com/MikeSquared-Agency/scribe/internal/slack"
	"github.com/MikeSquared-Agency/scribe/internal/store"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and NATS worker",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context())
		},
	}
}

func serve(parent context.Context) error {
	cfg := config.Load()
	logger := slog.Default()

	logger.Info("scribe starting", "port", cfg.Port, "provider", cfg.Provider, "model", cfg.Model)

	ctx, stop := signal.NotifyContext(contextOrBackground(parent), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gen, err := newGenerator(cfg, logger)
	if err != nil {
		return err
	}

	// Database (optional: without it artifacts are returned but not kept)
	var (
		db        *store.Store
		writer    processor.ArtifactWriter
		artifacts api.ArtifactReader
	)
	if cfg.DatabaseURL != "" {
		db, err = store.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer db.Close()
		if err := db.Migrate(ctx); err != nil {
			return err
		}
		writer, artifacts = db, db
		logger.Info("database connected")
	} else {
		logger.Warn("DATABASE_URL not set, artifacts will not be persisted")
	}

	// NATS/Hermes
	var (
		hermesClient *hermes.Client
		publisher    processor.Publisher
		connected    func() bool
	)
	if cfg.NatsURL != "" {
		hermesClient, err = hermes.NewClient(ctx, cfg.NatsURL, cfg.NatsToken, logger)
		if err != nil {
			return fmt.Errorf("connect to NATS: %w", err)
		}
		defer hermesClient.Close()
		publisher, connected = hermesClient, hermesClient.Connected
		logger.Info("NATS connected", "url", cfg.NatsURL)
	}

	// Slack (optional)
	var notifier processor.Notifier
	if cfg.SlackBotToken != "" && cfg.SlackChannel != "" {
		notifier = slack.NewPoster(cfg.SlackBotToken, cfg.SlackChannel, logger)
		logger.Info("slack poster ready", "channel", cfg.SlackChannel)
	}

	proc := processor.New(gen, writer, publisher, notifier, cfg.BatchTimeout, logger).WithContext(ctx)

	if hermesClient != nil {
		if err := hermesClient.QueueSubscribe(hermes.SubjectGenerateRequested, hermes.QueueGroup, proc.HandleGenerateRequested); err != nil {
			return err
		}
	}

	if cfg.APIToken == "" {
		logger.Warn("SCRIBE_API_TOKEN not set, API routes are unauthenticated")
	}
	srv := api.NewServer(cfg.Port, cfg.APIToken, api.Deps{
		Jobs:      proc,
		Artifacts: artifacts,
		Keys:      gen,
		Connected: connected,
		Provider:  cfg.Provider,
		Model:     cfg.Model,
		Logger:    logger,
	})
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	if hermesClient != nil {
		if err := hermesClient.Publish(hermes.SubjectRegistered, map[string]any{
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"port":      cfg.Port,
			"provider":  cfg.Provider,
		}); err != nil {
			logger.Warn("failed to publish registration", "error", err)
		}
	}

	logger.Info("scribe ready", "port", cfg.Port)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("HTTP server: %w", err)
		}
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown", "error", err)
	}
	proc.Wait()
	logger.Info("scribe stopped")
	return nil
}

func contextOrBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
