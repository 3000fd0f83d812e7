package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/loomworks/loom/internal/actor"
	"github.com/loomworks/loom/internal/archive"
	"github.com/loomworks/loom/internal/config"
	"github.com/loomworks/loom/internal/eventbuf"
	"github.com/loomworks/loom/internal/events"
	"github.com/loomworks/loom/internal/nonce"
	"github.com/loomworks/loom/internal/server"
	"github.com/loomworks/loom/internal/store"
	"github.com/loomworks/loom/internal/store/memory"
	"github.com/loomworks/loom/internal/store/postgres"
	"github.com/loomworks/loom/internal/triage"
	"github.com/spf13/cobra"
)

var devMode bool

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Start the loom server",
	GroupID: "system",
	// Override PersistentPreRunE so we don't create an HTTP client.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
		slog.SetDefault(logger)

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		// Durable store.
		var st store.Store
		if devMode {
			st = memory.New()
			logger.Info("dev mode: using in-memory store")
		} else {
			if cfg.DatabaseURL == "" {
				return fmt.Errorf("LOOM_DATABASE_URL is required (or pass --dev)")
			}
			pg, err := postgres.New(cfg.DatabaseURL)
			if err != nil {
				return err
			}
			st = pg
		}

		// Event publisher and nonce store share the NATS connection.
		var publisher events.Publisher
		var nonces nonce.Store
		if cfg.NATSURL != "" {
			pub, err := events.NewNATSPublisher(cfg.NATSURL)
			if err != nil {
				st.Close()
				return err
			}
			publisher = pub
			logger.Info("events enabled", "nats_url", cfg.NATSURL)

			nonces, err = nonce.NewKVStore(pub.Conn(), cfg.NonceTTL)
			if err != nil {
				pub.Close()
				st.Close()
				return err
			}
			logger.Info("nonce store: NATS KV")
		} else {
			publisher = &events.NoopPublisher{}
			nonces = nonce.NewMemoryStore(cfg.NonceTTL, time.Now)
			logger.Info("events disabled (LOOM_NATS_URL not set); nonce store: memory")
		}

		// Triage collaborators.
		var classifier triage.Classifier = triage.UnsortedClassifier{}
		if cfg.ClassifierURL != "" {
			classifier = triage.NewHTTPClassifier(cfg.ClassifierURL)
			logger.Info("classifier enabled", "url", cfg.ClassifierURL)
		}
		var mailer triage.Mailer = triage.LogMailer{}
		if cfg.DigestWebhookURL != "" {
			mailer = triage.NewWebhookMailer(cfg.DigestWebhookURL)
			logger.Info("digest webhook enabled", "url", cfg.DigestWebhookURL)
		}

		pipeline := triage.New(st, classifier, mailer, publisher, nil)

		registry := actor.NewRegistry(actor.Deps{
			Store:     st,
			Publisher: publisher,
			Pipeline:  pipeline,
			Tiers:     cfg.Tiers,
			BufferOpts: eventbuf.Options{
				Threshold: cfg.FlushThreshold,
				MaxAge:    cfg.FlushMaxAge,
			},
		})

		// HTTP server.
		loomServer := server.New(registry, st, nonces)
		httpServer := &http.Server{
			Addr:    cfg.HTTPAddr,
			Handler: loomServer.NewHTTPHandler(cfg.AuthToken),
		}

		go func() {
			logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("HTTP server error", "err", err)
			}
		}()

		// Archive scheduler when a destination is configured.
		var archiver *archive.Scheduler
		if cfg.ArchiveInterval > 0 && cfg.ArchiveS3Bucket != "" {
			s3Dest, err := archive.NewS3Destination(
				context.Background(),
				cfg.ArchiveS3Bucket,
				cfg.ArchiveS3Prefix,
				cfg.ArchiveS3Region,
				cfg.ArchiveS3Endpoint,
			)
			if err != nil {
				logger.Error("failed to create S3 archive destination", "err", err)
			} else {
				archiver = archive.NewScheduler(st, []archive.Destination{s3Dest}, cfg.ArchiveInterval, logger)
				archiver.Start()
				logger.Info("archive scheduler started",
					"bucket", cfg.ArchiveS3Bucket, "interval", cfg.ArchiveInterval)
			}
		}

		logger.Info("loom server started", "http_addr", cfg.HTTPAddr)

		// Wait for SIGINT or SIGTERM.
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)

		// Graceful shutdown. Actors flush their buffers before the
		// store closes.
		if archiver != nil {
			archiver.Stop()
			logger.Info("archive scheduler stopped")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "err", err)
		}
		logger.Info("HTTP server stopped")

		if err := registry.Shutdown(shutdownCtx); err != nil {
			logger.Error("actor shutdown error", "err", err)
		}
		logger.Info("actors stopped")

		if err := nonces.Close(); err != nil {
			logger.Error("error closing nonce store", "err", err)
		}
		if err := publisher.Close(); err != nil {
			logger.Error("error closing publisher", "err", err)
		}
		if err := st.Close(); err != nil {
			logger.Error("error closing store", "err", err)
		}

		logger.Info("shutdown complete")
		return nil
	},
}

func init() {
	serveCmd.Flags().BoolVar(&devMode, "dev", false, "run with an in-memory store (no PostgreSQL)")
}
