package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sungwon/email-queue/internal/api"
	"github.com/sungwon/email-queue/internal/bootstrap"
	"github.com/sungwon/email-queue/internal/config"
	"github.com/sungwon/email-queue/internal/delivery"
	"github.com/sungwon/email-queue/internal/logger"
	"github.com/sungwon/email-queue/internal/queue"
	"github.com/sungwon/email-queue/internal/storage"
	"github.com/sungwon/email-queue/internal/worker"
)

const (
	serviceName = "email-queue-api"
	version     = "1.0.0"
)

func main() {
	// Load configuration
	cfg, err := config.Load("config")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.NewFromConfig(cfg.LoggerSettings(serviceName))
	log.Info().Bool("embedded_worker", cfg.Worker.Embedded).Msg("starting API server")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Email repository
	repo, err := storage.NewRepository(ctx, cfg.StorageSettings(), log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open email repository")
	}
	defer repo.Close()

	// Delivery runs in this process only with an embedded worker.
	var (
		handler   queue.JobHandler
		sent      *delivery.ProviderSender
		providers *bootstrap.Delivery
	)
	if cfg.Worker.Embedded {
		providers, err = bootstrap.NewDelivery(ctx, cfg, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to configure delivery provider")
		}
		defer providers.Stop()
		sent = providers.Sender
		handler = worker.NewProcessor(delivery.NewSendService(repo, providers.Sender, log), log)
	}

	q, err := queue.NewQueue(ctx, cfg.Queue, handler, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create queue")
	}
	defer q.Close()

	if q.Dequeuer != nil {
		if err := q.Dequeuer.Start(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to start embedded worker")
		}
		log.Info().Str("queue", q.Backend()).Msg("embedded worker started")
	}

	jwtService, apiKeys, err := bootstrap.NewAuth(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to configure authentication")
	}
	limiter, closeLimiter := bootstrap.NewRateLimiter(ctx, cfg, log)
	defer closeLimiter()

	deps := api.Deps{
		Service: serviceName,
		Version: version,
		Log:     log,
		Emails:  delivery.NewQueueService(repo, q, cfg.Delivery.DefaultFrom, log),
		Repo:    repo,
		Queue:   q,
		JWT:     jwtService,
		APIKeys: apiKeys,
		Checks: []api.ReadinessCheck{
			{Name: "repository", Check: repo.Ping},
			{Name: "queue", Check: q.Ping},
		},
	}
	// Typed nils must not reach the interface fields.
	if sent != nil {
		deps.Sender = sent
	}
	if limiter != nil {
		deps.Limiter = limiter
	}
	if providers != nil && providers.Health != nil {
		deps.Providers = providers.Health
	}

	// Configure HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      api.NewRouter(deps),
		ReadTimeout:  cfg.API.ReadTimeout,
		WriteTimeout: cfg.API.WriteTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", addr).Msg("API server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info().Str("signal", sig.String()).Msg("shutting down server")

	// Graceful shutdown with 30-second timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	if q.Dequeuer != nil {
		if err := q.Dequeuer.Stop(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("embedded worker did not stop cleanly")
		}
	}

	log.Info().Msg("server stopped")
}
