package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

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
	serviceName = "email-queue-worker"
	version     = "1.0.0"
)

func main() {
	cfg, err := config.Load("config")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.Storage.Backend == storage.BackendMemory || cfg.Storage.Backend == "" {
		fmt.Fprintln(os.Stderr, "queue-worker needs a shared repository; set storage.backend to postgres")
		os.Exit(1)
	}
	// The standalone worker is the consumer, whatever the API is told.
	cfg.Worker.Embedded = true
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewFromConfig(cfg.LoggerSettings(serviceName))
	log.Info().Msg("starting queue worker")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repo, err := storage.NewRepository(ctx, cfg.StorageSettings(), log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open email repository")
	}
	defer repo.Close()

	d, err := bootstrap.NewDelivery(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to configure delivery provider")
	}
	defer d.Stop()

	// Create job processor with delivery logic.
	processor := worker.NewProcessor(delivery.NewSendService(repo, d.Sender, log), log)

	q, err := queue.NewQueue(ctx, cfg.Queue, processor, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create queue")
	}
	defer q.Close()

	if err := q.Dequeuer.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start worker")
	}
	log.Info().
		Str("queue", q.Backend()).
		Int("workers", cfg.Queue.WorkerCount).
		Msg("queue worker started")

	// Health and metrics listener.
	ops := chi.NewRouter()
	ops.Get("/healthz", api.HealthzHandler(serviceName, version))
	ops.Get("/readyz", api.ReadyzHandler(
		api.ReadinessCheck{Name: "repository", Check: repo.Ping},
		api.ReadinessCheck{Name: "queue", Check: q.Ping},
	))
	ops.Get("/stats", api.EmailStatsHandler(d.Sender, serviceName))
	ops.Handle("/metrics", promhttp.Handler())

	opsSrv := &http.Server{Addr: cfg.Worker.OpsAddr, Handler: ops, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.Info().Str("addr", cfg.Worker.OpsAddr).Msg("ops listener started")
		if err := opsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("ops listener error")
		}
	}()

	// Wait for interrupt signal for graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down queue worker")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := q.Dequeuer.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("worker did not stop cleanly")
	}
	_ = opsSrv.Shutdown(shutdownCtx)

	log.Info().Int64("sent", d.Sender.TotalSent()).Msg("queue worker stopped")
}
