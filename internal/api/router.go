package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/sungwon/email-queue/internal/auth"
	"github.com/sungwon/email-queue/internal/email"
	"github.com/sungwon/email-queue/internal/queue"
)

// queueOps is the operator view of the job queue.
type queueOps interface {
	queue.DeadLetterQueue
	queue.Inspector
}

// Deps holds what the router needs. Sender, Limiter and Providers are
// optional.
type Deps struct {
	Service string
	Version string
	Log     zerolog.Logger

	Emails    emailQueuer
	Repo      email.Repository
	Queue     queueOps
	Sender    sentCounter
	Limiter   quotaLimiter
	Providers providerStatuses

	JWT     *auth.JWTService
	APIKeys *auth.KeyStore

	// Readiness checks run by /readyz.
	Checks []ReadinessCheck
}

// NewRouter creates a chi.Mux with all routes, middleware, and handlers configured.
func NewRouter(d Deps) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(CorrelationIDMiddleware)
	r.Use(LoggingMiddleware(d.Log))
	r.Use(MetricsMiddleware)
	r.Use(RecoverMiddleware(d.Log))

	// Health and metrics endpoints (no auth required)
	r.Get("/healthz", HealthzHandler(d.Service, d.Version))
	r.Get("/readyz", ReadyzHandler(d.Checks...))
	r.Handle("/metrics", promhttp.Handler())

	emails := NewEmailHandler(d.Emails, d.Repo, d.Limiter)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(auth.Authenticate(d.JWT, d.APIKeys, d.Log))

		r.Post("/emails", emails.Create)
		r.Post("/email/send", emails.Create)
		r.Get("/emails", emails.List)
		r.Get("/emails/{id}", emails.Get)
		r.Get("/email/stats", EmailStatsHandler(d.Sender, d.Service))
		r.Get("/queue/status", QueueStatusHandler(d.Queue))

		// Operator routes
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(auth.RoleAdmin))

			r.Post("/emails/{id}/retry", emails.Retry)
			r.Delete("/emails/{id}", emails.Delete)
			r.Post("/dlq/reprocess", DLQReprocessHandler(d.Queue))
			if d.Providers != nil {
				r.Get("/providers/health", ProviderHealthHandler(d.Providers))
			}
		})
	})

	return r
}
