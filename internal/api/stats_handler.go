package api

import (
	"net/http"
	"time"

	"github.com/sungwon/email-queue/internal/logger"
	"github.com/sungwon/email-queue/internal/provider"
	"github.com/sungwon/email-queue/internal/queue"
)

// sentCounter reports the sends made by this process.
type sentCounter interface {
	TotalSent() int64
}

// QueueStatusHandler handles GET /api/v1/queue/status.
func QueueStatusHandler(inspector queue.Inspector) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, err := inspector.Status(r.Context())
		if err != nil {
			log := logger.FromContext(r.Context())
			log.Error().Err(err).Msg("queue status failed")
			respondError(w, http.StatusServiceUnavailable, codeUnavailable, "queue status unavailable")
			return
		}
		respondJSON(w, http.StatusOK, status)
	}
}

type emailStatsResponse struct {
	TotalEmailsSent int64  `json:"totalEmailsSent"`
	Timestamp       string `json:"timestamp"`
	Service         string `json:"service"`
}

// EmailStatsHandler handles GET /api/v1/email/stats. sender is nil when
// no worker runs in this process, and the total is then 0.
func EmailStatsHandler(sender sentCounter, service string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var total int64
		if sender != nil {
			total = sender.TotalSent()
		}
		respondJSON(w, http.StatusOK, emailStatsResponse{
			TotalEmailsSent: total,
			Timestamp:       time.Now().UTC().Format(time.RFC3339),
			Service:         service,
		})
	}
}

// providerStatuses reports the last health check of each provider.
type providerStatuses interface {
	GetAllStatuses() map[string]provider.HealthStatus
}

// ProviderHealthHandler handles GET /api/v1/providers/health.
func ProviderHealthHandler(checker providerStatuses) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, checker.GetAllStatuses())
	}
}
