package api

import (
	"context"
	"net/http"
	"time"
)

// ReadinessCheck is a named dependency check run by /readyz.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

const readinessTimeout = 3 * time.Second

// HealthzHandler handles GET /healthz.
// Always returns 200 OK while the process is serving.
func HealthzHandler(service, version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{
			"status":    "ok",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"service":   service,
			"version":   version,
		})
	}
}

// ReadyzHandler handles GET /readyz.
// Runs every check; returns 200 if all pass, 503 with a Retry-After
// header naming the failed checks otherwise.
func ReadyzHandler(checks ...ReadinessCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		results := make(map[string]string, len(checks))
		ready := true
		for _, c := range checks {
			if err := c.Check(ctx); err != nil {
				results[c.Name] = err.Error()
				ready = false
				continue
			}
			results[c.Name] = "ok"
		}

		if !ready {
			w.Header().Set("Retry-After", "30")
			respondJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
				"status": "unavailable",
				"checks": results,
			})
			return
		}
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"status": "ok",
			"checks": results,
		})
	}
}
