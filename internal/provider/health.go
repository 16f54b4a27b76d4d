package provider

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultCheckInterval = 30 * time.Second
	defaultCheckTimeout  = 10 * time.Second
	unhealthyThreshold   = 3
)

// HealthStatus is the last known health of one provider.
type HealthStatus struct {
	Healthy             bool      `json:"healthy"`
	LastCheck           time.Time `json:"last_check"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastError           string    `json:"last_error,omitempty"`
}

// HealthChecker polls every registered provider. A provider becomes
// unhealthy after three consecutive failed checks and healthy again after
// one success.
type HealthChecker struct {
	mu            sync.RWMutex
	registry      *Registry
	statuses      map[string]*HealthStatus
	checkInterval time.Duration
	checkTimeout  time.Duration
	log           zerolog.Logger
	cancel        context.CancelFunc
	stopped       chan struct{}
}

func NewHealthChecker(registry *Registry, interval time.Duration, log zerolog.Logger) *HealthChecker {
	if interval <= 0 {
		interval = defaultCheckInterval
	}
	return &HealthChecker{
		registry:      registry,
		statuses:      make(map[string]*HealthStatus),
		checkInterval: interval,
		checkTimeout:  defaultCheckTimeout,
		log:           log,
	}
}

// Start runs one check immediately and then polls until Stop or ctx ends.
func (hc *HealthChecker) Start(ctx context.Context) {
	ctx, hc.cancel = context.WithCancel(ctx)
	hc.stopped = make(chan struct{})
	go hc.run(ctx)
}

// Stop ends polling and waits for the loop to exit.
func (hc *HealthChecker) Stop() {
	if hc.cancel == nil {
		return
	}
	hc.cancel()
	<-hc.stopped
}

// IsHealthy reports false for providers that were never checked.
func (hc *HealthChecker) IsHealthy(name string) bool {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	status, ok := hc.statuses[name]
	return ok && status.Healthy
}

func (hc *HealthChecker) GetStatus(name string) (HealthStatus, bool) {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	status, ok := hc.statuses[name]
	if !ok {
		return HealthStatus{}, false
	}
	return *status, true
}

func (hc *HealthChecker) GetAllStatuses() map[string]HealthStatus {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	out := make(map[string]HealthStatus, len(hc.statuses))
	for name, status := range hc.statuses {
		out[name] = *status
	}
	return out
}

// CheckAll checks every provider once.
func (hc *HealthChecker) CheckAll(ctx context.Context) {
	for _, p := range hc.registry.All() {
		hc.checkProvider(ctx, p)
	}
}

func (hc *HealthChecker) run(ctx context.Context) {
	defer close(hc.stopped)

	hc.CheckAll(ctx)

	ticker := time.NewTicker(hc.checkInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			hc.CheckAll(ctx)
		}
	}
}

func (hc *HealthChecker) checkProvider(ctx context.Context, p Provider) {
	ctx, cancel := context.WithTimeout(ctx, hc.checkTimeout)
	defer cancel()

	err := p.HealthCheck(ctx)
	name := p.GetName()

	hc.mu.Lock()
	defer hc.mu.Unlock()

	status, ok := hc.statuses[name]
	if !ok {
		status = &HealthStatus{Healthy: true}
		hc.statuses[name] = status
	}
	status.LastCheck = time.Now().UTC()
	wasHealthy := status.Healthy

	if err != nil {
		status.ConsecutiveFailures++
		status.LastError = err.Error()
		if status.ConsecutiveFailures >= unhealthyThreshold {
			status.Healthy = false
		}
	} else {
		status.ConsecutiveFailures = 0
		status.Healthy = true
		status.LastError = ""
	}

	if wasHealthy != status.Healthy {
		ev := hc.log.Info()
		if !status.Healthy {
			ev = hc.log.Warn().Str("last_error", status.LastError)
		}
		ev.Str("provider", name).Bool("healthy", status.Healthy).Msg("provider health changed")
	}
}
