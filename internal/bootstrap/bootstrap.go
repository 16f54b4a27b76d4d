// Package bootstrap provides startup-time initialization routines shared by
// the API server and the queue worker.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/sungwon/email-queue/internal/auth"
	"github.com/sungwon/email-queue/internal/config"
	"github.com/sungwon/email-queue/internal/delivery"
	"github.com/sungwon/email-queue/internal/msgstore"
	"github.com/sungwon/email-queue/internal/provider"
)

// Delivery is the configured provider together with the sender that wraps it.
type Delivery struct {
	Provider provider.Provider
	Sender   *delivery.ProviderSender
	// Health is nil when provider.health_interval is zero.
	Health *provider.HealthChecker
}

// Stop ends the provider health check, if one is running.
func (d *Delivery) Stop() {
	if d.Health != nil {
		d.Health.Stop()
	}
}

// NewDelivery builds the configured provider and its sender and starts the
// provider health check.
func NewDelivery(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Delivery, error) {
	providerCfg := cfg.ProviderSettings()

	var deps provider.Deps
	if providerCfg.Type == provider.TypeFile {
		store, err := msgstore.New(ctx, cfg.MessageStoreSettings(), log)
		if err != nil {
			return nil, fmt.Errorf("message store: %w", err)
		}
		deps.Store = store
	}

	p, err := provider.NewProvider(ctx, providerCfg, deps)
	if err != nil {
		return nil, err
	}
	log.Info().Str("provider", p.GetName()).Msg("delivery provider configured")

	d := &Delivery{
		Provider: p,
		Sender:   delivery.NewProviderSender(p, cfg.Delivery.SendTimeout, log),
	}

	if cfg.Provider.HealthInterval > 0 {
		registry := provider.NewRegistry()
		registry.Register(p)
		d.Health = provider.NewHealthChecker(registry, cfg.Provider.HealthInterval, log)
		d.Health.Start(ctx)
	}
	return d, nil
}

// NewAuth builds the JWT service and the API key store.
func NewAuth(cfg *config.Config, log zerolog.Logger) (*auth.JWTService, *auth.KeyStore, error) {
	jwtCfg := cfg.Auth.JWT
	if jwtCfg.SigningKey == "" || jwtCfg.SigningKey == "change-me-in-production-32-bytes!!" {
		log.Warn().Msg("JWT signing key is not set or using default value; set EMAIL_QUEUE_AUTH_JWT_SIGNING_KEY in production")
	}

	keys, err := auth.NewKeyStore(cfg.Auth.APIKeys)
	if err != nil {
		return nil, nil, fmt.Errorf("api keys: %w", err)
	}
	log.Info().Int("api_keys", keys.Len()).Msg("authentication configured")
	return auth.NewJWTService(jwtCfg), keys, nil
}

// NewRateLimiter returns the per-client daily quota limiter. It returns a
// nil limiter and a no-op close when rate limiting is disabled or has no
// Redis to count in.
func NewRateLimiter(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*auth.RateLimiter, func()) {
	addr := cfg.RateLimitRedisAddr()
	if cfg.RateLimit.DailyLimit <= 0 || addr == "" {
		log.Info().Msg("rate limiting disabled")
		return nil, func() {}
	}

	password, db := cfg.RateLimit.RedisPassword, cfg.RateLimit.RedisDB
	if cfg.RateLimit.RedisAddr == "" {
		password, db = cfg.Queue.RedisPassword, cfg.Queue.RedisDB
	}
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn().Err(err).Str("addr", addr).Msg("rate limit redis unreachable; requests are allowed until it recovers")
	}

	log.Info().Int("daily_limit", cfg.RateLimit.DailyLimit).Str("addr", addr).Msg("rate limiter initialized")
	limiter := auth.NewRateLimiter(client, auth.RateLimitConfig{DailyLimit: cfg.RateLimit.DailyLimit})
	return limiter, func() { _ = client.Close() }
}
