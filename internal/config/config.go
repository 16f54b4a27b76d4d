package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/sungwon/email-queue/internal/auth"
	"github.com/sungwon/email-queue/internal/logger"
	"github.com/sungwon/email-queue/internal/msgstore"
	"github.com/sungwon/email-queue/internal/provider"
	"github.com/sungwon/email-queue/internal/queue"
	"github.com/sungwon/email-queue/internal/storage"
)

// Config holds all application configuration.
type Config struct {
	API          APIConfig          `mapstructure:"api"`
	Worker       WorkerConfig       `mapstructure:"worker"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Storage      StorageConfig      `mapstructure:"storage"`
	Queue        queue.Config       `mapstructure:"queue"`
	Provider     ProviderConfig     `mapstructure:"provider"`
	Delivery     DeliveryConfig     `mapstructure:"delivery"`
	Auth         AuthConfig         `mapstructure:"auth"`
	RateLimit    RateLimitConfig    `mapstructure:"rate_limit"`
	MessageStore MessageStoreConfig `mapstructure:"message_store"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// APIConfig holds REST API server configuration.
type APIConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// WorkerConfig holds queue worker configuration.
type WorkerConfig struct {
	// Embedded runs the queue consumer inside the API process.
	Embedded bool `mapstructure:"embedded"`
	// OpsAddr is the health and metrics listener of the standalone worker.
	OpsAddr string `mapstructure:"ops_addr"`
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	URL            string        `mapstructure:"url"`
	PoolMin        int32         `mapstructure:"pool_min"`
	PoolMax        int32         `mapstructure:"pool_max"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// StorageConfig selects the email repository backend.
type StorageConfig struct {
	// Backend is "memory" or "postgres".
	Backend     string `mapstructure:"backend"`
	AutoMigrate bool   `mapstructure:"auto_migrate"`
}

// ProviderConfig configures the delivery provider.
type ProviderConfig struct {
	Type         string        `mapstructure:"type"`
	APIKey       string        `mapstructure:"api_key"`
	SecretKey    string        `mapstructure:"secret_key"`
	AccountToken string        `mapstructure:"account_token"`
	Endpoint     string        `mapstructure:"endpoint"`
	Region       string        `mapstructure:"region"`
	Domain       string        `mapstructure:"domain"`
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Username     string        `mapstructure:"username"`
	Password     string        `mapstructure:"password"`
	StartTLS     bool          `mapstructure:"starttls"`
	Timeout      time.Duration `mapstructure:"timeout"`
	// HealthInterval is how often the provider health check runs; zero
	// disables it.
	HealthInterval time.Duration `mapstructure:"health_interval"`
}

// DeliveryConfig holds settings of the delivery port.
type DeliveryConfig struct {
	SendTimeout time.Duration `mapstructure:"send_timeout"`
	// DefaultFrom is the sender used when a request omits one.
	DefaultFrom string `mapstructure:"default_from"`
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	JWT     auth.JWTConfig `mapstructure:"jwt"`
	APIKeys []auth.APIKey  `mapstructure:"api_keys"`
}

// RateLimitConfig holds the per-client daily quota.
type RateLimitConfig struct {
	DailyLimit int `mapstructure:"daily_limit"`
	// RedisAddr defaults to queue.redis_addr when the queue uses Redis.
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
}

// MessageStoreConfig configures where the file provider writes messages.
type MessageStoreConfig struct {
	Type       string `mapstructure:"type"`
	Path       string `mapstructure:"path"`
	S3Bucket   string `mapstructure:"s3_bucket"`
	S3Prefix   string `mapstructure:"s3_prefix"`
	S3Region   string `mapstructure:"s3_region"`
	S3Endpoint string `mapstructure:"s3_endpoint"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level     string `mapstructure:"level"`
	Output    string `mapstructure:"output"`
	FilePath  string `mapstructure:"file_path"`
	MaxSizeMB int    `mapstructure:"max_size_mb"`
	MaxFiles  int    `mapstructure:"max_files"`
}

// Load reads configuration from the given config directory path.
// It looks for a file named "config.yaml" in that directory.
// Environment variables with prefix EMAIL_QUEUE_ override file values.
// For example, EMAIL_QUEUE_DATABASE_URL overrides database.url.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)

	v.SetEnvPrefix("EMAIL_QUEUE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.Queue.Type == queue.BackendRiver && cfg.Queue.DatabaseURL == "" {
		cfg.Queue.DatabaseURL = cfg.Database.URL
	}

	return &cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override keys the
// file leaves out.
func setDefaults(v *viper.Viper) {
	q := queue.DefaultConfig()

	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 3000)
	v.SetDefault("api.read_timeout", 10*time.Second)
	v.SetDefault("api.write_timeout", 10*time.Second)

	v.SetDefault("worker.embedded", true)
	v.SetDefault("worker.ops_addr", ":9090")

	v.SetDefault("database.url", "")
	v.SetDefault("database.pool_min", 2)
	v.SetDefault("database.pool_max", 10)
	v.SetDefault("database.connect_timeout", 5*time.Second)

	v.SetDefault("storage.backend", storage.BackendMemory)
	v.SetDefault("storage.auto_migrate", true)

	v.SetDefault("queue.type", q.Type)
	v.SetDefault("queue.name", q.Name)
	v.SetDefault("queue.worker_count", q.WorkerCount)
	v.SetDefault("queue.process_timeout", q.ProcessTimeout)
	v.SetDefault("queue.shutdown_timeout", q.ShutdownTimeout)
	v.SetDefault("queue.max_attempts", q.MaxAttempts)
	v.SetDefault("queue.priority_lanes", q.PriorityLanes)
	v.SetDefault("queue.redis_addr", q.RedisAddr)
	v.SetDefault("queue.redis_password", "")
	v.SetDefault("queue.redis_db", 0)
	v.SetDefault("queue.consumer_group", q.ConsumerGroup)
	v.SetDefault("queue.block_timeout", q.BlockTimeout)
	v.SetDefault("queue.poll_interval", q.PollInterval)
	v.SetDefault("queue.stalled_timeout", q.StalledTimeout)
	v.SetDefault("queue.sqs_queue_url", "")
	v.SetDefault("queue.sqs_dlq_url", "")
	v.SetDefault("queue.sqs_region", "")
	v.SetDefault("queue.sqs_endpoint", "")
	v.SetDefault("queue.sqs_wait_time", q.SQSWaitTime)
	v.SetDefault("queue.sqs_visibility_timeout", q.SQSVisTimeout)
	v.SetDefault("queue.database_url", "")
	v.SetDefault("queue.auto_migrate", true)

	v.SetDefault("provider.type", provider.TypeStdout)
	for _, key := range []string{"api_key", "secret_key", "account_token", "endpoint", "region", "domain", "host", "username", "password"} {
		v.SetDefault("provider."+key, "")
	}
	v.SetDefault("provider.port", 587)
	v.SetDefault("provider.starttls", true)
	v.SetDefault("provider.timeout", 30*time.Second)
	v.SetDefault("provider.health_interval", time.Minute)

	v.SetDefault("delivery.send_timeout", 30*time.Second)
	v.SetDefault("delivery.default_from", "")

	v.SetDefault("auth.jwt.signing_key", "")
	v.SetDefault("auth.jwt.token_expiry", 24*time.Hour)
	v.SetDefault("auth.jwt.issuer", "email-queue")
	v.SetDefault("auth.jwt.audience", "email-queue-api")

	v.SetDefault("rate_limit.daily_limit", 0)
	v.SetDefault("rate_limit.redis_addr", "")

	v.SetDefault("message_store.type", "local")
	v.SetDefault("message_store.path", "./mail_output")
	v.SetDefault("message_store.s3_bucket", "")
	v.SetDefault("message_store.s3_prefix", "")
	v.SetDefault("message_store.s3_region", "us-east-1")
	v.SetDefault("message_store.s3_endpoint", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.file_path", "")
	v.SetDefault("logging.max_size_mb", 100)
	v.SetDefault("logging.max_files", 5)
}

// Validate checks requirements that span sections.
func (c *Config) Validate() error {
	var errs []error

	switch c.Storage.Backend {
	case storage.BackendMemory:
		if !c.Worker.Embedded {
			errs = append(errs, errors.New("storage.backend memory requires worker.embedded: the worker would not see emails saved by the API"))
		}
	case storage.BackendPostgres:
		if c.Database.URL == "" {
			errs = append(errs, errors.New("storage.backend postgres requires database.url"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage.backend %q", c.Storage.Backend))
	}

	switch c.Queue.Type {
	case queue.BackendRedis:
		if c.Queue.RedisAddr == "" {
			errs = append(errs, errors.New("queue.type redis requires queue.redis_addr"))
		}
	case queue.BackendSQS:
		if c.Queue.SQSQueueURL == "" || c.Queue.SQSDLQueueURL == "" {
			errs = append(errs, errors.New("queue.type sqs requires queue.sqs_queue_url and queue.sqs_dlq_url"))
		}
		if vis := time.Duration(c.Queue.SQSVisTimeout) * time.Second; vis <= c.Queue.ProcessTimeout {
			errs = append(errs, fmt.Errorf("queue.sqs_visibility_timeout (%v) must exceed queue.process_timeout (%v)", vis, c.Queue.ProcessTimeout))
		}
	case queue.BackendRiver:
		if c.Queue.DatabaseURL == "" {
			errs = append(errs, errors.New("queue.type river requires database.url or queue.database_url"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown queue.type %q", c.Queue.Type))
	}

	if c.Queue.MaxAttempts < 1 {
		errs = append(errs, errors.New("queue.max_attempts must be at least 1"))
	}

	pc := c.ProviderSettings()
	if err := pc.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("provider: %w", err))
	}

	for _, k := range c.Auth.APIKeys {
		if !auth.ValidRole(k.Role) {
			errs = append(errs, fmt.Errorf("auth.api_keys %s: unknown role %q", k.ClientID, k.Role))
		}
	}

	return errors.Join(errs...)
}

// ProviderSettings converts the provider section for provider.NewProvider.
func (c *Config) ProviderSettings() provider.ProviderConfig {
	p := c.Provider
	return provider.ProviderConfig{
		Type:         p.Type,
		APIKey:       p.APIKey,
		SecretKey:    p.SecretKey,
		AccountToken: p.AccountToken,
		Endpoint:     p.Endpoint,
		Region:       p.Region,
		Domain:       p.Domain,
		Host:         p.Host,
		Port:         p.Port,
		Username:     p.Username,
		Password:     p.Password,
		StartTLS:     p.StartTLS,
		Timeout:      p.Timeout,
	}
}

// StorageSettings converts the storage and database sections for
// storage.NewRepository.
func (c *Config) StorageSettings() storage.Config {
	return storage.Config{
		Backend:        c.Storage.Backend,
		DatabaseURL:    c.Database.URL,
		MinConns:       c.Database.PoolMin,
		MaxConns:       c.Database.PoolMax,
		ConnectTimeout: c.Database.ConnectTimeout,
		AutoMigrate:    c.Storage.AutoMigrate,
	}
}

// MessageStoreSettings converts the message_store section.
func (c *Config) MessageStoreSettings() msgstore.Config {
	m := c.MessageStore
	return msgstore.Config{
		Type:       m.Type,
		Path:       m.Path,
		S3Bucket:   m.S3Bucket,
		S3Prefix:   m.S3Prefix,
		S3Region:   m.S3Region,
		S3Endpoint: m.S3Endpoint,
	}
}

// LoggerSettings converts the logging section for service.
func (c *Config) LoggerSettings(service string) logger.LoggingConfig {
	l := c.Logging
	return logger.LoggingConfig{
		Level:     l.Level,
		Output:    l.Output,
		FilePath:  l.FilePath,
		MaxSizeMB: l.MaxSizeMB,
		MaxFiles:  l.MaxFiles,
		Service:   service,
	}
}

// RateLimitRedisAddr returns the Redis address for the rate limiter, or
// "" when rate limiting has no Redis to use.
func (c *Config) RateLimitRedisAddr() string {
	if c.RateLimit.RedisAddr != "" {
		return c.RateLimit.RedisAddr
	}
	if c.Queue.Type == queue.BackendRedis {
		return c.Queue.RedisAddr
	}
	return ""
}
