package queue

import "time"

// Backend names accepted by NewQueue.
const (
	BackendRedis = "redis"
	BackendSQS   = "sqs"
	BackendRiver = "river"
)

// Config holds configuration for the queue system.
type Config struct {
	// Type selects the queue backend: "redis" (default), "sqs" or "river".
	Type string `mapstructure:"type"`
	// Name identifies the queue; it prefixes Redis keys and names the River queue.
	Name            string          `mapstructure:"name"`
	WorkerCount     int             `mapstructure:"worker_count"`
	ProcessTimeout  time.Duration   `mapstructure:"process_timeout"`
	ShutdownTimeout time.Duration   `mapstructure:"shutdown_timeout"`
	MaxAttempts     int             `mapstructure:"max_attempts"`
	RetrySchedule   []time.Duration `mapstructure:"retry_schedule"`
	PriorityLanes   int             `mapstructure:"priority_lanes"`

	RedisAddr      string        `mapstructure:"redis_addr"`
	RedisPassword  string        `mapstructure:"redis_password"`
	RedisDB        int           `mapstructure:"redis_db"`
	ConsumerGroup  string        `mapstructure:"consumer_group"`
	BlockTimeout   time.Duration `mapstructure:"block_timeout"`
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	StalledTimeout time.Duration `mapstructure:"stalled_timeout"`

	// SQS-specific config
	SQSQueueURL   string `mapstructure:"sqs_queue_url"`
	SQSDLQueueURL string `mapstructure:"sqs_dlq_url"`
	SQSRegion     string `mapstructure:"sqs_region"`
	SQSEndpoint   string `mapstructure:"sqs_endpoint"`
	SQSWaitTime   int32  `mapstructure:"sqs_wait_time"`          // long poll seconds, default 20
	SQSVisTimeout int32  `mapstructure:"sqs_visibility_timeout"` // seconds, default 90; must exceed ProcessTimeout

	// River-specific config
	DatabaseURL string `mapstructure:"database_url"`
	AutoMigrate bool   `mapstructure:"auto_migrate"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Type:            BackendRedis,
		Name:            "emails",
		WorkerCount:     10,
		ProcessTimeout:  30 * time.Second,
		ShutdownTimeout: 30 * time.Second,
		MaxAttempts:     3,
		RetrySchedule:   DefaultRetrySchedule,
		PriorityLanes:   3,
		RedisAddr:       "localhost:6379",
		ConsumerGroup:   "email-workers",
		BlockTimeout:    5 * time.Second,
		PollInterval:    time.Second,
		StalledTimeout:  5 * time.Minute,
		SQSWaitTime:     20,
		SQSVisTimeout:   90,
	}
}

// withDefaults fills every zero field from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Type == "" {
		c.Type = d.Type
	}
	if c.Name == "" {
		c.Name = d.Name
	}
	if c.WorkerCount <= 0 {
		c.WorkerCount = d.WorkerCount
	}
	if c.ProcessTimeout <= 0 {
		c.ProcessTimeout = d.ProcessTimeout
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = d.ShutdownTimeout
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if len(c.RetrySchedule) == 0 {
		c.RetrySchedule = d.RetrySchedule
	}
	if c.PriorityLanes <= 0 {
		c.PriorityLanes = d.PriorityLanes
	}
	if c.RedisAddr == "" {
		c.RedisAddr = d.RedisAddr
	}
	if c.ConsumerGroup == "" {
		c.ConsumerGroup = d.ConsumerGroup
	}
	if c.BlockTimeout <= 0 {
		c.BlockTimeout = d.BlockTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.StalledTimeout <= 0 {
		c.StalledTimeout = d.StalledTimeout
	}
	if c.SQSWaitTime <= 0 {
		c.SQSWaitTime = d.SQSWaitTime
	}
	if c.SQSVisTimeout <= 0 {
		c.SQSVisTimeout = d.SQSVisTimeout
	}
	return c
}
