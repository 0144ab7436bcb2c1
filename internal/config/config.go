package config

import (
	"fmt"
	"strings"

	"github.com/Netflix/go-env"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"

	NotifyDriverRabbitMQ = "rabbitmq"
	NotifyDriverWebhook  = "webhook"
	NotifyDriverLog      = "log"
)

type Config struct {
	StoreDriver           string `env:"STORE_DRIVER,default=memory"`
	DatabaseDSN           string `env:"DATABASE_DSN"`
	RedisURL              string `env:"REDIS_URL"`
	RabbitMQURL           string `env:"RABBITMQ_URL"`
	NotifyWebhookURL      string `env:"NOTIFY_WEBHOOK_URL"`
	NotifyDriver          string `env:"NOTIFY_DRIVER,default=log"`
	SweepIntervalSeconds  int    `env:"SWEEP_INTERVAL_SECONDS,default=30"`
	SweepBatchLimit       int    `env:"SWEEP_BATCH_LIMIT,default=100"`
	SLAEscalation         bool   `env:"SLA_ESCALATION,default=true"`
	TransitionMaxAttempts int    `env:"TRANSITION_MAX_ATTEMPTS,default=3"`
	DefaultCapacity       int    `env:"DEFAULT_CAPACITY,default=20"`
	RelayConcurrency      int    `env:"RELAY_CONCURRENCY,default=4"`
	RelayRateLimit        int    `env:"RELAY_RATE_LIMIT,default=50"`
	APIPort               int    `env:"API_PORT,default=8080"`
	LogLevel              string `env:"LOG_LEVEL,default=info"`
	BootstrapAdminID      string `env:"BOOTSTRAP_ADMIN_ID,default=admin"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))
	cfg.NotifyDriver = strings.ToLower(strings.TrimSpace(cfg.NotifyDriver))
	return &cfg, nil
}

// Validate checks the settings the API process depends on.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case StoreDriverMemory:
	case StoreDriverPostgres:
		if strings.TrimSpace(c.DatabaseDSN) == "" {
			return fmt.Errorf("DATABASE_DSN is required when STORE_DRIVER=%s", StoreDriverPostgres)
		}
	default:
		return fmt.Errorf("unsupported STORE_DRIVER %q", c.StoreDriver)
	}

	switch c.NotifyDriver {
	case NotifyDriverLog:
	case NotifyDriverRabbitMQ:
		if strings.TrimSpace(c.RabbitMQURL) == "" {
			return fmt.Errorf("RABBITMQ_URL is required when NOTIFY_DRIVER=%s", NotifyDriverRabbitMQ)
		}
	case NotifyDriverWebhook:
		if strings.TrimSpace(c.NotifyWebhookURL) == "" {
			return fmt.Errorf("NOTIFY_WEBHOOK_URL is required when NOTIFY_DRIVER=%s", NotifyDriverWebhook)
		}
	default:
		return fmt.Errorf("unsupported NOTIFY_DRIVER %q", c.NotifyDriver)
	}

	if c.SweepIntervalSeconds <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL_SECONDS must be positive")
	}
	if c.SweepBatchLimit <= 0 {
		return fmt.Errorf("SWEEP_BATCH_LIMIT must be positive")
	}
	if c.TransitionMaxAttempts <= 0 {
		return fmt.Errorf("TRANSITION_MAX_ATTEMPTS must be positive")
	}
	if c.DefaultCapacity <= 0 {
		return fmt.Errorf("DEFAULT_CAPACITY must be positive")
	}
	if strings.TrimSpace(c.BootstrapAdminID) == "" {
		return fmt.Errorf("BOOTSTRAP_ADMIN_ID is required")
	}
	return nil
}

// ValidateRelay checks the settings the notification relay depends on.
func (c *Config) ValidateRelay() error {
	if strings.TrimSpace(c.RabbitMQURL) == "" {
		return fmt.Errorf("RABBITMQ_URL is required")
	}
	if strings.TrimSpace(c.NotifyWebhookURL) == "" {
		return fmt.Errorf("NOTIFY_WEBHOOK_URL is required")
	}
	if strings.TrimSpace(c.RedisURL) == "" {
		return fmt.Errorf("REDIS_URL is required")
	}
	if c.RelayConcurrency <= 0 {
		return fmt.Errorf("RELAY_CONCURRENCY must be positive")
	}
	if c.RelayRateLimit <= 0 {
		return fmt.Errorf("RELAY_RATE_LIMIT must be positive")
	}
	return nil
}
