// Package config loads process configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"
)

// Supported drivers.
const (
	DriverRedis  = "redis"
	DriverNATS   = "nats"
	DriverMemory = "memory"
)

// Config holds everything a relay process needs at startup.
type Config struct {
	Port        int    `env:"PORT" envDefault:"3000"`
	ProcessID   string `env:"PROCESS_ID"`
	BusDriver   string `env:"BUS_DRIVER" envDefault:"redis"`
	StoreDriver string `env:"STORE_DRIVER" envDefault:"redis"`

	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	NatsURL string `env:"NATS_URL" envDefault:"nats://localhost:4222"`

	HistoryCapacity int `env:"HISTORY_CAPACITY" envDefault:"50"`
	HistoryInitial  int `env:"HISTORY_INITIAL" envDefault:"10"`

	ShutdownTimeout    time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`
	CORSAllowedOrigins string        `env:"CORS_ALLOWED_ORIGINS" envDefault:"*"`

	// Metrics are pushed over OTLP/gRPC. The collector address comes from
	// the standard OTEL_EXPORTER_OTLP_ENDPOINT variable.
	MetricsEnabled  bool          `env:"METRICS_ENABLED" envDefault:"false"`
	MetricsInterval time.Duration `env:"METRICS_INTERVAL" envDefault:"30s"`
	ServiceName     string        `env:"OTEL_SERVICE_NAME" envDefault:"relay-chat"`
}

// Load parses the environment into a Config, fills in a random process id
// when none is configured, and validates the result.
func Load() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("failed to parse environment: %w", err)
	}
	if cfg.ProcessID == "" {
		cfg.ProcessID = uuid.New().String()
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks driver names and sizes.
func (c Config) Validate() error {
	switch c.BusDriver {
	case DriverRedis, DriverNATS, DriverMemory:
	default:
		return fmt.Errorf("unknown bus driver %q", c.BusDriver)
	}
	switch c.StoreDriver {
	case DriverRedis, DriverMemory:
	default:
		return fmt.Errorf("unknown store driver %q", c.StoreDriver)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.HistoryCapacity <= 0 {
		return fmt.Errorf("history capacity must be positive, got %d", c.HistoryCapacity)
	}
	if c.HistoryInitial <= 0 || c.HistoryInitial > c.HistoryCapacity {
		return fmt.Errorf("initial history must be in 1..%d, got %d", c.HistoryCapacity, c.HistoryInitial)
	}
	if c.ProcessID == "" {
		return fmt.Errorf("process id is required")
	}
	if c.MetricsEnabled && c.MetricsInterval <= 0 {
		return fmt.Errorf("metrics interval must be positive, got %s", c.MetricsInterval)
	}
	return nil
}

// NeedsRedis reports whether any configured driver talks to Redis.
func (c Config) NeedsRedis() bool {
	return c.BusDriver == DriverRedis || c.StoreDriver == DriverRedis
}
