// Package config loads and validates service configuration from YAML with
// environment variable expansion. User-provided values are merged over
// built-in defaults, so a config file only needs to state what differs.
package config

import (
	"fmt"
	"time"
)

// Config is the umbrella configuration object returned by Initialize and
// used throughout the application.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Events   EventsConfig   `yaml:"events"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Addr returns the listen address.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig holds PostgreSQL settings. Driver selects the storage
// backend: "postgres" for production, "memory" for development and tests.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"ssl_mode"`

	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

// PipelineConfig bounds pipeline concurrency and timing.
type PipelineConfig struct {
	// MaxConcurrentGenerations caps in-flight generations per process; new
	// requests beyond it are rejected for later retry.
	MaxConcurrentGenerations int `yaml:"max_concurrent_generations"`

	// DayPoolSize caps parallel day-scoped agent invocations per generation.
	DayPoolSize int `yaml:"day_pool_size"`

	// NodePoolSize caps parallel node-scoped agent invocations per generation.
	NodePoolSize int `yaml:"node_pool_size"`

	// GenerationTimeout bounds a whole generation run.
	GenerationTimeout time.Duration `yaml:"generation_timeout"`

	// DrainTimeout bounds how long shutdown waits for in-flight generations.
	DrainTimeout time.Duration `yaml:"drain_timeout"`

	// Enrichment results are coalesced into batches of EnrichBatchSize nodes
	// or flushed after EnrichFlushInterval, whichever comes first.
	EnrichBatchSize     int           `yaml:"enrich_batch_size"`
	EnrichFlushInterval time.Duration `yaml:"enrich_flush_interval"`
}

// EventsConfig tunes the event bus and WebSocket delivery.
type EventsConfig struct {
	// TailSize is the per-itinerary replay buffer capacity.
	TailSize int `yaml:"tail_size"`

	// SendBuffer is the per-subscriber channel capacity before a slow
	// subscriber is dropped.
	SendBuffer int `yaml:"send_buffer"`

	// WriteTimeout bounds a single WebSocket write.
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// TopicGrace is how long an itinerary's event history survives after its
	// last subscriber leaves and generation ends.
	TopicGrace time.Duration `yaml:"topic_grace"`
}

// validate checks cross-field constraints after merging.
func validate(cfg *Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", cfg.Server.Port)
	}
	switch cfg.Database.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("database.driver must be postgres or memory, got %q", cfg.Database.Driver)
	}
	if cfg.Pipeline.MaxConcurrentGenerations < 1 {
		return fmt.Errorf("pipeline.max_concurrent_generations must be positive")
	}
	if cfg.Pipeline.DayPoolSize < 1 || cfg.Pipeline.NodePoolSize < 1 {
		return fmt.Errorf("pipeline pool sizes must be positive")
	}
	if cfg.Pipeline.EnrichBatchSize < 1 {
		return fmt.Errorf("pipeline.enrich_batch_size must be positive")
	}
	if cfg.Events.TailSize < 10 {
		return fmt.Errorf("events.tail_size must be at least 10")
	}
	if cfg.Events.SendBuffer < 1 {
		return fmt.Errorf("events.send_buffer must be positive")
	}
	return nil
}
