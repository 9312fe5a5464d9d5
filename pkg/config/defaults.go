package config

import "time"

// defaultConfig returns the built-in configuration. User YAML merges over
// these values, so every field here must stand on its own.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:          "postgres",
			Host:            "localhost",
			Port:            5432,
			User:            "tripforge",
			Password:        "tripforge",
			Database:        "tripforge",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
			ConnMaxIdleTime: 5 * time.Minute,
		},
		Pipeline: PipelineConfig{
			MaxConcurrentGenerations: 16,
			DayPoolSize:              8,
			NodePoolSize:             8,
			GenerationTimeout:        5 * time.Minute,
			DrainTimeout:             30 * time.Second,
			EnrichBatchSize:          3,
			EnrichFlushInterval:      2 * time.Second,
		},
		Events: EventsConfig{
			TailSize:     64,
			SendBuffer:   128,
			WriteTimeout: 10 * time.Second,
			TopicGrace:   60 * time.Second,
		},
	}
}
