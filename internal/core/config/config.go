package config

import (
	"time"

	"github.com/stepguard/stepguard/internal/core/domain"
	"github.com/stepguard/stepguard/internal/infra/bus"
	"github.com/stepguard/stepguard/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server     ServerConfig     `yaml:"server"`
	Logging    LoggingConfig    `yaml:"logging"`
	Redis      bus.Config       `yaml:"redis"`
	Database   postgres.Config  `yaml:"database"`
	Resilience ResilienceConfig `yaml:"resilience"`
	Workflows  WorkflowsConfig  `yaml:"workflows"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// ResilienceConfig holds the engine-wide recovery defaults. Per-workflow
// policy in the workflow definition overrides these.
type ResilienceConfig struct {
	Breaker          domain.BreakerConfig `yaml:"breaker"`
	DefaultRetry     domain.RetryConfig   `yaml:"default_retry"`
	HistoryRetention time.Duration        `yaml:"history_retention"` // 0 = keep forever
	FaultInjection   bool                 `yaml:"fault_injection"`
}

// WorkflowsConfig points at the workflow definitions loaded at startup
// when running without a database.
type WorkflowsConfig struct {
	File string `yaml:"file"`
}
