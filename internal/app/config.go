package app

import (
	"errors"
	"fmt"
	"strings"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	// PipelinePath is an .hcl file or a directory of them. Empty selects the
	// built-in pipeline.
	PipelinePath string

	LogFormat string
	LogLevel  string
	// Workers bounds both the task executor and per-task file fan-out.
	Workers int

	// PartnerDir overrides the pipeline's partner directory for Partners.
	PartnerDir string

	// Port and HealthcheckPort are used by Serve only; 0 disables the
	// separate health check server.
	Port            int
	HealthcheckPort int
}

// DefaultWorkers is used when Config.Workers is zero.
const DefaultWorkers = 10

// NewConfig validates cfg, fills defaults and returns a copy.
func NewConfig(cfg Config) (*Config, error) {
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	cfg.LogFormat = strings.ToLower(cfg.LogFormat)
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "text"
	}

	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("invalid log-level %q: must be 'debug', 'info', 'warn', or 'error'", cfg.LogLevel)
	}
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return nil, fmt.Errorf("invalid log-format %q: must be 'text' or 'json'", cfg.LogFormat)
	}

	if cfg.Workers < 0 {
		return nil, errors.New("workers must not be negative")
	}
	if cfg.Workers == 0 {
		cfg.Workers = DefaultWorkers
	}
	for name, port := range map[string]int{"port": cfg.Port, "healthcheck-port": cfg.HealthcheckPort} {
		if port < 0 || port > 65535 {
			return nil, fmt.Errorf("invalid %s %d", name, port)
		}
	}
	return &cfg, nil
}
