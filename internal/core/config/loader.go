package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/stepguard/stepguard/internal/core/domain"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}

	if cfg.Resilience.Breaker.FailureThreshold == 0 {
		cfg.Resilience.Breaker.FailureThreshold = 5
	}
	if cfg.Resilience.Breaker.ResetTimeout == 0 {
		cfg.Resilience.Breaker.ResetTimeout = 30 * time.Second
	}

	rt := &cfg.Resilience.DefaultRetry
	if rt.MaxRetries == 0 {
		rt.MaxRetries = 3
	}
	if rt.InitialDelay == 0 {
		rt.InitialDelay = time.Second
	}
	if rt.Backoff == "" {
		rt.Backoff = domain.BackoffExponential
	}
	if rt.MaxDelay == 0 {
		rt.MaxDelay = 30 * time.Second
	}
}

// LoadWorkflows reads workflow definitions from a YAML file. The file
// holds a list of workflows under a top-level "workflows" key.
func LoadWorkflows(path string) ([]*domain.Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workflows file: %w", err)
	}

	var doc struct {
		Workflows []*domain.Workflow `yaml:"workflows"`
	}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &doc); err != nil {
		return nil, fmt.Errorf("failed to parse workflows file: %w", err)
	}

	for _, wf := range doc.Workflows {
		if wf.ID == "" {
			return nil, fmt.Errorf("workflow %q is missing an id", wf.Name)
		}
	}
	return doc.Workflows, nil
}
