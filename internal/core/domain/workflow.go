package domain

import "time"

// BackoffStrategy selects how retry delays grow between attempts.
type BackoffStrategy string

const (
	BackoffFixed       BackoffStrategy = "fixed"
	BackoffExponential BackoffStrategy = "exponential"
)

// RetryConfig is the serializable retry policy attached to a step or to a
// workflow's error-handling defaults.
type RetryConfig struct {
	MaxRetries   int             `yaml:"max_retries"   json:"maxRetries"`
	InitialDelay time.Duration   `yaml:"initial_delay" json:"initialDelay"`
	Backoff      BackoffStrategy `yaml:"backoff"       json:"backoff"`
	MaxDelay     time.Duration   `yaml:"max_delay"     json:"maxDelay"` // 0 = uncapped
	Jitter       bool            `yaml:"jitter"        json:"jitter"`
}

// BreakerConfig parameterizes the circuit breakers guarding a workflow's
// dependencies.
type BreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold" json:"failureThreshold"`
	ResetTimeout     time.Duration `yaml:"reset_timeout"     json:"resetTimeout"`
	MonitoringPeriod time.Duration `yaml:"monitoring_period" json:"monitoringPeriod"`
	ExpectedErrors   []string      `yaml:"expected_errors"   json:"expectedErrors"`
	ResetOnSuccess   bool          `yaml:"reset_on_success"  json:"resetOnSuccess"`
}

// ErrorHandlingConfig is the workflow-level recovery policy read from the
// workflow definition. GlobalStrategies constrains which strategies the
// recovery layer may consider; empty means all.
type ErrorHandlingConfig struct {
	GlobalStrategies []Strategy    `yaml:"global_strategies" json:"globalStrategies"`
	CircuitBreaker   BreakerConfig `yaml:"circuit_breaker"   json:"circuitBreaker"`
	DefaultRetry     RetryConfig   `yaml:"default_retry"     json:"defaultRetry"`
}

// Step is one unit of work in a workflow definition.
type Step struct {
	ID             string       `yaml:"id"              json:"id"`
	Name           string       `yaml:"name"            json:"name"`
	DependencyKey  string       `yaml:"dependency_key"  json:"dependencyKey"` // breaker identity; defaults to step ID
	Retry          *RetryConfig `yaml:"retry"           json:"retry,omitempty"`
	FallbackAction string       `yaml:"fallback_action" json:"fallbackAction"` // e.g. "use-cached-data"
}

// Workflow is the read-only definition the recovery layer consults. The
// engine never writes workflow definitions.
type Workflow struct {
	ID            string              `yaml:"id"             json:"id"`
	Name          string              `yaml:"name"           json:"name"`
	Steps         []Step              `yaml:"steps"          json:"steps"`
	ErrorHandling ErrorHandlingConfig `yaml:"error_handling" json:"errorHandling"`
}

// StepByID returns the step with the given ID, or nil.
func (w *Workflow) StepByID(id string) *Step {
	for i := range w.Steps {
		if w.Steps[i].ID == id {
			return &w.Steps[i]
		}
	}
	return nil
}
