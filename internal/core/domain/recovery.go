package domain

import (
	"context"
	"time"
)

// Strategy names a remediation action applicable to a failed step.
type Strategy string

const (
	StrategyRetry          Strategy = "retry"
	StrategyFallback       Strategy = "fallback"
	StrategyCircuitBreaker Strategy = "circuit-breaker"
	StrategySkip           Strategy = "skip"
)

// AllStrategies lists every strategy in default preference order.
var AllStrategies = []Strategy{
	StrategyRetry,
	StrategyCircuitBreaker,
	StrategyFallback,
	StrategySkip,
}

// Valid reports whether s is a known strategy name.
func (s Strategy) Valid() bool {
	switch s {
	case StrategyRetry, StrategyFallback, StrategyCircuitBreaker, StrategySkip:
		return true
	}
	return false
}

// Operation is a unit of work guarded by the resilience layer. The layer
// never owns the operation's cancellation; callers pass a ctx with whatever
// deadline they need.
type Operation func(ctx context.Context) (any, error)

// RecoveryOption is a ranked candidate remediation.
type RecoveryOption struct {
	Strategy      Strategy
	Confidence    float64       // [0,1], higher preferred
	EstimatedTime time.Duration // tie-breaker, lower preferred
}

// StageResult records one attempt within a cascading recovery.
type StageResult struct {
	Stage   Strategy
	Success bool
	Reason  string
}

// RecoveryResult is the outcome of a recovery attempt, carrying full
// provenance of which strategies ran and why each failed.
type RecoveryResult struct {
	Success       bool
	Strategy      Strategy
	ExecutionTime time.Duration
	Result        any
	Warnings      []string
	Stages        []StageResult
}

// RecoveryRecord is the persisted trace of one recovery, used for metrics
// aggregation and insight generation.
type RecoveryRecord struct {
	ID         string
	WorkflowID string
	StepID     string
	ErrorType  ErrorType
	Severity   Severity
	Strategy   Strategy
	Success    bool
	Duration   time.Duration
	CreatedAt  time.Time
}
