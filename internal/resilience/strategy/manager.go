// Package strategy ranks the remediation actions available for a failed
// step and cascades through them until one succeeds. Recovery is never
// single-shot: every attempt is individually recorded and reportable.
package strategy

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/stepguard/stepguard/internal/core/domain"
	"github.com/stepguard/stepguard/internal/core/execution"
	"github.com/stepguard/stepguard/internal/resilience/breaker"
	"github.com/stepguard/stepguard/internal/resilience/retry"
)

// ErrNoOptions is returned when evaluation produced no viable strategy.
var ErrNoOptions = errors.New("no recovery options available")

// Input carries everything a strategy needs to act on one classified
// failure. Op is the original failing operation; when nil, strategies that
// re-execute it (retry, circuit-breaker) report failure and the cascade
// moves on.
type Input struct {
	ErrCtx   domain.ErrorContext
	Workflow *domain.Workflow
	Exec     *execution.Context
	Op       domain.Operation
}

// step resolves the failing step's definition, or nil.
func (in Input) step() *domain.Step {
	if in.Workflow == nil {
		return nil
	}
	return in.Workflow.StepByID(in.ErrCtx.StepID)
}

// Selection is the outcome of ranking: the top strategy plus the remaining
// ranked strategies, in order, as fallbacks.
type Selection struct {
	Primary   domain.Strategy
	Fallbacks []domain.Strategy
}

// Strategies returns primary followed by fallbacks.
func (s Selection) Strategies() []domain.Strategy {
	out := make([]domain.Strategy, 0, len(s.Fallbacks)+1)
	out = append(out, s.Primary)
	out = append(out, s.Fallbacks...)
	return out
}

// Manager evaluates, selects and executes recovery strategies.
type Manager struct {
	actions       map[domain.Strategy]RecoveryAction
	brs           *breaker.Registry
	retryDefaults domain.RetryConfig
	now           func() time.Time
}

// ManagerOption customizes a Manager.
type ManagerOption func(*Manager)

// WithRetryDefaults sets the retry policy used when neither the step nor
// the workflow's error-handling config carries one. A zero config keeps
// the built-in defaults.
func WithRetryDefaults(cfg domain.RetryConfig) ManagerOption {
	return func(m *Manager) {
		if cfg.MaxRetries != 0 || cfg.InitialDelay != 0 {
			m.retryDefaults = cfg
		}
	}
}

// NewManager wires the strategy handler table over the shared breaker
// registry and retry manager.
func NewManager(brs *breaker.Registry, retryMgr *retry.Manager, opts ...ManagerOption) *Manager {
	m := &Manager{
		brs: brs,
		retryDefaults: domain.RetryConfig{
			MaxRetries:   3,
			InitialDelay: time.Second,
			Backoff:      domain.BackoffExponential,
			MaxDelay:     30 * time.Second,
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.actions = map[domain.Strategy]RecoveryAction{
		domain.StrategyRetry:          &retryAction{mgr: retryMgr, defaults: m.retryDefaults},
		domain.StrategyCircuitBreaker: &breakerAction{registry: brs},
		domain.StrategyFallback:       newFallbackAction(),
		domain.StrategySkip:           skipAction{},
	}
	return m
}

// RegisterFallbackHandler adds or replaces a named fallback action
// (e.g. "use-cached-data") available to the fallback strategy.
func (m *Manager) RegisterFallbackHandler(name string, fn FallbackHandler) {
	fa := m.actions[domain.StrategyFallback].(*fallbackAction)
	fa.register(name, fn)
}

// EvaluateOptions produces the ranked candidate list for one failure.
// Options are sorted by descending confidence, ties broken by ascending
// estimated time. Confidence is policy-driven: breaker strategies score by
// breaker state, retry confidence decays with the retry count, and
// non-recoverable errors rank skip highest.
func (m *Manager) EvaluateOptions(in Input, cfg domain.ErrorHandlingConfig) []domain.RecoveryOption {
	allowed := cfg.GlobalStrategies
	if len(allowed) == 0 {
		allowed = domain.AllStrategies
	}

	var options []domain.RecoveryOption
	for _, s := range allowed {
		if !s.Valid() {
			continue
		}
		if opt, ok := m.evaluate(s, in, cfg); ok {
			options = append(options, opt)
		}
	}

	sort.SliceStable(options, func(i, j int) bool {
		if options[i].Confidence != options[j].Confidence {
			return options[i].Confidence > options[j].Confidence
		}
		return options[i].EstimatedTime < options[j].EstimatedTime
	})
	return options
}

func (m *Manager) evaluate(
	s domain.Strategy,
	in Input,
	cfg domain.ErrorHandlingConfig,
) (domain.RecoveryOption, bool) {
	recoverable := in.ErrCtx.Category.Recoverable
	step := in.step()

	switch s {
	case domain.StrategyRetry:
		if !recoverable {
			return domain.RecoveryOption{}, false
		}
		conf := 0.8 - 0.2*float64(in.ErrCtx.RetryCount)
		if conf < 0.1 {
			conf = 0.1
		}
		rc := retryConfigFor(step, cfg, m.retryDefaults)
		est := rc.InitialDelay * time.Duration(rc.MaxRetries)
		return domain.RecoveryOption{
			Strategy:      domain.StrategyRetry,
			Confidence:    conf,
			EstimatedTime: est,
		}, true

	case domain.StrategyCircuitBreaker:
		if !recoverable {
			return domain.RecoveryOption{}, false
		}
		conf := 0.7
		key := breakerKey(in)
		if b, ok := m.brs.Get(key); ok {
			switch b.State() {
			case breaker.StateHalfOpen:
				conf = 0.4
			case breaker.StateOpen:
				conf = 0.1
			}
		}
		return domain.RecoveryOption{
			Strategy:      domain.StrategyCircuitBreaker,
			Confidence:    conf,
			EstimatedTime: 100 * time.Millisecond,
		}, true

	case domain.StrategyFallback:
		conf := 0.3
		if step != nil && step.FallbackAction != "" {
			conf = 0.6
		}
		if !recoverable {
			conf = conf * 0.5
		}
		return domain.RecoveryOption{
			Strategy:      domain.StrategyFallback,
			Confidence:    conf,
			EstimatedTime: 50 * time.Millisecond,
		}, true

	case domain.StrategySkip:
		conf := 0.2
		if !recoverable {
			conf = 0.9
		}
		return domain.RecoveryOption{
			Strategy:      domain.StrategySkip,
			Confidence:    conf,
			EstimatedTime: 0,
		}, true
	}
	return domain.RecoveryOption{}, false
}

// Select picks the top-ranked option and records the remaining ranked
// strategies, in order, as fallbacks.
func (m *Manager) Select(options []domain.RecoveryOption) (Selection, error) {
	if len(options) == 0 {
		return Selection{}, ErrNoOptions
	}
	sel := Selection{Primary: options[0].Strategy}
	for _, opt := range options[1:] {
		sel.Fallbacks = append(sel.Fallbacks, opt.Strategy)
	}
	return sel, nil
}

// ExecuteStrategy runs a single named strategy and reports its result.
func (m *Manager) ExecuteStrategy(
	ctx context.Context,
	s domain.Strategy,
	in Input,
) domain.RecoveryResult {
	start := m.now()
	result, warnings, err := m.run(ctx, s, in)
	elapsed := m.now().Sub(start)
	if err != nil {
		return domain.RecoveryResult{
			Strategy:      s,
			ExecutionTime: elapsed,
			Warnings:      warnings,
			Stages: []domain.StageResult{
				{Stage: s, Success: false, Reason: err.Error()},
			},
		}
	}
	return domain.RecoveryResult{
		Success:       true,
		Strategy:      s,
		ExecutionTime: elapsed,
		Result:        result,
		Warnings:      warnings,
	}
}

// Cascade executes the selection in ranked order until a strategy succeeds
// or the list is exhausted. Each failed attempt is appended as a stage; on
// a multi-stage run the successful stage is recorded too. A strategy's own
// failure is never swallowed: it becomes the stage's reason.
func (m *Manager) Cascade(ctx context.Context, sel Selection, in Input) domain.RecoveryResult {
	start := m.now()
	var stages []domain.StageResult
	var warnings []string

	for _, s := range sel.Strategies() {
		result, w, err := m.run(ctx, s, in)
		warnings = append(warnings, w...)
		if err != nil {
			stages = append(stages, domain.StageResult{
				Stage:   s,
				Success: false,
				Reason:  err.Error(),
			})
			continue
		}

		if len(stages) > 0 {
			stages = append(stages, domain.StageResult{Stage: s, Success: true})
		}
		return domain.RecoveryResult{
			Success:       true,
			Strategy:      s,
			ExecutionTime: m.now().Sub(start),
			Result:        result,
			Warnings:      warnings,
			Stages:        stages,
		}
	}

	return domain.RecoveryResult{
		ExecutionTime: m.now().Sub(start),
		Warnings:      warnings,
		Stages:        stages,
	}
}

func (m *Manager) run(ctx context.Context, s domain.Strategy, in Input) (any, []string, error) {
	action, ok := m.actions[s]
	if !ok {
		return nil, nil, errors.New("unknown strategy: " + string(s))
	}
	return action.Execute(ctx, in)
}

func breakerKey(in Input) string {
	if step := in.step(); step != nil && step.DependencyKey != "" {
		return step.DependencyKey
	}
	return in.ErrCtx.StepID
}

// retryConfigFor resolves the retry policy: step config, then the
// workflow's error-handling default, then the manager-wide defaults.
func retryConfigFor(
	step *domain.Step,
	cfg domain.ErrorHandlingConfig,
	defaults domain.RetryConfig,
) domain.RetryConfig {
	if step != nil && step.Retry != nil {
		return *step.Retry
	}
	if rc := cfg.DefaultRetry; rc.MaxRetries != 0 || rc.InitialDelay != 0 {
		return rc
	}
	return defaults
}
