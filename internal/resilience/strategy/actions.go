package strategy

import (
	"context"
	"fmt"
	"sync"

	"github.com/stepguard/stepguard/internal/core/domain"
	"github.com/stepguard/stepguard/internal/resilience/breaker"
	"github.com/stepguard/stepguard/internal/resilience/retry"
)

// RecoveryAction is the handler behind one strategy variant. Execute
// returns the recovered result, any warnings to attach, and an error when
// the strategy itself failed (which triggers the cascade).
type RecoveryAction interface {
	Strategy() domain.Strategy
	Execute(ctx context.Context, in Input) (any, []string, error)
}

// retryAction re-runs the original operation under the step's retry policy.
type retryAction struct {
	mgr      *retry.Manager
	defaults domain.RetryConfig
}

func (*retryAction) Strategy() domain.Strategy { return domain.StrategyRetry }

func (a *retryAction) Execute(ctx context.Context, in Input) (any, []string, error) {
	if in.Op == nil {
		return nil, nil, fmt.Errorf("step %s: no operation available to retry", in.ErrCtx.StepID)
	}
	var cfg domain.ErrorHandlingConfig
	if in.Workflow != nil {
		cfg = in.Workflow.ErrorHandling
	}
	rc := retryConfigFor(in.step(), cfg, a.defaults)

	out := a.mgr.ExecuteWithRetry(ctx, in.Op, rc, nil)
	if !out.Success {
		return nil, nil, fmt.Errorf("retry exhausted after %d attempts: %w", out.Attempts, out.Err)
	}
	return out.Result, nil, nil
}

// breakerAction re-runs the original operation behind the dependency's
// circuit breaker.
type breakerAction struct {
	registry *breaker.Registry
}

func (*breakerAction) Strategy() domain.Strategy { return domain.StrategyCircuitBreaker }

func (a *breakerAction) Execute(ctx context.Context, in Input) (any, []string, error) {
	if in.Op == nil {
		return nil, nil, fmt.Errorf("step %s: no operation available to guard", in.ErrCtx.StepID)
	}

	key := breakerKey(in)
	b := a.registry.GetOrCreateWith(key, breakerConfigFor(in))
	result, err := b.Execute(ctx, in.Op)
	if err != nil {
		return nil, nil, err
	}
	return result, nil, nil
}

func breakerConfigFor(in Input) breaker.Config {
	if in.Workflow == nil {
		return breaker.DefaultConfig()
	}
	bc := in.Workflow.ErrorHandling.CircuitBreaker
	if bc.FailureThreshold == 0 && bc.ResetTimeout == 0 {
		return breaker.DefaultConfig()
	}
	return breaker.Config{
		FailureThreshold: bc.FailureThreshold,
		ResetTimeout:     bc.ResetTimeout,
		MonitoringPeriod: bc.MonitoringPeriod,
		ExpectedErrors:   bc.ExpectedErrors,
		ResetOnSuccess:   bc.ResetOnSuccess,
	}
}

// FallbackHandler performs one named fallback action for a step.
type FallbackHandler func(ctx context.Context, in Input) (any, error)

// DefaultFallbackAction is used when a step does not name one.
const DefaultFallbackAction = "use-cached-data"

// fallbackAction dispatches to a named fallback handler. Success is
// reported once the fallback action itself completes without error.
type fallbackAction struct {
	mu       sync.RWMutex
	handlers map[string]FallbackHandler
}

func newFallbackAction() *fallbackAction {
	a := &fallbackAction{handlers: make(map[string]FallbackHandler)}
	a.register("use-cached-data", useCachedData)
	a.register("use-default", useDefaultValue)
	return a
}

func (a *fallbackAction) register(name string, fn FallbackHandler) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.handlers[name] = fn
}

func (*fallbackAction) Strategy() domain.Strategy { return domain.StrategyFallback }

func (a *fallbackAction) Execute(ctx context.Context, in Input) (any, []string, error) {
	name := DefaultFallbackAction
	if step := in.step(); step != nil && step.FallbackAction != "" {
		name = step.FallbackAction
	}

	a.mu.RLock()
	handler, ok := a.handlers[name]
	a.mu.RUnlock()
	if !ok {
		return nil, nil, fmt.Errorf("step %s: unknown fallback action %q", in.ErrCtx.StepID, name)
	}

	result, err := handler(ctx, in)
	if err != nil {
		return nil, nil, fmt.Errorf("fallback action %q: %w", name, err)
	}
	warning := fmt.Sprintf("step %s recovered via fallback action %q", in.ErrCtx.StepID, name)
	return result, []string{warning}, nil
}

func useCachedData(_ context.Context, in Input) (any, error) {
	if in.Exec == nil {
		return nil, fmt.Errorf("no execution context")
	}
	v, ok := in.Exec.Variable("cached:" + in.ErrCtx.StepID)
	if !ok {
		return nil, fmt.Errorf("no cached data for step %s", in.ErrCtx.StepID)
	}
	return v, nil
}

func useDefaultValue(_ context.Context, in Input) (any, error) {
	if in.Exec == nil {
		return nil, fmt.Errorf("no execution context")
	}
	v, ok := in.Exec.Variable("default:" + in.ErrCtx.StepID)
	if !ok {
		return nil, fmt.Errorf("no default value for step %s", in.ErrCtx.StepID)
	}
	return v, nil
}

// skipAction bypasses the step. Skipping always succeeds at the recovery
// layer; the workflow-level consequence is the engine's concern.
type skipAction struct{}

func (skipAction) Strategy() domain.Strategy { return domain.StrategySkip }

func (skipAction) Execute(_ context.Context, in Input) (any, []string, error) {
	if in.Exec != nil {
		in.Exec.MarkStepSkipped(in.ErrCtx.StepID)
	}
	warning := fmt.Sprintf("step %s bypassed", in.ErrCtx.StepID)
	return nil, []string{warning}, nil
}
