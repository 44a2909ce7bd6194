// Package engine is the top-level error-recovery orchestrator. It
// classifies step errors, drives strategy selection and cascading
// execution, and publishes the recovery lifecycle as ordered events with
// aggregated metrics.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/stepguard/stepguard/internal/core/domain"
	"github.com/stepguard/stepguard/internal/core/execution"
	"github.com/stepguard/stepguard/internal/infra/storage"
	"github.com/stepguard/stepguard/internal/observe"
	"github.com/stepguard/stepguard/internal/resilience/breaker"
	"github.com/stepguard/stepguard/internal/resilience/faultinject"
	"github.com/stepguard/stepguard/internal/resilience/metrics"
	"github.com/stepguard/stepguard/internal/resilience/retry"
	"github.com/stepguard/stepguard/internal/resilience/strategy"
)

// Config wires an Engine's collaborators. Workflows is required; the rest
// default to in-process no-op or fresh instances.
type Config struct {
	Workflows       storage.WorkflowRepository
	History         storage.RecoveryHistoryRepository
	Observer        observe.Observer
	BreakerDefaults breaker.Config
	RetryDefaults   domain.RetryConfig
	Injector        *faultinject.Injector
	Logger          *slog.Logger
}

// Engine orchestrates error recovery. Multiple step failures may be
// recovered concurrently; shared state is confined to the breaker registry
// and the history repository.
type Engine struct {
	workflows  storage.WorkflowRepository
	history    storage.RecoveryHistoryRepository
	breakers   *breaker.Registry
	retries    *retry.Manager
	strategies *strategy.Manager
	injector   *faultinject.Injector
	obs        observe.Observer
	log        *slog.Logger
	now        func() time.Time
	newID      func() string
}

// New creates an Engine. The breaker registry is owned by the engine so
// that state transitions flow into breaker lifecycle events.
func New(cfg Config) *Engine {
	e := &Engine{
		workflows: cfg.Workflows,
		history:   cfg.History,
		injector:  cfg.Injector,
		obs:       cfg.Observer,
		log:       cfg.Logger,
		now:       time.Now,
		newID:     func() string { return uuid.New().String() },
	}
	if e.obs == nil {
		e.obs = observe.Noop{}
	}
	if e.log == nil {
		e.log = slog.Default()
	}

	defaults := cfg.BreakerDefaults
	if defaults.FailureThreshold == 0 && defaults.ResetTimeout == 0 {
		defaults = breaker.DefaultConfig()
	}
	e.breakers = breaker.NewRegistry(defaults, e.onBreakerTransition)
	e.retries = retry.NewManager(e.obs)
	e.strategies = strategy.NewManager(e.breakers, e.retries, strategy.WithRetryDefaults(cfg.RetryDefaults))
	return e
}

// Workflow resolves a workflow definition by ID.
func (e *Engine) Workflow(ctx context.Context, id string) (*domain.Workflow, error) {
	return e.workflows.FindByID(ctx, id)
}

// Breakers exposes the registry for health reporting and admin surfaces.
func (e *Engine) Breakers() *breaker.Registry { return e.breakers }

// Strategies exposes the strategy manager so callers can register custom
// fallback handlers.
func (e *Engine) Strategies() *strategy.Manager { return e.strategies }

// HandleStepError classifies a step failure and returns its immutable
// ErrorContext. No recovery is attempted here: classification and recovery
// are separate so each can be exercised on its own.
func (e *Engine) HandleStepError(
	ctx context.Context,
	stepErr error,
	step *domain.Step,
	wf *domain.Workflow,
	exec *execution.Context,
) domain.ErrorContext {
	var stepID, workflowID string
	if step != nil {
		stepID = step.ID
	}
	if wf != nil {
		workflowID = wf.ID
	}

	errCtx := domain.ErrorContext{
		ID:         e.newID(),
		Err:        stepErr,
		StepID:     stepID,
		WorkflowID: workflowID,
		Timestamp:  e.now(),
		Category:   Categorize(stepErr),
	}
	if exec != nil {
		errCtx = errCtx.WithRetryCount(exec.ErrorCountForStep(stepID))
		exec.AddError(errCtx)
	}

	metrics.ErrorsDetected.WithLabelValues(
		workflowID, string(errCtx.Category.Type), string(errCtx.Category.Severity),
	).Inc()

	e.emit(ctx, domain.EventErrorDetected, map[string]any{
		"error_id":    errCtx.ID,
		"workflow_id": workflowID,
		"step_id":     stepID,
		"error":       errCtx.ErrorMessage(),
		"type":        string(errCtx.Category.Type),
		"severity":    string(errCtx.Category.Severity),
		"recoverable": errCtx.Category.Recoverable,
		"retry_count": errCtx.RetryCount,
	})
	return errCtx
}

// RecoverFromError runs the ranked, cascading recovery search for one
// classified failure. op is the original failing operation; strategies
// that re-execute it treat a nil op as their own failure and the cascade
// moves on.
func (e *Engine) RecoverFromError(
	ctx context.Context,
	errCtx domain.ErrorContext,
	wf *domain.Workflow,
	exec *execution.Context,
	op domain.Operation,
) domain.RecoveryResult {
	in := strategy.Input{ErrCtx: errCtx, Workflow: wf, Exec: exec, Op: op}

	var cfg domain.ErrorHandlingConfig
	if wf != nil {
		cfg = wf.ErrorHandling
	}

	options := e.strategies.EvaluateOptions(in, cfg)
	sel, err := e.strategies.Select(options)
	if err != nil {
		return domain.RecoveryResult{
			Warnings: []string{"no recovery options available"},
		}
	}

	e.emit(ctx, domain.EventRecoveryStrategySelect, map[string]any{
		"error_id":    errCtx.ID,
		"workflow_id": errCtx.WorkflowID,
		"step_id":     errCtx.StepID,
		"strategy":    string(sel.Primary),
		"fallbacks":   strategyNames(sel.Fallbacks),
		"confidence":  options[0].Confidence,
	})

	if exec != nil {
		exec.UpdateState(execution.StateRecovering)
	}
	result := e.strategies.Cascade(ctx, sel, in)
	e.emitRecoveryOutcome(ctx, errCtx, sel, result)
	e.recordRecovery(ctx, errCtx, result)
	return result
}

// emitRecoveryOutcome publishes the event shape the result calls for: a
// plain completion for single-shot success, or the primary-failed /
// fallback-executed / multi-stage triple for cascades.
func (e *Engine) emitRecoveryOutcome(
	ctx context.Context,
	errCtx domain.ErrorContext,
	sel strategy.Selection,
	result domain.RecoveryResult,
) {
	base := map[string]any{
		"error_id":    errCtx.ID,
		"workflow_id": errCtx.WorkflowID,
		"step_id":     errCtx.StepID,
	}

	if len(result.Stages) == 0 {
		data := clone(base)
		data["strategy"] = string(result.Strategy)
		data["duration"] = result.ExecutionTime
		e.emit(ctx, domain.EventRecoveryCompleted, data)
		return
	}

	for i, stage := range result.Stages {
		data := clone(base)
		data["strategy"] = string(stage.Stage)
		data["reason"] = stage.Reason
		if i == 0 {
			e.emit(ctx, domain.EventRecoveryPrimaryFailed, data)
			continue
		}
		data["success"] = stage.Success
		e.emit(ctx, domain.EventRecoveryFallbackRun, data)
	}

	final := clone(base)
	final["success"] = result.Success
	final["strategy"] = string(result.Strategy)
	final["stages"] = len(result.Stages)
	final["duration"] = result.ExecutionTime
	e.emit(ctx, domain.EventRecoveryMultiStage, final)
}

func (e *Engine) recordRecovery(
	ctx context.Context,
	errCtx domain.ErrorContext,
	result domain.RecoveryResult,
) {
	outcome := "failure"
	if result.Success {
		outcome = "success"
	}
	metrics.RecoveriesTotal.WithLabelValues(
		errCtx.WorkflowID, string(result.Strategy), outcome,
	).Inc()
	metrics.RecoveryDuration.WithLabelValues(
		errCtx.WorkflowID, string(result.Strategy),
	).Observe(result.ExecutionTime.Seconds())

	if e.history == nil {
		return
	}
	rec := &domain.RecoveryRecord{
		ID:         e.newID(),
		WorkflowID: errCtx.WorkflowID,
		StepID:     errCtx.StepID,
		ErrorType:  errCtx.Category.Type,
		Severity:   errCtx.Category.Severity,
		Strategy:   result.Strategy,
		Success:    result.Success,
		Duration:   result.ExecutionTime,
		CreatedAt:  e.now(),
	}
	if err := e.history.Record(ctx, rec); err != nil {
		e.log.Warn("Failed to record recovery history",
			"workflow_id", errCtx.WorkflowID, "error", err)
	}
}

// ExecuteWithCircuitBreaker routes op through the named dependency's
// breaker. Breaker lifecycle events are emitted on state transitions via
// the registry callback.
func (e *Engine) ExecuteWithCircuitBreaker(
	ctx context.Context,
	op domain.Operation,
	dependencyKey string,
	exec *execution.Context,
) (any, error) {
	b := e.breakers.GetOrCreate(dependencyKey)
	result, err := b.Execute(ctx, op)
	if errors.Is(err, breaker.ErrOpen) {
		metrics.BreakerRejections.WithLabelValues(dependencyKey).Inc()
	}
	return result, err
}

// ExecuteWithRetry routes op through the retry manager, which emits the
// retry lifecycle events.
func (e *Engine) ExecuteWithRetry(
	ctx context.Context,
	op domain.Operation,
	cfg domain.RetryConfig,
	exec *execution.Context,
) retry.Outcome {
	out := e.retries.ExecuteWithRetry(ctx, op, cfg, nil)
	if out.Attempts > 1 {
		workflowID := ""
		if exec != nil {
			workflowID = exec.WorkflowID()
		}
		metrics.RetryAttempts.WithLabelValues(workflowID).Add(float64(out.Attempts - 1))
	}
	return out
}

// ConfigureFaultScenario arms fault scenarios on the injector and relays
// the result. Returns a zero result when no injector is wired.
func (e *Engine) ConfigureFaultScenario(
	workflowID string,
	scenarios []faultinject.Scenario,
) faultinject.ConfigureResult {
	if e.injector == nil {
		return faultinject.ConfigureResult{}
	}
	return e.injector.ConfigureScenario(workflowID, scenarios)
}

// InjectFault fires an armed fault and relays the outcome as a
// fault.injected event.
func (e *Engine) InjectFault(
	ctx context.Context,
	faultType string,
	stepCtx faultinject.StepContext,
) faultinject.InjectResult {
	if e.injector == nil {
		return faultinject.InjectResult{
			FaultType: faultType,
			Reason:    "no fault injector configured",
		}
	}
	res := e.injector.InjectFault(faultType, stepCtx)

	data := map[string]any{
		"workflow_id": stepCtx.WorkflowID,
		"step_id":     stepCtx.StepID,
		"fault_type":  res.FaultType,
		"injected":    res.Injected,
	}
	if res.Injected {
		data["effect"] = res.Effect
		metrics.FaultsInjected.WithLabelValues(stepCtx.WorkflowID, res.FaultType).Inc()
	} else {
		data["reason"] = res.Reason
	}
	e.emit(ctx, domain.EventFaultInjected, data)
	return res
}

// onBreakerTransition translates registry state changes into the breaker
// lifecycle events and gauge updates.
func (e *Engine) onBreakerTransition(name string, from, to breaker.State) {
	metrics.BreakerState.WithLabelValues(name).Set(gaugeValue(to))

	var t domain.EventType
	switch to {
	case breaker.StateOpen:
		t = domain.EventBreakerOpened
	case breaker.StateHalfOpen:
		t = domain.EventBreakerHalfOpenTest
	case breaker.StateClosed:
		t = domain.EventBreakerClosed
	default:
		return
	}
	e.emit(context.Background(), t, map[string]any{
		"breaker": name,
		"from":    from.String(),
		"to":      to.String(),
	})
}

func gaugeValue(s breaker.State) float64 {
	switch s {
	case breaker.StateHalfOpen:
		return 1
	case breaker.StateOpen:
		return 2
	default:
		return 0
	}
}

func (e *Engine) emit(ctx context.Context, t domain.EventType, data map[string]any) {
	e.obs.OnEvent(ctx, domain.Event{Type: t, Timestamp: e.now(), Data: data})
}

func strategyNames(ss []domain.Strategy) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = string(s)
	}
	return out
}

func clone(m map[string]any) map[string]any {
	out := make(map[string]any, len(m)+4)
	for k, v := range m {
		out[k] = v
	}
	return out
}
