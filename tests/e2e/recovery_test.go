package e2e

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stepguard/stepguard/internal/core/domain"
	"github.com/stepguard/stepguard/internal/core/execution"
	"github.com/stepguard/stepguard/internal/infra/storage/memory"
	"github.com/stepguard/stepguard/internal/observe"
	"github.com/stepguard/stepguard/internal/resilience/breaker"
	"github.com/stepguard/stepguard/internal/resilience/engine"
)

// End-to-end recovery flow over in-process components: a workflow step
// fails, the engine classifies it, recovers through the ranked cascade,
// records history, and the lifecycle events come out in order.
func TestFullRecoveryFlow(t *testing.T) {
	store := memory.NewStore()
	workflows := memory.NewWorkflowRepo(store)
	rec := observe.NewRecorder()

	wf := &domain.Workflow{
		ID:   "wf-checkout",
		Name: "checkout pipeline",
		Steps: []domain.Step{
			{
				ID:             "reserve-stock",
				DependencyKey:  "inventory-api",
				Retry:          &domain.RetryConfig{MaxRetries: 2, InitialDelay: time.Millisecond},
				FallbackAction: "use-cached-data",
			},
		},
	}
	workflows.Put(wf)

	eng := engine.New(engine.Config{
		Workflows:       workflows,
		History:         memory.NewHistoryRepo(store),
		Observer:        rec,
		BreakerDefaults: breaker.Config{FailureThreshold: 5, ResetTimeout: time.Minute},
	})

	ctx := context.Background()
	exec := execution.NewContext("exec-42", wf.ID)

	// The dependency fails twice, then comes back.
	calls := 0
	op := func(ctx context.Context) (any, error) {
		calls++
		if calls <= 2 {
			return nil, errors.New("dial tcp: connection refused")
		}
		return map[string]any{"reserved": true}, nil
	}

	// Initial execution fails.
	_, err := op(ctx)
	if err == nil {
		t.Fatal("expected initial failure")
	}

	errCtx := eng.HandleStepError(ctx, err, &wf.Steps[0], wf, exec)
	if errCtx.Category.Type != domain.ErrorTypeNetwork {
		t.Fatalf("classified as %s, want network", errCtx.Category.Type)
	}

	result := eng.RecoverFromError(ctx, errCtx, wf, exec, op)
	if !result.Success {
		t.Fatalf("recovery failed: %+v", result)
	}
	if result.Strategy != domain.StrategyRetry {
		t.Errorf("strategy = %s, want retry", result.Strategy)
	}
	if calls != 3 {
		t.Errorf("operation calls = %d, want 3 (initial + 2 retries)", calls)
	}

	// Lifecycle event order.
	var types []domain.EventType
	for _, ev := range rec.Events() {
		types = append(types, ev.Type)
	}
	wantOrder := []domain.EventType{
		domain.EventErrorDetected,
		domain.EventRecoveryStrategySelect,
	}
	for i, want := range wantOrder {
		if i >= len(types) || types[i] != want {
			t.Fatalf("event[%d] = %v, want %s (all: %v)", i, types, want, types)
		}
	}
	if n := len(rec.OfType(domain.EventRecoveryCompleted)); n != 1 {
		t.Errorf("recovery.completed events = %d, want 1", n)
	}

	// Execution context reflects the recovery.
	if exec.State() != execution.StateRecovering {
		t.Errorf("state = %s, want recovering", exec.State())
	}
	if n := exec.ErrorCountForStep("reserve-stock"); n != 1 {
		t.Errorf("recorded errors = %d, want 1", n)
	}

	// History feeds the aggregate views.
	m, err := eng.ErrorMetrics(ctx, wf.ID)
	if err != nil {
		t.Fatalf("ErrorMetrics: %v", err)
	}
	if m.TotalErrors != 1 || m.RecoveryRate != 1.0 {
		t.Errorf("metrics = %+v, want one fully recovered error", m)
	}

	ins, err := eng.RecoveryInsights(ctx, wf.ID)
	if err != nil {
		t.Fatalf("RecoveryInsights: %v", err)
	}
	if len(ins.TopErrorTypes) != 1 || ins.TopErrorTypes[0].Type != domain.ErrorTypeNetwork {
		t.Errorf("insights = %+v, want network as top type", ins.TopErrorTypes)
	}
}

// A dependency that stays down: retries exhaust, the breaker trips on the
// repeated failures, and the cascade lands on the fallback's cached data.
func TestCascadeFallsBackToCachedData(t *testing.T) {
	store := memory.NewStore()
	workflows := memory.NewWorkflowRepo(store)
	rec := observe.NewRecorder()

	wf := &domain.Workflow{
		ID: "wf-pricing",
		Steps: []domain.Step{
			{
				ID:             "fetch-rates",
				DependencyKey:  "rates-api",
				Retry:          &domain.RetryConfig{MaxRetries: 1, InitialDelay: time.Millisecond},
				FallbackAction: "use-cached-data",
			},
		},
	}
	workflows.Put(wf)

	eng := engine.New(engine.Config{
		Workflows:       workflows,
		History:         memory.NewHistoryRepo(store),
		Observer:        rec,
		BreakerDefaults: breaker.Config{FailureThreshold: 2, ResetTimeout: time.Minute},
	})

	ctx := context.Background()
	exec := execution.NewContext("exec-7", wf.ID)
	exec.SetVariable("cached:fetch-rates", map[string]float64{"usd": 1.0})

	op := func(ctx context.Context) (any, error) {
		return nil, errors.New("i/o timeout")
	}

	errCtx := eng.HandleStepError(ctx, errors.New("i/o timeout"), &wf.Steps[0], wf, exec)
	result := eng.RecoverFromError(ctx, errCtx, wf, exec, op)

	if !result.Success {
		t.Fatalf("recovery failed: %+v", result)
	}
	if result.Strategy != domain.StrategyFallback {
		t.Errorf("strategy = %s, want fallback", result.Strategy)
	}
	rates, ok := result.Result.(map[string]float64)
	if !ok || rates["usd"] != 1.0 {
		t.Errorf("result = %v, want cached rates", result.Result)
	}
	if len(result.Stages) < 3 {
		t.Errorf("stages = %+v, want retry and breaker failures before fallback", result.Stages)
	}

	if n := len(rec.OfType(domain.EventRecoveryPrimaryFailed)); n != 1 {
		t.Errorf("primary.failed events = %d, want 1", n)
	}
	if n := len(rec.OfType(domain.EventRecoveryMultiStage)); n != 1 {
		t.Errorf("multi.stage events = %d, want 1", n)
	}
}
