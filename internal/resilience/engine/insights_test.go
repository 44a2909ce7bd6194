package engine

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stepguard/stepguard/internal/core/domain"
	"github.com/stepguard/stepguard/internal/infra/storage/memory"
	"github.com/stepguard/stepguard/internal/observe"
	"github.com/stepguard/stepguard/internal/resilience/faultinject"
)

func seedHistory(t *testing.T, store *memory.Store, records []*domain.RecoveryRecord) {
	t.Helper()
	repo := memory.NewHistoryRepo(store)
	for _, rec := range records {
		if err := repo.Record(context.Background(), rec); err != nil {
			t.Fatalf("seed record: %v", err)
		}
	}
}

func record(id, workflowID, stepID string, et domain.ErrorType, success bool, d time.Duration) *domain.RecoveryRecord {
	return &domain.RecoveryRecord{
		ID:         id,
		WorkflowID: workflowID,
		StepID:     stepID,
		ErrorType:  et,
		Severity:   domain.SeverityMedium,
		Strategy:   domain.StrategyRetry,
		Success:    success,
		Duration:   d,
		CreatedAt:  time.Now(),
	}
}

func TestErrorMetricsAggregation(t *testing.T) {
	store := memory.NewStore()
	seedHistory(t, store, []*domain.RecoveryRecord{
		record("r1", "wf-1", "step-a", domain.ErrorTypeNetwork, true, 100*time.Millisecond),
		record("r2", "wf-1", "step-a", domain.ErrorTypeNetwork, false, 200*time.Millisecond),
		record("r3", "wf-1", "step-b", domain.ErrorTypeResource, true, 300*time.Millisecond),
		record("r4", "wf-1", "step-b", domain.ErrorTypeValidation, true, 400*time.Millisecond),
		// Different workflow, must not leak into wf-1 metrics.
		record("r5", "wf-2", "step-z", domain.ErrorTypeSystem, false, time.Second),
	})

	rec := observe.NewRecorder()
	eng := New(Config{
		Workflows: memory.NewWorkflowRepo(store),
		History:   memory.NewHistoryRepo(store),
		Observer:  rec,
	})

	m, err := eng.ErrorMetrics(context.Background(), "wf-1")
	if err != nil {
		t.Fatalf("ErrorMetrics: %v", err)
	}

	if m.TotalErrors != 4 {
		t.Errorf("TotalErrors = %d, want 4", m.TotalErrors)
	}
	if m.SuccessfulRecoveries != 3 || m.FailedRecoveries != 1 {
		t.Errorf("recoveries = %d/%d, want 3/1", m.SuccessfulRecoveries, m.FailedRecoveries)
	}
	if m.RecoveryRate != 0.75 {
		t.Errorf("RecoveryRate = %v, want 0.75", m.RecoveryRate)
	}
	if want := 250 * time.Millisecond; m.AvgRecoveryTime != want {
		t.Errorf("AvgRecoveryTime = %v, want %v", m.AvgRecoveryTime, want)
	}
	if m.ByType[domain.ErrorTypeNetwork] != 2 {
		t.Errorf("ByType[network] = %d, want 2", m.ByType[domain.ErrorTypeNetwork])
	}
	if m.ByStep["step-a"] != 2 || m.ByStep["step-b"] != 2 {
		t.Errorf("ByStep = %v", m.ByStep)
	}

	events := rec.OfType(domain.EventMetricsCollected)
	if len(events) != 1 {
		t.Fatalf("metrics.collected events = %d, want 1", len(events))
	}
	if got := events[0].Data["total_errors"]; got != 4 {
		t.Errorf("total_errors payload = %v, want 4", got)
	}
}

func TestErrorMetricsEmptyHistory(t *testing.T) {
	store := memory.NewStore()
	eng := New(Config{
		Workflows: memory.NewWorkflowRepo(store),
		History:   memory.NewHistoryRepo(store),
		Observer:  observe.NewRecorder(),
	})

	m, err := eng.ErrorMetrics(context.Background(), "wf-empty")
	if err != nil {
		t.Fatalf("ErrorMetrics: %v", err)
	}
	if m.TotalErrors != 0 || m.RecoveryRate != 0 || m.AvgRecoveryTime != 0 {
		t.Errorf("metrics = %+v, want zeros", m)
	}
}

func TestRecoveryInsightsTopTypesAndPatterns(t *testing.T) {
	store := memory.NewStore()
	var records []*domain.RecoveryRecord
	// Three network failures on the same step form a pattern.
	for i := 0; i < 3; i++ {
		records = append(records, record(
			"net-"+string(rune('a'+i)), "wf-1", "fetch-rates",
			domain.ErrorTypeNetwork, i == 0, 50*time.Millisecond))
	}
	// Two resource errors spread over two steps: never a pattern.
	records = append(records,
		record("res-a", "wf-1", "step-a", domain.ErrorTypeResource, true, 50*time.Millisecond),
		record("res-b", "wf-1", "step-b", domain.ErrorTypeResource, true, 50*time.Millisecond),
	)
	seedHistory(t, store, records)

	rec := observe.NewRecorder()
	eng := New(Config{
		Workflows: memory.NewWorkflowRepo(store),
		History:   memory.NewHistoryRepo(store),
		Observer:  rec,
	})

	ins, err := eng.RecoveryInsights(context.Background(), "wf-1")
	if err != nil {
		t.Fatalf("RecoveryInsights: %v", err)
	}

	if len(ins.TopErrorTypes) != 2 {
		t.Fatalf("TopErrorTypes = %v, want 2 entries", ins.TopErrorTypes)
	}
	top := ins.TopErrorTypes[0]
	if top.Type != domain.ErrorTypeNetwork || top.Count != 3 {
		t.Errorf("top type = %+v, want network x3", top)
	}
	if want := 1.0 / 3.0; top.RecoveryRate != want {
		t.Errorf("top recovery rate = %v, want %v", top.RecoveryRate, want)
	}

	if len(ins.Patterns) != 1 {
		t.Fatalf("Patterns = %v, want exactly one", ins.Patterns)
	}
	p := ins.Patterns[0]
	if p.StepID != "fetch-rates" || p.Type != domain.ErrorTypeNetwork || p.Count != 3 {
		t.Errorf("pattern = %+v", p)
	}

	// Recovery rate 3/5 is above the alert line; the dominant-type and
	// per-pattern recommendations still fire.
	joined := strings.Join(ins.Recommendations, "\n")
	if !strings.Contains(joined, "network errors dominate") {
		t.Errorf("missing dominant-type recommendation in %q", joined)
	}
	if !strings.Contains(joined, `step "fetch-rates" fails repeatedly`) {
		t.Errorf("missing pattern recommendation in %q", joined)
	}
	if strings.Contains(joined, "recovery rate is") {
		t.Errorf("unexpected low-rate recommendation in %q", joined)
	}

	if got := rec.OfType(domain.EventInsightsGenerated); len(got) != 1 {
		t.Errorf("insights.generated events = %d, want 1", len(got))
	}
}

func TestRecoveryInsightsLowRateRecommendation(t *testing.T) {
	store := memory.NewStore()
	seedHistory(t, store, []*domain.RecoveryRecord{
		record("r1", "wf-1", "step-a", domain.ErrorTypeSystem, false, time.Millisecond),
		record("r2", "wf-1", "step-b", domain.ErrorTypeSystem, false, time.Millisecond),
		record("r3", "wf-1", "step-c", domain.ErrorTypeSystem, true, time.Millisecond),
	})

	eng := New(Config{
		Workflows: memory.NewWorkflowRepo(store),
		History:   memory.NewHistoryRepo(store),
		Observer:  observe.NewRecorder(),
	})

	ins, err := eng.RecoveryInsights(context.Background(), "wf-1")
	if err != nil {
		t.Fatalf("RecoveryInsights: %v", err)
	}
	joined := strings.Join(ins.Recommendations, "\n")
	if !strings.Contains(joined, "recovery rate is 33%") {
		t.Errorf("missing low-rate recommendation in %q", joined)
	}
	if !strings.Contains(joined, "system errors dominate") {
		t.Errorf("missing system-type recommendation in %q", joined)
	}
}

func TestRecoveryInsightsEmptyHistory(t *testing.T) {
	store := memory.NewStore()
	rec := observe.NewRecorder()
	eng := New(Config{
		Workflows: memory.NewWorkflowRepo(store),
		History:   memory.NewHistoryRepo(store),
		Observer:  rec,
		Injector:  faultinject.New(),
	})

	ins, err := eng.RecoveryInsights(context.Background(), "wf-empty")
	if err != nil {
		t.Fatalf("RecoveryInsights: %v", err)
	}
	if len(ins.TopErrorTypes) != 0 || len(ins.Patterns) != 0 || len(ins.Recommendations) != 0 {
		t.Errorf("insights = %+v, want empty", ins)
	}
	if got := rec.OfType(domain.EventInsightsGenerated); len(got) != 1 {
		t.Errorf("insights.generated events = %d, want 1", len(got))
	}
}
