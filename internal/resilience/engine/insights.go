package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/stepguard/stepguard/internal/core/domain"
)

// ErrorMetrics is the aggregate view of a workflow's recovery history.
type ErrorMetrics struct {
	WorkflowID           string
	TotalErrors          int
	ByType               map[domain.ErrorType]int
	ByStep               map[string]int
	SuccessfulRecoveries int
	FailedRecoveries     int
	RecoveryRate         float64
	AvgRecoveryTime      time.Duration
}

// TypeStat summarizes one error type's share of the history.
type TypeStat struct {
	Type         domain.ErrorType
	Count        int
	RecoveryRate float64
}

// Pattern flags a recurring step/error-type pair.
type Pattern struct {
	StepID string
	Type   domain.ErrorType
	Count  int
}

// Insights is a human-readable projection of the aggregate metrics. It is
// derived state only: generating insights never mutates anything.
type Insights struct {
	WorkflowID      string
	TopErrorTypes   []TypeStat
	Patterns        []Pattern
	Recommendations []string
}

// patternThreshold is how many occurrences of a step/type pair count as a
// recurring failure pattern.
const patternThreshold = 3

// ErrorMetrics aggregates the recorded recovery history for a workflow.
func (e *Engine) ErrorMetrics(ctx context.Context, workflowID string) (*ErrorMetrics, error) {
	m := &ErrorMetrics{
		WorkflowID: workflowID,
		ByType:     make(map[domain.ErrorType]int),
		ByStep:     make(map[string]int),
	}
	if e.history == nil {
		return m, nil
	}

	records, err := e.history.ListByWorkflow(ctx, workflowID, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to load recovery history: %w", err)
	}

	var totalDuration time.Duration
	for _, rec := range records {
		m.TotalErrors++
		m.ByType[rec.ErrorType]++
		m.ByStep[rec.StepID]++
		totalDuration += rec.Duration
		if rec.Success {
			m.SuccessfulRecoveries++
		} else {
			m.FailedRecoveries++
		}
	}
	if n := m.SuccessfulRecoveries + m.FailedRecoveries; n > 0 {
		m.RecoveryRate = float64(m.SuccessfulRecoveries) / float64(n)
		m.AvgRecoveryTime = totalDuration / time.Duration(n)
	}

	e.emit(ctx, domain.EventMetricsCollected, map[string]any{
		"workflow_id":   workflowID,
		"total_errors":  m.TotalErrors,
		"recovery_rate": m.RecoveryRate,
		"avg_recovery":  m.AvgRecoveryTime,
	})
	return m, nil
}

// RecoveryInsights builds recommendations and the top error types from the
// aggregate metrics, flagging recurring step/error-type patterns.
func (e *Engine) RecoveryInsights(ctx context.Context, workflowID string) (*Insights, error) {
	ins := &Insights{WorkflowID: workflowID}
	if e.history == nil {
		return ins, nil
	}

	records, err := e.history.ListByWorkflow(ctx, workflowID, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to load recovery history: %w", err)
	}
	if len(records) == 0 {
		e.emit(ctx, domain.EventInsightsGenerated, map[string]any{
			"workflow_id":     workflowID,
			"recommendations": 0,
		})
		return ins, nil
	}

	type typeAgg struct{ total, recovered int }
	byType := make(map[domain.ErrorType]*typeAgg)
	pairCounts := make(map[Pattern]int)
	succeeded := 0

	for _, rec := range records {
		agg := byType[rec.ErrorType]
		if agg == nil {
			agg = &typeAgg{}
			byType[rec.ErrorType] = agg
		}
		agg.total++
		if rec.Success {
			agg.recovered++
			succeeded++
		}
		pairCounts[Pattern{StepID: rec.StepID, Type: rec.ErrorType}]++
	}

	for t, agg := range byType {
		ins.TopErrorTypes = append(ins.TopErrorTypes, TypeStat{
			Type:         t,
			Count:        agg.total,
			RecoveryRate: float64(agg.recovered) / float64(agg.total),
		})
	}
	sort.SliceStable(ins.TopErrorTypes, func(i, j int) bool {
		if ins.TopErrorTypes[i].Count != ins.TopErrorTypes[j].Count {
			return ins.TopErrorTypes[i].Count > ins.TopErrorTypes[j].Count
		}
		return ins.TopErrorTypes[i].Type < ins.TopErrorTypes[j].Type
	})

	for pair, n := range pairCounts {
		if n >= patternThreshold {
			pair.Count = n
			ins.Patterns = append(ins.Patterns, pair)
		}
	}
	sort.SliceStable(ins.Patterns, func(i, j int) bool {
		if ins.Patterns[i].Count != ins.Patterns[j].Count {
			return ins.Patterns[i].Count > ins.Patterns[j].Count
		}
		return ins.Patterns[i].StepID < ins.Patterns[j].StepID
	})

	ins.Recommendations = e.recommend(ins, float64(succeeded)/float64(len(records)))

	e.emit(ctx, domain.EventInsightsGenerated, map[string]any{
		"workflow_id":     workflowID,
		"top_error_types": len(ins.TopErrorTypes),
		"patterns":        len(ins.Patterns),
		"recommendations": len(ins.Recommendations),
	})
	return ins, nil
}

func (e *Engine) recommend(ins *Insights, recoveryRate float64) []string {
	var recs []string

	if recoveryRate < 0.5 {
		recs = append(recs, fmt.Sprintf(
			"recovery rate is %.0f%%; review strategy ordering and fallback coverage",
			recoveryRate*100))
	}

	if len(ins.TopErrorTypes) > 0 {
		switch ins.TopErrorTypes[0].Type {
		case domain.ErrorTypeNetwork:
			recs = append(recs,
				"network errors dominate; review dependency timeouts and circuit breaker thresholds")
		case domain.ErrorTypeResource:
			recs = append(recs,
				"resource exhaustion is the leading failure; consider rate limiting or added capacity")
		case domain.ErrorTypeValidation:
			recs = append(recs,
				"validation errors are not recoverable at runtime; fix the producing step's data")
		case domain.ErrorTypeSystem:
			recs = append(recs,
				"system errors dominate; check dependency health and recent deployments")
		}
	}

	for _, p := range ins.Patterns {
		recs = append(recs, fmt.Sprintf(
			"step %q fails repeatedly with %s errors (%d occurrences); investigate the underlying dependency",
			p.StepID, p.Type, p.Count))
	}
	return recs
}
