// Package storage defines the persistence boundaries of the recovery
// engine: read-only workflow definitions and the append-only recovery
// history that powers metrics and insights.
package storage

import (
	"context"
	"errors"

	"github.com/stepguard/stepguard/internal/core/domain"
)

var (
	// ErrWorkflowNotFound is returned when a workflow definition doesn't exist
	ErrWorkflowNotFound = errors.New("workflow not found")
)

// WorkflowRepository reads workflow definitions. The recovery engine reads
// a workflow's error-handling policy to parameterize recovery; it never
// writes definitions.
type WorkflowRepository interface {
	// FindByID retrieves a workflow definition
	FindByID(ctx context.Context, id string) (*domain.Workflow, error)
}

// RecoveryHistoryRepository stores the trace of completed recoveries.
type RecoveryHistoryRepository interface {
	// Record appends one recovery record
	Record(ctx context.Context, rec *domain.RecoveryRecord) error

	// ListByWorkflow returns records for a workflow, newest first.
	// limit <= 0 means no limit.
	ListByWorkflow(ctx context.Context, workflowID string, limit int) ([]*domain.RecoveryRecord, error)

	// DeleteOlderThan prunes records before the cutoff, returning how
	// many were removed
	DeleteOlderThan(ctx context.Context, workflowID string, cutoffUnix int64) (int64, error)
}
