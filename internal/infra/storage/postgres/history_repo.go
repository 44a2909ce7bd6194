package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/stepguard/stepguard/internal/core/domain"
)

// HistoryRepo implements storage.RecoveryHistoryRepository using PostgreSQL.
type HistoryRepo struct {
	db *DB
}

// NewHistoryRepo creates a new PostgreSQL recovery history repository.
func NewHistoryRepo(db *DB) *HistoryRepo {
	return &HistoryRepo{db: db}
}

type historyRow struct {
	ID         string    `db:"id"`
	WorkflowID string    `db:"workflow_id"`
	StepID     string    `db:"step_id"`
	ErrorType  string    `db:"error_type"`
	Severity   string    `db:"severity"`
	Strategy   string    `db:"strategy"`
	Success    bool      `db:"success"`
	DurationMS int64     `db:"duration_ms"`
	CreatedAt  time.Time `db:"created_at"`
}

func (row historyRow) toDomain() *domain.RecoveryRecord {
	return &domain.RecoveryRecord{
		ID:         row.ID,
		WorkflowID: row.WorkflowID,
		StepID:     row.StepID,
		ErrorType:  domain.ErrorType(row.ErrorType),
		Severity:   domain.Severity(row.Severity),
		Strategy:   domain.Strategy(row.Strategy),
		Success:    row.Success,
		Duration:   time.Duration(row.DurationMS) * time.Millisecond,
		CreatedAt:  row.CreatedAt,
	}
}

// Record appends one recovery record.
func (r *HistoryRepo) Record(ctx context.Context, rec *domain.RecoveryRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO recovery_history
			(id, workflow_id, step_id, error_type, severity, strategy, success, duration_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		rec.ID, rec.WorkflowID, rec.StepID,
		string(rec.ErrorType), string(rec.Severity), string(rec.Strategy),
		rec.Success, rec.Duration.Milliseconds(), rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record recovery: %w", err)
	}
	return nil
}

// ListByWorkflow returns records for a workflow, newest first. limit <= 0
// means no limit.
func (r *HistoryRepo) ListByWorkflow(
	ctx context.Context,
	workflowID string,
	limit int,
) ([]*domain.RecoveryRecord, error) {
	query := `
		SELECT id, workflow_id, step_id, error_type, severity, strategy, success, duration_ms, created_at
		FROM recovery_history
		WHERE workflow_id = $1
		ORDER BY created_at DESC
	`
	args := []any{workflowID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	var rows []historyRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list recovery history: %w", err)
	}

	records := make([]*domain.RecoveryRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, row.toDomain())
	}
	return records, nil
}

// DeleteOlderThan prunes records before the cutoff, returning how many were
// removed.
func (r *HistoryRepo) DeleteOlderThan(
	ctx context.Context,
	workflowID string,
	cutoffUnix int64,
) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM recovery_history
		WHERE workflow_id = $1 AND created_at < to_timestamp($2)
	`, workflowID, cutoffUnix)
	if err != nil {
		return 0, fmt.Errorf("failed to prune recovery history: %w", err)
	}
	return res.RowsAffected()
}
