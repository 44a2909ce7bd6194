package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/stepguard/stepguard/internal/core/domain"
	"github.com/stepguard/stepguard/internal/infra/storage"
)

// WorkflowRepo implements storage.WorkflowRepository using PostgreSQL.
// Definitions are stored as JSONB; the ID column mirrors the definition's
// ID for lookup.
type WorkflowRepo struct {
	db *DB
}

// NewWorkflowRepo creates a new PostgreSQL workflow repository.
func NewWorkflowRepo(db *DB) *WorkflowRepo {
	return &WorkflowRepo{db: db}
}

// FindByID retrieves a workflow definition.
func (r *WorkflowRepo) FindByID(ctx context.Context, id string) (*domain.Workflow, error) {
	var raw []byte
	err := r.db.QueryRowxContext(ctx,
		`SELECT definition FROM workflows WHERE id = $1`, id,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrWorkflowNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get workflow: %w", err)
	}

	var wf domain.Workflow
	if err := json.Unmarshal(raw, &wf); err != nil {
		return nil, fmt.Errorf("failed to decode workflow definition: %w", err)
	}
	return &wf, nil
}

// Save upserts a workflow definition. Used by admin tooling; the recovery
// engine itself only reads.
func (r *WorkflowRepo) Save(ctx context.Context, wf *domain.Workflow) error {
	raw, err := json.Marshal(wf)
	if err != nil {
		return fmt.Errorf("failed to encode workflow definition: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO workflows (id, name, definition, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, definition = EXCLUDED.definition, updated_at = NOW()
	`, wf.ID, wf.Name, raw)
	if err != nil {
		return fmt.Errorf("failed to save workflow: %w", err)
	}
	return nil
}
