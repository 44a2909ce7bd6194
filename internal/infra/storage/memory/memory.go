package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/stepguard/stepguard/internal/core/domain"
	"github.com/stepguard/stepguard/internal/infra/storage"
)

// Store is an in-memory implementation of the storage repositories, used
// for tests and database-less runs.
type Store struct {
	mu        sync.RWMutex
	workflows map[string]*domain.Workflow
	history   []*domain.RecoveryRecord
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		workflows: make(map[string]*domain.Workflow),
	}
}

// -----------------------------------------------------------------------------
// Workflow Repository
// -----------------------------------------------------------------------------

// WorkflowRepo implements storage.WorkflowRepository in memory.
type WorkflowRepo struct {
	store *Store
}

// NewWorkflowRepo creates a workflow repository over the store.
func NewWorkflowRepo(store *Store) *WorkflowRepo {
	return &WorkflowRepo{store: store}
}

// Put registers a workflow definition. Test/bootstrap helper; the engine
// itself only reads.
func (r *WorkflowRepo) Put(wf *domain.Workflow) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.workflows[wf.ID] = wf
}

func (r *WorkflowRepo) FindByID(ctx context.Context, id string) (*domain.Workflow, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	wf, ok := r.store.workflows[id]
	if !ok {
		return nil, storage.ErrWorkflowNotFound
	}
	return wf, nil
}

// -----------------------------------------------------------------------------
// Recovery History Repository
// -----------------------------------------------------------------------------

// HistoryRepo implements storage.RecoveryHistoryRepository in memory.
type HistoryRepo struct {
	store *Store
}

// NewHistoryRepo creates a history repository over the store.
func NewHistoryRepo(store *Store) *HistoryRepo {
	return &HistoryRepo{store: store}
}

func (r *HistoryRepo) Record(ctx context.Context, rec *domain.RecoveryRecord) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	cp := *rec
	r.store.history = append(r.store.history, &cp)
	return nil
}

func (r *HistoryRepo) ListByWorkflow(
	ctx context.Context,
	workflowID string,
	limit int,
) ([]*domain.RecoveryRecord, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var out []*domain.RecoveryRecord
	for _, rec := range r.store.history {
		if rec.WorkflowID == workflowID {
			cp := *rec
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *HistoryRepo) DeleteOlderThan(
	ctx context.Context,
	workflowID string,
	cutoffUnix int64,
) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	cutoff := time.Unix(cutoffUnix, 0)
	kept := r.store.history[:0]
	var removed int64
	for _, rec := range r.store.history {
		if rec.WorkflowID == workflowID && rec.CreatedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, rec)
	}
	// Clear the dropped tail so the backing array releases its pointers.
	for i := len(kept); i < len(r.store.history); i++ {
		r.store.history[i] = nil
	}
	r.store.history = kept
	return removed, nil
}
