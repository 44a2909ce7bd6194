package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/stepguard/stepguard/internal/infra/storage"
)

// Pruner deletes old recovery history based on the retention policy.
type Pruner struct {
	history     storage.RecoveryHistoryRepository
	workflowIDs []string
	retention   time.Duration
	log         *slog.Logger
}

// NewPruner creates a new Pruner worker over the given workflows.
func NewPruner(
	history storage.RecoveryHistoryRepository,
	workflowIDs []string,
	retention time.Duration,
	log *slog.Logger,
) *Pruner {
	if log == nil {
		log = slog.Default()
	}
	return &Pruner{
		history:     history,
		workflowIDs: workflowIDs,
		retention:   retention,
		log:         log,
	}
}

// Start runs the pruner loop.
func (p *Pruner) Start(ctx context.Context) {
	if p.retention <= 0 {
		return // Retention disabled
	}

	// Check interval: 10% of the retention period, clamped to [1m, 1h].
	interval := min(p.retention/10, time.Hour)
	interval = max(interval, time.Minute)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.prune(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.prune(ctx)
		}
	}
}

func (p *Pruner) prune(ctx context.Context) {
	cutoff := time.Now().Add(-p.retention).Unix()

	for _, id := range p.workflowIDs {
		n, err := p.history.DeleteOlderThan(ctx, id, cutoff)
		if err != nil {
			p.log.Error("Failed to prune recovery history",
				"workflow_id", id, "error", err)
			continue
		}
		if n > 0 {
			p.log.Info("Pruned recovery history",
				"workflow_id", id, "removed", n)
		}
	}
}
