// Package observe delivers recovery-lifecycle events to pluggable sinks.
// The resilience packages emit an explicit, ordered stream of domain events;
// adapters forward them to whatever bus is in use, which keeps the core
// testable without a live event system.
package observe

import (
	"context"

	"github.com/stepguard/stepguard/internal/core/domain"
)

// Observer receives recovery-lifecycle events. Implementations must be safe
// for concurrent use and should not block the emitting goroutine for long.
type Observer interface {
	OnEvent(ctx context.Context, event domain.Event)
}

// Noop discards all events.
type Noop struct{}

func (Noop) OnEvent(context.Context, domain.Event) {}

// Multi fans events out to multiple observers in order.
type Multi struct {
	observers []Observer
}

// NewMulti creates a Multi forwarding to all non-nil observers.
func NewMulti(observers ...Observer) *Multi {
	filtered := make([]Observer, 0, len(observers))
	for _, obs := range observers {
		if obs != nil {
			filtered = append(filtered, obs)
		}
	}
	return &Multi{observers: filtered}
}

func (m *Multi) OnEvent(ctx context.Context, event domain.Event) {
	for _, obs := range m.observers {
		obs.OnEvent(ctx, event)
	}
}
