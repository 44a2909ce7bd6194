// Package retry executes operations with a configurable backoff schedule
// and retry-eligibility predicate. Exhausting retries is a structured
// failure, not an error of its own: the caller decides what happens next.
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/stepguard/stepguard/internal/core/domain"
	"github.com/stepguard/stepguard/internal/observe"
)

// Condition decides whether an error is retryable. A nil Condition admits
// every error up to the configured retry budget.
type Condition func(error) bool

// Outcome reports how a retried operation ended. Attempts counts the
// initial call plus every retry consumed.
type Outcome struct {
	Success  bool
	Result   any
	Err      error
	Attempts int
}

// Manager runs operations with retries. Safe for concurrent use; each call
// sleeps only its own goroutine.
type Manager struct {
	obs       observe.Observer
	sleep     func(ctx context.Context, d time.Duration) error
	randFloat func() float64
	now       func() time.Time
}

// Option customizes a Manager.
type Option func(*Manager)

// WithSleep replaces the between-attempt sleep. Tests use this to capture
// computed delays without waiting.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(m *Manager) { m.sleep = fn }
}

// WithRand replaces the jitter randomness source for reproducibility.
func WithRand(fn func() float64) Option {
	return func(m *Manager) { m.randFloat = fn }
}

// NewManager creates a Manager emitting events to obs (nil means none).
func NewManager(obs observe.Observer, opts ...Option) *Manager {
	m := &Manager{
		obs:       obs,
		sleep:     sleepCtx,
		randFloat: rand.Float64,
		now:       time.Now,
	}
	if obs == nil {
		m.obs = observe.Noop{}
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// ExecuteWithRetry runs op up to cfg.MaxRetries additional times. Attempt 0
// is the initial call. A retry happens only while the budget holds and cond
// (if set) admits the error. One retry.attempt event is emitted per retry,
// then a terminal retry.success or retry.max.attempts.exceeded event. A
// between-attempt wait cut short by context cancellation ends the sequence
// the same way: the terminal event carries the last operation error plus an
// "aborted" field with the context error.
func (m *Manager) ExecuteWithRetry(
	ctx context.Context,
	op domain.Operation,
	cfg domain.RetryConfig,
	cond Condition,
) Outcome {
	var lastErr error

	for attempt := 0; ; attempt++ {
		result, err := op(ctx)
		if err == nil {
			m.emit(ctx, domain.EventRetrySuccess, map[string]any{
				"attempts": attempt + 1,
			})
			return Outcome{Success: true, Result: result, Attempts: attempt + 1}
		}
		lastErr = err

		if attempt >= cfg.MaxRetries || (cond != nil && !cond(err)) {
			m.emit(ctx, domain.EventRetryMaxAttemptsReached, map[string]any{
				"attempts": attempt + 1,
				"error":    err.Error(),
			})
			return Outcome{Err: lastErr, Attempts: attempt + 1}
		}

		delay := m.Delay(attempt+1, cfg)
		m.emit(ctx, domain.EventRetryAttempt, map[string]any{
			"attempt": attempt + 1,
			"delay":   delay,
			"error":   err.Error(),
		})

		if sleepErr := m.sleep(ctx, delay); sleepErr != nil {
			m.emit(ctx, domain.EventRetryMaxAttemptsReached, map[string]any{
				"attempts": attempt + 1,
				"error":    lastErr.Error(),
				"aborted":  sleepErr.Error(),
			})
			return Outcome{Err: lastErr, Attempts: attempt + 1}
		}
	}
}

// Delay computes the backoff before retry number attempt (1-based).
// Fixed: InitialDelay. Exponential: min(InitialDelay * 2^(attempt-1),
// MaxDelay), uncapped when MaxDelay is 0. With Jitter set the result is
// scaled by a uniform multiplier in [0.5, 1.5).
func (m *Manager) Delay(attempt int, cfg domain.RetryConfig) time.Duration {
	var delay time.Duration
	switch cfg.Backoff {
	case domain.BackoffExponential:
		d := float64(cfg.InitialDelay) * math.Pow(2, float64(attempt-1))
		if cfg.MaxDelay > 0 && d > float64(cfg.MaxDelay) {
			d = float64(cfg.MaxDelay)
		}
		delay = time.Duration(d)
	default:
		delay = cfg.InitialDelay
	}

	if cfg.Jitter && delay > 0 {
		delay = time.Duration(float64(delay) * (0.5 + m.randFloat()))
	}
	return delay
}

func (m *Manager) emit(ctx context.Context, t domain.EventType, data map[string]any) {
	m.obs.OnEvent(ctx, domain.Event{Type: t, Timestamp: m.now(), Data: data})
}
