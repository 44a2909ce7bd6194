package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stepguard/stepguard/internal/core/domain"
	"github.com/stepguard/stepguard/internal/observe"
)

var errFlaky = errors.New("i/o timeout")

// capturedSleep records every computed delay instead of waiting.
func capturedSleep(delays *[]time.Duration) Option {
	return WithSleep(func(ctx context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	})
}

func TestPermanentFailureConsumesExactBudget(t *testing.T) {
	var delays []time.Duration
	m := NewManager(nil, capturedSleep(&delays))

	invocations := 0
	out := m.ExecuteWithRetry(context.Background(),
		func(ctx context.Context) (any, error) {
			invocations++
			return nil, errFlaky
		},
		domain.RetryConfig{MaxRetries: 3, InitialDelay: 10 * time.Millisecond},
		nil,
	)

	if out.Success {
		t.Fatal("outcome should be failure")
	}
	if invocations != 4 {
		t.Errorf("invocations = %d, want maxRetries+1 = 4", invocations)
	}
	if out.Attempts != 4 {
		t.Errorf("Attempts = %d, want 4", out.Attempts)
	}
	if len(delays) != 3 {
		t.Errorf("delay computations = %d, want maxRetries = 3", len(delays))
	}
	if !errors.Is(out.Err, errFlaky) {
		t.Errorf("Err = %v, want last error", out.Err)
	}
}

func TestEventualSuccessWithFixedBackoff(t *testing.T) {
	var delays []time.Duration
	rec := observe.NewRecorder()
	m := NewManager(rec, capturedSleep(&delays))

	failures := 2
	out := m.ExecuteWithRetry(context.Background(),
		func(ctx context.Context) (any, error) {
			if failures > 0 {
				failures--
				return nil, errFlaky
			}
			return "done", nil
		},
		domain.RetryConfig{
			MaxRetries:   2,
			InitialDelay: 500 * time.Millisecond,
			Backoff:      domain.BackoffFixed,
		},
		nil,
	)

	if !out.Success || out.Attempts != 3 {
		t.Fatalf("outcome = %+v, want success in 3 attempts", out)
	}
	if out.Result != "done" {
		t.Errorf("Result = %v, want done", out.Result)
	}

	attempts := rec.OfType(domain.EventRetryAttempt)
	if len(attempts) != 2 {
		t.Fatalf("retry.attempt events = %d, want 2", len(attempts))
	}
	for i, e := range attempts {
		if d := e.Data["delay"].(time.Duration); d != 500*time.Millisecond {
			t.Errorf("event %d delay = %v, want 500ms", i, d)
		}
	}
	if got := rec.OfType(domain.EventRetrySuccess); len(got) != 1 {
		t.Errorf("retry.success events = %d, want 1", len(got))
	}
}

func TestExponentialBackoffFormula(t *testing.T) {
	m := NewManager(nil)
	cfg := domain.RetryConfig{
		InitialDelay: time.Second,
		Backoff:      domain.BackoffExponential,
		MaxDelay:     5 * time.Second,
	}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 5 * time.Second}, // capped by MaxDelay
		{5, 5 * time.Second},
	}
	for _, tt := range tests {
		if got := m.Delay(tt.attempt, cfg); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}

	// No cap configured means pure doubling.
	uncapped := domain.RetryConfig{InitialDelay: time.Second, Backoff: domain.BackoffExponential}
	if got := m.Delay(6, uncapped); got != 32*time.Second {
		t.Errorf("uncapped Delay(6) = %v, want 32s", got)
	}
}

func TestJitterBounds(t *testing.T) {
	// Jitter multiplier is 0.5 + randFloat, i.e. uniform in [0.5, 1.5).
	cfg := domain.RetryConfig{InitialDelay: time.Second, Jitter: true}

	m := NewManager(nil, WithRand(func() float64 { return 0 }))
	if got := m.Delay(1, cfg); got != 500*time.Millisecond {
		t.Errorf("jitter(rand=0) = %v, want 500ms", got)
	}
	m = NewManager(nil, WithRand(func() float64 { return 0.5 }))
	if got := m.Delay(1, cfg); got != time.Second {
		t.Errorf("jitter(rand=0.5) = %v, want 1s", got)
	}

	// Whatever the source returns, the result stays inside the bounds.
	for _, r := range []float64{0.1, 0.33, 0.77, 0.999} {
		r := r
		m := NewManager(nil, WithRand(func() float64 { return r }))
		got := m.Delay(1, cfg)
		if got < 500*time.Millisecond || got >= 1500*time.Millisecond {
			t.Errorf("jitter(rand=%v) = %v, outside [500ms, 1.5s)", r, got)
		}
	}
}

func TestConditionStopsRetries(t *testing.T) {
	var delays []time.Duration
	rec := observe.NewRecorder()
	m := NewManager(rec, capturedSleep(&delays))

	fatal := errors.New("invalid payload: schema mismatch")
	invocations := 0
	out := m.ExecuteWithRetry(context.Background(),
		func(ctx context.Context) (any, error) {
			invocations++
			return nil, fatal
		},
		domain.RetryConfig{MaxRetries: 5, InitialDelay: time.Millisecond},
		func(err error) bool { return !errors.Is(err, fatal) },
	)

	if out.Success || invocations != 1 || out.Attempts != 1 {
		t.Errorf("out = %+v invocations = %d, want single non-retried failure", out, invocations)
	}
	if got := rec.OfType(domain.EventRetryMaxAttemptsReached); len(got) != 1 {
		t.Errorf("terminal events = %d, want 1", len(got))
	}
}

func TestContextCancellationDuringSleep(t *testing.T) {
	rec := observe.NewRecorder()
	m := NewManager(rec) // real sleep to exercise the ctx branch

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := m.ExecuteWithRetry(ctx,
		func(ctx context.Context) (any, error) { return nil, errFlaky },
		domain.RetryConfig{MaxRetries: 3, InitialDelay: time.Minute},
		nil,
	)

	if out.Success {
		t.Fatal("outcome should be failure")
	}
	if out.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1 (cancelled before first retry)", out.Attempts)
	}
	if !errors.Is(out.Err, errFlaky) {
		t.Errorf("Err = %v, want last operation error", out.Err)
	}

	// The cut-short sequence still ends with a terminal event so observers
	// never see a retry.attempt without a conclusion.
	terminal := rec.OfType(domain.EventRetryMaxAttemptsReached)
	if len(terminal) != 1 {
		t.Fatalf("terminal events = %d, want 1", len(terminal))
	}
	if terminal[0].Data["error"] != errFlaky.Error() {
		t.Errorf("terminal error = %v, want last operation error", terminal[0].Data["error"])
	}
	if terminal[0].Data["aborted"] != context.Canceled.Error() {
		t.Errorf("aborted = %v, want context.Canceled", terminal[0].Data["aborted"])
	}
}

func TestZeroRetriesMeansSingleAttempt(t *testing.T) {
	m := NewManager(nil)
	invocations := 0
	out := m.ExecuteWithRetry(context.Background(),
		func(ctx context.Context) (any, error) {
			invocations++
			return nil, errFlaky
		},
		domain.RetryConfig{MaxRetries: 0},
		nil,
	)
	if invocations != 1 || out.Attempts != 1 {
		t.Errorf("invocations = %d attempts = %d, want 1/1", invocations, out.Attempts)
	}
}
