// Package breaker implements a per-dependency circuit breaker. A breaker
// fails fast against a known-bad dependency instead of repeatedly paying
// for a timeout, then cautiously re-tests it after a cooldown.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/stepguard/stepguard/internal/core/domain"
)

// State is the breaker position in its CLOSED/OPEN/HALF_OPEN cycle.
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateHalfOpen:
		return "HALF_OPEN"
	case StateOpen:
		return "OPEN"
	default:
		return "UNKNOWN"
	}
}

// ErrOpen is returned when a call is rejected because the breaker is open.
// It is distinguishable from the wrapped operation's own errors so callers
// can special-case "breaker is protecting me" versus "the operation failed".
var ErrOpen = errors.New("circuit breaker is open")

// Config parameterizes one breaker.
type Config struct {
	FailureThreshold int
	ResetTimeout     time.Duration
	MonitoringPeriod time.Duration
	// ExpectedErrors lists substrings of known/benign error classes. A
	// matching failure is recorded for observability but never counts
	// toward FailureThreshold.
	ExpectedErrors []string
	// ResetOnSuccess zeroes the failure count on every CLOSED-state
	// success (sliding-window semantics). When false, failures accumulate
	// until the next state transition or manual reset.
	ResetOnSuccess bool
}

// DefaultConfig returns conservative defaults.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		ResetTimeout:     30 * time.Second,
		MonitoringPeriod: time.Minute,
	}
}

// StateChange is invoked on every state transition, including ForceState
// and Reset. It runs outside the breaker lock.
type StateChange func(name string, from, to State)

// Metrics is a point-in-time snapshot of one breaker.
type Metrics struct {
	Name             string
	State            State
	FailureCount     int
	SuccessCount     int
	TotalRequests    int
	ExpectedFailures int
	FailureRate      float64
	LastFailureTime  time.Time
}

// Breaker guards calls to one named dependency. Safe for concurrent use.
type Breaker struct {
	name          string
	cfg           Config
	onStateChange StateChange
	now           func() time.Time

	mu               sync.Mutex
	state            State
	failureCount     int
	successCount     int
	totalRequests    int
	expectedFailures int
	lastFailureTime  time.Time
	openedAt         time.Time
	trialInFlight    bool
}

// New creates a breaker in the CLOSED state. A zero FailureThreshold is
// coerced to the default.
func New(name string, cfg Config, onStateChange StateChange) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultConfig().FailureThreshold
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = DefaultConfig().ResetTimeout
	}
	return &Breaker{
		name:          name,
		cfg:           cfg,
		onStateChange: onStateChange,
		now:           time.Now,
	}
}

// Name returns the breaker identity.
func (b *Breaker) Name() string { return b.name }

// Execute routes op through the breaker. In OPEN it rejects immediately
// with ErrOpen (wrapped with the breaker name) without invoking op. On
// failure the operation's original error is returned unwrapped.
func (b *Breaker) Execute(ctx context.Context, op domain.Operation) (any, error) {
	if err := b.admit(); err != nil {
		return nil, err
	}

	result, err := op(ctx)
	if err != nil {
		b.recordFailure(err)
		return nil, err
	}
	b.recordSuccess()
	return result, nil
}

// admit decides whether a call may proceed, performing the timed
// OPEN -> HALF_OPEN transition on the first call after the reset timeout.
func (b *Breaker) admit() error {
	b.mu.Lock()

	switch b.state {
	case StateClosed:
		b.totalRequests++
		b.mu.Unlock()
		return nil

	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cfg.ResetTimeout {
			b.mu.Unlock()
			return fmt.Errorf("breaker %q: %w", b.name, ErrOpen)
		}
		// Reset timeout elapsed: this call becomes the half-open trial.
		fire := b.transition(StateHalfOpen)
		b.trialInFlight = true
		b.totalRequests++
		b.mu.Unlock()
		fire()
		return nil

	case StateHalfOpen:
		if b.trialInFlight {
			// Exactly one trial call; concurrent callers are treated
			// as still-open until the trial resolves.
			b.mu.Unlock()
			return fmt.Errorf("breaker %q: %w", b.name, ErrOpen)
		}
		b.trialInFlight = true
		b.totalRequests++
		b.mu.Unlock()
		return nil
	}

	b.mu.Unlock()
	return nil
}

func (b *Breaker) recordFailure(err error) {
	b.mu.Lock()

	if b.isExpected(err) {
		b.expectedFailures++
		b.lastFailureTime = b.now()
		if b.state == StateHalfOpen {
			b.trialInFlight = false
		}
		b.mu.Unlock()
		return
	}

	b.failureCount++
	b.lastFailureTime = b.now()

	var fire func()
	switch b.state {
	case StateClosed:
		if b.failureCount >= b.cfg.FailureThreshold {
			fire = b.transition(StateOpen)
			b.openedAt = b.now()
		}
	case StateHalfOpen:
		b.trialInFlight = false
		fire = b.transition(StateOpen)
		b.openedAt = b.now()
	}

	b.mu.Unlock()
	if fire != nil {
		fire()
	}
}

func (b *Breaker) recordSuccess() {
	b.mu.Lock()

	b.successCount++

	var fire func()
	switch b.state {
	case StateClosed:
		if b.cfg.ResetOnSuccess {
			b.failureCount = 0
		}
	case StateHalfOpen:
		b.trialInFlight = false
		fire = b.transition(StateClosed)
		b.failureCount = 0
	}

	b.mu.Unlock()
	if fire != nil {
		fire()
	}
}

// transition changes state under the lock and returns a func that fires the
// callback outside it. Caller must hold b.mu.
func (b *Breaker) transition(to State) func() {
	from := b.state
	b.state = to
	if b.onStateChange == nil || from == to {
		return func() {}
	}
	name := b.name
	cb := b.onStateChange
	return func() { cb(name, from, to) }
}

func (b *Breaker) isExpected(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, pattern := range b.cfg.ExpectedErrors {
		if pattern == "" {
			continue
		}
		if strings.Contains(msg, strings.ToLower(pattern)) {
			return true
		}
	}
	return false
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Metrics returns a snapshot. FailureRate is 0 when no requests were made.
func (b *Breaker) Metrics() Metrics {
	b.mu.Lock()
	defer b.mu.Unlock()

	m := Metrics{
		Name:             b.name,
		State:            b.state,
		FailureCount:     b.failureCount,
		SuccessCount:     b.successCount,
		TotalRequests:    b.totalRequests,
		ExpectedFailures: b.expectedFailures,
		LastFailureTime:  b.lastFailureTime,
	}
	if b.totalRequests > 0 {
		m.FailureRate = float64(b.failureCount) / float64(b.totalRequests)
	}
	return m
}

// ForceState is an administrative override. It fires the state-change
// callback and performs the housekeeping each state requires.
func (b *Breaker) ForceState(s State) {
	b.mu.Lock()
	fire := b.transition(s)
	switch s {
	case StateOpen:
		b.openedAt = b.now()
	case StateHalfOpen:
		b.trialInFlight = false
	case StateClosed:
		b.trialInFlight = false
	}
	b.mu.Unlock()
	fire()
}

// Reset forces an immediate return to CLOSED with zeroed counters. Clearing
// openedAt cancels the pending OPEN -> HALF_OPEN transition.
func (b *Breaker) Reset() {
	b.mu.Lock()
	fire := b.transition(StateClosed)
	b.failureCount = 0
	b.successCount = 0
	b.totalRequests = 0
	b.expectedFailures = 0
	b.lastFailureTime = time.Time{}
	b.openedAt = time.Time{}
	b.trialInFlight = false
	b.mu.Unlock()
	fire()
}
