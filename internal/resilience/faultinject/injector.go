// Package faultinject provides the deliberate, test-only triggering of
// simulated failures used to validate recovery behavior. The engine only
// invokes scenarios and relays results into its own events; production code
// paths never depend on this package being active.
package faultinject

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"

	"github.com/google/uuid"
)

// Scenario describes one fault to arm for a workflow.
type Scenario struct {
	StepID      string  `yaml:"step_id"     json:"stepId"`
	FaultType   string  `yaml:"fault_type"  json:"faultType"` // e.g. "network-timeout", "resource-exhausted"
	Probability float64 `yaml:"probability" json:"probability"`
	Message     string  `yaml:"message"     json:"message"`
}

// ConfigureResult reports the outcome of arming a scenario set.
type ConfigureResult struct {
	Configured   bool
	ScenarioID   string
	ActiveFaults []string
}

// StepContext identifies where a fault injection is being attempted.
type StepContext struct {
	WorkflowID string
	StepID     string
}

// InjectResult reports whether a fault fired and why (not).
type InjectResult struct {
	Injected  bool
	FaultType string
	Effect    string
	Reason    string
	Err       error
}

// Injector arms and fires fault scenarios per workflow. Safe for
// concurrent use.
type Injector struct {
	mu        sync.RWMutex
	scenarios map[string][]Scenario // workflowID -> armed scenarios
	ids       map[string]string     // workflowID -> scenario set ID
	randFloat func() float64
}

// New creates an empty Injector.
func New() *Injector {
	return &Injector{
		scenarios: make(map[string][]Scenario),
		ids:       make(map[string]string),
		randFloat: rand.Float64,
	}
}

// WithRand overrides the probability source for deterministic tests.
func (i *Injector) WithRand(fn func() float64) *Injector {
	i.randFloat = fn
	return i
}

// ConfigureScenario arms scenarios for a workflow, replacing any previous
// set, and returns the generated scenario-set ID.
func (i *Injector) ConfigureScenario(workflowID string, scenarios []Scenario) ConfigureResult {
	i.mu.Lock()
	defer i.mu.Unlock()

	id := uuid.New().String()
	i.scenarios[workflowID] = scenarios
	i.ids[workflowID] = id

	faults := make([]string, 0, len(scenarios))
	for _, s := range scenarios {
		faults = append(faults, s.FaultType)
	}
	return ConfigureResult{Configured: true, ScenarioID: id, ActiveFaults: faults}
}

// Clear disarms all scenarios for a workflow.
func (i *Injector) Clear(workflowID string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.scenarios, workflowID)
	delete(i.ids, workflowID)
}

// InjectFault attempts to fire an armed fault of the given type at the step.
// When it fires, Err carries the simulated failure for the caller to feed
// through the normal error-handling path.
func (i *Injector) InjectFault(faultType string, stepCtx StepContext) InjectResult {
	i.mu.RLock()
	scenarios := i.scenarios[stepCtx.WorkflowID]
	i.mu.RUnlock()

	for _, s := range scenarios {
		if s.FaultType != faultType {
			continue
		}
		if s.StepID != "" && s.StepID != stepCtx.StepID {
			continue
		}
		p := s.Probability
		if p <= 0 {
			p = 1
		}
		if i.randFloat() > p {
			return InjectResult{
				FaultType: faultType,
				Reason:    "probability roll did not fire",
			}
		}

		msg := s.Message
		if msg == "" {
			msg = fmt.Sprintf("injected %s fault", faultType)
		}
		return InjectResult{
			Injected:  true,
			FaultType: faultType,
			Effect:    fmt.Sprintf("step %s fails with %q", stepCtx.StepID, msg),
			Err:       errors.New(msg),
		}
	}

	return InjectResult{
		FaultType: faultType,
		Reason:    fmt.Sprintf("no armed scenario of type %q for workflow %s", faultType, stepCtx.WorkflowID),
	}
}
