// Package execution provides the per-execution scratchpad the recovery layer
// reads strategy hints from and writes recorded errors into.
package execution

import (
	"sync"

	"github.com/stepguard/stepguard/internal/core/domain"
)

// State describes where an execution currently is in its lifecycle.
type State string

const (
	StatePending    State = "pending"
	StateRunning    State = "running"
	StateRecovering State = "recovering"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// Context is a mutable per-execution scratchpad. One Context is owned by one
// workflow execution; methods are safe for concurrent step goroutines.
type Context struct {
	mu          sync.RWMutex
	executionID string
	workflowID  string
	state       State
	vars        map[string]any
	errs        []domain.ErrorContext
}

// NewContext creates a Context for one execution of the given workflow.
func NewContext(executionID, workflowID string) *Context {
	return &Context{
		executionID: executionID,
		workflowID:  workflowID,
		state:       StatePending,
		vars:        make(map[string]any),
	}
}

// ExecutionID returns the execution identity.
func (c *Context) ExecutionID() string { return c.executionID }

// WorkflowID returns the workflow identity.
func (c *Context) WorkflowID() string { return c.workflowID }

// Variable returns the named variable and whether it was set.
func (c *Context) Variable(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.vars[key]
	return v, ok
}

// SetVariable stores a variable on the execution.
func (c *Context) SetVariable(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vars[key] = value
}

// AddError appends a recorded error.
func (c *Context) AddError(ec domain.ErrorContext) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs = append(c.errs, ec)
}

// Errors returns a copy of all recorded errors in order.
func (c *Context) Errors() []domain.ErrorContext {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.ErrorContext, len(c.errs))
	copy(out, c.errs)
	return out
}

// ErrorCountForStep returns how many errors have been recorded for a step.
func (c *Context) ErrorCountForStep(stepID string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, e := range c.errs {
		if e.StepID == stepID {
			n++
		}
	}
	return n
}

// State returns the current execution state.
func (c *Context) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// UpdateState sets the execution state.
func (c *Context) UpdateState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
}

// MarkStepSkipped records that a step was bypassed by the skip strategy.
func (c *Context) MarkStepSkipped(stepID string) {
	c.SetVariable("skipped:"+stepID, true)
}

// StepSkipped reports whether a step was bypassed.
func (c *Context) StepSkipped(stepID string) bool {
	v, ok := c.Variable("skipped:" + stepID)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}
