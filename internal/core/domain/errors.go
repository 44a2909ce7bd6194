package domain

import (
	"time"
)

// ErrorType classifies a step failure into a coarse taxonomy.
type ErrorType string

const (
	ErrorTypeNetwork    ErrorType = "network"
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeSystem     ErrorType = "system"
	ErrorTypeResource   ErrorType = "resource"
	ErrorTypeUnknown    ErrorType = "unknown"
)

// Severity indicates how serious a classified error is.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ErrorCategory is the result of classifying an error.
type ErrorCategory struct {
	Type        ErrorType
	Severity    Severity
	Recoverable bool
}

// ErrorContext is an immutable snapshot describing one classified failure
// occurrence. Category is derived once by the classifier and never mutated;
// RetryCount only increases via WithRetryCount copies.
type ErrorContext struct {
	ID         string
	Err        error
	StepID     string
	WorkflowID string
	Timestamp  time.Time
	Category   ErrorCategory
	RetryCount int
}

// WithRetryCount returns a copy with the retry count advanced.
// Counts never go backwards.
func (c ErrorContext) WithRetryCount(n int) ErrorContext {
	if n > c.RetryCount {
		c.RetryCount = n
	}
	return c
}

// ErrorMessage returns the underlying error message, or "" for a nil error.
func (c ErrorContext) ErrorMessage() string {
	if c.Err == nil {
		return ""
	}
	return c.Err.Error()
}
