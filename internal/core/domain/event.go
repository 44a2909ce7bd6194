package domain

import "time"

// EventType names a lifecycle event emitted by the recovery layer. The names
// and payload shapes are the contract consumers (dashboards, loggers,
// alerting pipelines) depend on.
type EventType string

const (
	EventErrorDetected           EventType = "error.detected"
	EventFaultInjected           EventType = "fault.injected"
	EventRecoveryStrategySelect  EventType = "recovery.strategy.selected"
	EventRecoveryPrimaryFailed   EventType = "recovery.primary.failed"
	EventRecoveryFallbackRun     EventType = "recovery.fallback.executed"
	EventRecoveryCompleted       EventType = "recovery.completed"
	EventRecoveryMultiStage      EventType = "recovery.multi.stage.completed"
	EventBreakerOpened           EventType = "circuit.breaker.opened"
	EventBreakerHalfOpenTest     EventType = "circuit.breaker.half.open.test"
	EventBreakerClosed           EventType = "circuit.breaker.closed"
	EventRetryAttempt            EventType = "retry.attempt"
	EventRetrySuccess            EventType = "retry.success"
	EventRetryMaxAttemptsReached EventType = "retry.max.attempts.exceeded"
	EventMetricsCollected        EventType = "metrics.collected"
	EventInsightsGenerated       EventType = "insights.generated"
)

// Event is one recovery-lifecycle event with a structured payload.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Data      map[string]any
}
