package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ErrorsDetected tracks classified step errors per workflow and type
	ErrorsDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stepguard_errors_detected_total",
			Help: "Total number of step errors detected",
		},
		[]string{"workflow", "type", "severity"},
	)

	// RecoveriesTotal tracks recovery attempts per workflow, strategy and outcome
	RecoveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stepguard_recoveries_total",
			Help: "Total number of recovery attempts",
		},
		[]string{"workflow", "strategy", "outcome"},
	)

	// RecoveryDuration tracks wall-clock recovery time
	RecoveryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stepguard_recovery_duration_seconds",
			Help:    "Recovery duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"workflow", "strategy"},
	)

	// RetryAttempts tracks individual retry attempts
	RetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stepguard_retry_attempts_total",
			Help: "Total number of retry attempts",
		},
		[]string{"workflow"},
	)

	// BreakerState tracks circuit breaker state per dependency
	// (0 = closed, 1 = half-open, 2 = open)
	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "stepguard_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"breaker"},
	)

	// BreakerRejections tracks fast-rejected calls per dependency
	BreakerRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stepguard_breaker_rejections_total",
			Help: "Total number of calls rejected by an open circuit breaker",
		},
		[]string{"breaker"},
	)

	// FaultsInjected tracks test faults injected per workflow
	FaultsInjected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stepguard_faults_injected_total",
			Help: "Total number of injected test faults",
		},
		[]string{"workflow", "fault_type"},
	)

	// DBConnectionPoolUsage tracks database pool saturation
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stepguard_db_pool_usage_percent",
			Help: "Database connection pool usage percentage",
		},
	)
)
