package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/stepguard/stepguard/internal/infra/storage/postgres"
	"github.com/stepguard/stepguard/internal/resilience/breaker"
	"github.com/stepguard/stepguard/internal/resilience/engine"
)

// Server provides HTTP endpoints for health monitoring and metrics.
type Server struct {
	engine *engine.Engine
	db     *postgres.DB
	server *http.Server
}

// NewServer creates a new HTTP server over the engine. db may be nil when
// running on memory storage.
func NewServer(eng *engine.Engine, db *postgres.DB, port int) *Server {
	mux := http.NewServeMux()
	s := &Server{
		engine: eng,
		db:     db,
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		},
	}

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/health/detailed", s.handleDetailed)
	mux.Handle("/metrics", promhttp.Handler())

	return s
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	err := s.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Overall status degrades when any breaker is half-open and is critical
// when any breaker is open or the database is unreachable.
const (
	statusHealthy  = "healthy"
	statusDegraded = "degraded"
	statusCritical = "critical"
)

func (s *Server) status(ctx context.Context) (string, map[string]breaker.Metrics, error) {
	breakers := s.engine.Breakers().Snapshot()

	status := statusHealthy
	for _, m := range breakers {
		switch m.State {
		case breaker.StateOpen:
			status = statusCritical
		case breaker.StateHalfOpen:
			if status == statusHealthy {
				status = statusDegraded
			}
		}
	}

	var dbErr error
	if s.db != nil {
		if dbErr = s.db.Health(ctx); dbErr != nil {
			status = statusCritical
		}
	}
	return status, breakers, dbErr
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status, _, _ := s.status(r.Context())

	w.Header().Set("Content-Type", "application/json")
	if status == statusCritical {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	json.NewEncoder(w).Encode(map[string]string{"status": status})
}

func (s *Server) handleDetailed(w http.ResponseWriter, r *http.Request) {
	status, breakers, dbErr := s.status(r.Context())

	type breakerReport struct {
		State         string  `json:"state"`
		FailureCount  int     `json:"failureCount"`
		SuccessCount  int     `json:"successCount"`
		TotalRequests int     `json:"totalRequests"`
		FailureRate   float64 `json:"failureRate"`
	}

	report := struct {
		Status   string                   `json:"status"`
		Database string                   `json:"database,omitempty"`
		Breakers map[string]breakerReport `json:"breakers"`
	}{
		Status:   status,
		Breakers: make(map[string]breakerReport, len(breakers)),
	}

	if s.db != nil {
		report.Database = "ok"
		if dbErr != nil {
			report.Database = dbErr.Error()
		}
	}
	for name, m := range breakers {
		report.Breakers[name] = breakerReport{
			State:         m.State.String(),
			FailureCount:  m.FailureCount,
			SuccessCount:  m.SuccessCount,
			TotalRequests: m.TotalRequests,
			FailureRate:   m.FailureRate,
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if status == statusCritical {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(report)
}
