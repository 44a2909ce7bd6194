// Package control assembles the recovery service: storage, event
// publishing, the recovery engine and the HTTP surface, with lifecycle
// management.
package control

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/stepguard/stepguard/internal/core/config"
	"github.com/stepguard/stepguard/internal/core/worker"
	"github.com/stepguard/stepguard/internal/infra/bus"
	"github.com/stepguard/stepguard/internal/infra/storage"
	"github.com/stepguard/stepguard/internal/infra/storage/memory"
	"github.com/stepguard/stepguard/internal/infra/storage/postgres"
	"github.com/stepguard/stepguard/internal/observe"
	"github.com/stepguard/stepguard/internal/resilience/breaker"
	"github.com/stepguard/stepguard/internal/resilience/engine"
	"github.com/stepguard/stepguard/internal/resilience/faultinject"
)

// Config holds the service configuration.
type Config struct {
	Port       int
	Redis      bus.Config
	Database   postgres.Config
	Resilience config.ResilienceConfig
	Workflows  config.WorkflowsConfig
}

// Service is the assembled recovery service.
type Service struct {
	cfg       Config
	engine    *engine.Engine
	server    *Server
	db        *postgres.DB
	publisher *bus.Publisher
	pruner    *worker.Pruner
	log       *slog.Logger

	cancel context.CancelFunc
}

// NewService creates a Service with all dependencies initialized.
func NewService(cfg Config, log *slog.Logger) (*Service, error) {
	if log == nil {
		log = slog.Default()
	}

	s := &Service{cfg: cfg, log: log}

	// 1. Storage
	var workflowRepo storage.WorkflowRepository
	var historyRepo storage.RecoveryHistoryRepository
	var workflowIDs []string

	if cfg.Database.URL != "" {
		db, err := postgres.NewDB(context.Background(), cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		if err := db.Migrate(); err != nil {
			_ = db.Close()
			return nil, err
		}
		s.db = db
		workflowRepo = postgres.NewWorkflowRepo(db)
		historyRepo = postgres.NewHistoryRepo(db)
		log.Info("Using PostgreSQL storage")
	} else {
		store := memory.NewStore()
		memWorkflows := memory.NewWorkflowRepo(store)
		historyRepo = memory.NewHistoryRepo(store)
		workflowRepo = memWorkflows

		if cfg.Workflows.File != "" {
			workflows, err := config.LoadWorkflows(cfg.Workflows.File)
			if err != nil {
				return nil, err
			}
			for _, wf := range workflows {
				memWorkflows.Put(wf)
				workflowIDs = append(workflowIDs, wf.ID)
			}
			log.Info("Loaded workflow definitions", "count", len(workflows))
		}
		log.Info("Using Memory storage")
	}

	// 2. Event observers: always log; publish to Redis when configured.
	observers := []observe.Observer{observe.NewSlog(log)}
	if cfg.Redis.URL != "" {
		publisher, err := bus.NewPublisher(cfg.Redis, log)
		if err != nil {
			return nil, fmt.Errorf("failed to init redis publisher: %w", err)
		}
		s.publisher = publisher
		observers = append(observers, publisher)
		log.Info("Publishing events to Redis stream")
	}

	// 3. Engine
	var injector *faultinject.Injector
	if cfg.Resilience.FaultInjection {
		injector = faultinject.New()
		log.Warn("Fault injection is enabled")
	}
	s.engine = engine.New(engine.Config{
		Workflows: workflowRepo,
		History:   historyRepo,
		Observer:  observe.NewMulti(observers...),
		BreakerDefaults: breaker.Config{
			FailureThreshold: cfg.Resilience.Breaker.FailureThreshold,
			ResetTimeout:     cfg.Resilience.Breaker.ResetTimeout,
			MonitoringPeriod: cfg.Resilience.Breaker.MonitoringPeriod,
			ExpectedErrors:   cfg.Resilience.Breaker.ExpectedErrors,
			ResetOnSuccess:   cfg.Resilience.Breaker.ResetOnSuccess,
		},
		RetryDefaults: cfg.Resilience.DefaultRetry,
		Injector:      injector,
		Logger:        log,
	})

	// 4. History retention
	if cfg.Resilience.HistoryRetention > 0 && len(workflowIDs) > 0 {
		s.pruner = worker.NewPruner(
			historyRepo, workflowIDs, cfg.Resilience.HistoryRetention, log)
	}

	// 5. HTTP surface
	s.server = NewServer(s.engine, s.db, cfg.Port)

	return s, nil
}

// Engine returns the recovery engine for embedding callers.
func (s *Service) Engine() *engine.Engine { return s.engine }

// Start launches the HTTP server and background workers.
func (s *Service) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)

	go func() {
		s.log.Info("Starting HTTP server", "port", s.cfg.Port)
		if err := s.server.Start(); err != nil {
			s.log.Error("HTTP server failed", "error", err)
		}
	}()

	if s.db != nil {
		s.db.StartMetricsCollector(ctx)
	}
	if s.pruner != nil {
		go s.pruner.Start(ctx)
	}
	return nil
}

// Stop gracefully shuts the service down.
func (s *Service) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := s.server.Stop(shutdownCtx); err != nil {
		s.log.Error("Failed to stop HTTP server", "error", err)
	}

	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			s.log.Error("Failed to close redis publisher", "error", err)
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			return fmt.Errorf("failed to close db: %w", err)
		}
	}
	return nil
}
