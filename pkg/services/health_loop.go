package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ScopeProvider yields scoped contexts for database access from background
// loops. *database.OrgScopeProvider satisfies it.
type ScopeProvider interface {
	WithOrgScope(ctx context.Context, orgID uuid.UUID) (context.Context, func(), error)
	WithGlobalScope(ctx context.Context) (context.Context, func(), error)
}

// HealthLoop runs the health check on an interval and logs the findings, so
// stuck jobs and citation degradation surface without anyone polling the
// endpoint.
type HealthLoop struct {
	health   HealthService
	scopes   ScopeProvider
	interval time.Duration
	logger   *zap.Logger

	stop chan struct{}
	done chan struct{}
}

// NewHealthLoop creates a HealthLoop checking at the given interval.
func NewHealthLoop(
	health HealthService,
	scopes ScopeProvider,
	interval time.Duration,
	logger *zap.Logger,
) *HealthLoop {
	return &HealthLoop{
		health:   health,
		scopes:   scopes,
		interval: interval,
		logger:   logger.Named("health-loop"),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs the check loop until Stop is called.
func (l *HealthLoop) Start() {
	go func() {
		defer close(l.done)
		ticker := time.NewTicker(l.interval)
		defer ticker.Stop()

		l.logger.Info("Health loop started", zap.Duration("interval", l.interval))
		for {
			select {
			case <-ticker.C:
				l.check(context.Background())
			case <-l.stop:
				return
			}
		}
	}()
}

// Stop halts the loop and waits for an in-flight check to finish.
func (l *HealthLoop) Stop() {
	close(l.stop)
	<-l.done
	l.logger.Info("Health loop stopped")
}

func (l *HealthLoop) check(ctx context.Context) {
	globalCtx, done, err := l.scopes.WithGlobalScope(ctx)
	if err != nil {
		l.logger.Error("Failed to scope health check", zap.Error(err))
		return
	}
	defer done()

	report, err := l.health.Check(globalCtx)
	if err != nil {
		l.logger.Error("Health check failed", zap.Error(err))
		return
	}

	fields := []zap.Field{
		zap.String("overall", report.Overall.Status),
		zap.Int("stuck_jobs", report.StuckJobs.Count),
		zap.String("citation_health", string(report.Citations.Health)),
		zap.Int("citation_sample", report.Citations.SampleSize),
	}
	if report.Overall.Status != "ok" {
		l.logger.Warn("Pipeline health check", fields...)
		return
	}
	l.logger.Info("Pipeline health check", fields...)
}
