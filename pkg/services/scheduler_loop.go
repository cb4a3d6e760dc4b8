package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aurascan-ai/aurascan-engine/pkg/apperrors"
	"github.com/aurascan-ai/aurascan-engine/pkg/repositories"
)

// SchedulerLoop triggers daily scans for every org without a manual call.
// Idempotency makes the sweep safe: orgs that already ran today are
// rejected by their key and skipped quietly.
type SchedulerLoop struct {
	scheduler SchedulerService
	orgs      repositories.OrgRepository
	scopes    ScopeProvider
	interval  time.Duration
	logger    *zap.Logger

	stop chan struct{}
	done chan struct{}
}

// NewSchedulerLoop creates a SchedulerLoop sweeping at the given interval.
func NewSchedulerLoop(
	scheduler SchedulerService,
	orgs repositories.OrgRepository,
	scopes ScopeProvider,
	interval time.Duration,
	logger *zap.Logger,
) *SchedulerLoop {
	return &SchedulerLoop{
		scheduler: scheduler,
		orgs:      orgs,
		scopes:    scopes,
		interval:  interval,
		logger:    logger.Named("scheduler-loop"),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start runs the sweep loop until Stop is called.
func (l *SchedulerLoop) Start() {
	go func() {
		defer close(l.done)
		ticker := time.NewTicker(l.interval)
		defer ticker.Stop()

		l.logger.Info("Auto-trigger loop started", zap.Duration("interval", l.interval))
		for {
			select {
			case <-ticker.C:
				l.sweep(context.Background())
			case <-l.stop:
				return
			}
		}
	}()
}

// Stop halts the loop and waits for an in-flight sweep to finish.
func (l *SchedulerLoop) Stop() {
	close(l.stop)
	<-l.done
	l.logger.Info("Auto-trigger loop stopped")
}

func (l *SchedulerLoop) sweep(ctx context.Context) {
	ids, err := l.listOrgs(ctx)
	if err != nil {
		l.logger.Error("Failed to list orgs for sweep", zap.Error(err))
		return
	}

	for _, orgID := range ids {
		l.triggerOrg(ctx, orgID)
	}
}

func (l *SchedulerLoop) listOrgs(ctx context.Context) ([]uuid.UUID, error) {
	globalCtx, done, err := l.scopes.WithGlobalScope(ctx)
	if err != nil {
		return nil, err
	}
	defer done()
	return l.orgs.ListIDs(globalCtx)
}

func (l *SchedulerLoop) triggerOrg(ctx context.Context, orgID uuid.UUID) {
	orgCtx, done, err := l.scopes.WithOrgScope(ctx, orgID)
	if err != nil {
		l.logger.Error("Failed to scope org for sweep",
			zap.String("org_id", orgID.String()), zap.Error(err))
		return
	}
	defer done()

	result, err := l.scheduler.Trigger(orgCtx, TriggerRequest{OrgID: orgID})
	if err != nil {
		// Orgs with nothing to scan or outside the window are expected
		// during a sweep, not failures.
		if errors.Is(err, apperrors.ErrOutsideScanWindow) ||
			errors.Is(err, apperrors.ErrNoActivePrompts) ||
			errors.Is(err, apperrors.ErrNoEnabledProviders) {
			return
		}
		l.logger.Error("Sweep trigger failed",
			zap.String("org_id", orgID.String()), zap.Error(err))
		return
	}

	if result.Accepted {
		l.logger.Info("Sweep started daily scan",
			zap.String("org_id", orgID.String()),
			zap.String("job_id", result.JobID.String()))
	}
}
