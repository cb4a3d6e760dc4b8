package handlers

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/aurascan-ai/aurascan-engine/pkg/models"
	"github.com/aurascan-ai/aurascan-engine/pkg/repositories"
	"github.com/aurascan-ai/aurascan-engine/pkg/services"
)

// fakeScopes passes contexts through unchanged. Handler tests exercise HTTP
// semantics, not connection scoping.
type fakeScopes struct {
	orgScopeCalls    int
	globalScopeCalls int
}

func (f *fakeScopes) WithOrgScope(ctx context.Context, orgID uuid.UUID) (context.Context, func(), error) {
	f.orgScopeCalls++
	return ctx, func() {}, nil
}

func (f *fakeScopes) WithGlobalScope(ctx context.Context) (context.Context, func(), error) {
	f.globalScopeCalls++
	return ctx, func() {}, nil
}

var _ ScopeProvider = (*fakeScopes)(nil)

type mockSchedulerService struct {
	TriggerFunc func(ctx context.Context, req services.TriggerRequest) (*services.TriggerResult, error)
	LastRequest *services.TriggerRequest
}

func (m *mockSchedulerService) Trigger(ctx context.Context, req services.TriggerRequest) (*services.TriggerResult, error) {
	m.LastRequest = &req
	if m.TriggerFunc != nil {
		return m.TriggerFunc(ctx, req)
	}
	return &services.TriggerResult{JobID: uuid.New(), Accepted: true}, nil
}

var _ services.SchedulerService = (*mockSchedulerService)(nil)

type mockCorrectionService struct {
	CorrectFunc func(ctx context.Context, jobID, promptID, providerID uuid.UUID, corrected models.ExtractionResult) (*models.ScoreRecord, error)
}

func (m *mockCorrectionService) Correct(ctx context.Context, jobID, promptID, providerID uuid.UUID, corrected models.ExtractionResult) (*models.ScoreRecord, error) {
	if m.CorrectFunc != nil {
		return m.CorrectFunc(ctx, jobID, promptID, providerID, corrected)
	}
	return &models.ScoreRecord{Score: 7.5, OrgBrandPresent: true}, nil
}

var _ services.CorrectionService = (*mockCorrectionService)(nil)

type mockHealthService struct {
	CheckFunc func(ctx context.Context) (*services.HealthReport, error)
}

func (m *mockHealthService) Check(ctx context.Context) (*services.HealthReport, error) {
	if m.CheckFunc != nil {
		return m.CheckFunc(ctx)
	}
	report := &services.HealthReport{Timestamp: time.Now().UTC()}
	report.Citations.Health = services.CitationNoData
	report.Overall.Status = "ok"
	return report, nil
}

var _ services.HealthService = (*mockHealthService)(nil)

// mockJobReader stubs the read side of JobRepository for the job endpoint.
type mockJobReader struct {
	GetByIDFunc func(ctx context.Context, id uuid.UUID) (*models.BatchJob, error)
}

func (m *mockJobReader) GetByID(ctx context.Context, id uuid.UUID) (*models.BatchJob, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, nil
}

func (m *mockJobReader) Create(ctx context.Context, job *models.BatchJob) error { return nil }
func (m *mockJobReader) GetByKey(ctx context.Context, key string) (*models.BatchJob, error) {
	return nil, nil
}
func (m *mockJobReader) TransitionIf(ctx context.Context, id uuid.UUID, expected, next models.JobStatus) error {
	return nil
}
func (m *mockJobReader) UpdateHeartbeat(ctx context.Context, id uuid.UUID, progress *models.JobProgress) error {
	return nil
}
func (m *mockJobReader) ClaimForResume(ctx context.Context, id uuid.UUID, staleAfter time.Duration) error {
	return nil
}
func (m *mockJobReader) ReleaseKey(ctx context.Context, id uuid.UUID) error { return nil }
func (m *mockJobReader) ListStale(ctx context.Context, staleAfter time.Duration) ([]*models.BatchJob, error) {
	return nil, nil
}

var _ repositories.JobRepository = (*mockJobReader)(nil)

type mockUsageRepo struct {
	GetFunc func(ctx context.Context, orgID uuid.UUID) (*models.OrgUsage, error)
}

func (m *mockUsageRepo) Get(ctx context.Context, orgID uuid.UUID) (*models.OrgUsage, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, orgID)
	}
	return nil, nil
}

var _ repositories.UsageRepository = (*mockUsageRepo)(nil)
