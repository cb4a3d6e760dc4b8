package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aurascan-ai/aurascan-engine/pkg/repositories"
)

// CitationHealth classifies extraction quality over the sampled runs.
type CitationHealth string

const (
	CitationHealthy        CitationHealth = "HEALTHY"
	CitationDegraded       CitationHealth = "DEGRADED"
	CitationNeedsAttention CitationHealth = "NEEDS_ATTENTION"
	CitationNoData         CitationHealth = "NO_DATA"
)

// Quality thresholds for citation health classification. HEALTHY also
// requires a minimum sample size; a handful of good runs proves nothing.
const (
	healthyQualityRate  = 0.5
	degradedQualityRate = 0.3
	minHealthySample    = 10
)

// StuckJobDetail describes one stuck job for the health report.
type StuckJobDetail struct {
	JobID         uuid.UUID `json:"jobId"`
	OrgID         uuid.UUID `json:"orgId"`
	LastHeartbeat time.Time `json:"lastHeartbeat"`
	StalledFor    string    `json:"stalledFor"`
}

// StuckJobsReport lists in_progress jobs whose heartbeat has gone stale.
type StuckJobsReport struct {
	Count   int              `json:"count"`
	JobIDs  []uuid.UUID      `json:"jobIds"`
	Details []StuckJobDetail `json:"details"`
}

// CitationsReport carries the citation quality rates over the sample.
type CitationsReport struct {
	SampleSize     int            `json:"sampleSize"`
	ExtractionRate float64        `json:"extractionRate"`
	QualityRate    float64        `json:"qualityRate"`
	Health         CitationHealth `json:"health"`
	Alert          string         `json:"alert,omitempty"`
}

// HealthReport is the full read-only observation of pipeline health.
type HealthReport struct {
	Timestamp time.Time       `json:"timestamp"`
	StuckJobs StuckJobsReport `json:"stuckJobs"`
	Citations CitationsReport `json:"citations"`
	Overall   struct {
		Status string `json:"status"`
	} `json:"overall"`
}

// HealthService observes the scan pipeline without mutating it: stuck jobs
// by heartbeat staleness and citation quality over recent runs.
type HealthService interface {
	Check(ctx context.Context) (*HealthReport, error)
}

// HealthConfig tunes the health monitor.
type HealthConfig struct {
	StaleAfter time.Duration
	SampleSize int
}

type healthService struct {
	jobs   repositories.JobRepository
	runs   repositories.RunRepository
	cfg    HealthConfig
	now    func() time.Time
	logger *zap.Logger
}

// NewHealthService creates a HealthService.
func NewHealthService(jobs repositories.JobRepository, runs repositories.RunRepository, cfg HealthConfig, logger *zap.Logger) HealthService {
	return &healthService{
		jobs:   jobs,
		runs:   runs,
		cfg:    cfg,
		now:    time.Now,
		logger: logger.Named("health"),
	}
}

var _ HealthService = (*healthService)(nil)

func (s *healthService) Check(ctx context.Context) (*HealthReport, error) {
	report := &HealthReport{Timestamp: s.now().UTC()}

	stale, err := s.jobs.ListStale(ctx, s.cfg.StaleAfter)
	if err != nil {
		return nil, err
	}
	report.StuckJobs.Count = len(stale)
	for _, job := range stale {
		hb := job.CreatedAt
		if job.LastHeartbeat != nil {
			hb = *job.LastHeartbeat
		}
		report.StuckJobs.JobIDs = append(report.StuckJobs.JobIDs, job.ID)
		report.StuckJobs.Details = append(report.StuckJobs.Details, StuckJobDetail{
			JobID:         job.ID,
			OrgID:         job.OrgID,
			LastHeartbeat: hb,
			StalledFor:    report.Timestamp.Sub(hb).Round(time.Second).String(),
		})
	}

	stats, err := s.runs.CitationStatsRecent(ctx, s.cfg.SampleSize)
	if err != nil {
		return nil, err
	}
	report.Citations = classifyCitations(stats)

	report.Overall.Status = "ok"
	if report.StuckJobs.Count > 0 ||
		(report.Citations.Health != CitationHealthy && report.Citations.Health != CitationNoData) {
		report.Overall.Status = "attention"
	}

	if report.Overall.Status != "ok" {
		s.logger.Warn("Pipeline health needs attention",
			zap.Int("stuck_jobs", report.StuckJobs.Count),
			zap.String("citation_health", string(report.Citations.Health)))
	}

	return report, nil
}

// classifyCitations maps citation stats to a health class. HEALTHY needs
// both a quality rate of at least 50% and a sample of at least 10 runs; a
// good rate over a smaller sample only reaches DEGRADED.
func classifyCitations(stats *repositories.CitationStats) CitationsReport {
	report := CitationsReport{SampleSize: stats.Total}

	if stats.Total == 0 {
		report.Health = CitationNoData
		return report
	}

	report.ExtractionRate = float64(stats.WithCitations) / float64(stats.Total)
	report.QualityRate = float64(stats.WithURLCitations) / float64(stats.Total)

	switch {
	case report.QualityRate >= healthyQualityRate && stats.Total >= minHealthySample:
		report.Health = CitationHealthy
	case report.QualityRate >= degradedQualityRate:
		report.Health = CitationDegraded
		report.Alert = "citation quality below healthy threshold"
	default:
		report.Health = CitationNeedsAttention
		report.Alert = "citation quality critically low"
	}
	return report
}
