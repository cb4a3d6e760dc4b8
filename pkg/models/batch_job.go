package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ============================================================================
// Job Status
// ============================================================================

// JobStatus represents the stored execution status of a batch scan job.
// "stuck" is deliberately absent: it is derived from heartbeat staleness,
// never persisted.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusInProgress JobStatus = "in_progress"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// JobStatusStuck is the derived status reported for an in_progress job whose
// heartbeat has gone stale. It is an observation, not a stored state.
const JobStatusStuck JobStatus = "stuck"

// ValidJobStatuses contains all storable job status values.
var ValidJobStatuses = []JobStatus{
	JobStatusQueued,
	JobStatusInProgress,
	JobStatusCompleted,
	JobStatusFailed,
}

// IsValidJobStatus checks if the given status is a storable status.
func IsValidJobStatus(s JobStatus) bool {
	for _, v := range ValidJobStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// IsTerminal returns true if the status is final. Terminal jobs are never
// transitioned again; a resume continues the same job id, not a new row.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// IsActive returns true if the job still owns its idempotency key for the
// purposes of duplicate-trigger rejection.
func (s JobStatus) IsActive() bool {
	return s == JobStatusQueued || s == JobStatusInProgress
}

// ============================================================================
// Batch Job
// ============================================================================

// PairKey identifies one unit of scan work: one prompt against one provider.
type PairKey struct {
	PromptID   uuid.UUID `json:"prompt_id"`
	ProviderID uuid.UUID `json:"provider_id"`
}

// String returns a stable key usable in progress maps and logs.
func (k PairKey) String() string {
	return k.PromptID.String() + ":" + k.ProviderID.String()
}

// JobProgress is the mutable metadata persisted with each heartbeat. It
// records which pairs have been attempted so a resume can subtract them.
type JobProgress struct {
	TotalPairs     int       `json:"total_pairs"`
	CompletedPairs []PairKey `json:"completed_pairs"`
	SuccessCount   int       `json:"success_count"`
	ErrorCount     int       `json:"error_count"`
}

// BatchJob is the only durable mutable state of a scan: one row per tenant
// per daily window, guarded by a unique idempotency key.
type BatchJob struct {
	ID             uuid.UUID    `json:"id"`
	OrgID          uuid.UUID    `json:"org_id"`
	Status         JobStatus    `json:"status"`
	IdempotencyKey string       `json:"idempotency_key"`
	Progress       *JobProgress `json:"progress,omitempty"`
	StartedAt      *time.Time   `json:"started_at,omitempty"`
	CompletedAt    *time.Time   `json:"completed_at,omitempty"`
	LastHeartbeat  *time.Time   `json:"last_heartbeat,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// EffectiveStatus returns the externally observable status: in_progress jobs
// whose heartbeat is older than the staleness threshold report as stuck.
func (j *BatchJob) EffectiveStatus(staleAfter time.Duration, now time.Time) JobStatus {
	if j.Status != JobStatusInProgress {
		return j.Status
	}
	hb := j.CreatedAt
	if j.LastHeartbeat != nil {
		hb = *j.LastHeartbeat
	}
	if now.Sub(hb) > staleAfter {
		return JobStatusStuck
	}
	return j.Status
}

// IdempotencyKeyFor builds the one-job-per-org-per-day key from the org id
// and the daily window date.
func IdempotencyKeyFor(orgID uuid.UUID, windowDate time.Time) string {
	return fmt.Sprintf("%s-%s", orgID, windowDate.Format("2006-01-02"))
}
