package entity

import (
	"time"

	"embeddra/internal/domain/valueobject"

	"github.com/google/uuid"
)

// IngestionJob tracks one tenant catalog upload from acceptance to a terminal
// status. Rows are created by the publishing side, mutated exclusively by the
// job processor, and never deleted.
type IngestionJob struct {
	id             uuid.UUID
	tenantID       string
	sourceType     valueobject.SourceType
	status         valueobject.JobStatus
	totalCount     *int
	processedCount int
	failedCount    int
	errorMessage   *string
	startedAt      *time.Time
	completedAt    *time.Time
	createdAt      time.Time
	updatedAt      time.Time
}

// NewIngestionJob creates a new IngestionJob entity in the queued state.
func NewIngestionJob(tenantID string, sourceType valueobject.SourceType) *IngestionJob {
	now := time.Now()
	return &IngestionJob{
		id:         uuid.New(),
		tenantID:   tenantID,
		sourceType: sourceType,
		status:     valueobject.JobStatusQueued,
		createdAt:  now,
		updatedAt:  now,
	}
}

// RestoreIngestionJob creates an IngestionJob entity from stored data.
func RestoreIngestionJob(
	id uuid.UUID,
	tenantID string,
	sourceType valueobject.SourceType,
	status valueobject.JobStatus,
	totalCount *int,
	processedCount int,
	failedCount int,
	errorMessage *string,
	startedAt *time.Time,
	completedAt *time.Time,
	createdAt time.Time,
	updatedAt time.Time,
) *IngestionJob {
	return &IngestionJob{
		id:             id,
		tenantID:       tenantID,
		sourceType:     sourceType,
		status:         status,
		totalCount:     totalCount,
		processedCount: processedCount,
		failedCount:    failedCount,
		errorMessage:   errorMessage,
		startedAt:      startedAt,
		completedAt:    completedAt,
		createdAt:      createdAt,
		updatedAt:      updatedAt,
	}
}

// ID returns the job ID.
func (j *IngestionJob) ID() uuid.UUID {
	return j.id
}

// TenantID returns the owning tenant's ID.
func (j *IngestionJob) TenantID() string {
	return j.tenantID
}

// SourceType returns the provenance of the raw data.
func (j *IngestionJob) SourceType() valueobject.SourceType {
	return j.sourceType
}

// Status returns the current job status.
func (j *IngestionJob) Status() valueobject.JobStatus {
	return j.status
}

// TotalCount returns the total record count, nil until known.
func (j *IngestionJob) TotalCount() *int {
	return j.totalCount
}

// ProcessedCount returns the number of records successfully indexed.
func (j *IngestionJob) ProcessedCount() int {
	return j.processedCount
}

// FailedCount returns the number of records rejected by the index.
func (j *IngestionJob) FailedCount() int {
	return j.failedCount
}

// ErrorMessage returns the failure cause if the job failed.
func (j *IngestionJob) ErrorMessage() *string {
	return j.errorMessage
}

// StartedAt returns the first processing attempt timestamp.
func (j *IngestionJob) StartedAt() *time.Time {
	return j.startedAt
}

// CompletedAt returns the terminal-state timestamp.
func (j *IngestionJob) CompletedAt() *time.Time {
	return j.completedAt
}

// CreatedAt returns the creation timestamp.
func (j *IngestionJob) CreatedAt() time.Time {
	return j.createdAt
}

// UpdatedAt returns the last update timestamp.
func (j *IngestionJob) UpdatedAt() time.Time {
	return j.updatedAt
}

// IsTerminal returns true if the job is in a terminal state.
func (j *IngestionJob) IsTerminal() bool {
	return j.status.IsTerminal()
}

// Duration returns the job duration if it reached a terminal state.
func (j *IngestionJob) Duration() *time.Duration {
	if j.startedAt == nil || j.completedAt == nil {
		return nil
	}
	duration := j.completedAt.Sub(*j.startedAt)
	return &duration
}

// Start marks the job as processing and sets startedAt on the first attempt.
// Calling Start on a job that is already processing is a no-op: a message
// redelivered through the retry queue re-enters processing rather than
// performing a state transition.
func (j *IngestionJob) Start() error {
	if j.status == valueobject.JobStatusProcessing {
		return nil
	}
	if !j.status.CanTransitionTo(valueobject.JobStatusProcessing) {
		return NewDomainError("cannot start job in current status", "INVALID_STATUS_TRANSITION")
	}

	now := time.Now()
	j.status = valueobject.JobStatusProcessing
	if j.startedAt == nil {
		j.startedAt = &now
	}
	j.updatedAt = now
	return nil
}

// SetTotalCount records the parsed record count once the raw batch is read.
func (j *IngestionJob) SetTotalCount(total int) error {
	if total < 0 {
		return NewDomainError("total count cannot be negative", "INVALID_COUNT")
	}
	j.totalCount = &total
	j.updatedAt = time.Now()
	return nil
}

// Complete marks the job as completed with final per-item accounting.
// Partial failures are accepted; the counts must not exceed the total.
func (j *IngestionJob) Complete(processedCount, failedCount int) error {
	if !j.status.CanTransitionTo(valueobject.JobStatusCompleted) {
		return NewDomainError("cannot complete job in current status", "INVALID_STATUS_TRANSITION")
	}
	if processedCount < 0 || failedCount < 0 {
		return NewDomainError("counts cannot be negative", "INVALID_COUNT")
	}
	if j.totalCount != nil && processedCount+failedCount > *j.totalCount {
		return NewDomainError("processed + failed exceeds total count", "INVALID_COUNT")
	}

	now := time.Now()
	j.status = valueobject.JobStatusCompleted
	j.completedAt = &now
	j.processedCount = processedCount
	j.failedCount = failedCount
	j.errorMessage = nil
	j.updatedAt = now
	return nil
}

// Fail marks the job as failed with a recorded cause.
func (j *IngestionJob) Fail(errorMessage string) error {
	if !j.status.CanTransitionTo(valueobject.JobStatusFailed) {
		return NewDomainError("cannot fail job in current status", "INVALID_STATUS_TRANSITION")
	}

	now := time.Now()
	j.status = valueobject.JobStatusFailed
	j.completedAt = &now
	j.errorMessage = &errorMessage
	j.updatedAt = now
	return nil
}

// Equal compares two IngestionJob entities by identity.
func (j *IngestionJob) Equal(other *IngestionJob) bool {
	if other == nil {
		return false
	}
	return j.id == other.id
}
