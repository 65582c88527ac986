package valueobject

import "fmt"

// JobStatus represents the current status of an ingestion job.
type JobStatus string

// Job status constants.
const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// validJobStatuses contains all valid job statuses.
var validJobStatuses = map[JobStatus]bool{
	JobStatusQueued:     true,
	JobStatusProcessing: true,
	JobStatusCompleted:  true,
	JobStatusFailed:     true,
}

// NewJobStatus creates a new JobStatus with validation.
func NewJobStatus(status string) (JobStatus, error) {
	s := JobStatus(status)
	if !validJobStatuses[s] {
		return "", fmt.Errorf("invalid job status: %s", status)
	}
	return s, nil
}

// String returns the string representation of the status.
func (s JobStatus) String() string {
	return string(s)
}

// IsTerminal returns true if this status represents a final state.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// CanTransitionTo returns true if the status can transition to the target status.
// Statuses only move forward: queued -> processing -> {completed, failed}.
// A redelivered message re-entering processing is not a transition.
func (s JobStatus) CanTransitionTo(target JobStatus) bool {
	transitions := map[JobStatus][]JobStatus{
		JobStatusQueued: {
			JobStatusProcessing,
		},
		JobStatusProcessing: {
			JobStatusCompleted,
			JobStatusFailed,
		},
		// Terminal states cannot transition
		JobStatusCompleted: {},
		JobStatusFailed:    {},
	}

	validTransitions, exists := transitions[s]
	if !exists {
		return false
	}

	for _, validTarget := range validTransitions {
		if target == validTarget {
			return true
		}
	}
	return false
}

// AllJobStatuses returns every valid job status in lifecycle order.
func AllJobStatuses() []JobStatus {
	return []JobStatus{
		JobStatusQueued,
		JobStatusProcessing,
		JobStatusCompleted,
		JobStatusFailed,
	}
}
