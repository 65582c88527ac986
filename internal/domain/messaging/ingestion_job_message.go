// Package messaging provides the domain types carried on the ingestion job
// queue: the job-announcement message, its envelope metadata, and the failure
// taxonomy that drives retry-versus-dead-letter routing.
//
// The job message is a pointer to work, not the work itself. The worker
// re-reads the raw product batch from storage using the job ID, so a message
// can be duplicated, lost-and-redelivered, or replayed without corrupting
// state as long as job-status transitions stay idempotent per attempt.
package messaging

import (
	"errors"
	"fmt"

	"embeddra/internal/domain/valueobject"

	"github.com/google/uuid"
)

// Message validation limits.
const (
	maxTenantIDLength = 128
	maxRetryLimit     = 100
)

// IngestionJobMessage is the wire record for one catalog-ingestion job.
// Field names are fixed for compatibility with the publishing side.
type IngestionJobMessage struct {
	JobID      uuid.UUID `json:"job_id"`
	TenantID   string    `json:"tenant_id"`
	SourceType string    `json:"source_type"`
	Count      int       `json:"count"`
}

// NewIngestionJobMessage builds a job message from an accepted job.
func NewIngestionJobMessage(jobID uuid.UUID, tenantID string, sourceType valueobject.SourceType, count int) IngestionJobMessage {
	return IngestionJobMessage{
		JobID:      jobID,
		TenantID:   tenantID,
		SourceType: sourceType.String(),
		Count:      count,
	}
}

// Validate validates the job message against the wire contract. A message
// failing validation is a poison message: it is routed to terminal handling
// without consuming a retry attempt.
func (m *IngestionJobMessage) Validate() error {
	if m.JobID == uuid.Nil {
		return errors.New("job_id is required")
	}
	if m.TenantID == "" {
		return errors.New("tenant_id is required")
	}
	if len(m.TenantID) > maxTenantIDLength {
		return errors.New("tenant_id too long")
	}
	if _, err := valueobject.NewSourceType(m.SourceType); err != nil {
		return fmt.Errorf("invalid source_type: %w", err)
	}
	if m.Count < 0 {
		return errors.New("count cannot be negative")
	}
	return nil
}

// Envelope carries the transport-level metadata travelling with a job
// message. It is never persisted: the correlation ID is propagated
// end-to-end for tracing, and the retry count is mutated only by the
// transport layer as the message cycles through the retry queue.
type Envelope struct {
	CorrelationID string
	RetryCount    int
}

// Validate checks envelope metadata decoded from transport headers.
func (e Envelope) Validate() error {
	if e.CorrelationID == "" {
		return errors.New("correlation id is required")
	}
	if e.RetryCount < 0 {
		return errors.New("retry count cannot be negative")
	}
	if e.RetryCount > maxRetryLimit {
		return errors.New("retry count exceeds maximum allowed")
	}
	return nil
}

// NextRetry returns the envelope for the next retry cycle. Retry counts are
// monotonically non-decreasing across redeliveries of the same attempt chain.
func (e Envelope) NextRetry() Envelope {
	return Envelope{
		CorrelationID: e.CorrelationID,
		RetryCount:    e.RetryCount + 1,
	}
}

// RetriesExhausted reports whether the message has used up its retry budget.
func (e Envelope) RetriesExhausted(maxRetryCount int) bool {
	return e.RetryCount >= maxRetryCount
}
