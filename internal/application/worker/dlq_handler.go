package worker

import (
	"context"
	"sync"
	"time"

	"embeddra/internal/application/common/slogger"
	"embeddra/internal/domain/messaging"
	"embeddra/internal/port/outbound"

	"github.com/google/uuid"
)

// DLQHandler processes records arriving on the terminal queue. It exists for
// operators: every record is logged, failure patterns are counted, and the
// referenced job row is reconciled to failed in case the processor could not
// persist the status itself.
type DLQHandler struct {
	jobRepo outbound.IngestionJobRepository

	mu            sync.Mutex
	totalMessages int64
	byFailureType map[messaging.FailureType]int64
	lastMessageAt time.Time
}

// NewDLQHandler creates a terminal-queue handler.
func NewDLQHandler(jobRepo outbound.IngestionJobRepository) *DLQHandler {
	return &DLQHandler{
		jobRepo:       jobRepo,
		byFailureType: make(map[messaging.FailureType]int64),
	}
}

// HandleDLQMessage records one dead-lettered job message. It never requeues:
// the terminal queue is the deliberate give-up boundary.
func (h *DLQHandler) HandleDLQMessage(ctx context.Context, dlqMessage messaging.DLQMessage) error {
	failureType := normalizeFailureType(dlqMessage.FailureContext)
	h.track(failureType)

	slogger.Error(ctx, "Job message dead-lettered", slogger.Fields{
		"dlq_message_id": dlqMessage.DLQMessageID,
		"job_id":         dlqMessage.OriginalMessage.JobID.String(),
		"tenant_id":      dlqMessage.OriginalMessage.TenantID,
		"failure_type":   string(failureType),
		"component":      dlqMessage.FailureContext.Component,
		"error":          dlqMessage.FailureContext.ErrorMessage,
		"retry_count":    dlqMessage.RetryCount,
	})

	h.reconcileJobStatus(ctx, dlqMessage)
	return nil
}

// normalizeFailureType validates the record's failure type, falling back to
// classifying the error message when the field is missing or carries a value
// this version does not know. Statistics stay grouped under the canonical
// types either way.
func normalizeFailureType(failure messaging.FailureContext) messaging.FailureType {
	failureType, err := messaging.NewFailureType(string(failure.FailureType))
	if err != nil {
		return messaging.ClassifyFailureFromError(failure.ErrorMessage)
	}
	return failureType
}

// reconcileJobStatus marks the referenced job failed if the processor did
// not manage to. Poison messages carry no job ID and are skipped.
func (h *DLQHandler) reconcileJobStatus(ctx context.Context, dlqMessage messaging.DLQMessage) {
	jobID := dlqMessage.OriginalMessage.JobID
	if jobID == uuid.Nil {
		return
	}

	job, err := h.jobRepo.FindByID(ctx, jobID)
	if err != nil || job == nil || job.IsTerminal() {
		return
	}

	if err := job.Fail(dlqMessage.FailureContext.ErrorMessage); err != nil {
		return
	}
	if err := h.jobRepo.Update(ctx, job); err != nil {
		slogger.Warn(ctx, "Could not reconcile dead-lettered job status", slogger.Fields{
			"job_id": jobID.String(),
			"error":  err.Error(),
		})
		return
	}

	slogger.Info(ctx, "Reconciled dead-lettered job to failed", slogger.Fields{
		"job_id": jobID.String(),
	})
}

func (h *DLQHandler) track(failureType messaging.FailureType) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.totalMessages++
	h.byFailureType[failureType]++
	h.lastMessageAt = time.Now()
}

// Statistics returns a snapshot of dead-letter counts by failure type.
func (h *DLQHandler) Statistics() (int64, map[messaging.FailureType]int64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	byType := make(map[messaging.FailureType]int64, len(h.byFailureType))
	for failureType, count := range h.byFailureType {
		byType[failureType] = count
	}
	return h.totalMessages, byType
}
