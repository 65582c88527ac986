// Package worker drives accepted ingestion jobs through embedding and bulk
// indexing. The job processor consumes one job-announcement message at a
// time, re-reads the raw payload from storage, and reports an outcome that
// tells the transport whether to acknowledge, retry, or dead-letter.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"embeddra/internal/application/common/slogger"
	"embeddra/internal/domain/entity"
	"embeddra/internal/domain/messaging"
	"embeddra/internal/port/inbound"
	"embeddra/internal/port/outbound"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// JobProcessorConfig holds job processor configuration.
type JobProcessorConfig struct {
	// MaxRetryCount is the retry budget shared with the transport layer. A
	// temporary failure on an attempt at or past this count marks the job
	// failed because the message will not come back.
	MaxRetryCount int
}

// JobProcessor implements the inbound JobProcessor port. One instance is
// shared by all consumer goroutines; it keeps no per-job state.
type JobProcessor struct {
	config    JobProcessorConfig
	jobRepo   outbound.IngestionJobRepository
	batchRepo outbound.RawBatchRepository
	embedder  outbound.EmbeddingService
	indexer   outbound.BulkIndexer
	otel      *processorMetrics

	jobsCompleted      atomic.Int64
	jobsRetried        atomic.Int64
	jobsDeadLettered   atomic.Int64
	recordsIndexed     atomic.Int64
	recordsFailed      atomic.Int64
	staleMessagesAcked atomic.Int64
}

// NewJobProcessor creates a job processor.
func NewJobProcessor(
	config JobProcessorConfig,
	jobRepo outbound.IngestionJobRepository,
	batchRepo outbound.RawBatchRepository,
	embedder outbound.EmbeddingService,
	indexer outbound.BulkIndexer,
) (*JobProcessor, error) {
	if config.MaxRetryCount < 0 {
		return nil, errors.New("max retry count cannot be negative")
	}
	if jobRepo == nil {
		return nil, errors.New("job repository cannot be nil")
	}
	if batchRepo == nil {
		return nil, errors.New("raw batch repository cannot be nil")
	}
	if embedder == nil {
		return nil, errors.New("embedding service cannot be nil")
	}
	if indexer == nil {
		return nil, errors.New("bulk indexer cannot be nil")
	}

	otelMetrics, err := newProcessorMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to create processor metrics: %w", err)
	}

	return &JobProcessor{
		config:    config,
		jobRepo:   jobRepo,
		batchRepo: batchRepo,
		embedder:  embedder,
		indexer:   indexer,
		otel:      otelMetrics,
	}, nil
}

// ProcessJob runs one attempt for a job message. The message has already
// passed envelope and payload validation; poison handling happens in the
// transport layer before this is called.
func (p *JobProcessor) ProcessJob(
	ctx context.Context,
	message messaging.IngestionJobMessage,
	envelope messaging.Envelope,
) inbound.Outcome {
	start := time.Now()
	outcome := p.processAttempt(ctx, message, envelope)
	p.otel.jobDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String(AttrSourceType, message.SourceType)))
	return outcome
}

func (p *JobProcessor) processAttempt(
	ctx context.Context,
	message messaging.IngestionJobMessage,
	envelope messaging.Envelope,
) inbound.Outcome {
	job, err := p.jobRepo.FindByID(ctx, message.JobID)
	if err != nil {
		return p.retry(ctx, nil, messaging.FailureTypeStoreUnavailable, envelope,
			fmt.Errorf("failed to load job record: %w", err))
	}
	if job == nil {
		// Stale or duplicate delivery; there is nothing to process and
		// nothing to retry.
		p.staleMessagesAcked.Add(1)
		slogger.Warn(ctx, "Job record not found, acknowledging stale message", slogger.Fields{
			"job_id":       message.JobID.String(),
			"failure_type": string(messaging.FailureTypeJobNotFound),
		})
		return inbound.Ack()
	}
	if job.IsTerminal() {
		p.staleMessagesAcked.Add(1)
		slogger.Info(ctx, "Job already in terminal status, acknowledging duplicate message", slogger.Fields{
			"job_id": job.ID().String(),
			"status": job.Status().String(),
		})
		return inbound.Ack()
	}

	if err := job.Start(); err != nil {
		return p.deadLetter(ctx, job, messaging.FailureTypeProcessingError, err)
	}
	if err := p.jobRepo.Update(ctx, job); err != nil {
		return p.retry(ctx, job, messaging.FailureTypeStoreUnavailable, envelope,
			fmt.Errorf("failed to persist job start: %w", err))
	}

	batch, err := p.batchRepo.FindByJobID(ctx, job.ID())
	if err != nil {
		return p.retry(ctx, job, messaging.FailureTypeStoreUnavailable, envelope,
			fmt.Errorf("failed to load raw batch: %w", err))
	}
	if batch == nil {
		return p.deadLetter(ctx, job, messaging.FailureTypeProcessingError,
			errors.New("raw batch not found for job"))
	}

	records, err := batch.ParseRecords()
	if err != nil {
		return p.deadLetter(ctx, job, messaging.FailureTypeInvalidPayload,
			fmt.Errorf("failed to parse raw batch: %w", err))
	}
	if err := job.SetTotalCount(len(records)); err != nil {
		return p.deadLetter(ctx, job, messaging.FailureTypeProcessingError, err)
	}

	if len(records) == 0 {
		return p.complete(ctx, job, outbound.BulkResult{})
	}

	if err := p.indexer.EnsureCollection(ctx, job.TenantID(), p.embedder.Dimensions()); err != nil {
		return p.retry(ctx, job, messaging.FailureTypeIndexUnavailable, envelope,
			fmt.Errorf("failed to ensure collection: %w", err))
	}

	texts := make([]string, len(records))
	for i, record := range records {
		texts[i] = record.EmbeddingText()
	}
	vectors, err := p.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return p.retry(ctx, job, messaging.FailureTypeEmbeddingUnavailable, envelope,
			fmt.Errorf("failed to embed records: %w", err))
	}
	if len(vectors) != len(records) {
		return p.deadLetter(ctx, job, messaging.FailureTypeProcessingError,
			fmt.Errorf("embedding count mismatch: got %d vectors for %d records", len(vectors), len(records)))
	}

	items := make([]outbound.IndexItem, len(records))
	for i, record := range records {
		items[i] = outbound.IndexItem{
			ID:      record.ID,
			Vector:  vectors[i],
			Payload: indexPayload(record, batch),
		}
	}

	result, err := p.indexer.BulkUpsert(ctx, job.TenantID(), items)
	if err != nil {
		return p.retry(ctx, job, messaging.FailureTypeIndexUnavailable, envelope,
			fmt.Errorf("bulk upsert failed: %w", err))
	}
	if result.Indexed == 0 {
		return p.retry(ctx, job, messaging.FailureTypeBatchRejected, envelope,
			fmt.Errorf("index rejected all %d records", result.Failed))
	}

	return p.complete(ctx, job, result)
}

// complete marks the job completed with final accounting and persists it.
// Partial failures still complete: some records indexed is success with a
// recorded failed count.
func (p *JobProcessor) complete(ctx context.Context, job *entity.IngestionJob, result outbound.BulkResult) inbound.Outcome {
	if err := job.Complete(result.Indexed, result.Failed); err != nil {
		return p.deadLetter(ctx, job, messaging.FailureTypeProcessingError, err)
	}
	if err := p.jobRepo.Update(ctx, job); err != nil {
		return inbound.Retry(messaging.FailureTypeStoreUnavailable,
			fmt.Errorf("failed to persist job completion: %w", err))
	}

	p.jobsCompleted.Add(1)
	p.recordsIndexed.Add(int64(result.Indexed))
	p.recordsFailed.Add(int64(result.Failed))
	p.otel.jobsCompleted.Add(ctx, 1)
	p.otel.recordsIndexed.Add(ctx, int64(result.Indexed))

	slogger.Info(ctx, "Job completed", slogger.Fields{
		"job_id":          job.ID().String(),
		"indexed":         result.Indexed,
		"failed":          result.Failed,
		"backend_took_ms": result.BackendTookMs,
	})
	return inbound.Ack()
}

// retry reports a temporary failure. When the retry budget is already spent
// the message will not come back, so the job is marked failed here before
// the transport routes the message to the terminal queue.
func (p *JobProcessor) retry(
	ctx context.Context,
	job *entity.IngestionJob,
	failureType messaging.FailureType,
	envelope messaging.Envelope,
	err error,
) inbound.Outcome {
	if envelope.RetriesExhausted(p.config.MaxRetryCount) {
		p.jobsDeadLettered.Add(1)
		p.otel.jobsDeadLettered.Add(ctx, 1,
			metric.WithAttributes(attribute.String(AttrFailureType, string(failureType))))
		p.markFailed(ctx, job, err)
	} else {
		p.jobsRetried.Add(1)
		p.otel.jobsRetried.Add(ctx, 1,
			metric.WithAttributes(attribute.String(AttrFailureType, string(failureType))))
	}

	slogger.ErrorWithError(ctx, err, "Job attempt failed with temporary error", slogger.Fields{
		"failure_type": string(failureType),
		"retry_count":  envelope.RetryCount,
	})
	return inbound.Retry(failureType, err)
}

// deadLetter reports a permanent failure. The job is marked failed so its
// status reflects the terminal queue routing.
func (p *JobProcessor) deadLetter(
	ctx context.Context,
	job *entity.IngestionJob,
	failureType messaging.FailureType,
	err error,
) inbound.Outcome {
	p.jobsDeadLettered.Add(1)
	p.otel.jobsDeadLettered.Add(ctx, 1,
		metric.WithAttributes(attribute.String(AttrFailureType, string(failureType))))
	p.markFailed(ctx, job, err)

	slogger.ErrorWithError(ctx, err, "Job failed permanently", slogger.Fields{
		"failure_type": string(failureType),
	})
	return inbound.DeadLetter(failureType, err)
}

// markFailed persists the failed status. Best effort: if the store is also
// down the row stays Processing and the terminal queue record is the source
// of truth for operators.
func (p *JobProcessor) markFailed(ctx context.Context, job *entity.IngestionJob, cause error) {
	if job == nil || job.IsTerminal() {
		return
	}
	if err := job.Fail(cause.Error()); err != nil {
		slogger.Warn(ctx, "Could not transition job to failed", slogger.Fields{
			"job_id": job.ID().String(),
			"error":  err.Error(),
		})
		return
	}
	if err := p.jobRepo.Update(ctx, job); err != nil {
		slogger.Warn(ctx, "Could not persist failed job status", slogger.Fields{
			"job_id": job.ID().String(),
			"error":  err.Error(),
		})
	}
}

// GetMetrics returns a snapshot of aggregate processing counters.
func (p *JobProcessor) GetMetrics() inbound.JobProcessorMetrics {
	return inbound.JobProcessorMetrics{
		JobsCompleted:      p.jobsCompleted.Load(),
		JobsRetried:        p.jobsRetried.Load(),
		JobsDeadLettered:   p.jobsDeadLettered.Load(),
		RecordsIndexed:     p.recordsIndexed.Load(),
		RecordsFailed:      p.recordsFailed.Load(),
		StaleMessagesAcked: p.staleMessagesAcked.Load(),
	}
}

// indexPayload builds the searchable payload stored next to the vector.
func indexPayload(record entity.ProductRecord, batch *entity.RawProductBatch) map[string]any {
	payload := map[string]any{
		"title":       record.Title,
		"source_type": batch.SourceType().String(),
		"job_id":      batch.JobID().String(),
	}
	if record.Description != "" {
		payload["description"] = record.Description
	}
	if len(record.Attributes) > 0 {
		payload["attributes"] = record.Attributes
	}
	return payload
}
