// Package service holds the application services behind the admin API. The
// ingestion service owns the accept path: job row and raw batch are written
// in one transaction, then the job is announced on the queue.
package service

import (
	"context"
	"errors"
	"fmt"

	"embeddra/internal/application/common/logging"
	"embeddra/internal/application/common/slogger"
	"embeddra/internal/domain/entity"
	"embeddra/internal/domain/messaging"
	"embeddra/internal/domain/valueobject"
	"embeddra/internal/port/inbound"
	"embeddra/internal/port/outbound"

	"github.com/google/uuid"
)

const (
	defaultMaxPayloadBytes = 10 << 20 // 10 MiB
	maxTenantIDLength      = 128
)

// IngestionService implements the inbound IngestionService port.
type IngestionService struct {
	jobRepo         outbound.IngestionJobRepository
	batchRepo       outbound.RawBatchRepository
	publisher       outbound.MessagePublisher
	txManager       outbound.TransactionManager
	maxPayloadBytes int
}

// NewIngestionService creates the ingestion service.
func NewIngestionService(
	jobRepo outbound.IngestionJobRepository,
	batchRepo outbound.RawBatchRepository,
	publisher outbound.MessagePublisher,
	txManager outbound.TransactionManager,
	maxPayloadBytes int,
) (*IngestionService, error) {
	if jobRepo == nil {
		return nil, errors.New("job repository cannot be nil")
	}
	if batchRepo == nil {
		return nil, errors.New("raw batch repository cannot be nil")
	}
	if publisher == nil {
		return nil, errors.New("message publisher cannot be nil")
	}
	if txManager == nil {
		return nil, errors.New("transaction manager cannot be nil")
	}
	if maxPayloadBytes <= 0 {
		maxPayloadBytes = defaultMaxPayloadBytes
	}

	return &IngestionService{
		jobRepo:         jobRepo,
		batchRepo:       batchRepo,
		publisher:       publisher,
		txManager:       txManager,
		maxPayloadBytes: maxPayloadBytes,
	}, nil
}

// SubmitCatalog accepts a catalog upload. The job row and the raw batch are
// committed together before the announcement is published, so a consumer can
// never observe a job message whose payload is not yet readable.
func (s *IngestionService) SubmitCatalog(ctx context.Context, upload inbound.CatalogUpload) (*entity.IngestionJob, error) {
	sourceType, err := s.validateUpload(upload)
	if err != nil {
		return nil, err
	}

	job := entity.NewIngestionJob(upload.TenantID, sourceType)
	batch := entity.NewRawProductBatch(job.ID(), upload.TenantID, sourceType, upload.Payload)

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.jobRepo.Save(txCtx, job); err != nil {
			return fmt.Errorf("failed to save job: %w", err)
		}
		if err := s.batchRepo.Save(txCtx, batch); err != nil {
			return fmt.Errorf("failed to save raw batch: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.announce(ctx, job, s.countRecords(ctx, batch))
	return job, nil
}

// countRecords parses the accepted payload so the announcement carries the
// item count. A payload that does not parse is still announced with count
// zero; rejecting it is the processor's call, not the accept path's.
func (s *IngestionService) countRecords(ctx context.Context, batch *entity.RawProductBatch) int {
	records, err := batch.ParseRecords()
	if err != nil {
		slogger.Warn(ctx, "Could not count records in accepted payload", slogger.Fields{
			"job_id": batch.JobID().String(),
			"error":  err.Error(),
		})
		return 0
	}
	return len(records)
}

// announce publishes the job message. A publish failure is logged but not
// returned: the job row is already committed and stays queued, so operators
// can republish instead of the tenant re-uploading the catalog.
func (s *IngestionService) announce(ctx context.Context, job *entity.IngestionJob, count int) {
	message := messaging.NewIngestionJobMessage(job.ID(), job.TenantID(), job.SourceType(), count)

	correlationID := logging.CorrelationIDFromContext(ctx)
	if correlationID == "" {
		correlationID = uuid.New().String()
	}
	envelope := messaging.Envelope{CorrelationID: correlationID}

	if err := s.publisher.PublishIngestionJob(ctx, message, envelope); err != nil {
		slogger.ErrorWithError(ctx, err, "Failed to publish job announcement, job stays queued", slogger.Fields{
			"job_id":    job.ID().String(),
			"tenant_id": job.TenantID(),
		})
		return
	}

	slogger.Info(ctx, "Catalog upload accepted", slogger.Fields{
		"job_id":      job.ID().String(),
		"tenant_id":   job.TenantID(),
		"source_type": job.SourceType().String(),
	})
}

// GetJob returns the job, or nil when no such job exists.
func (s *IngestionService) GetJob(ctx context.Context, jobID uuid.UUID) (*entity.IngestionJob, error) {
	if jobID == uuid.Nil {
		return nil, errors.New("job id cannot be empty")
	}
	return s.jobRepo.FindByID(ctx, jobID)
}

// ListJobs returns one page of a tenant's jobs, newest first.
func (s *IngestionService) ListJobs(ctx context.Context, tenantID string, query inbound.JobListQuery) (inbound.JobListing, error) {
	if tenantID == "" {
		return inbound.JobListing{}, errors.New("tenant id cannot be empty")
	}
	if query.Status != "" {
		if _, err := valueobject.NewJobStatus(query.Status); err != nil {
			return inbound.JobListing{}, fmt.Errorf("status filter must be one of %v: %w",
				valueobject.AllJobStatuses(), err)
		}
	}
	if query.Limit <= 0 || query.Limit > 100 {
		query.Limit = 20
	}
	if query.Offset < 0 {
		query.Offset = 0
	}

	jobs, total, err := s.jobRepo.FindByTenantID(ctx, tenantID, outbound.IngestionJobFilters{
		Status: query.Status,
		Limit:  query.Limit,
		Offset: query.Offset,
	})
	if err != nil {
		return inbound.JobListing{}, err
	}
	return inbound.JobListing{Jobs: jobs, Total: total}, nil
}

func (s *IngestionService) validateUpload(upload inbound.CatalogUpload) (valueobject.SourceType, error) {
	if upload.TenantID == "" {
		return "", errors.New("tenant id is required")
	}
	if len(upload.TenantID) > maxTenantIDLength {
		return "", errors.New("tenant id too long")
	}
	sourceType, err := valueobject.NewSourceType(upload.SourceType)
	if err != nil {
		return "", err
	}
	if len(upload.Payload) == 0 {
		return "", errors.New("payload cannot be empty")
	}
	if len(upload.Payload) > s.maxPayloadBytes {
		return "", fmt.Errorf("payload exceeds %d bytes", s.maxPayloadBytes)
	}
	return sourceType, nil
}
