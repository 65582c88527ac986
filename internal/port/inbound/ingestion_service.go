package inbound

import (
	"context"

	"embeddra/internal/domain/entity"

	"github.com/google/uuid"
)

// CatalogUpload is an accepted admin-side catalog upload request.
type CatalogUpload struct {
	TenantID   string
	SourceType string
	Payload    []byte
}

// JobListQuery filters a tenant's job listing.
type JobListQuery struct {
	Status string
	Limit  int
	Offset int
}

// JobListing is one page of a tenant's jobs with the unpaged total.
type JobListing struct {
	Jobs  []*entity.IngestionJob
	Total int
}

// IngestionService accepts catalog uploads, persists the job and raw batch,
// and announces the work on the job queue.
type IngestionService interface {
	// SubmitCatalog creates the job record, stores the raw batch, and
	// publishes the job-announcement message. A publish failure leaves the
	// job queued for manual retry rather than failing it.
	SubmitCatalog(ctx context.Context, upload CatalogUpload) (*entity.IngestionJob, error)

	// GetJob returns the job status row, or nil when unknown.
	GetJob(ctx context.Context, jobID uuid.UUID) (*entity.IngestionJob, error)

	// ListJobs returns a tenant's jobs, newest first.
	ListJobs(ctx context.Context, tenantID string, query JobListQuery) (JobListing, error)
}
