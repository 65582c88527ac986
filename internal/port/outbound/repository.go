package outbound

import (
	"context"

	"embeddra/internal/domain/entity"

	"github.com/google/uuid"
)

// IngestionJobRepository defines the outbound port for job persistence.
type IngestionJobRepository interface {
	Save(ctx context.Context, job *entity.IngestionJob) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.IngestionJob, error)
	FindByTenantID(ctx context.Context, tenantID string, filters IngestionJobFilters) ([]*entity.IngestionJob, int, error)
	Update(ctx context.Context, job *entity.IngestionJob) error
}

// RawBatchRepository defines the outbound port for raw payload persistence.
// Batches are written once at accept time and read back by job ID on every
// processing attempt.
type RawBatchRepository interface {
	Save(ctx context.Context, batch *entity.RawProductBatch) error
	FindByJobID(ctx context.Context, jobID uuid.UUID) (*entity.RawProductBatch, error)
}

// IngestionJobFilters represents filters for job queries.
type IngestionJobFilters struct {
	Status string
	Limit  int
	Offset int
}
