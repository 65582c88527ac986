package repository

import (
	"context"
	"fmt"
	"time"

	"embeddra/internal/domain/entity"
	"embeddra/internal/domain/valueobject"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgreSQLRawBatchRepository implements the RawBatchRepository interface.
// One row per job; the payload column is the verbatim uploaded bytes.
type PostgreSQLRawBatchRepository struct {
	pool *pgxpool.Pool
}

// NewPostgreSQLRawBatchRepository creates a new PostgreSQL raw batch
// repository.
func NewPostgreSQLRawBatchRepository(pool *pgxpool.Pool) *PostgreSQLRawBatchRepository {
	return &PostgreSQLRawBatchRepository{pool: pool}
}

// Save stores the raw batch for a job.
func (r *PostgreSQLRawBatchRepository) Save(ctx context.Context, batch *entity.RawProductBatch) error {
	if batch == nil {
		return ErrInvalidArgument
	}

	query := `
		INSERT INTO embeddra.raw_product_batches (
			job_id, tenant_id, source_type, payload, created_at
		) VALUES ($1, $2, $3, $4, $5)`

	qi := GetQueryInterface(ctx, r.pool)
	_, err := qi.Exec(ctx, query,
		batch.JobID(),
		batch.TenantID(),
		batch.SourceType().String(),
		batch.Payload(),
		batch.CreatedAt(),
	)
	if err != nil {
		return WrapError(err, "save raw batch")
	}

	return nil
}

// FindByJobID loads the raw batch for a job. Returns nil without error when
// no batch exists.
func (r *PostgreSQLRawBatchRepository) FindByJobID(ctx context.Context, jobID uuid.UUID) (*entity.RawProductBatch, error) {
	if jobID == uuid.Nil {
		return nil, ErrInvalidArgument
	}

	query := `
		SELECT job_id, tenant_id, source_type, payload, created_at
		FROM embeddra.raw_product_batches
		WHERE job_id = $1`

	qi := GetQueryInterface(ctx, r.pool)
	row := qi.QueryRow(ctx, query, jobID)

	var (
		id            uuid.UUID
		tenantID      string
		sourceTypeStr string
		payload       []byte
		createdAt     time.Time
	)
	if err := row.Scan(&id, &tenantID, &sourceTypeStr, &payload, &createdAt); err != nil {
		if IsNotFoundError(err) {
			return nil, nil
		}
		return nil, WrapError(err, "find raw batch by job ID")
	}

	sourceType, err := valueobject.NewSourceType(sourceTypeStr)
	if err != nil {
		return nil, fmt.Errorf("stored source type invalid: %w", err)
	}

	return entity.RestoreRawProductBatch(id, tenantID, sourceType, payload, createdAt), nil
}
