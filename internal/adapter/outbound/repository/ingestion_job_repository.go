package repository

import (
	"context"
	"fmt"
	"time"

	"embeddra/internal/domain/entity"
	"embeddra/internal/domain/valueobject"
	"embeddra/internal/port/outbound"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgreSQLIngestionJobRepository implements the IngestionJobRepository
// interface.
type PostgreSQLIngestionJobRepository struct {
	pool *pgxpool.Pool
}

// NewPostgreSQLIngestionJobRepository creates a new PostgreSQL ingestion job
// repository.
func NewPostgreSQLIngestionJobRepository(pool *pgxpool.Pool) *PostgreSQLIngestionJobRepository {
	return &PostgreSQLIngestionJobRepository{pool: pool}
}

// Save saves an ingestion job to the database.
func (r *PostgreSQLIngestionJobRepository) Save(ctx context.Context, job *entity.IngestionJob) error {
	if job == nil {
		return ErrInvalidArgument
	}

	query := `
		INSERT INTO embeddra.ingestion_jobs (
			id, tenant_id, source_type, status, total_count,
			processed_count, failed_count, error_message,
			started_at, completed_at, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12
		)`

	qi := GetQueryInterface(ctx, r.pool)
	_, err := qi.Exec(ctx, query,
		job.ID(),
		job.TenantID(),
		job.SourceType().String(),
		job.Status().String(),
		job.TotalCount(),
		job.ProcessedCount(),
		job.FailedCount(),
		job.ErrorMessage(),
		job.StartedAt(),
		job.CompletedAt(),
		job.CreatedAt(),
		job.UpdatedAt(),
	)
	if err != nil {
		return WrapError(err, "save ingestion job")
	}

	return nil
}

// FindByID finds an ingestion job by its ID. Returns nil without error when
// no job exists, which the job processor maps to a permanent failure.
func (r *PostgreSQLIngestionJobRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.IngestionJob, error) {
	if id == uuid.Nil {
		return nil, ErrInvalidArgument
	}

	query := `
		SELECT id, tenant_id, source_type, status, total_count,
			   processed_count, failed_count, error_message,
			   started_at, completed_at, created_at, updated_at
		FROM embeddra.ingestion_jobs
		WHERE id = $1`

	qi := GetQueryInterface(ctx, r.pool)
	row := qi.QueryRow(ctx, query, id)

	job, err := scanIngestionJob(row)
	if err != nil {
		if IsNotFoundError(err) {
			return nil, nil
		}
		return nil, WrapError(err, "find ingestion job by ID")
	}

	return job, nil
}

// FindByTenantID finds ingestion jobs for a tenant with filters.
func (r *PostgreSQLIngestionJobRepository) FindByTenantID(
	ctx context.Context,
	tenantID string,
	filters outbound.IngestionJobFilters,
) ([]*entity.IngestionJob, int, error) {
	if tenantID == "" {
		return nil, 0, ErrInvalidArgument
	}
	if filters.Limit <= 0 || filters.Offset < 0 {
		return nil, 0, ErrInvalidArgument
	}

	baseQuery := `FROM embeddra.ingestion_jobs WHERE tenant_id = $1`
	args := []interface{}{tenantID}
	if filters.Status != "" {
		baseQuery += ` AND status = $2`
		args = append(args, filters.Status)
	}

	qi := GetQueryInterface(ctx, r.pool)

	var totalCount int
	if err := qi.QueryRow(ctx, "SELECT COUNT(*) "+baseQuery, args...).Scan(&totalCount); err != nil {
		return nil, 0, WrapError(err, "count ingestion jobs")
	}

	dataQuery := `SELECT id, tenant_id, source_type, status, total_count,
				  processed_count, failed_count, error_message,
				  started_at, completed_at, created_at, updated_at ` +
		baseQuery + " ORDER BY created_at DESC" +
		fmt.Sprintf(" LIMIT %d OFFSET %d", filters.Limit, filters.Offset)

	rows, err := qi.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, WrapError(err, "query ingestion jobs")
	}
	defer rows.Close()

	var jobs []*entity.IngestionJob
	for rows.Next() {
		job, err := scanIngestionJob(rows)
		if err != nil {
			return nil, 0, WrapError(err, "scan ingestion job row")
		}
		jobs = append(jobs, job)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, WrapError(err, "iterate ingestion job rows")
	}

	return jobs, totalCount, nil
}

// Update updates an ingestion job in the database.
func (r *PostgreSQLIngestionJobRepository) Update(ctx context.Context, job *entity.IngestionJob) error {
	if job == nil {
		return ErrInvalidArgument
	}

	query := `
		UPDATE embeddra.ingestion_jobs
		SET status = $2, total_count = $3, processed_count = $4,
			failed_count = $5, error_message = $6, started_at = $7,
			completed_at = $8, updated_at = $9
		WHERE id = $1`

	qi := GetQueryInterface(ctx, r.pool)
	tag, err := qi.Exec(ctx, query,
		job.ID(),
		job.Status().String(),
		job.TotalCount(),
		job.ProcessedCount(),
		job.FailedCount(),
		job.ErrorMessage(),
		job.StartedAt(),
		job.CompletedAt(),
		job.UpdatedAt(),
	)
	if err != nil {
		return WrapError(err, "update ingestion job")
	}
	if tag.RowsAffected() == 0 {
		return WrapError(ErrNotFound, "update ingestion job")
	}

	return nil
}

// rowScanner is satisfied by both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanIngestionJob(row rowScanner) (*entity.IngestionJob, error) {
	var (
		id                          uuid.UUID
		tenantID                    string
		sourceTypeStr, statusStr    string
		totalCount                  *int
		processedCount, failedCount int
		errorMessage                *string
		startedAt, completedAt      *time.Time
		createdAt, updatedAt        time.Time
	)

	err := row.Scan(
		&id, &tenantID, &sourceTypeStr, &statusStr, &totalCount,
		&processedCount, &failedCount, &errorMessage,
		&startedAt, &completedAt, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	sourceType, err := valueobject.NewSourceType(sourceTypeStr)
	if err != nil {
		return nil, fmt.Errorf("stored source type invalid: %w", err)
	}
	status, err := valueobject.NewJobStatus(statusStr)
	if err != nil {
		return nil, fmt.Errorf("stored job status invalid: %w", err)
	}

	return entity.RestoreIngestionJob(
		id, tenantID, sourceType, status, totalCount,
		processedCount, failedCount, errorMessage,
		startedAt, completedAt, createdAt, updatedAt,
	), nil
}
