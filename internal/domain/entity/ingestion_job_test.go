package entity

import (
	"testing"
	"time"

	"embeddra/internal/domain/valueobject"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIngestionJob(t *testing.T) {
	job := NewIngestionJob("tenant-1", valueobject.SourceTypeJSON)

	assert.NotEqual(t, uuid.Nil, job.ID())
	assert.Equal(t, "tenant-1", job.TenantID())
	assert.Equal(t, valueobject.SourceTypeJSON, job.SourceType())
	assert.Equal(t, valueobject.JobStatusQueued, job.Status())
	assert.Nil(t, job.TotalCount())
	assert.Nil(t, job.StartedAt())
	assert.Nil(t, job.CompletedAt())
	assert.False(t, job.IsTerminal())
}

func TestIngestionJob_Start(t *testing.T) {
	t.Run("should move a queued job to processing and set startedAt", func(t *testing.T) {
		job := NewIngestionJob("tenant-1", valueobject.SourceTypeJSON)

		require.NoError(t, job.Start())

		assert.Equal(t, valueobject.JobStatusProcessing, job.Status())
		require.NotNil(t, job.StartedAt())
	})

	t.Run("should be a no-op when the job is already processing", func(t *testing.T) {
		job := NewIngestionJob("tenant-1", valueobject.SourceTypeJSON)
		require.NoError(t, job.Start())
		firstStart := job.StartedAt()

		require.NoError(t, job.Start())

		assert.Equal(t, valueobject.JobStatusProcessing, job.Status())
		assert.Equal(t, firstStart, job.StartedAt())
	})

	t.Run("should reject starting a terminal job", func(t *testing.T) {
		job := NewIngestionJob("tenant-1", valueobject.SourceTypeJSON)
		require.NoError(t, job.Start())
		require.NoError(t, job.Complete(0, 0))

		err := job.Start()

		require.Error(t, err)
		var domainErr *DomainError
		require.ErrorAs(t, err, &domainErr)
		assert.Equal(t, "INVALID_STATUS_TRANSITION", domainErr.Code())
	})
}

func TestIngestionJob_Complete(t *testing.T) {
	t.Run("should record final counts and clear the error message", func(t *testing.T) {
		job := NewIngestionJob("tenant-1", valueobject.SourceTypeJSON)
		require.NoError(t, job.Start())
		require.NoError(t, job.SetTotalCount(10))

		require.NoError(t, job.Complete(8, 2))

		assert.Equal(t, valueobject.JobStatusCompleted, job.Status())
		assert.Equal(t, 8, job.ProcessedCount())
		assert.Equal(t, 2, job.FailedCount())
		assert.Nil(t, job.ErrorMessage())
		require.NotNil(t, job.CompletedAt())
		assert.True(t, job.IsTerminal())
	})

	t.Run("should reject completing a queued job", func(t *testing.T) {
		job := NewIngestionJob("tenant-1", valueobject.SourceTypeJSON)

		assert.Error(t, job.Complete(0, 0))
	})

	t.Run("should reject counts exceeding the total", func(t *testing.T) {
		job := NewIngestionJob("tenant-1", valueobject.SourceTypeJSON)
		require.NoError(t, job.Start())
		require.NoError(t, job.SetTotalCount(5))

		assert.Error(t, job.Complete(4, 2))
	})

	t.Run("should reject negative counts", func(t *testing.T) {
		job := NewIngestionJob("tenant-1", valueobject.SourceTypeJSON)
		require.NoError(t, job.Start())

		assert.Error(t, job.Complete(-1, 0))
	})
}

func TestIngestionJob_Fail(t *testing.T) {
	t.Run("should record the failure cause", func(t *testing.T) {
		job := NewIngestionJob("tenant-1", valueobject.SourceTypeJSON)
		require.NoError(t, job.Start())

		require.NoError(t, job.Fail("embedding backend unavailable"))

		assert.Equal(t, valueobject.JobStatusFailed, job.Status())
		require.NotNil(t, job.ErrorMessage())
		assert.Equal(t, "embedding backend unavailable", *job.ErrorMessage())
		assert.True(t, job.IsTerminal())
	})

	t.Run("should reject failing an already completed job", func(t *testing.T) {
		job := NewIngestionJob("tenant-1", valueobject.SourceTypeJSON)
		require.NoError(t, job.Start())
		require.NoError(t, job.Complete(0, 0))

		assert.Error(t, job.Fail("late failure"))
	})
}

func TestIngestionJob_SetTotalCount(t *testing.T) {
	job := NewIngestionJob("tenant-1", valueobject.SourceTypeCSV)

	require.NoError(t, job.SetTotalCount(42))
	require.NotNil(t, job.TotalCount())
	assert.Equal(t, 42, *job.TotalCount())

	assert.Error(t, job.SetTotalCount(-1))
}

func TestIngestionJob_Duration(t *testing.T) {
	t.Run("should be nil before the job finishes", func(t *testing.T) {
		job := NewIngestionJob("tenant-1", valueobject.SourceTypeJSON)
		require.NoError(t, job.Start())

		assert.Nil(t, job.Duration())
	})

	t.Run("should report elapsed time for restored terminal jobs", func(t *testing.T) {
		started := time.Date(2026, 1, 2, 3, 0, 0, 0, time.UTC)
		completed := started.Add(90 * time.Second)
		job := RestoreIngestionJob(
			uuid.New(), "tenant-1", valueobject.SourceTypeJSON, valueobject.JobStatusCompleted,
			nil, 3, 0, nil, &started, &completed, started, completed,
		)

		require.NotNil(t, job.Duration())
		assert.Equal(t, 90*time.Second, *job.Duration())
	})
}

func TestIngestionJob_Equal(t *testing.T) {
	job := NewIngestionJob("tenant-1", valueobject.SourceTypeJSON)
	other := NewIngestionJob("tenant-1", valueobject.SourceTypeJSON)

	assert.True(t, job.Equal(job))
	assert.False(t, job.Equal(other))
	assert.False(t, job.Equal(nil))
}
