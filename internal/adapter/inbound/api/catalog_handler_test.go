package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"embeddra/internal/domain/entity"
	"embeddra/internal/domain/valueobject"
	"embeddra/internal/port/inbound"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockIngestionService mocks the inbound ingestion service port.
type MockIngestionService struct {
	mock.Mock
}

func (m *MockIngestionService) SubmitCatalog(ctx context.Context, upload inbound.CatalogUpload) (*entity.IngestionJob, error) {
	args := m.Called(ctx, upload)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.IngestionJob), args.Error(1)
}

func (m *MockIngestionService) GetJob(ctx context.Context, jobID uuid.UUID) (*entity.IngestionJob, error) {
	args := m.Called(ctx, jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.IngestionJob), args.Error(1)
}

func (m *MockIngestionService) ListJobs(ctx context.Context, tenantID string, query inbound.JobListQuery) (inbound.JobListing, error) {
	args := m.Called(ctx, tenantID, query)
	return args.Get(0).(inbound.JobListing), args.Error(1)
}

func testRouter(t *testing.T, service inbound.IngestionService) http.Handler {
	t.Helper()
	handler, err := NewCatalogHandler(service)
	require.NoError(t, err)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /catalogs", handler.UploadCatalog)
	mux.HandleFunc("GET /jobs/{id}", handler.GetJob)
	mux.HandleFunc("GET /tenants/{tenant_id}/jobs", handler.ListJobs)
	return mux
}

func newTestJob(t *testing.T) *entity.IngestionJob {
	t.Helper()
	sourceType, err := valueobject.NewSourceType("json")
	require.NoError(t, err)
	return entity.NewIngestionJob("acme", sourceType)
}

func TestCatalogHandler_UploadCatalog(t *testing.T) {
	t.Run("should accept upload and return 202 with job body", func(t *testing.T) {
		service := &MockIngestionService{}
		job := newTestJob(t)
		service.On("SubmitCatalog", mock.Anything, mock.MatchedBy(func(upload inbound.CatalogUpload) bool {
			return upload.TenantID == "acme" &&
				upload.SourceType == "json" &&
				strings.Contains(string(upload.Payload), "sku-1")
		})).Return(job, nil)

		req := httptest.NewRequest(http.MethodPost, "/catalogs?tenant_id=acme&source_type=json",
			strings.NewReader(`[{"id": "sku-1", "title": "Red Shoe"}]`))
		rec := httptest.NewRecorder()

		testRouter(t, service).ServeHTTP(rec, req)

		require.Equal(t, http.StatusAccepted, rec.Code)
		assert.Equal(t, "/jobs/"+job.ID().String(), rec.Header().Get("Location"))

		var body JobResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, job.ID().String(), body.ID)
		assert.Equal(t, "queued", body.Status)
	})

	t.Run("should return 400 when the service rejects the upload", func(t *testing.T) {
		service := &MockIngestionService{}
		service.On("SubmitCatalog", mock.Anything, mock.Anything).
			Return(nil, errors.New("tenant id is required"))

		req := httptest.NewRequest(http.MethodPost, "/catalogs", strings.NewReader(`[]`))
		rec := httptest.NewRecorder()

		testRouter(t, service).ServeHTTP(rec, req)

		require.Equal(t, http.StatusBadRequest, rec.Code)

		var body ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Contains(t, body.Error, "tenant id")
	})
}

func TestCatalogHandler_GetJob(t *testing.T) {
	t.Run("should return job status", func(t *testing.T) {
		service := &MockIngestionService{}
		job := newTestJob(t)
		service.On("GetJob", mock.Anything, job.ID()).Return(job, nil)

		req := httptest.NewRequest(http.MethodGet, "/jobs/"+job.ID().String(), nil)
		rec := httptest.NewRecorder()

		testRouter(t, service).ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)

		var body JobResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "acme", body.TenantID)
		assert.Equal(t, "json", body.SourceType)
	})

	t.Run("should return 404 for unknown job", func(t *testing.T) {
		service := &MockIngestionService{}
		service.On("GetJob", mock.Anything, mock.Anything).Return(nil, nil)

		req := httptest.NewRequest(http.MethodGet, "/jobs/"+uuid.New().String(), nil)
		rec := httptest.NewRecorder()

		testRouter(t, service).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("should return 400 for malformed job id", func(t *testing.T) {
		service := &MockIngestionService{}

		req := httptest.NewRequest(http.MethodGet, "/jobs/not-a-uuid", nil)
		rec := httptest.NewRecorder()

		testRouter(t, service).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		service.AssertNotCalled(t, "GetJob", mock.Anything, mock.Anything)
	})

	t.Run("should return 500 when the store fails", func(t *testing.T) {
		service := &MockIngestionService{}
		service.On("GetJob", mock.Anything, mock.Anything).Return(nil, errors.New("connection refused"))

		req := httptest.NewRequest(http.MethodGet, "/jobs/"+uuid.New().String(), nil)
		rec := httptest.NewRecorder()

		testRouter(t, service).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestCatalogHandler_ListJobs(t *testing.T) {
	t.Run("should list jobs with parsed paging", func(t *testing.T) {
		service := &MockIngestionService{}
		job := newTestJob(t)
		service.On("ListJobs", mock.Anything, "acme", inbound.JobListQuery{
			Status: "queued",
			Limit:  5,
			Offset: 10,
		}).Return(inbound.JobListing{Jobs: []*entity.IngestionJob{job}, Total: 11}, nil)

		req := httptest.NewRequest(http.MethodGet, "/tenants/acme/jobs?status=queued&limit=5&offset=10", nil)
		rec := httptest.NewRecorder()

		testRouter(t, service).ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)

		var body JobListResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, 11, body.Total)
		require.Len(t, body.Jobs, 1)
		assert.Equal(t, job.ID().String(), body.Jobs[0].ID)
	})

	t.Run("should reject non-numeric paging values", func(t *testing.T) {
		service := &MockIngestionService{}

		req := httptest.NewRequest(http.MethodGet, "/tenants/acme/jobs?limit=many", nil)
		rec := httptest.NewRecorder()

		testRouter(t, service).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		service.AssertNotCalled(t, "ListJobs", mock.Anything, mock.Anything, mock.Anything)
	})
}
