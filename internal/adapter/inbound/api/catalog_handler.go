package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"embeddra/internal/application/common/logging"
	"embeddra/internal/application/common/slogger"
	"embeddra/internal/port/inbound"

	"github.com/google/uuid"
)

// CatalogHandler serves catalog upload and job status endpoints.
type CatalogHandler struct {
	service inbound.IngestionService
}

// NewCatalogHandler creates a catalog handler.
func NewCatalogHandler(service inbound.IngestionService) (*CatalogHandler, error) {
	if service == nil {
		return nil, errors.New("ingestion service cannot be nil")
	}
	return &CatalogHandler{service: service}, nil
}

// UploadCatalog handles POST /catalogs. The raw request body is the catalog
// payload; tenant and source type travel as query parameters so CSV uploads
// need no wrapping.
func (h *CatalogHandler) UploadCatalog(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("tenant_id")
	sourceType := r.URL.Query().Get("source_type")

	ctx := logging.WithTenantID(r.Context(), tenantID)
	r = r.WithContext(ctx)

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, r, http.StatusRequestEntityTooLarge, "payload too large")
			return
		}
		writeError(w, r, http.StatusBadRequest, "failed to read payload")
		return
	}

	job, err := h.service.SubmitCatalog(ctx, inbound.CatalogUpload{
		TenantID:   tenantID,
		SourceType: sourceType,
		Payload:    payload,
	})
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	w.Header().Set("Location", "/jobs/"+job.ID().String())
	writeJSON(w, r, http.StatusAccepted, jobResponse(job))
}

// GetJob handles GET /jobs/{id}.
func (h *CatalogHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid job id")
		return
	}

	job, err := h.service.GetJob(r.Context(), jobID)
	if err != nil {
		slogger.ErrorWithError(r.Context(), err, "Failed to load job", slogger.Fields{
			"job_id": jobID.String(),
		})
		writeError(w, r, http.StatusInternalServerError, "failed to load job")
		return
	}
	if job == nil {
		writeError(w, r, http.StatusNotFound, "job not found")
		return
	}

	writeJSON(w, r, http.StatusOK, jobResponse(job))
}

// JobListResponse is one page of a tenant's jobs.
type JobListResponse struct {
	Jobs  []JobResponse `json:"jobs"`
	Total int           `json:"total"`
}

// ListJobs handles GET /tenants/{tenant_id}/jobs.
func (h *CatalogHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	tenantID := r.PathValue("tenant_id")

	query := inbound.JobListQuery{
		Status: r.URL.Query().Get("status"),
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid limit")
			return
		}
		query.Limit = limit
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid offset")
			return
		}
		query.Offset = offset
	}

	listing, err := h.service.ListJobs(logging.WithTenantID(r.Context(), tenantID), tenantID, query)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	resp := JobListResponse{
		Jobs:  make([]JobResponse, 0, len(listing.Jobs)),
		Total: listing.Total,
	}
	for _, job := range listing.Jobs {
		resp.Jobs = append(resp.Jobs, jobResponse(job))
	}
	writeJSON(w, r, http.StatusOK, resp)
}
