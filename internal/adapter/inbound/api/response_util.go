// Package api provides the admin HTTP API: catalog upload, job status, and
// health. Handlers are thin; all decisions live in the application services.
package api

import (
	"encoding/json"
	"net/http"

	"embeddra/internal/application/common/slogger"
	"embeddra/internal/domain/entity"
)

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// JobResponse is the wire representation of a job status row.
type JobResponse struct {
	ID             string  `json:"id"`
	TenantID       string  `json:"tenant_id"`
	SourceType     string  `json:"source_type"`
	Status         string  `json:"status"`
	TotalCount     *int    `json:"total_count,omitempty"`
	ProcessedCount int     `json:"processed_count"`
	FailedCount    int     `json:"failed_count"`
	ErrorMessage   *string `json:"error_message,omitempty"`
	StartedAt      *string `json:"started_at,omitempty"`
	CompletedAt    *string `json:"completed_at,omitempty"`
	CreatedAt      string  `json:"created_at"`
}

func jobResponse(job *entity.IngestionJob) JobResponse {
	resp := JobResponse{
		ID:             job.ID().String(),
		TenantID:       job.TenantID(),
		SourceType:     job.SourceType().String(),
		Status:         job.Status().String(),
		TotalCount:     job.TotalCount(),
		ProcessedCount: job.ProcessedCount(),
		FailedCount:    job.FailedCount(),
		ErrorMessage:   job.ErrorMessage(),
		CreatedAt:      job.CreatedAt().UTC().Format(timeFormat),
	}
	if t := job.StartedAt(); t != nil {
		s := t.UTC().Format(timeFormat)
		resp.StartedAt = &s
	}
	if t := job.CompletedAt(); t != nil {
		s := t.UTC().Format(timeFormat)
		resp.CompletedAt = &s
	}
	return resp
}

const timeFormat = "2006-01-02T15:04:05.000Z07:00"

func writeJSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slogger.Warn(r.Context(), "Failed to write response body", slogger.Fields{
			"error": err.Error(),
		})
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	writeJSON(w, r, status, ErrorResponse{Error: message})
}
