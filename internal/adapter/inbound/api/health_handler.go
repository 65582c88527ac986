package api

import (
	"context"
	"net/http"
	"time"

	"embeddra/internal/port/outbound"
)

// DatabasePinger reports whether the job record store is reachable.
type DatabasePinger interface {
	IsHealthy(ctx context.Context) bool
}

// HealthStatus is the health endpoint body.
type HealthStatus struct {
	Status     string                    `json:"status"`
	Timestamp  time.Time                 `json:"timestamp"`
	Components map[string]ComponentState `json:"components"`
}

// ComponentState describes the health of one dependency.
type ComponentState struct {
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// HealthHandler serves GET /health by probing the store and the queue.
type HealthHandler struct {
	database  DatabasePinger
	publisher outbound.MessagePublisherHealth
}

// NewHealthHandler creates a health handler. Either dependency may be nil
// when the process does not use it.
func NewHealthHandler(database DatabasePinger, publisher outbound.MessagePublisherHealth) *HealthHandler {
	return &HealthHandler{database: database, publisher: publisher}
}

// GetHealth handles GET /health. The endpoint answers 503 when any wired
// dependency is down so load balancers stop routing uploads to this
// instance.
func (h *HealthHandler) GetHealth(w http.ResponseWriter, r *http.Request) {
	status := HealthStatus{
		Status:     "healthy",
		Timestamp:  time.Now().UTC(),
		Components: make(map[string]ComponentState),
	}

	if h.database != nil {
		if h.database.IsHealthy(r.Context()) {
			status.Components["database"] = ComponentState{Status: "healthy"}
		} else {
			status.Status = "unhealthy"
			status.Components["database"] = ComponentState{Status: "unhealthy", Detail: "ping failed"}
		}
	}

	if h.publisher != nil {
		connection := h.publisher.GetConnectionHealth()
		if connection.Connected {
			status.Components["messaging"] = ComponentState{Status: "healthy"}
		} else {
			status.Status = "unhealthy"
			status.Components["messaging"] = ComponentState{Status: "unhealthy", Detail: connection.LastError}
		}
	}

	code := http.StatusOK
	if status.Status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, r, code, status)
}
