package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"embeddra/internal/application/common/logging"
	"embeddra/internal/config"
	"embeddra/internal/port/outbound"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCorrelationMiddleware(t *testing.T) {
	t.Run("should propagate caller correlation id", func(t *testing.T) {
		var seen string
		handler := NewCorrelationMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = logging.CorrelationIDFromContext(r.Context())
		}))

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set(HeaderCorrelationID, "req-123")
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		assert.Equal(t, "req-123", seen)
		assert.Equal(t, "req-123", rec.Header().Get(HeaderCorrelationID))
	})

	t.Run("should generate correlation id when absent", func(t *testing.T) {
		var seen string
		handler := NewCorrelationMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = logging.CorrelationIDFromContext(r.Context())
		}))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		require.NotEmpty(t, seen)
		_, err := uuid.Parse(seen)
		assert.NoError(t, err)
		assert.Equal(t, seen, rec.Header().Get(HeaderCorrelationID))
	})
}

func TestBodyLimitMiddleware(t *testing.T) {
	handler := NewBodyLimitMiddleware(8)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, 64)
		_, err := r.Body.Read(buf)
		if err != nil && !strings.Contains(err.Error(), "EOF") {
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("should pass small bodies through", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/catalogs", strings.NewReader("tiny")))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("should stop oversized bodies", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/catalogs",
			strings.NewReader(strings.Repeat("x", 100))))
		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	})
}

func TestRecoveryMiddleware(t *testing.T) {
	handler := NewRecoveryMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/x", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "internal server error")
}

// stubPublisherHealth reports a fixed connection state.
type stubPublisherHealth struct {
	connected bool
	lastError string
}

func (s stubPublisherHealth) GetConnectionHealth() outbound.MessagePublisherHealthStatus {
	return outbound.MessagePublisherHealthStatus{Connected: s.connected, LastError: s.lastError}
}

func (s stubPublisherHealth) GetMessageMetrics() outbound.MessagePublisherMetrics {
	return outbound.MessagePublisherMetrics{}
}

type stubPinger bool

func (s stubPinger) IsHealthy(context.Context) bool { return bool(s) }

func TestHealthHandler_GetHealth(t *testing.T) {
	t.Run("should report healthy when all dependencies are up", func(t *testing.T) {
		handler := NewHealthHandler(stubPinger(true), stubPublisherHealth{connected: true})

		rec := httptest.NewRecorder()
		handler.GetHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"status":"healthy"`)
	})

	t.Run("should report 503 when the queue is down", func(t *testing.T) {
		handler := NewHealthHandler(stubPinger(true), stubPublisherHealth{lastError: "connection refused"})

		rec := httptest.NewRecorder()
		handler.GetHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Contains(t, rec.Body.String(), "connection refused")
	})

	t.Run("should report 503 when the database is down", func(t *testing.T) {
		handler := NewHealthHandler(stubPinger(false), stubPublisherHealth{connected: true})

		rec := httptest.NewRecorder()
		handler.GetHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestNewServer(t *testing.T) {
	catalogHandler, err := NewCatalogHandler(&MockIngestionService{})
	require.NoError(t, err)
	healthHandler := NewHealthHandler(nil, nil)

	validConfig := config.APIConfig{
		Host:         "127.0.0.1",
		Port:         0,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	t.Run("should build server with valid handlers", func(t *testing.T) {
		cfg := validConfig
		cfg.Port = 8080
		server, err := NewServer(cfg, catalogHandler, healthHandler)
		require.NoError(t, err)
		assert.NotNil(t, server)
		assert.Empty(t, server.Addr())
	})

	t.Run("should reject nil handlers", func(t *testing.T) {
		cfg := validConfig
		cfg.Port = 8080
		_, err := NewServer(cfg, nil, healthHandler)
		require.Error(t, err)
		_, err = NewServer(cfg, catalogHandler, nil)
		require.Error(t, err)
	})

	t.Run("should reject invalid port", func(t *testing.T) {
		cfg := validConfig
		cfg.Port = -1
		_, err := NewServer(cfg, catalogHandler, healthHandler)
		require.Error(t, err)
	})
}
