package api

import (
	"net/http"
	"time"

	"embeddra/internal/application/common/logging"
	"embeddra/internal/application/common/slogger"

	"github.com/google/uuid"
)

// HeaderCorrelationID matches the header carried on queue messages so one
// correlation ID follows a catalog from upload to index.
const HeaderCorrelationID = "Correlation-Id"

// MiddlewareFunc wraps a handler.
type MiddlewareFunc func(http.Handler) http.Handler

// Chain applies middleware in declaration order: the first listed runs
// outermost.
func Chain(handler http.Handler, middleware ...MiddlewareFunc) http.Handler {
	for i := len(middleware) - 1; i >= 0; i-- {
		handler = middleware[i](handler)
	}
	return handler
}

// NewCorrelationMiddleware propagates the caller's correlation ID or assigns
// a fresh one, echoes it on the response, and stores it in the request
// context for logging and publishing.
func NewCorrelationMiddleware() MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			correlationID := r.Header.Get(HeaderCorrelationID)
			if correlationID == "" || len(correlationID) > 128 {
				correlationID = uuid.New().String()
			}

			ctx := logging.WithCorrelationID(r.Context(), correlationID)
			w.Header().Set(HeaderCorrelationID, correlationID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// statusRecorder captures the response status for request logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(status int) {
	rec.status = status
	rec.ResponseWriter.WriteHeader(status)
}

// NewLoggingMiddleware logs one line per request with method, path, status,
// and duration.
func NewLoggingMiddleware() MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			slogger.Info(r.Context(), "Handled request", slogger.Fields{
				"method":   r.Method,
				"path":     r.URL.Path,
				"status":   rec.status,
				"duration": time.Since(start).String(),
			})
		})
	}
}

// NewBodyLimitMiddleware caps request body size. Oversized uploads fail at
// read time inside the handler with a clear error instead of filling memory.
func NewBodyLimitMiddleware(maxBytes int64) MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil && maxBytes > 0 {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// NewRecoveryMiddleware converts handler panics into 500 responses so one
// bad request cannot take the server down.
func NewRecoveryMiddleware() MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if recovered := recover(); recovered != nil {
					slogger.Error(r.Context(), "Handler panicked", slogger.Fields{
						"panic": recovered,
						"path":  r.URL.Path,
					})
					writeError(w, r, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
