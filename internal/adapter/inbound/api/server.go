package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"

	"embeddra/internal/application/common/slogger"
	"embeddra/internal/config"
)

// Server is the admin HTTP API server.
type Server struct {
	config     config.APIConfig
	httpServer *http.Server
	listener   net.Listener

	mu        sync.Mutex
	isRunning bool
}

// NewServer builds the server with routes and the standard middleware chain.
func NewServer(cfg config.APIConfig, catalogHandler *CatalogHandler, healthHandler *HealthHandler) (*Server, error) {
	if catalogHandler == nil {
		return nil, errors.New("catalog handler cannot be nil")
	}
	if healthHandler == nil {
		return nil, errors.New("health handler cannot be nil")
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid API port: %d", cfg.Port)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /catalogs", catalogHandler.UploadCatalog)
	mux.HandleFunc("GET /jobs/{id}", catalogHandler.GetJob)
	mux.HandleFunc("GET /tenants/{tenant_id}/jobs", catalogHandler.ListJobs)
	mux.HandleFunc("GET /health", healthHandler.GetHealth)

	handler := Chain(mux,
		NewRecoveryMiddleware(),
		NewCorrelationMiddleware(),
		NewLoggingMiddleware(),
		NewBodyLimitMiddleware(cfg.MaxBodyBytes),
	)

	server := &Server{
		config: cfg,
		httpServer: &http.Server{
			Addr:         net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
	}
	return server, nil
}

// Start begins serving. It returns once the listener is bound; request
// serving continues on a background goroutine until Shutdown.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return errors.New("server is already running")
	}

	listener, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", s.httpServer.Addr, err)
	}
	s.listener = listener
	s.isRunning = true

	go func() {
		if serveErr := s.httpServer.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			slogger.ErrorNoCtx("HTTP server stopped unexpectedly", slogger.Fields{
				"error": serveErr.Error(),
			})
		}
	}()

	slogger.Info(ctx, "Admin API listening", slogger.Fields{
		"addr": listener.Addr().String(),
	})
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests up
// to the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isRunning {
		return nil
	}
	s.isRunning = false
	return s.httpServer.Shutdown(ctx)
}

// Addr returns the bound address, empty before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}
