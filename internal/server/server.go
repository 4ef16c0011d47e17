package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
)

// Server is the Sheria HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
}

// Config holds all dependencies and settings for creating a Server.
type Config struct {
	Handlers *Handlers
	Logger   *slog.Logger

	// Optional: MCP transport mounted at /mcp when set.
	MCPServer *mcpserver.MCPServer

	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// New creates an HTTP server with all routes configured.
func New(cfg Config) *Server {
	h := cfg.Handlers

	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/query", h.HandleQuery)
	mux.HandleFunc("GET /v1/models/status", h.HandleModelsStatus)
	mux.HandleFunc("POST /v1/models/{model_id}/reload", h.HandleModelReload)
	mux.HandleFunc("POST /v1/models/optimize", h.HandleOptimize)
	mux.HandleFunc("GET /health", h.HandleHealth)

	if cfg.MCPServer != nil {
		mcpHTTP := mcpserver.NewStreamableHTTPServer(cfg.MCPServer)
		mux.Handle("/mcp", mcpHTTP)
	}

	// Middleware chain (outermost executes first):
	// request ID → tracing → logging → recovery → handler.
	var handler http.Handler = mux
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = tracingMiddleware(handler)
	handler = requestIDMiddleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		handler: handler,
		logger:  cfg.Logger,
	}
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start begins serving. Blocks until the server stops.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
