// Package server exposes the execution engine over HTTP: a JSON API
// for submitting work and inspecting it, and a websocket stream of
// live engine events.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/seetharamtessell/opsexec/config"
	"github.com/seetharamtessell/opsexec/engine"
	"github.com/seetharamtessell/opsexec/logger"
)

// Server serves the HTTP API and websocket event stream for one
// orchestrator.
type Server struct {
	orch          *engine.Orchestrator
	hub           *Hub
	up            websocket.Upgrader
	httpServer    *http.Server
	observerToken int
}

// New wires a server over the orchestrator using the server section of
// the configuration.
func New(orch *engine.Orchestrator, cfg config.ServerConfig) *Server {
	s := &Server{
		orch: orch,
		hub:  NewHub(),
		up:   upgrader(cfg.AllowedOrigins),
	}
	s.observerToken = orch.Notifier().Register(s.hub)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", func(w http.ResponseWriter, r *http.Request) {
		s.hub.serveWS(s.up, w, r)
	})
	mux.HandleFunc("POST /api/execute", s.handleExecute)
	mux.HandleFunc("GET /api/executions", s.handleList)
	mux.HandleFunc("GET /api/executions/{id}", s.handleStatus)
	mux.HandleFunc("GET /api/executions/{id}/result", s.handleResult)
	mux.HandleFunc("GET /api/executions/{id}/logs", s.handleLogs)
	mux.HandleFunc("POST /api/executions/{id}/cancel", s.handleCancel)
	mux.HandleFunc("POST /api/plans", s.handleExecutePlan)
	mux.HandleFunc("GET /api/plans/{id}", s.handlePlanResult)
	mux.HandleFunc("POST /api/plans/{id}/cancel", s.handleCancelPlan)
	mux.HandleFunc("GET /api/system", s.handleSystem)
	mux.HandleFunc("GET /api/health", s.handleHealth)

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("127.0.0.1:%d", cfg.Port),
		Handler:           logRequests(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the route table for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start serves until the context is cancelled, then shuts down
// gracefully: the HTTP listener closes first, then the engine drains.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Infow("Server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	s.orch.Notifier().Unregister(s.observerToken)
	s.hub.closeAll()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warnw("HTTP shutdown incomplete", "error", err)
	}
	return s.orch.Shutdown(shutdownCtx)
}

// logRequests wraps the mux with one access log line per request.
func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Debugw("Request handled",
			"method", r.Method,
			"path", r.URL.Path,
			"duration_ms", time.Since(start).Milliseconds())
	})
}
