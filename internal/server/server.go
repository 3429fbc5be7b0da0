// Package server exposes the hand landmark detector over HTTP and WebSocket.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/ayusman/handmark/internal/capture"
	"github.com/ayusman/handmark/internal/engine"
	"github.com/ayusman/handmark/internal/log"
	"github.com/ayusman/handmark/internal/server/api"
	"github.com/ayusman/handmark/internal/session"
	"github.com/ayusman/handmark/internal/store"
)

// Backend is the application as seen by the server.
type Backend interface {
	api.Detector
	State() session.State
	Delegate() engine.Delegate
}

// Config holds the server configuration.
type Config struct {
	StaticDir string
	Backend   Backend
	Store     *store.Store
	Hub       *Hub
	Preview   *capture.Preview
}

// Server represents the HTTP server.
type Server struct {
	config Config
	mux    *http.ServeMux
	start  time.Time
	http   *http.Server
}

// New creates a new Server with the given configuration. Routes are only
// registered for the parts that are configured.
func New(config Config) *Server {
	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		start:  time.Now(),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)

	if s.config.Backend != nil {
		s.mux.Handle("/api/detect", api.NewDetectHandler(s.config.Backend))
		s.mux.Handle("/api/mode", api.NewModeHandler(s.config.Backend, s.config.Store))
		s.mux.Handle("/api/assets", api.NewAssetsHandler(s.config.Backend))
	}

	if s.config.Store != nil {
		detections := api.NewDetectionsHandler(s.config.Store)
		s.mux.Handle("/api/detections", detections)
		s.mux.Handle("/api/detections/", detections)
	}

	if s.config.Hub != nil {
		s.mux.Handle("/api/landmarks", s.config.Hub)
	}

	if s.config.Preview != nil {
		s.mux.Handle("/api/stream", NewStreamHandler(s.config.Preview))
	}

	// Serve static files if StaticDir is configured
	if s.config.StaticDir != "" {
		fs := http.FileServer(http.Dir(s.config.StaticDir))
		s.mux.Handle("/", fs)
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.start).String(),
	}

	if b := s.config.Backend; b != nil {
		response["session"] = b.State().String()
		response["delegate"] = string(b.Delegate())
		response["bypass"] = b.Mode()
	}
	if s.config.Hub != nil {
		response["clients"] = s.config.Hub.Clients()
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
}

// ListenAndServe serves on addr until ctx is done, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server listening", "addr", addr)
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if s.config.Hub != nil {
		s.config.Hub.Close()
	}
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
