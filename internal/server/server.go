// Package server runs the live preview server: it renders templates from a
// loader with their model files and tells open pages to reload when the
// files change.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/conneroisu/tdi/internal/config"
	"github.com/conneroisu/tdi/internal/logging"
	"github.com/conneroisu/tdi/internal/version"
	"github.com/conneroisu/tdi/pkg/loader"
)

// ReloadPath is the websocket endpoint pages connect to.
const ReloadPath = "/_tdi/ws"

// PreviewServer serves templates with live reload capability
type PreviewServer struct {
	config       *config.Config
	loader       *loader.Loader
	logger       logging.Logger
	hub          *Hub
	httpServer   *http.Server
	listener     net.Listener
	serverMutex  sync.RWMutex // Protects httpServer and listener
	shutdownOnce sync.Once
	started      time.Time
}

// UpdateMessage represents a message sent to the browser
type UpdateMessage struct {
	Type  string   `json:"type"`
	Names []string `json:"names,omitempty"`
}

// New creates a new preview server
func New(cfg *config.Config, ldr *loader.Loader, logger logging.Logger) *PreviewServer {
	if logger == nil {
		logger = logging.Nop()
	}
	logger = logger.WithComponent("server")
	return &PreviewServer{
		config:  cfg,
		loader:  ldr,
		logger:  logger,
		hub:     NewHub(logger),
		started: time.Now(),
	}
}

// Handler returns the server's routes.
func (s *PreviewServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+ReloadPath, s.handleWebSocket)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /t/{name...}", s.handleTemplate)
	mux.HandleFunc("GET /{$}", s.handleIndex)
	return s.logRequests(mux)
}

// Listen binds the configured address. Port 0 picks a free port.
func (s *PreviewServer) Listen() (net.Addr, error) {
	addr := net.JoinHostPort(s.config.Server.Host, fmt.Sprint(s.config.Server.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", addr, err)
	}
	s.serverMutex.Lock()
	s.listener = ln
	s.serverMutex.Unlock()
	return ln.Addr(), nil
}

// Start serves until ctx is done or Shutdown is called. It binds the
// address first when Listen was not called.
func (s *PreviewServer) Start(ctx context.Context) error {
	s.serverMutex.RLock()
	ln := s.listener
	s.serverMutex.RUnlock()
	if ln == nil {
		if _, err := s.Listen(); err != nil {
			return err
		}
		s.serverMutex.RLock()
		ln = s.listener
		s.serverMutex.RUnlock()
	}

	go s.hub.Run(ctx)

	s.loader.OnReload(func(names []string) {
		s.broadcastMessage(UpdateMessage{Type: "reload", Names: names})
	})
	if s.config.Loader.AutoReload {
		if err := s.loader.Watch(ctx); err != nil {
			return err
		}
	}

	server := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	s.serverMutex.Lock()
	s.httpServer = server
	s.serverMutex.Unlock()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Shutdown(shutdownCtx)
	}()

	s.logger.Info(ctx, "preview server listening", "url", "http://"+ln.Addr().String(), "root", s.loader.Root())
	if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

func (s *PreviewServer) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug(r.Context(), "request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

func (s *PreviewServer) broadcastMessage(msg UpdateMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		s.logger.Warn(context.Background(), err, "encoding update message")
		data = []byte(`{"type":"reload"}`)
	}
	s.hub.Broadcast(data)
}

// Shutdown gracefully shuts down the server and cleans up resources
func (s *PreviewServer) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.logger.Info(ctx, "shutting down preview server")

		s.hub.Close()

		if err := s.loader.Close(); err != nil {
			s.logger.Warn(ctx, err, "closing loader")
		}

		s.serverMutex.RLock()
		server := s.httpServer
		ln := s.listener
		s.serverMutex.RUnlock()

		if server != nil {
			shutdownErr = server.Shutdown(ctx)
		} else if ln != nil {
			shutdownErr = ln.Close()
		}
	})

	return shutdownErr
}

// handleHealth returns the server health status for health checks
func (s *PreviewServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status":  "healthy",
		"version": version.GetShortVersion(),
		"uptime":  time.Since(s.started).Round(time.Second).String(),
		"clients": s.hub.Len(),
		"root":    s.loader.Root(),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(health); err != nil {
		s.logger.Warn(r.Context(), err, "encoding health response")
	}
}
