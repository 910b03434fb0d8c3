// Package web serves the JSON API, Prometheus metrics and a websocket event
// stream for the light manager.
package web

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"

	"iluminize-go-home/internal/automation"
	"iluminize-go-home/internal/light"
)

// ServerOption configures the web server.
type ServerOption func(*Server)

// WithAPIKey enables API key authentication.
func WithAPIKey(key string) ServerOption {
	return func(s *Server) {
		s.apiKey = key
	}
}

// WithAllowedOrigins sets allowed origin patterns for CORS and WebSocket.
func WithAllowedOrigins(origins []string) ServerOption {
	return func(s *Server) {
		s.allowedOrigins = origins
	}
}

// WithAutomation sets the automation engine and script manager.
func WithAutomation(engine *automation.Engine, mgr *automation.Manager) ServerOption {
	return func(s *Server) {
		s.autoEngine = engine
		s.scriptMgr = mgr
	}
}

// WithMetricsHandler serves h on /metrics.
func WithMetricsHandler(h http.Handler) ServerOption {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithVersion sets the application version string.
func WithVersion(v string) ServerOption {
	return func(s *Server) {
		s.version = v
	}
}

// Server is the HTTP server.
type Server struct {
	lights         *light.Manager
	wsHub          *WSHub
	logger         *slog.Logger
	mux            *http.ServeMux
	handler        http.Handler
	apiKey         string
	allowedOrigins []string
	metrics        http.Handler
	scriptMgr      *automation.Manager
	autoEngine     *automation.Engine
	version        string
	wg             sync.WaitGroup
	unsubEvents    func()
}

// NewServer creates a web server and starts its websocket hub.
func NewServer(lights *light.Manager, logger *slog.Logger, opts ...ServerOption) *Server {
	s := &Server{
		lights: lights,
		logger: logger.With("component", "web"),
		mux:    http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.wsHub = NewWSHub(s.logger)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.wsHub.Run()
	}()

	s.unsubEvents = lights.Bus().OnAll(func(event light.Event) {
		s.wsHub.Broadcast(event)
	})

	s.routes()
	s.handler = s.checkOrigin(s.requireAPIKey(s.mux))
	return s
}

// Stop shuts down the WebSocket hub and waits for its goroutine.
func (s *Server) Stop() {
	if s.unsubEvents != nil {
		s.unsubEvents()
	}
	s.wsHub.Stop()
	s.wg.Wait()
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /api/entries", s.handleAPIListEntries)
	s.mux.HandleFunc("POST /api/entries", s.handleAPICreateEntry)
	s.mux.HandleFunc("GET /api/entries/{id}", s.handleAPIGetEntry)
	s.mux.HandleFunc("PATCH /api/entries/{id}/options", s.handleAPIUpdateOptions)
	s.mux.HandleFunc("DELETE /api/entries/{id}", s.handleAPIDeleteEntry)

	s.mux.HandleFunc("GET /api/lights", s.handleAPIListLights)
	s.mux.HandleFunc("GET /api/lights/{id}", s.handleAPIGetLight)
	s.mux.HandleFunc("POST /api/lights/{id}/turn_on", s.handleAPITurnOn)
	s.mux.HandleFunc("POST /api/lights/{id}/turn_off", s.handleAPITurnOff)
	s.mux.HandleFunc("POST /api/lights/{id}/toggle", s.handleAPIToggle)

	s.mux.HandleFunc("POST /api/frames/decode", s.handleAPIDecodeFrame)
	s.mux.HandleFunc("GET /api/version", s.handleAPIVersion)

	s.mux.HandleFunc("GET /api/automations", s.handleAPIListAutomations)
	s.mux.HandleFunc("GET /api/automations/{id}", s.handleAPIGetAutomation)
	s.mux.HandleFunc("POST /api/automations", s.handleAPICreateAutomation)
	s.mux.HandleFunc("PUT /api/automations/{id}", s.handleAPIUpdateAutomation)
	s.mux.HandleFunc("DELETE /api/automations/{id}", s.handleAPIDeleteAutomation)
	s.mux.HandleFunc("POST /api/automations/{id}/toggle", s.handleAPIToggleAutomation)
	s.mux.HandleFunc("POST /api/automations/{id}/run", s.handleAPIRunAutomation)

	if s.metrics != nil {
		s.mux.Handle("GET /metrics", s.metrics)
	}
	s.mux.HandleFunc("GET /ws", s.handleWS)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// checkOrigin rejects cross-origin preflights and mutating requests from
// origins outside the allowlist. It is a no-op without an allowlist.
func (s *Server) checkOrigin(next http.Handler) http.Handler {
	if len(s.allowedOrigins) == 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" || r.Method == http.MethodGet {
			next.ServeHTTP(w, r)
			return
		}
		if !slices.Contains(s.allowedOrigins, "*") && !slices.Contains(s.allowedOrigins, origin) {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", origin)
		if r.Method == http.MethodOptions {
			h.Set("Access-Control-Allow-Methods", "GET, POST, PATCH, PUT, DELETE, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type, X-API-Key")
			h.Set("Access-Control-Max-Age", "3600")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireAPIKey guards /api/. WebSocket upgrades and scrapes cannot carry
// the header.
func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	if s.apiKey == "" {
		return next
	}
	want := []byte(s.apiKey)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") &&
			subtle.ConstantTimeCompare([]byte(r.Header.Get("X-API-Key")), want) != 1 {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
