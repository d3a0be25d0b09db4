package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/wricardo/mcp-training/aptracker/game/connection"
	"github.com/wricardo/mcp-training/aptracker/game/tracker"
	"github.com/wricardo/mcp-training/aptracker/transport/websocket"
)

// maxRequestBody bounds POST bodies.
const maxRequestBody = 1 << 20

// Server represents the REST API server
type Server struct {
	service  tracker.Service
	hub      *websocket.Hub
	router   *mux.Router
	logger   *zap.Logger
	gatherer prometheus.Gatherer
	mcp      http.Handler
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// WithGatherer serves the given registry on /metrics instead of the default
// one.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// WithMCPHandler mounts an MCP JSON-RPC handler on POST /mcp.
func WithMCPHandler(h http.Handler) Option {
	return func(s *Server) {
		s.mcp = h
	}
}

// NewServer creates a new API server
func NewServer(service tracker.Service, hub *websocket.Hub, opts ...Option) *Server {
	s := &Server{
		service:  service,
		hub:      hub,
		router:   mux.NewRouter(),
		logger:   zap.NewNop(),
		gatherer: prometheus.DefaultGatherer,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	// Full paths on the root router, so a method mismatch gets 405

	// Connection
	s.router.HandleFunc("/api/connection", s.handleGetConnection).Methods("GET")
	s.router.HandleFunc("/api/connection", s.handleConnect).Methods("POST")

	// Message history
	s.router.HandleFunc("/api/messages/counts", s.handleCounts).Methods("GET")
	s.router.HandleFunc("/api/messages", s.handleMessages).Methods("GET")

	// Operational endpoints
	s.router.HandleFunc("/healthz", s.handleHealth).Methods("GET")
	s.router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods("GET")

	// WebSocket
	if s.hub != nil {
		s.router.HandleFunc("/ws", s.hub.ServeWS)
	}

	// MCP over HTTP
	if s.mcp != nil {
		s.router.Handle("/mcp", s.mcp).Methods("POST")
	}
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Response helpers
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// Connection Handlers

func (s *Server) handleGetConnection(w http.ResponseWriter, r *http.Request) {
	status, err := s.service.Status(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, status)
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	// Missing fields fall back to the local defaults
	params := connection.DefaultParameters()

	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	err := s.service.Connect(r.Context(), params)
	switch {
	case err == nil:
	case errors.Is(err, connection.ErrInvalidParameters):
		respondError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, tracker.ErrNotReady):
		respondError(w, http.StatusServiceUnavailable, err.Error())
		return
	default:
		s.logger.Error("failed to queue connection request", zap.Error(err))
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	redacted := params.Redacted()
	respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"message":    "Connection requested",
		"parameters": redacted,
	})
}

// Message Handlers

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	// Parse query parameters
	opts := tracker.HistoryOptions{
		Page:  1,
		Limit: 20,
		Order: "desc",
	}

	query := r.URL.Query()
	if pageStr := query.Get("page"); pageStr != "" {
		if p, err := strconv.Atoi(pageStr); err == nil && p > 0 {
			opts.Page = p
		}
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			opts.Limit = l
		}
	}

	if order := query.Get("order"); order == "asc" || order == "desc" {
		opts.Order = order
	}

	opts.Cmd = query.Get("cmd")

	history, err := s.service.Messages(r.Context(), opts)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, history)
}

func (s *Server) handleCounts(w http.ResponseWriter, r *http.Request) {
	counts, err := s.service.Counts(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	total := 0
	for _, n := range counts {
		total += n
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"counts": counts,
		"total":  total,
	})
}

// Health check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status, err := s.service.Status(r.Context())
	if err != nil || !status.Ready {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "starting",
		})
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}
