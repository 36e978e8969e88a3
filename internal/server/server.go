package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/user/weather-bot-go/internal/metrics"
	"github.com/user/weather-bot-go/internal/store"
)

// SchedulerStatus is the part of the scheduler the health check reports on
type SchedulerStatus interface {
	IsRunning() bool
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status      string `json:"status"`
	Store       string `json:"store"`
	Subscribers int    `json:"subscribers"`
	TickRunning bool   `json:"tick_running"`
	Uptime      string `json:"uptime"`
}

// Server handles HTTP requests for health checks and metrics
type Server struct {
	store     store.Store
	scheduler SchedulerStatus
	router    *http.ServeMux
	server    *http.Server
	startTime time.Time
}

// NewServer creates a new HTTP server instance.
// scheduler may be nil when scheduling is disabled.
func NewServer(store store.Store, scheduler SchedulerStatus) *Server {
	s := &Server{
		store:     store,
		scheduler: scheduler,
		router:    http.NewServeMux(),
		startTime: time.Now(),
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the HTTP routes
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth)
	s.router.Handle("/metrics", promhttp.Handler())
}

// Handler returns the router, used by tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins listening on the specified port
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Info().Int("port", port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	log.Info().Msg("Stopping HTTP server")
	return s.server.Shutdown(ctx)
}

// handleHealth reports store connectivity, the subscriber count and
// whether a scheduler tick is in flight
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	storeStatus := "healthy"
	if err := s.store.Ping(ctx); err != nil {
		storeStatus = fmt.Sprintf("unhealthy: %v", err)
	}

	subscribers := len(s.store.All(ctx))
	metrics.SetSubscribers(subscribers)

	status := "healthy"
	if storeStatus != "healthy" {
		status = "unhealthy"
	}

	response := HealthResponse{
		Status:      status,
		Store:       storeStatus,
		Subscribers: subscribers,
		TickRunning: s.scheduler != nil && s.scheduler.IsRunning(),
		Uptime:      time.Since(s.startTime).Round(time.Second).String(),
	}

	w.Header().Set("Content-Type", "application/json")
	if status != "healthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Error().Err(err).Msg("Failed to encode health response")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// GetUptime returns the server uptime
func (s *Server) GetUptime() time.Duration {
	return time.Since(s.startTime)
}
