// Package api provides the read-only HTTP status API for the go-aims bridge.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/resident-x/go-aims/internal/config"
	"github.com/resident-x/go-aims/internal/homeassistant"
	"github.com/resident-x/go-aims/internal/service"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// StatusSource exposes the bridge state served by the API.
type StatusSource interface {
	LastResult() *service.RunResult
	Runs() int
	Catalog() *homeassistant.Catalog
	ValidationStatistics() map[string]interface{}
}

// MetricsProvider reports component counters, e.g. the poll scheduler.
type MetricsProvider interface {
	GetMetrics() map[string]interface{}
}

// Server represents the HTTP API server that provides monitoring functionality.
type Server struct {
	config    *config.Config
	server    *http.Server
	router    *mux.Router
	bridge    StatusSource
	scheduler MetricsProvider
	version   string
	logger    zerolog.Logger
	startTime time.Time
}

// NewServer creates a new HTTP API server.
func NewServer(cfg *config.Config, bridge StatusSource, version string) *Server {
	apiServer := &Server{
		config:    cfg,
		router:    mux.NewRouter(),
		bridge:    bridge,
		version:   version,
		logger:    log.With().Str("component", "api").Logger(),
		startTime: time.Now(),
	}

	apiServer.setupRoutes()
	return apiServer
}

// SetScheduler attaches the poll scheduler whose counters appear in /status.
func (s *Server) SetScheduler(m MetricsProvider) {
	s.scheduler = m
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures all API endpoint handlers.
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/status", s.handleStatus).Methods("GET")
	api.HandleFunc("/frame", s.handleFrame).Methods("GET")
	api.HandleFunc("/metrics", s.handleMetrics).Methods("GET")
	api.HandleFunc("/metrics/{key}", s.handleMetric).Methods("GET")
}

// Start begins listening for HTTP requests.
func (s *Server) Start(_ context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.API.Host, s.config.API.Port)

	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		s.logger.Info().
			Str("host", s.config.API.Host).
			Int("port", s.config.API.Port).
			Msg("Starting HTTP API server")

		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("HTTP server error")
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info().Msg("Stopping HTTP API server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if s.server != nil {
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("HTTP server shutdown error: %w", err)
		}
	}

	return nil
}

// handleStatus returns bridge status information.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	status := map[string]interface{}{
		"status":     "ok",
		"version":    s.version,
		"uptime":     time.Since(s.startTime).String(),
		"runs":       s.bridge.Runs(),
		"validation": s.bridge.ValidationStatistics(),
	}

	if last := s.bridge.LastResult(); last != nil {
		lastRun := map[string]interface{}{
			"run_id":     last.RunID,
			"state":      last.State.String(),
			"outcome":    last.Outcome,
			"started_at": last.StartedAt,
			"duration":   last.Duration.String(),
			"published":  last.Published(),
			"failures":   last.Failures(),
		}
		if last.Error != "" {
			lastRun["error"] = last.Error
		}
		status["last_run"] = lastRun
	}

	if s.scheduler != nil {
		status["scheduler"] = s.scheduler.GetMetrics()
	}

	s.writeJSON(w, status, http.StatusOK)
}

// handleFrame returns the most recently decoded frame.
func (s *Server) handleFrame(w http.ResponseWriter, _ *http.Request) {
	last := s.bridge.LastResult()
	if last == nil || last.Frame == nil {
		s.writeError(w, "No frame decoded yet", http.StatusNotFound)
		return
	}

	s.writeJSON(w, map[string]interface{}{
		"run_id":     last.RunID,
		"started_at": last.StartedAt,
		"raw":        last.Raw,
		"frame":      last.Frame,
		"flags":      last.Flags,
	}, http.StatusOK)
}

// handleMetrics lists the metric catalog with the latest published values.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	readings := s.latestReadings()
	metrics := s.bridge.Catalog().Metrics()

	result := make([]map[string]interface{}, 0, len(metrics))
	for _, m := range metrics {
		result = append(result, metricView(m, readings))
	}

	s.writeJSON(w, map[string]interface{}{
		"metrics": result,
		"count":   len(result),
	}, http.StatusOK)
}

// handleMetric returns a single metric by key or display name.
func (s *Server) handleMetric(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]

	m, found := s.bridge.Catalog().Lookup(key)
	if !found {
		s.writeError(w, "Metric not found", http.StatusNotFound)
		return
	}

	s.writeJSON(w, metricView(m, s.latestReadings()), http.StatusOK)
}

func (s *Server) latestReadings() map[string]service.Reading {
	readings := make(map[string]service.Reading)
	if last := s.bridge.LastResult(); last != nil {
		for _, r := range last.Readings {
			readings[r.Name] = r
		}
	}
	return readings
}

func metricView(m homeassistant.Metric, readings map[string]service.Reading) map[string]interface{} {
	view := map[string]interface{}{
		"name":      m.Name,
		"key":       m.Key(),
		"component": m.Component,
	}
	if m.DeviceClass != "" {
		view["device_class"] = m.DeviceClass
	}
	if m.Unit != "" {
		view["unit_of_measurement"] = m.Unit
	}
	if m.StateClass != "" {
		view["state_class"] = m.StateClass
	}
	if r, ok := readings[m.Name]; ok {
		view["state_topic"] = r.StateTopic
		view["value"] = r.Value
		view["payload"] = r.Payload
	}
	return view
}

// writeJSON writes a JSON response.
func (s *Server) writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError writes an error response.
func (s *Server) writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	errorResponse := map[string]string{"error": message}
	if err := json.NewEncoder(w).Encode(errorResponse); err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode error response")
	}
}
