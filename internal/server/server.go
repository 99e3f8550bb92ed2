// Package server exposes health, circuit and metrics endpoints over HTTP.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vietddude/medlingo/internal/core/domain"
	"github.com/vietddude/medlingo/internal/infra/channel"
	"github.com/vietddude/medlingo/internal/resilience/breaker"
	"github.com/vietddude/medlingo/internal/resilience/healthmon"
)

// HealthSource reports aggregated dependency health.
type HealthSource interface {
	SystemHealth() healthmon.SystemHealth
}

// Circuits lists and resets breakers.
type Circuits interface {
	Snapshots() []breaker.Snapshot
	Snapshot(dep domain.Dependency) (breaker.Snapshot, bool)
	Reset(dep domain.Dependency) error
}

// ChannelSource reports duplex channel state.
type ChannelSource interface {
	Status() channel.Status
	ReconnectAttempts() int
	PendingRequests() int
	QueueLength() int
}

// Server provides HTTP endpoints for health monitoring and operations.
type Server struct {
	health   HealthSource
	circuits Circuits
	channel  ChannelSource
	server   *http.Server
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status      healthmon.Status `json:"status"`
	HealthScore float64          `json:"healthScore"`
}

// ChannelReport is the channel section of GET /health/detailed.
type ChannelReport struct {
	Status            channel.Status `json:"status"`
	ReconnectAttempts int            `json:"reconnectAttempts"`
	PendingRequests   int            `json:"pendingRequests"`
	QueuedMessages    int            `json:"queuedMessages"`
}

// DetailedResponse is the body of GET /health/detailed.
type DetailedResponse struct {
	healthmon.SystemHealth
	Circuits []breaker.Snapshot `json:"circuits"`
	Channel  *ChannelReport     `json:"channel,omitempty"`
}

// NewServer creates a new server. ch may be nil when no channel is configured.
func NewServer(health HealthSource, circuits Circuits, ch ChannelSource, port int) *Server {
	s := &Server{
		health:   health,
		circuits: circuits,
		channel:  ch,
	}
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the routing mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /health/detailed", s.handleDetailed)
	mux.HandleFunc("GET /circuits", s.handleCircuits)
	mux.HandleFunc("POST /circuits/{dependency}/reset", s.handleReset)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	sh := s.health.SystemHealth()

	code := http.StatusOK
	if sh.OverallStatus == healthmon.StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, HealthResponse{Status: sh.OverallStatus, HealthScore: sh.HealthScore})
}

func (s *Server) handleDetailed(w http.ResponseWriter, r *http.Request) {
	resp := DetailedResponse{
		SystemHealth: s.health.SystemHealth(),
		Circuits:     s.circuits.Snapshots(),
	}
	if s.channel != nil {
		resp.Channel = &ChannelReport{
			Status:            s.channel.Status(),
			ReconnectAttempts: s.channel.ReconnectAttempts(),
			PendingRequests:   s.channel.PendingRequests(),
			QueuedMessages:    s.channel.QueueLength(),
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCircuits(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.circuits.Snapshots())
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	dep := domain.Dependency(r.PathValue("dependency"))
	if err := s.circuits.Reset(dep); err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	slog.Info("Circuit reset by operator", "dependency", dep, "remote", r.RemoteAddr)

	snap, _ := s.circuits.Snapshot(dep)
	writeJSON(w, http.StatusOK, snap)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("Failed to write response", "error", err)
	}
}
