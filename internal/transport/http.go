// Package transport provides the HTTP API and metrics endpoint.
package transport

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gateway-fm/txprobe/pkg/types"
)

// ProbeAPI is the read surface the handlers expose.
type ProbeAPI interface {
	Status() types.Status
	RecentWindows(limit int) ([]types.WindowSample, error)
	BlockObservations(limit int) ([]types.BlockObservation, error)
	Ready() bool
}

const maxQueryLimit = 1000

// Server handles HTTP requests for the probe.
type Server struct {
	api      ProbeAPI
	gatherer prometheus.Gatherer
	logger   *slog.Logger
	wsServer *WebSocketServer
}

// NewServer creates an HTTP server. The gatherer backs /metrics; pass nil to
// use the default registry.
func NewServer(api ProbeAPI, gatherer prometheus.Gatherer, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	wsServer := NewWebSocketServer(api, logger)
	wsServer.Start()

	return &Server{
		api:      api,
		gatherer: gatherer,
		logger:   logger,
		wsServer: wsServer,
	}
}

// Handler returns an http.Handler with all routes configured.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/v1/status", s.handleStatus)
	mux.HandleFunc("/v1/windows", s.handleWindows)
	mux.HandleFunc("/v1/blocks", s.handleBlocks)
	mux.HandleFunc("/v1/ws", s.wsServer.Handler())

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ready", s.handleReady)

	mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	return mux
}

// Stop closes the WebSocket broadcaster and its clients.
func (s *Server) Stop() {
	s.wsServer.Stop()
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, s.api.Status())
}

func (s *Server) handleWindows(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	samples, err := s.api.RecentWindows(parseLimit(r, 60))
	if err != nil {
		s.logger.Error("query windows", slog.String("error", err.Error()))
		s.writeError(w, http.StatusInternalServerError, "query windows")
		return
	}
	if samples == nil {
		samples = []types.WindowSample{}
	}
	s.writeJSON(w, http.StatusOK, samples)
}

func (s *Server) handleBlocks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	observations, err := s.api.BlockObservations(parseLimit(r, 60))
	if err != nil {
		s.logger.Error("query blocks", slog.String("error", err.Error()))
		s.writeError(w, http.StatusInternalServerError, "query blocks")
		return
	}
	if observations == nil {
		observations = []types.BlockObservation{}
	}
	s.writeJSON(w, http.StatusOK, observations)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if !s.api.Ready() {
		s.writeError(w, http.StatusServiceUnavailable, "not ready")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func parseLimit(r *http.Request, def int) int {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return def
	}
	limit, err := strconv.Atoi(v)
	if err != nil || limit <= 0 {
		return def
	}
	if limit > maxQueryLimit {
		return maxQueryLimit
	}
	return limit
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", slog.String("error", err.Error()))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
