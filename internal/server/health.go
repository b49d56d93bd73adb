package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/boblangley/silverbullet-notesync/internal/metrics"
)

// Pinger is a dependency whose health can be probed.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthServer provides HTTP health check endpoints for container probes
// and the Prometheus scrape endpoint.
type HealthServer struct {
	port    int
	mcpPort int
	graph   Pinger
	metrics *metrics.Collector
	server  *http.Server
	logger  *slog.Logger
}

// HealthConfig holds configuration for the health check server. Graph and
// Metrics are optional.
type HealthConfig struct {
	Port    int
	MCPPort int
	Graph   Pinger
	Metrics *metrics.Collector
	Logger  *slog.Logger
}

// NewHealthServer creates a new health check server.
func NewHealthServer(cfg HealthConfig) *HealthServer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &HealthServer{
		port:    cfg.Port,
		mcpPort: cfg.MCPPort,
		graph:   cfg.Graph,
		metrics: cfg.Metrics,
		logger:  logger,
	}
}

// Handler returns the health routes.
func (h *HealthServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", h.handleHealth)
	mux.HandleFunc("/health", h.handleHealth)
	mux.HandleFunc("/health/mcp", h.handleMCPHealth)
	mux.HandleFunc("/health/graph", h.handleGraphHealth)
	mux.HandleFunc("/ready", h.handleReady)
	mux.HandleFunc("/live", h.handleLive)
	if h.metrics != nil {
		mux.Handle("/metrics", h.metrics.Handler())
	}
	return mux
}

// Start begins serving health check requests.
func (h *HealthServer) Start() error {
	h.server = &http.Server{
		Addr:         net.JoinHostPort("0.0.0.0", strconv.Itoa(h.port)),
		Handler:      h.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	h.logger.Info("Health check server starting", "port", h.port)
	return h.server.ListenAndServe()
}

// Stop gracefully shuts down the health check server.
func (h *HealthServer) Stop(ctx context.Context) error {
	if h.server != nil {
		return h.server.Shutdown(ctx)
	}
	return nil
}

// handleHealth returns combined health status of all services.
func (h *HealthServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	mcpOK := h.checkMCP()
	graphOK := h.checkGraph(r.Context())
	allOK := mcpOK && graphOK

	status := map[string]interface{}{
		"status": statusString(allOK),
		"services": map[string]string{
			"mcp":   upDownString(mcpOK),
			"graph": upDownString(graphOK),
		},
	}

	h.sendJSON(w, status, statusCode(allOK))
}

// handleMCPHealth returns health status of MCP service only.
func (h *HealthServer) handleMCPHealth(w http.ResponseWriter, r *http.Request) {
	ok := h.checkMCP()
	h.sendJSON(w, map[string]string{"status": upDownString(ok)}, statusCode(ok))
}

// handleGraphHealth returns health status of the graph database only.
func (h *HealthServer) handleGraphHealth(w http.ResponseWriter, r *http.Request) {
	ok := h.checkGraph(r.Context())
	h.sendJSON(w, map[string]string{"status": upDownString(ok)}, statusCode(ok))
}

// handleReady implements Kubernetes-style readiness probe.
func (h *HealthServer) handleReady(w http.ResponseWriter, r *http.Request) {
	allOK := h.checkMCP() && h.checkGraph(r.Context())
	h.sendJSON(w, map[string]bool{"ready": allOK}, statusCode(allOK))
}

// handleLive implements Kubernetes-style liveness probe.
func (h *HealthServer) handleLive(w http.ResponseWriter, r *http.Request) {
	h.sendJSON(w, map[string]bool{"alive": true}, http.StatusOK)
}

// checkMCP verifies MCP server is healthy by checking if port is open.
func (h *HealthServer) checkMCP() bool {
	addr := net.JoinHostPort("localhost", strconv.Itoa(h.mcpPort))
	conn, err := net.DialTimeout("tcp", addr, time.Second)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// checkGraph pings the graph database. Without one configured it is up.
func (h *HealthServer) checkGraph(ctx context.Context) bool {
	if h.graph == nil {
		return true
	}
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	if err := h.graph.Ping(ctx); err != nil {
		h.logger.Warn("graph health check failed", "error", err)
		return false
	}
	return true
}

// sendJSON writes a JSON response with the given status code.
func (h *HealthServer) sendJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode health response", "error", err)
	}
}

// Helper functions

func statusString(ok bool) string {
	if ok {
		return "healthy"
	}
	return "unhealthy"
}

func upDownString(ok bool) string {
	if ok {
		return "up"
	}
	return "down"
}

func statusCode(ok bool) int {
	if ok {
		return http.StatusOK
	}
	return http.StatusServiceUnavailable
}
