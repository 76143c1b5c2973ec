package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// HealthServer exposes liveness, readiness and statistics over HTTP.
//
// Endpoints:
//
//	/health     200 while the process is alive
//	/readiness  200 while the pipeline runs, 503 otherwise
//	/stats      the current Report as JSON
type HealthServer struct {
	collect Collector
	started time.Time
	server  *http.Server
}

// NewHealthServer returns a server for addr (e.g. ":8080").
func NewHealthServer(addr string, collect Collector) *HealthServer {
	h := &HealthServer{collect: collect, started: time.Now()}

	h.server = &http.Server{
		Addr:         addr,
		Handler:      h.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return h
}

// Handler returns the endpoint mux.
func (h *HealthServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", h.liveness)
	mux.HandleFunc("/readiness", h.readiness)
	mux.HandleFunc("/stats", h.stats)
	return mux
}

// Start listens on the configured address and serves in the background.
// It returns once the listener is bound.
func (h *HealthServer) Start() error {
	ln, err := net.Listen("tcp", h.server.Addr)
	if err != nil {
		return err
	}

	slog.Info("telemetry: starting health server",
		"addr", ln.Addr().String(),
		"endpoints", []string{"/health", "/readiness", "/stats"},
	)

	go func() {
		if err := h.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("telemetry: health server failed", "error", err)
		}
	}()
	return nil
}

// Shutdown stops the server gracefully.
func (h *HealthServer) Shutdown(ctx context.Context) error {
	return h.server.Shutdown(ctx)
}

func (h *HealthServer) liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "alive",
		"uptime": int64(time.Since(h.started).Seconds()),
	})
}

func (h *HealthServer) readiness(w http.ResponseWriter, r *http.Request) {
	report := h.collect()

	status, code := "ready", http.StatusOK
	switch {
	case !report.Running:
		status, code = "not_running", http.StatusServiceUnavailable
	case !report.Source.IsConnected:
		status = "degraded"
	}

	writeJSON(w, code, map[string]any{
		"status":           status,
		"source_connected": report.Source.IsConnected,
	})
}

func (h *HealthServer) stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.collect())
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("telemetry: failed to write response", "error", err)
	}
}
