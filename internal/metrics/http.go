package metrics

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/girste/blueteam/internal/util"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// HTTPHandler provides HTTP endpoints for metrics and health
type HTTPHandler struct {
	recorder  *Recorder
	startTime time.Time
}

// NewHTTPHandler creates a new HTTP handler for metrics
func NewHTTPHandler(recorder *Recorder) *HTTPHandler {
	return &HTTPHandler{
		recorder:  recorder,
		startTime: time.Now(),
	}
}

// HandleHealth returns health status (200 OK if healthy)
func (h *HTTPHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status": "healthy",
		"uptime": time.Since(h.startTime).Seconds(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(health)
}

// Mux routes /health and /metrics.
func (h *HTTPHandler) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", h.HandleHealth)
	mux.Handle("/metrics", promhttp.HandlerFor(h.recorder.Registry(), promhttp.HandlerOpts{}))
	return mux
}

// StartServer starts the HTTP server for metrics (non-blocking)
func StartServer(addr string, recorder *Recorder) *http.Server {
	server := &http.Server{
		Addr:         addr,
		Handler:      NewHTTPHandler(recorder).Mux(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			util.GetLogger().Error("metrics server stopped", zap.String("addr", addr), zap.Error(err))
		}
	}()

	return server
}
