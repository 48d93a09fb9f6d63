// Clawcord ops server.
// Serves health, status, Prometheus metrics and a websocket live event stream.
package api

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sipeed/clawcord/pkg/bus"
	"github.com/sipeed/clawcord/pkg/config"
	"github.com/sipeed/clawcord/pkg/logger"
	"github.com/sipeed/clawcord/pkg/metrics"
)

// GatewayStatus reports the live gateway connection state.
type GatewayStatus interface {
	Status() map[string]interface{}
}

// Server is the ops HTTP server.
type Server struct {
	config      *config.Config
	gateway     GatewayStatus
	messageBus  *bus.MessageBus
	metrics     *metrics.Metrics
	wsHub       *WSHub
	eventBridge *EventBridge
	startTime   time.Time
	server      *http.Server
}

// NewServer creates the ops server. When no API key is configured a random
// session key is generated and logged once.
func NewServer(cfg *config.Config, gw GatewayStatus, mb *bus.MessageBus, m *metrics.Metrics) *Server {
	if cfg.Ops.APIKey == "" {
		raw := make([]byte, 24)
		if _, err := rand.Read(raw); err == nil {
			cfg.Ops.APIKey = hex.EncodeToString(raw)
			logger.WarnCF("api", "Generated ops API key for this session; set OPS_API_KEY to make it permanent", map[string]interface{}{
				"api_key": cfg.Ops.APIKey,
			})
		}
	}

	s := &Server{
		config:     cfg,
		gateway:    gw,
		messageBus: mb,
		metrics:    m,
		startTime:  time.Now(),
	}
	s.wsHub = NewWSHub(s)
	s.eventBridge = NewEventBridge(mb, s.wsHub)
	return s
}

// Handler builds the router with middleware and auth applied.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)
	r.Use(func(next http.Handler) http.Handler {
		return authMiddleware(s.config.Ops.APIKey, next)
	})

	r.Get("/api/health", s.handleHealth)
	r.Get("/api/status", s.handleStatus)
	r.Get("/api/ws", s.wsHub.HandleWebSocket)
	if s.metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{}))
	}

	return r
}

// Start begins listening on the configured address. It returns once the
// listener goroutine is running.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.config.Ops.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	logger.InfoCF("api", "Ops server starting", map[string]interface{}{
		"addr": s.config.Ops.Addr,
	})

	s.startWorkers(ctx)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.ErrorCF("api", "Server error", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	return nil
}

func (s *Server) startWorkers(ctx context.Context) {
	go s.wsHub.Run(ctx)
	s.eventBridge.Run(ctx)
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// --- Middleware ---

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		logger.DebugCF("api", "Request served", map[string]interface{}{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      ww.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
			"request_id":  middleware.GetReqID(r.Context()),
		})
	})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" || isAllowedOrigin(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		} else {
			w.Header().Set("Access-Control-Allow-Origin", "http://localhost")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")
		w.Header().Set("Access-Control-Allow-Credentials", "true")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// isAllowedOrigin checks if the origin is a trusted localhost address.
func isAllowedOrigin(origin string) bool {
	for _, prefix := range []string{"http://localhost", "http://127.0.0.1", "https://localhost", "https://127.0.0.1"} {
		if strings.HasPrefix(origin, prefix) {
			return true
		}
	}
	return false
}

// --- Handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.statusSnapshot())
}

func (s *Server) statusSnapshot() map[string]interface{} {
	uptime := time.Since(s.startTime)

	status := map[string]interface{}{
		"uptime_seconds": int(uptime.Seconds()),
		"uptime_human":   formatDuration(uptime),
		"goroutines":     runtime.NumGoroutine(),
		"config":         s.config.Redacted(),
		"ws_clients":     s.wsHub.ClientCount(),
	}
	if s.gateway != nil {
		status["gateway"] = s.gateway.Status()
	}
	if s.messageBus != nil {
		status["bus"] = map[string]interface{}{
			"pending": s.messageBus.Pending(),
			"dropped": s.messageBus.Dropped(),
		}
	}
	return status
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func formatDuration(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}
