package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitewatch/internal/metrics"
	"github.com/JakeFAU/sitewatch/internal/monitor"
)

// Info describes the service on the root route.
type Info struct {
	Service     string
	Description string
	Version     string
	Sites       int
	Interval    time.Duration
}

// Server wires HTTP handlers to the report history.
type Server struct {
	router  chi.Router
	reports monitor.ReportStore
	clock   monitor.Clock
	info    Info
	started time.Time
	logger  *zap.Logger
}

// NewServer constructs a Server with middleware and routes. reg receives the
// HTTP metrics and backs /metrics; a nil reg uses the default registry.
func NewServer(reports monitor.ReportStore, clock monitor.Clock, info Info, reg *prometheus.Registry, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var (
		registerer prometheus.Registerer = prometheus.DefaultRegisterer
		gatherer   prometheus.Gatherer   = prometheus.DefaultGatherer
	)
	if reg != nil {
		registerer, gatherer = reg, reg
	}
	httpMetrics, err := metrics.NewHTTP(registerer)
	if err != nil {
		return nil, err
	}
	if info.Service == "" {
		info.Service = "sitewatch"
	}

	s := &Server{
		reports: reports,
		clock:   clock,
		info:    info,
		started: clock.Now(),
		logger:  logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(httpMetrics.Middleware)
	r.Use(timeoutMiddleware(30 * time.Second))

	r.Get("/", s.root)
	r.Get("/health", s.health)
	r.Get("/status", s.status)
	r.Method(http.MethodGet, "/metrics", metrics.Handler(gatherer))

	s.router = r
	return s, nil
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

type healthResponse struct {
	Status        string    `json:"status"`
	Timestamp     time.Time `json:"timestamp"`
	Service       string    `json:"service"`
	UptimeSeconds float64   `json:"uptime_seconds"`
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	now := s.clock.Now().UTC()
	writeJSON(w, http.StatusOK, healthResponse{
		Status:        "healthy",
		Timestamp:     now,
		Service:       s.info.Service,
		UptimeSeconds: now.Sub(s.started).Seconds(),
	})
}

type statusResponse struct {
	Status       string               `json:"status"`
	LatestReport *monitor.CycleReport `json:"latest_report,omitempty"`
	LastUpdate   string               `json:"last_update,omitempty"`
	Message      string               `json:"message,omitempty"`
	Error        string               `json:"error,omitempty"`
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	rep, ref, err := s.reports.Latest(r.Context())
	switch {
	case errors.Is(err, monitor.ErrNotFound):
		writeJSON(w, http.StatusOK, statusResponse{Status: "no-reports", Message: "No reports found yet"})
	case err != nil:
		s.logger.Error("latest report lookup failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, statusResponse{Status: "error", Error: err.Error()})
	default:
		writeJSON(w, http.StatusOK, statusResponse{Status: "active", LatestReport: &rep, LastUpdate: ref})
	}
}

type rootResponse struct {
	Service     string            `json:"service"`
	Description string            `json:"description,omitempty"`
	Version     string            `json:"version,omitempty"`
	Sites       int               `json:"sites"`
	Interval    string            `json:"interval,omitempty"`
	Endpoints   map[string]string `json:"endpoints"`
}

func (s *Server) root(w http.ResponseWriter, _ *http.Request) {
	resp := rootResponse{
		Service:     s.info.Service,
		Description: s.info.Description,
		Version:     s.info.Version,
		Sites:       s.info.Sites,
		Endpoints: map[string]string{
			"health":  "/health",
			"status":  "/status",
			"metrics": "/metrics",
		},
	}
	if s.info.Interval > 0 {
		resp.Interval = s.info.Interval.String()
	}
	writeJSON(w, http.StatusOK, resp)
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Debug("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.String("request_id", w.Header().Get("X-Request-ID")),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("panic", rec), zap.String("path", r.URL.Path))
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"status": "error", "error": msg})
}
