package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hazz-dev/portwatch/internal/config"
	"github.com/hazz-dev/portwatch/internal/storage"
)

// ServerStore defines the storage queries the server needs.
type ServerStore interface {
	All(ctx context.Context) ([]storage.FailureRecord, error)
	Get(ctx context.Context, ep config.Endpoint) (*storage.FailureRecord, error)
}

// Server holds the chi router and its dependencies.
type Server struct {
	store     ServerStore
	endpoints []config.Endpoint
	threshold int
	router    chi.Router
	logger    *slog.Logger
}

// New creates a new Server and registers all routes.
func New(store ServerStore, endpoints []config.Endpoint, threshold int, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		store:     store,
		endpoints: endpoints,
		threshold: threshold,
		router:    chi.NewRouter(),
		logger:    logger,
	}
	s.registerRoutes()
	return s
}

// Router returns the chi router (for mounting or testing).
func (s *Server) Router() chi.Router {
	return s.router
}

func (s *Server) registerRoutes() {
	r := s.router
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/api/health", s.handleHealth)
	r.Get("/api/endpoints", s.handleListEndpoints)
	r.Get("/api/endpoints/{host}/{port}", s.handleGetEndpoint)
}

// --- Response helpers ---

type envelope struct {
	Data  interface{} `json:"data"`
	Error string      `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(envelope{Data: data})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(envelope{Error: msg})
}

// --- Handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// Endpoint states reported by the API.
const (
	StateUp      = "up"
	StateFailing = "failing"
	StateDown    = "down"
)

type endpointDetail struct {
	Host                string     `json:"host"`
	Port                int        `json:"port"`
	State               string     `json:"state"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	FirstFailedAt       *time.Time `json:"first_failed_at"`
	LastFailedAt        *time.Time `json:"last_failed_at"`
}

func (s *Server) detail(ep config.Endpoint, rec *storage.FailureRecord) endpointDetail {
	d := endpointDetail{Host: ep.Host, Port: ep.Port, State: StateUp}
	if rec == nil {
		return d
	}
	d.ConsecutiveFailures = rec.ConsecutiveFailures
	first, last := rec.FirstFailedAt, rec.LastFailedAt
	d.FirstFailedAt = &first
	d.LastFailedAt = &last
	d.State = StateFailing
	if rec.ConsecutiveFailures >= s.threshold {
		d.State = StateDown
	}
	return d
}

func (s *Server) handleListEndpoints(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.All(r.Context())
	if err != nil {
		s.logger.Error("All", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	byEndpoint := make(map[config.Endpoint]storage.FailureRecord, len(records))
	for _, rec := range records {
		byEndpoint[rec.Endpoint] = rec
	}

	details := make([]endpointDetail, 0, len(s.endpoints))
	for _, ep := range s.endpoints {
		var rec *storage.FailureRecord
		if found, ok := byEndpoint[ep]; ok {
			rec = &found
		}
		details = append(details, s.detail(ep, rec))
	}

	writeJSON(w, http.StatusOK, details)
}

func (s *Server) handleGetEndpoint(w http.ResponseWriter, r *http.Request) {
	host := chi.URLParam(r, "host")
	port, err := strconv.Atoi(chi.URLParam(r, "port"))
	if err != nil || port < 1 || port > 65535 {
		writeError(w, http.StatusBadRequest, "invalid port")
		return
	}
	ep := config.Endpoint{Host: host, Port: port}

	if !s.configured(ep) {
		writeError(w, http.StatusNotFound, "endpoint not found")
		return
	}

	rec, err := s.store.Get(r.Context(), ep)
	if err != nil {
		s.logger.Error("Get", "endpoint", ep.String(), "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, s.detail(ep, rec))
}

func (s *Server) configured(ep config.Endpoint) bool {
	for _, e := range s.endpoints {
		if e == ep {
			return true
		}
	}
	return false
}

// --- Middleware ---

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"duration", time.Since(start),
		)
	})
}
