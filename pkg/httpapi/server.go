// Package httpapi exposes a small operator-facing HTTP surface alongside
// the stdio MCP channel: a health probe and a metrics snapshot, grounded on
// the teacher's gorilla/mux-based webui server but trimmed to admin/ops
// concerns rather than a user-facing UI.
package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/convomem/convomem/pkg/cache"
	convomemdb "github.com/convomem/convomem/pkg/db"
	"github.com/convomem/convomem/pkg/logger"
	"github.com/convomem/convomem/pkg/tools"
)

// Server serves /healthz and /metrics over plain HTTP.
type Server struct {
	router   *mux.Router
	registry *tools.Registry
	store    *convomemdb.Store
	cache    cache.Cache
}

// New builds a Server bound to the given registry, store, and cache.
func New(registry *tools.Registry, store *convomemdb.Store, c cache.Cache) *Server {
	s := &Server{router: mux.NewRouter(), registry: registry, store: store, cache: c}
	s.router.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	s.router.HandleFunc("/metrics", s.handleMetrics).Methods(http.MethodGet)
	s.router.Use(s.loggingMiddleware)
	return s
}

// ListenAndServe starts the HTTP server on addr, blocking until it stops.
func (s *Server) ListenAndServe(addr string) error {
	return http.ListenAndServe(addr, s.router)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.L.WithFields(map[string]any{
			"method":   r.Method,
			"path":     r.URL.Path,
			"duration": time.Since(start),
		}).Debug("admin HTTP request")
	})
}

type healthzResponse struct {
	OK      bool                          `json:"ok"`
	Tools   map[string]tools.HealthResult `json:"tools"`
	Pool    convomemdb.Stats              `json:"pool"`
	SchemaV int64                         `json:"schemaVersion"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	toolHealth, allOK := s.registry.HealthCheck()
	resp := healthzResponse{
		OK:      allOK,
		Tools:   toolHealth,
		SchemaV: s.store.SchemaVersion(),
	}
	if s.store.Pool() != nil {
		resp.Pool = s.store.Pool().Stats()
	}

	status := http.StatusOK
	if !allOK {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

type metricsResponse struct {
	Cache    cache.Stats            `json:"cache"`
	Pool     convomemdb.Stats       `json:"pool"`
	ToolCall map[string]tools.Stats `json:"toolCalls"`
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	resp := metricsResponse{
		Cache:    s.cache.Stats(),
		ToolCall: s.registry.Stats(),
	}
	if s.store.Pool() != nil {
		resp.Pool = s.store.Pool().Stats()
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
