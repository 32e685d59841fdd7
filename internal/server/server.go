package server

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	gosync "sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wesm/revenueos/internal/config"
	"github.com/wesm/revenueos/internal/db"
	"github.com/wesm/revenueos/internal/feed"
	"github.com/wesm/revenueos/internal/roi"
	"github.com/wesm/revenueos/internal/rollup"
)

// VersionInfo holds build-time version metadata.
type VersionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
}

// Server is the HTTP server for the REST API.
type Server struct {
	mu      gosync.RWMutex
	cfg     config.Config
	db      *db.DB
	rollup  *rollup.Service
	bus     *feed.Bus
	mux     *http.ServeMux
	httpSrv *http.Server
	version VersionInfo

	saveParams func(roi.Params) error
	heartbeat  time.Duration

	// handlerDelay is injected before each timeout-wrapped
	// handler, used only by tests to guarantee handlers
	// exceed a short timeout. Zero in production.
	handlerDelay time.Duration
}

// New creates a new Server. bus may be nil, in which case the
// events stream only sends heartbeats.
func New(
	cfg config.Config, database *db.DB, svc *rollup.Service,
	bus *feed.Bus, opts ...Option,
) *Server {
	s := &Server{
		cfg:       cfg,
		db:        database,
		rollup:    svc,
		bus:       bus,
		mux:       http.NewServeMux(),
		heartbeat: defaultHeartbeat,
	}
	s.saveParams = s.saveParamsToConfig
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

// Option configures a Server.
type Option func(*Server)

// WithVersion sets the build-time version metadata.
func WithVersion(v VersionInfo) Option {
	return func(s *Server) { s.version = v }
}

// WithHeartbeat sets the events stream keepalive interval.
// Non-positive values are ignored.
func WithHeartbeat(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.heartbeat = d
		}
	}
}

// WithParamsSaver overrides how calibration updates are
// persisted, allowing tests to substitute a stub. Nil is ignored.
func WithParamsSaver(f func(roi.Params) error) Option {
	return func(s *Server) {
		if f != nil {
			s.saveParams = f
		}
	}
}

func (s *Server) routes() {
	s.mux.Handle("GET /api/v1/roi", s.withTimeout(s.handleROISummary))
	s.mux.Handle("GET /api/v1/roi/agents/{id}", s.withTimeout(s.handleROIAgent))
	s.mux.Handle("GET /api/v1/roi/params", s.withTimeout(s.handleGetParams))
	s.mux.Handle("PUT /api/v1/roi/params", s.withTimeout(s.handlePutParams))

	s.mux.Handle("GET /api/v1/agents", s.withTimeout(s.handleListAgents))
	s.mux.Handle("GET /api/v1/agents/{id}", s.withTimeout(s.handleGetAgent))
	s.mux.Handle("POST /api/v1/agents", s.withTimeout(s.handleUpsertAgent))
	s.mux.Handle("DELETE /api/v1/agents/{id}", s.withTimeout(s.handleDeleteAgent))

	s.mux.Handle("GET /api/v1/traces", s.withTimeout(s.handleListTraces))
	s.mux.Handle("POST /api/v1/traces", s.withTimeout(s.handleInsertTrace))

	s.mux.Handle("GET /api/v1/costs", s.withTimeout(s.handleListCosts))
	s.mux.Handle("POST /api/v1/costs", s.withTimeout(s.handleInsertCost))

	s.mux.Handle("GET /api/v1/stats", s.withTimeout(s.handleGetStats))
	s.mux.Handle("GET /api/v1/version", s.withTimeout(s.handleGetVersion))

	// SSE: Do not use timeout, as this is a long-lived connection.
	s.mux.HandleFunc("GET /api/v1/events", s.handleEvents)

	s.mux.Handle("GET /metrics", promhttp.Handler())
}

func (s *Server) handleGetVersion(
	w http.ResponseWriter, _ *http.Request,
) {
	writeJSON(w, http.StatusOK, s.version)
}

// SetPort updates the listen port (for testing).
func (s *Server) SetPort(port int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.Port = port
}

func (s *Server) saveParamsToConfig(p roi.Params) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.SaveROIParams(p)
}

// Handler returns the http.Handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return corsMiddleware(logMiddleware(metricsMiddleware(s.mux)))
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	s.mu.Lock()
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	srv := &http.Server{
		Addr:        addr,
		Handler:     s.Handler(),
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 120 * time.Second,
	}
	s.httpSrv = srv
	s.mu.Unlock()
	log.Printf("Starting server at http://%s", addr)
	return srv.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.RLock()
	srv := s.httpSrv
	s.mu.RUnlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// FindAvailablePort finds an available port starting from the
// given port, binding to the specified host.
func FindAvailablePort(host string, start int) int {
	for port := start; port < start+100; port++ {
		addr := net.JoinHostPort(host, strconv.Itoa(port))
		ln, err := net.Listen("tcp", addr)
		if err == nil {
			ln.Close()
			return port
		}
	}
	return start
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") {
			w.Header().Set(
				"Access-Control-Allow-Origin", "*",
			)
			w.Header().Set(
				"Access-Control-Allow-Methods",
				"GET, POST, PUT, DELETE, OPTIONS",
			)
			w.Header().Set(
				"Access-Control-Allow-Headers",
				"Content-Type",
			)
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") {
			log.Printf("%s %s", r.Method, r.URL.Path)
		}
		next.ServeHTTP(w, r)
	})
}

// String formats v for log output.
func (v VersionInfo) String() string {
	return fmt.Sprintf("%s (commit %s, built %s)",
		v.Version, v.Commit, v.BuildDate)
}
