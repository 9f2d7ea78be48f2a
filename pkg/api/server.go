package api

import (
	"bufio"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rubiojr/cmsmirror/pkg/core"
	"github.com/rubiojr/cmsmirror/pkg/log"
	"github.com/rubiojr/cmsmirror/pkg/metrics"
	"github.com/rubiojr/cmsmirror/pkg/realtime"
	"github.com/rubiojr/cmsmirror/pkg/search"
	"github.com/rubiojr/cmsmirror/pkg/storage"
	"github.com/rubiojr/cmsmirror/pkg/syncer"
)

// Options are the server's dependencies. They can be swapped at runtime with
// Update when the configuration is reloaded.
type Options struct {
	Store   storage.Store
	Search  *search.SearchService
	Syncer  *syncer.Syncer
	Metrics *metrics.Metrics
	// Page serves GET /. Optional.
	Page http.Handler
	// Events feeds /api/events. Optional.
	Events *realtime.Hub

	SearchMaxAge time.Duration
	DataMaxAge   time.Duration
}

type Server struct {
	mu      sync.RWMutex
	opts    Options
	metrics *metrics.Metrics
	logger  *log.Logger
}

func NewServer(opts Options) *Server {
	return &Server{
		opts:    opts,
		metrics: opts.Metrics,
		logger:  log.ForService("api"),
	}
}

// Update replaces the dependencies used by requests that start afterwards.
// The metrics registry is kept.
func (s *Server) Update(opts Options) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opts = opts
}

func (s *Server) deps() Options {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.opts
}

// Handler returns the complete HTTP handler: routes, CORS and request
// metrics.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return CorsMiddleware(s.metricsMiddleware(mux))
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Errorf("Error encoding JSON response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, error, details string) {
	response := ErrorResponse{
		Error:   error,
		Details: details,
	}
	s.writeJSON(w, status, response)
}

// writeFailure maps err to a status code. Server-side failures are logged.
func (s *Server) writeFailure(w http.ResponseWriter, summary string, err error) {
	status := core.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Errorf("%s: %v", summary, err)
	}
	s.writeError(w, status, summary, err.Error())
}

func cacheFor(w http.ResponseWriter, maxAge time.Duration) {
	if maxAge <= 0 {
		w.Header().Set("Cache-Control", "no-store")
		return
	}
	w.Header().Set("Cache-Control", "public, max-age="+strconv.Itoa(int(maxAge/time.Second)))
}

// bearerToken extracts the credential from an "Authorization: Bearer" header.
func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

func CorsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack lets websocket upgrades through the recorder.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	r.status = http.StatusSwitchingProtocols
	return http.NewResponseController(r.ResponseWriter).Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		s.metrics.ObserveHTTP(route, rec.status)
	})
}
