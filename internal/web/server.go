// Package web serves the relay pipeline over HTTP.
//
// Routes:
//
//   - POST /api/runs: one run per request. The capture is either the
//     "audio" part of a multipart form or the raw request body. The response
//     is a JSON transcript of every sink event.
//   - GET /api/ws: WebSocket. Every binary message is a capture; progress is
//     streamed back as JSON text messages followed by the synthesized reply as
//     a binary message. At most one run is active per connection.
//   - GET /healthz, GET /readyz: see package health.
//   - GET /metrics: Prometheus exposition, when configured.
package web

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/MrWong99/vaani/internal/health"
	"github.com/MrWong99/vaani/internal/observe"
	"github.com/MrWong99/vaani/internal/pipeline"
)

// DefaultMaxUploadBytes caps captures when Options.MaxUploadBytes is 0.
const DefaultMaxUploadBytes = 25 << 20

// Options configures a [Server].
type Options struct {
	// MaxUploadBytes caps the size of one capture. Default: [DefaultMaxUploadBytes].
	MaxUploadBytes int64

	// RunsPerMinute limits run creation per client IP on both the HTTP and
	// the WebSocket route. 0 disables limiting.
	RunsPerMinute int

	// AllowedOrigins lists the CORS origins (and WebSocket origin patterns)
	// allowed to call the API. Empty allows any origin.
	AllowedOrigins []string

	// Metrics records HTTP request durations. May be nil.
	Metrics *observe.Metrics

	// MetricsHandler is mounted at /metrics when non-nil.
	MetricsHandler http.Handler

	// Health serves /healthz and /readyz. Default: a handler without checks.
	Health *health.Handler
}

// Server exposes an [pipeline.Orchestrator] over HTTP. The orchestrator can
// be swapped at runtime with [Server.SetOrchestrator]; runs already in flight
// finish on the orchestrator they started with.
type Server struct {
	opts    Options
	orch    atomic.Pointer[pipeline.Orchestrator]
	limiter *httprate.RateLimiter
}

// New returns a Server running captures through o.
func New(o *pipeline.Orchestrator, opts Options) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if opts.Health == nil {
		opts.Health = health.New()
	}
	s := &Server{opts: opts}
	s.orch.Store(o)
	if opts.RunsPerMinute > 0 {
		s.limiter = httprate.NewRateLimiter(
			opts.RunsPerMinute,
			time.Minute,
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
				writeError(w, http.StatusTooManyRequests, "too many runs, slow down")
			}),
		)
	}
	return s
}

// runKey returns the rate limit key of r. It matches the key the HTTP
// limiter derives, so both routes draw from the same budget.
func runKey(r *http.Request) string {
	ip, _ := httprate.KeyByIP(r)
	return ip + ":"
}

// allowRun counts one run against key and reports whether it is within the
// rate limit. It is used where no HTTP response can be written.
func (s *Server) allowRun(r *http.Request, key string) bool {
	if s.limiter == nil {
		return true
	}
	return !s.limiter.OnLimit(discardWriter{}, r, key)
}

// discardWriter absorbs the rate limit headers of WebSocket runs.
type discardWriter struct{}

func (discardWriter) Header() http.Header         { return http.Header{} }
func (discardWriter) Write(b []byte) (int, error) { return len(b), nil }
func (discardWriter) WriteHeader(int)             {}

// SetOrchestrator replaces the orchestrator used by new runs.
func (s *Server) SetOrchestrator(o *pipeline.Orchestrator) {
	s.orch.Store(o)
	slog.Info("web: pipeline configuration replaced")
}

func (s *Server) orchestrator() *pipeline.Orchestrator {
	return s.orch.Load()
}

// Handler returns the server's routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if s.opts.Metrics != nil {
		r.Use(observe.Middleware(s.opts.Metrics))
	}

	origins := s.opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "Traceparent"},
		ExposedHeaders: []string{"X-Correlation-ID"},
		MaxAge:         300,
	}))

	s.opts.Health.Register(r)
	if s.opts.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", s.opts.MetricsHandler)
	}

	r.Route("/api", func(api chi.Router) {
		runs := api
		if s.limiter != nil {
			runs = api.With(s.limiter.Handler)
		}
		runs.Post("/runs", s.handleCreateRun)
		api.Get("/ws", s.handleWebSocket)
	})
	return r
}

type errorBody struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("web: failed to write response", "err", err)
	}
}
