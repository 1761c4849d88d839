// Package http serves the ledger's JSON API and the static web client.
package http

import (
	"context"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"github.com/rs/cors"

	"householdledger/internal/budget"
	"householdledger/internal/category"
	"householdledger/internal/log"
	"householdledger/internal/middleware/ratelimit"
	"householdledger/internal/middleware/security"
	"householdledger/internal/middleware/trace"
	"householdledger/internal/recurrence"
	"householdledger/internal/scoring"
	"householdledger/internal/services"
)

const maxBodyBytes = 1 << 20

// Deps are the collaborators the handlers call into.
type Deps struct {
	Ledger     *services.LedgerService
	Categories *category.Store
	Budgets    *budget.Store
	Engine     *recurrence.Engine
	Scoring    *scoring.Service
}

type Config struct {
	Addr               string
	RateLimitPerMinute int
	Logger             *log.Logger

	// Static is served at "/". Nil disables the web client.
	Static fs.FS

	// Ready reports whether backing dependencies are usable. Nil means
	// always ready.
	Ready func(ctx context.Context) error

	// Now defaults to time.Now. Handlers use it for the current month.
	Now func() time.Time
}

type Server struct {
	http.Server

	deps   Deps
	logger *log.Logger
	ready  func(ctx context.Context) error
	now    func() time.Time

	rateLimiter      *ratelimit.Limiter
	securityDetector *security.Detector
	traceMiddleware  *trace.Middleware

	started      time.Time
	shutdownOnce sync.Once
}

func NewServer(cfg Config, deps Deps) *Server {
	if cfg.Logger == nil {
		cfg.Logger = log.Nop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	detector := security.NewDetector()
	s := &Server{
		deps:             deps,
		logger:           cfg.Logger.WithComponent(log.ComponentHTTP),
		ready:            cfg.Ready,
		now:              cfg.Now,
		securityDetector: detector,
		traceMiddleware:  trace.NewMiddleware(detector.ExtractClientIP, cfg.Logger),
		rateLimiter: ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerMinute: cfg.RateLimitPerMinute,
		}),
		started: time.Now(),
	}

	mux := http.NewServeMux()
	s.routes(mux, cfg.Static)

	s.Server = http.Server{
		Addr:              cfg.Addr,
		Handler:           s.middleware(mux),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) routes(mux *http.ServeMux, static fs.FS) {
	mux.HandleFunc("GET /api/transactions", s.handleListTransactions)
	mux.HandleFunc("POST /api/transactions", s.handleCreateTransaction)
	mux.HandleFunc("PUT /api/transactions", s.handleUpdateTransaction)
	mux.HandleFunc("DELETE /api/transactions", s.handleDeleteTransaction)
	mux.HandleFunc("GET /api/transactions/duplicates", s.handleDuplicates)

	mux.HandleFunc("GET /api/categories", s.handleListCategories)
	mux.HandleFunc("POST /api/categories", s.handleAddCategory)
	mux.HandleFunc("DELETE /api/categories", s.handleRemoveCategory)
	mux.HandleFunc("GET /api/category-attributes", s.handleListAttributes)
	mux.HandleFunc("POST /api/category-attributes", s.handleSetAttribute)

	mux.HandleFunc("GET /api/budget", s.handleGetBudget)
	mux.HandleFunc("POST /api/budget", s.handleUpsertBudget)

	mux.HandleFunc("GET /api/rpg", s.handleScore)

	mux.HandleFunc("GET /api/schedules", s.handleListSchedules)
	mux.HandleFunc("POST /api/schedules", s.handleAddSchedule)
	mux.HandleFunc("PUT /api/schedules", s.handleUpdateSchedule)
	mux.HandleFunc("DELETE /api/schedules", s.handleDeleteSchedule)
	mux.HandleFunc("POST /api/schedules/run", s.handleRunSchedules)

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	if static != nil {
		mux.Handle("GET /", security.StaticAssetMiddleware(3600)(http.FileServer(http.FS(static))))
	}
}

// middleware wraps h so that tracing runs first and CORS last.
func (s *Server) middleware(h http.Handler) http.Handler {
	h = cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	}).Handler(h)
	h = s.rateLimiter.Middleware(s.securityDetector.ExtractClientIP, isSafeMethod, s.onRateLimited)(h)
	h = s.securityDetector.Middleware(h)
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
	return s.traceMiddleware.Middleware(h)
}

func isSafeMethod(r *http.Request) bool {
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

func (s *Server) onRateLimited(w http.ResponseWriter, r *http.Request) {
	log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, s.securityDetector.ExtractClientIP(r),
		log.FieldPath, r.URL.Path)
	writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
}

// Shutdown stops the rate limiter and gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
	})
	return s.Server.Shutdown(ctx)
}
