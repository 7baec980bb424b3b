package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"finboard/internal/auth"
	"finboard/internal/log"
	"finboard/internal/metrics"
	"finboard/internal/middleware/ratelimit"
	"finboard/internal/middleware/security"
	"finboard/internal/middleware/trace"
	"finboard/internal/ports"
	"finboard/internal/services"
)

const readyTimeout = 2 * time.Second

// Config tunes the server. Zero values fall back to sensible defaults.
type Config struct {
	Addr            string
	DefaultPageSize int
	MaxPageSize     int
	RateLimit       ratelimit.Config
	TrustedProxies  []string
	Logger          *log.Logger
	Metrics         *metrics.Metrics
	// Ready is pinged by /readyz; nil reports ready.
	Ready ports.Pinger
}

// Server is the JSON REST API.
type Server struct {
	http.Server

	expenses *services.ExpenseService
	auth     *auth.Service
	parser   *RequestParser
	ready    ports.Pinger
	metrics  *metrics.Metrics
	limiter  *ratelimit.Limiter
	detector *security.Detector
	logger   *log.Logger

	defaultPageSize int
	maxPageSize     int
	now             func() time.Time

	shutdownOnce sync.Once
}

// NewServer wires routes and middleware, returning a ready-to-run server.
func NewServer(cfg Config, expenses *services.ExpenseService, authSvc *auth.Service) *Server {
	if cfg.Logger == nil {
		cfg.Logger = log.New(log.DefaultConfig())
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.New()
	}
	if cfg.DefaultPageSize <= 0 {
		cfg.DefaultPageSize = 10
	}
	if cfg.MaxPageSize < cfg.DefaultPageSize {
		cfg.MaxPageSize = max(100, cfg.DefaultPageSize)
	}
	if cfg.RateLimit.RequestsPerSecond <= 0 {
		cfg.RateLimit = ratelimit.DefaultConfig()
	}

	s := &Server{
		expenses:        expenses,
		auth:            authSvc,
		parser:          NewRequestParser(),
		ready:           cfg.Ready,
		metrics:         cfg.Metrics,
		limiter:         ratelimit.NewLimiter(cfg.RateLimit),
		detector:        security.NewDetector(),
		logger:          cfg.Logger.WithComponent(log.ComponentHTTP),
		defaultPageSize: cfg.DefaultPageSize,
		maxPageSize:     cfg.MaxPageSize,
		now:             time.Now,
	}
	s.detector.OnSuspicious(s.metrics.Suspicious)
	for _, cidr := range cfg.TrustedProxies {
		if err := s.detector.AddTrustedProxy(cidr); err != nil {
			s.logger.Warn("Ignoring trusted proxy", log.FieldError, err.Error())
		}
	}

	mux := http.NewServeMux()
	requireAuth := auth.Middleware(authSvc.Tokens())

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("GET /metrics", s.metrics.Handler())

	mux.HandleFunc("POST /api/auth/register", s.handleRegister)
	mux.HandleFunc("POST /api/auth/login", s.handleLogin)

	mux.Handle("GET /api/expenses", requireAuth(http.HandlerFunc(s.handleListExpenses)))
	mux.Handle("POST /api/expenses", requireAuth(http.HandlerFunc(s.handleCreateExpense)))
	mux.Handle("PUT /api/expenses/{id}", requireAuth(http.HandlerFunc(s.handleUpdateExpense)))
	mux.Handle("DELETE /api/expenses/{id}", requireAuth(http.HandlerFunc(s.handleDeleteExpense)))
	mux.Handle("GET /api/categories", requireAuth(http.HandlerFunc(s.handleCategories)))
	mux.Handle("GET /api/dashboard", requireAuth(http.HandlerFunc(s.handleDashboard)))

	var h http.Handler = mux
	h = s.limiter.Middleware(s.detector.ExtractClientIP, s.onRateLimited)(h)
	h = s.detector.Middleware(h)
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
	h = trace.NewMiddleware(s.detector.ExtractClientIP, cfg.Logger, s.metrics).Middleware(h)

	s.Server = http.Server{
		Addr:              cfg.Addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
	return s
}

func (s *Server) onRateLimited(w http.ResponseWriter, r *http.Request) {
	s.metrics.RateLimited()
	log.FromContext(r.Context()).WithComponent(log.ComponentRateLimit).WarnContext(r.Context(),
		"Rate limit exceeded",
		log.FieldClientIP, s.detector.ExtractClientIP(r),
		log.FieldPath, r.URL.Path)
	writeErrorMessage(w, http.StatusTooManyRequests, "rate limit exceeded")
}

// Shutdown stops background work and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()
		if err := s.ready.Ping(ctx); err != nil {
			log.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed", log.FieldError, err.Error())
			writeErrorMessage(w, http.StatusServiceUnavailable, "backend unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
