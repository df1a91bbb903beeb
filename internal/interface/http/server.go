// Package http exposes the progression engine as a JSON REST API.
// Every route maps onto exactly one command or query handler; error kinds of
// the domain map onto status codes in one place (writeError).
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/brainbites/progression-engine/internal/application/command"
	"github.com/brainbites/progression-engine/internal/application/query"
	"github.com/brainbites/progression-engine/internal/interface/http/handlers"
	"github.com/brainbites/progression-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SERVER CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config contains HTTP server configuration.
type Config struct {
	// Addr - address to listen on (default ":8080").
	Addr string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// MaxBodyBytes - maximum size of a request body.
	MaxBodyBytes int64
}

// DefaultConfig returns default server configuration.
func DefaultConfig() Config {
	return Config{
		Addr:         ":8080",
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
		MaxBodyBytes: 1 << 20,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// Dependencies contains all handlers served over HTTP. A nil handler makes
// its routes answer 501.
type Dependencies struct {
	// Commands
	RegisterUser            *command.RegisterUserHandler
	DeleteUser              *command.DeleteUserHandler
	LoseLife                *command.LoseLifeHandler
	PurchaseLife            *command.PurchaseLifeHandler
	CreditXP                *command.CreditXPHandler
	DebitXP                 *command.DebitXPHandler
	UnlockSubtopic          *command.UnlockSubtopicHandler
	RecordCardRead          *command.RecordCardReadHandler
	UpdateDayStreak         *command.UpdateDayStreakHandler
	UpdateCorrectnessStreak *command.UpdateCorrectnessStreakHandler
	SubmitQuizRound         *command.SubmitQuizRoundHandler
	EvaluateBadges          *command.EvaluateBadgesHandler

	// Queries
	GetProgression *query.GetProgressionHandler
	GetBadges      *query.GetBadgesHandler
	GetLeaderboard *query.GetLeaderboardHandler

	HealthChecker handlers.HealthChecker
	Logger        *logger.Logger
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER
// ══════════════════════════════════════════════════════════════════════════════

// Server represents the HTTP server.
type Server struct {
	config     Config
	deps       Dependencies
	httpServer *http.Server
	router     *http.ServeMux
	handler    http.Handler
	logger     *logger.Logger

	mu        sync.RWMutex
	running   bool
	startedAt time.Time
}

// NewServer creates a new HTTP server with the given configuration and dependencies.
func NewServer(config Config, deps Dependencies) *Server {
	if config.Addr == "" {
		config.Addr = DefaultConfig().Addr
	}
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = DefaultConfig().MaxBodyBytes
	}
	if deps.Logger == nil {
		deps.Logger = logger.Nop()
	}
	if deps.HealthChecker == nil {
		deps.HealthChecker = handlers.NewNoopHealthChecker()
	}

	s := &Server{
		config: config,
		deps:   deps,
		router: http.NewServeMux(),
		logger: deps.Logger.With(logger.Component("http")),
	}
	s.setupRoutes()
	s.handler = s.buildMiddlewareChain(s.router)

	s.httpServer = &http.Server{
		Addr:         config.Addr,
		Handler:      s.handler,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}
	return s
}

// Handler returns the fully wrapped handler. Used by tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ══════════════════════════════════════════════════════════════════════════════
// ROUTING
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) setupRoutes() {
	// ─────────────────────────────────────────────────────────────────────────
	// Health & Status Endpoints
	// ─────────────────────────────────────────────────────────────────────────
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("GET /ready", s.handleReady)

	// ─────────────────────────────────────────────────────────────────────────
	// Users
	// ─────────────────────────────────────────────────────────────────────────
	s.router.HandleFunc("POST /api/v1/users", s.handleRegisterUser)
	s.router.HandleFunc("DELETE /api/v1/users/{id}", s.handleDeleteUser)
	s.router.HandleFunc("GET /api/v1/users/{id}/progression", s.handleGetProgression)

	// ─────────────────────────────────────────────────────────────────────────
	// Lives & XP
	// ─────────────────────────────────────────────────────────────────────────
	s.router.HandleFunc("POST /api/v1/users/{id}/lives/lose", s.handleLoseLife)
	s.router.HandleFunc("POST /api/v1/users/{id}/lives/purchase", s.handlePurchaseLife)
	s.router.HandleFunc("POST /api/v1/users/{id}/xp/credit", s.handleCreditXP)
	s.router.HandleFunc("POST /api/v1/users/{id}/xp/debit", s.handleDebitXP)
	s.router.HandleFunc("POST /api/v1/users/{id}/subtopics/{subtopicID}/unlock", s.handleUnlockSubtopic)

	// ─────────────────────────────────────────────────────────────────────────
	// Activity & Streaks
	// ─────────────────────────────────────────────────────────────────────────
	s.router.HandleFunc("POST /api/v1/users/{id}/cards/read", s.handleRecordCardRead)
	s.router.HandleFunc("POST /api/v1/users/{id}/streaks/day", s.handleUpdateDayStreak)
	s.router.HandleFunc("POST /api/v1/users/{id}/streaks/correctness", s.handleUpdateCorrectness)
	s.router.HandleFunc("POST /api/v1/users/{id}/quiz-rounds", s.handleSubmitQuizRound)

	// ─────────────────────────────────────────────────────────────────────────
	// Badges & Leaderboard
	// ─────────────────────────────────────────────────────────────────────────
	s.router.HandleFunc("POST /api/v1/users/{id}/badges/evaluate", s.handleEvaluateBadges)
	s.router.HandleFunc("GET /api/v1/users/{id}/badges", s.handleGetBadges)
	s.router.HandleFunc("GET /api/v1/users/{id}/badges/{badgeID}", s.handleGetBadge)
	s.router.HandleFunc("GET /api/v1/leaderboard", s.handleGetLeaderboard)
}

// ══════════════════════════════════════════════════════════════════════════════
// MIDDLEWARE CHAIN
// ══════════════════════════════════════════════════════════════════════════════

// buildMiddlewareChain wraps the router; the first middleware is outermost.
func (s *Server) buildMiddlewareChain(h http.Handler) http.Handler {
	return handlers.ChainHandler(h,
		s.requestIDMiddleware,
		s.loggingMiddleware,
		s.recoveryMiddleware,
		handlers.SecurityHeadersMiddleware,
		handlers.NoCacheMiddleware,
		handlers.RequestSizeLimitMiddleware(s.config.MaxBodyBytes),
	)
}

// requestIDMiddleware adds a request ID to each request and a request-scoped
// logger to its context.
func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)

		ctx := context.WithValue(r.Context(), contextKeyRequestID, requestID)
		ctx = logger.WithContext(ctx, s.logger.WithRequestID(requestID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// loggingMiddleware logs all HTTP requests.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		fields := []logger.Field{
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Int("status", rw.statusCode),
			logger.Latency(time.Since(start)),
		}
		log := logger.FromContext(r.Context())
		switch {
		case rw.statusCode >= 500:
			log.Error("http request", fields...)
		case rw.statusCode >= 400:
			log.Warn("http request", fields...)
		default:
			log.Info("http request", fields...)
		}
	})
}

// recoveryMiddleware recovers from panics and returns 500.
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				logger.FromContext(r.Context()).Error("panic recovered",
					logger.Any("error", err),
					logger.String("stack", string(debug.Stack())),
					logger.String("path", r.URL.Path),
				)
				writeJSONError(w, r, http.StatusInternalServerError, "internal_server_error", "an unexpected error occurred", nil)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}
	s.running = true
	s.startedAt = time.Now()
	s.mu.Unlock()

	s.logger.Info("starting HTTP server", logger.String("address", s.config.Addr))

	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// StartAsync starts the server in a goroutine.
func (s *Server) StartAsync() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.Start(); err != nil {
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// IsRunning returns true if the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Address returns the server address.
func (s *Server) Address() string {
	return s.config.Addr
}
