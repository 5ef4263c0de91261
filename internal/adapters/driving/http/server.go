package http

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/openclinic-labs/intake-core/internal/core/ports/driven"
	"github.com/openclinic-labs/intake-core/internal/core/ports/driving"
)

// Pinger is a simple health check interface
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server represents the HTTP server
type Server struct {
	httpServer *http.Server
	router     *http.ServeMux
	version    string

	// Webhook callbacks are unauthenticated but must carry this secret.
	webhookSecret string

	// Services
	authService    driving.AuthService
	intakeService  driving.IntakeService
	reviewService  driving.ReviewService
	publishService driving.PublishService

	// Infrastructure
	directory   driven.PatientDirectory
	taskQueue   driven.TaskQueue
	db          Pinger // PostgreSQL health check
	redisClient Pinger // Redis health check (optional)
}

// Config holds server configuration
type Config struct {
	Host          string
	Port          int
	Version       string
	WebhookSecret string
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Host:    "0.0.0.0",
		Port:    8080,
		Version: "dev",
	}
}

// NewServer creates a new HTTP server
func NewServer(
	cfg Config,
	authService driving.AuthService,
	intakeService driving.IntakeService,
	reviewService driving.ReviewService,
	publishService driving.PublishService,
	directory driven.PatientDirectory,
	taskQueue driven.TaskQueue,
	db Pinger,
	redisClient Pinger, // can be nil
) *Server {
	s := &Server{
		router:         http.NewServeMux(),
		version:        cfg.Version,
		webhookSecret:  cfg.WebhookSecret,
		authService:    authService,
		intakeService:  intakeService,
		reviewService:  reviewService,
		publishService: publishService,
		directory:      directory,
		taskQueue:      taskQueue,
		db:             db,
		redisClient:    redisClient,
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	// Create middleware
	authMiddleware := NewAuthMiddleware(s.authService)

	// Health endpoints (no auth)
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("GET /ready", s.handleReady)
	s.router.HandleFunc("GET /version", s.handleVersion)

	// Auth endpoints (public)
	s.router.HandleFunc("POST /api/v1/auth/login", s.handleLogin)

	// Queue endpoints (authenticated)
	s.router.Handle("GET /api/v1/queue",
		authMiddleware.Authenticate(http.HandlerFunc(s.handleListQueue)))
	s.router.Handle("GET /api/v1/queue/pending",
		authMiddleware.Authenticate(http.HandlerFunc(s.handleListPending)))
	s.router.Handle("GET /api/v1/queue/{id}",
		authMiddleware.Authenticate(http.HandlerFunc(s.handleGetItem)))
	s.router.Handle("GET /api/v1/queue/{id}/document",
		authMiddleware.Authenticate(http.HandlerFunc(s.handleGetDocumentURL)))
	s.router.Handle("POST /api/v1/queue/{id}/approve",
		authMiddleware.Authenticate(http.HandlerFunc(s.handleApprove)))
	s.router.Handle("POST /api/v1/queue/{id}/reject",
		authMiddleware.Authenticate(http.HandlerFunc(s.handleReject)))
	s.router.Handle("POST /api/v1/queue/{id}/retry",
		authMiddleware.Authenticate(http.HandlerFunc(s.handleRetryPublish)))

	// Manual intake (authenticated)
	s.router.Handle("POST /api/v1/ingest",
		authMiddleware.Authenticate(http.HandlerFunc(s.handleIngest)))

	// Patient directory (authenticated)
	s.router.Handle("GET /api/v1/patients",
		authMiddleware.Authenticate(http.HandlerFunc(s.handleListPatients)))

	// Task queue stats (authenticated)
	s.router.Handle("GET /api/v1/tasks/stats",
		authMiddleware.Authenticate(http.HandlerFunc(s.handleTaskStats)))

	// Reviewer callbacks arrive from the bot platform, not from an
	// operator session. Guarded by a shared webhook secret instead.
	s.router.HandleFunc("POST /api/v1/callbacks/telegram", s.handleTelegramCallback)
}

// Start starts the HTTP server with graceful shutdown
func (s *Server) Start() error {
	// Channel to listen for OS signals
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	// Start server in goroutine
	go func() {
		log.Printf("Starting server on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for shutdown signal
	<-stop
	log.Println("Shutting down server...")

	// Create shutdown context with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Attempt graceful shutdown
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Println("Server stopped")
	return nil
}

// Stop stops the server
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}
