// Package api exposes the schema comparison and resolution workflow over
// HTTP. All /api/v1 routes except /auth require a Bearer token.
package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/chaluvadis/schemasync/internal/api/auth"
	"github.com/chaluvadis/schemasync/internal/jobqueue"
	"github.com/chaluvadis/schemasync/internal/script"
	"github.com/chaluvadis/schemasync/internal/session"
	"github.com/chaluvadis/schemasync/pkg/models"
)

// AuthService is the slice of TokenService the server needs.
type AuthService interface {
	Authenticate(email, password string) (*models.User, error)
	CreateTokenPair(user *models.User) (*auth.TokenPair, error)
	RefreshTokenPair(refreshToken string) (*auth.TokenPair, error)
	ValidateAccessToken(token string) (*models.User, error)
}

// Enqueuer submits comparison jobs for background processing.
type Enqueuer interface {
	QueueCompareJob(ctx context.Context, args jobqueue.CompareJobArgs) error
}

// Server represents the API server
type Server struct {
	echo      *echo.Echo
	addr      string
	sessions  *session.Manager
	generator *script.Generator
	authSvc   AuthService
	queue     Enqueuer
}

// ServerConfig holds the server's tunables.
type ServerConfig struct {
	ListenAddr string
	RateLimit  int // requests per second per client, 0 disables limiting
}

// NewServer creates a new API server
func NewServer(cfg ServerConfig, sessions *session.Manager, generator *script.Generator, authSvc AuthService, queue Enqueuer) *Server {
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	if cfg.RateLimit > 0 {
		e.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(rate.Limit(cfg.RateLimit))))
	}

	server := &Server{
		echo:      e,
		addr:      cfg.ListenAddr,
		sessions:  sessions,
		generator: generator,
		authSvc:   authSvc,
		queue:     queue,
	}

	server.setupRoutes()

	return server
}

// setupRoutes configures all API endpoints
func (s *Server) setupRoutes() {
	// Health check endpoint
	s.echo.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status": "healthy",
		})
	})

	v1 := s.echo.Group("/api/v1")

	// Auth endpoints are the only unauthenticated part of /api/v1
	v1.POST("/auth/login", s.login)
	v1.POST("/auth/refresh", s.refresh)

	protected := v1.Group("", auth.RequireAuth(s.authSvc))
	protected.POST("/compare", s.startCompare)
	protected.GET("/sessions", s.listSessions)
	protected.GET("/sessions/:id", s.getSession)
	protected.GET("/sessions/:id/conflicts", s.getConflicts)
	protected.POST("/sessions/:id/resolve-auto", s.resolveAuto)
	protected.GET("/sessions/:id/script", s.getScript)
}

// Start begins the API server and blocks until an interrupt arrives.
func (s *Server) Start() error {
	go func() {
		if err := s.echo.Start(s.addr); err != nil && err != http.ErrServerClosed {
			s.echo.Logger.Fatal("shutting down the server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.echo.Shutdown(ctx)
}

// Handler exposes the underlying http.Handler (used by tests).
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func httpError(code int, format string, args ...interface{}) *echo.HTTPError {
	return echo.NewHTTPError(code, fmt.Sprintf(format, args...))
}
