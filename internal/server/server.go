package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ngenohkevin/fbrs/config"
	"github.com/ngenohkevin/fbrs/internal/descriptor"
)

const shutdownTimeout = 10 * time.Second

// Server represents the HTTP server
type Server struct {
	cfg        *config.Config
	logger     *zap.Logger
	router     *gin.Engine
	handlers   *Handlers
	auth       *AuthService
	httpServer *http.Server

	stopCh   chan struct{}
	stopOnce sync.Once
}

// New creates a new server instance. verifier may be nil when no
// identity store is configured.
func New(cfg *config.Config, logger *zap.Logger, verifier TokenVerifier) *Server {
	// Set Gin mode based on log level
	if cfg.LogLevel == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		cfg:    cfg,
		logger: logger,
		router: gin.New(),
		auth:   NewAuthService(cfg.JWTSecret, verifier, cfg.TokenCacheTTL),
		stopCh: make(chan struct{}),
	}
	s.handlers = NewHandlers(cfg, logger, descriptor.New(), s.auth, s.Stop)

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(RecoveryMiddleware(s.logger))
	s.router.Use(LoggerMiddleware(s.logger))
	s.router.Use(CORSMiddleware(s.cfg.AllowedOrigins))
	s.router.Use(RateLimitMiddleware(s.cfg.RateLimitRPS, s.cfg.RateLimitBurst))
}

func (s *Server) setupRoutes() {
	// Liveness and token exchange (no auth)
	s.router.GET("/ping", s.handlers.Ping)
	s.router.POST("/auth/token", s.handlers.IssueToken)

	protected := s.router.Group("/")
	if s.cfg.AuthRequired {
		protected.Use(AuthMiddleware(s.auth, s.logger))
	}
	{
		protected.GET("/", s.handlers.Describe)
		protected.GET("/stop", s.handlers.Stop)
		protected.GET("/info", s.handlers.Info)
	}
}

// Stop asks a running server to shut down. It is safe to call more than once.
func (s *Server) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// Listen opens the configured address. A server that fails to listen
// cannot be used again.
func (s *Server) Listen() (net.Listener, error) {
	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		s.auth.Close()
		return nil, fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr(), err)
	}
	return ln, nil
}

// Run listens on the configured address and serves until stopped
func (s *Server) Run() error {
	ln, err := s.Listen()
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve serves on ln until SIGINT, SIGTERM, /stop or Stop, then shuts
// down gracefully. It returns nil after a clean shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.httpServer = &http.Server{
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}
	defer s.auth.Close()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	failed := make(chan struct{})
	stopped := make(chan struct{})

	go func() {
		defer close(stopped)

		select {
		case sig := <-quit:
			s.logger.Info("received signal", zap.String("signal", sig.String()))
		case <-s.stopCh:
			s.logger.Info("stop requested")
		case <-failed:
			return
		}

		s.notify(daemon.SdNotifyStopping)

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Error("server forced to shutdown", zap.Error(err))
		}
	}()

	s.logger.Info("starting fbrs",
		zap.String("addr", ln.Addr().String()),
		zap.String("home", s.cfg.Home),
		zap.Bool("auth_required", s.cfg.AuthRequired),
	)
	s.notify(daemon.SdNotifyReady)

	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		close(failed)
		<-stopped
		return fmt.Errorf("failed to serve: %w", err)
	}

	<-stopped
	s.logger.Info("server stopped")
	return nil
}

// notify reports state to systemd; it does nothing outside a notify unit
func (s *Server) notify(state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		s.logger.Warn("sd_notify failed", zap.String("state", state), zap.Error(err))
		return
	}
	if sent {
		s.logger.Debug("sd_notify sent", zap.String("state", state))
	}
}

// Router returns the Gin router (for testing)
func (s *Server) Router() *gin.Engine {
	return s.router
}
