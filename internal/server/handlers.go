package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ngenohkevin/fbrs/config"
	"github.com/ngenohkevin/fbrs/internal/descriptor"
	"github.com/ngenohkevin/fbrs/internal/identity"
	"github.com/ngenohkevin/fbrs/internal/system"
)

// Handlers holds all HTTP handlers
type Handlers struct {
	cfg    *config.Config
	logger *zap.Logger
	engine *descriptor.Engine
	auth   *AuthService
	info   *system.Collector
	stop   func()
}

// NewHandlers creates a new handlers instance. stop is called after
// the /stop response has been written.
func NewHandlers(cfg *config.Config, logger *zap.Logger, engine *descriptor.Engine, auth *AuthService, stop func()) *Handlers {
	return &Handlers{
		cfg:    cfg,
		logger: logger,
		engine: engine,
		auth:   auth,
		info:   system.NewCollector(cfg.Home),
		stop:   stop,
	}
}

// Describe handles GET /
func (h *Handlers) Describe(c *gin.Context) {
	opts, err := parseOptions(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	opts = opts.WithDefaults(h.cfg.Home)

	d, err := h.engine.DescribeOptions(c.Request.Context(), opts)
	if err != nil {
		status, body := errorResponse(err)
		if status == http.StatusInternalServerError {
			h.logger.Warn("describe failed", zap.String("path", opts.Path), zap.Error(err))
		}
		c.JSON(status, body)
		return
	}

	c.JSON(http.StatusOK, newDescriptorView(d))
}

// Ping handles GET /ping
func (h *Handlers) Ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Stop handles GET /stop
func (h *Handlers) Stop(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "stopping"})
	if h.stop != nil {
		h.stop()
	}
}

// Info handles GET /info
func (h *Handlers) Info(c *gin.Context) {
	info, err := h.info.Collect(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, info)
}

type issueTokenRequest struct {
	Username string `json:"username" binding:"required"`
	Token    string `json:"token" binding:"required"`
}

// IssueToken handles POST /auth/token, exchanging an identity token for a JWT
func (h *Handlers) IssueToken(c *gin.Context) {
	var req issueTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and token are required"})
		return
	}

	ctx := c.Request.Context()

	ok, err := h.auth.VerifyIdentity(ctx, req.Username, req.Token)
	if err != nil {
		h.logger.Error("token verification failed", zap.String("username", req.Username), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token verification failed"})
		return
	}
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	role, err := h.auth.RoleOf(ctx, req.Username)
	if err != nil && !errors.Is(err, identity.ErrNotFound) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if role == "" {
		role = roleUser
	}

	token, expires, err := h.auth.GenerateToken(req.Username, role, h.cfg.TokenTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to sign token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"role":       role,
		"expires_at": expires.UTC().Format(time.RFC3339),
	})
}
