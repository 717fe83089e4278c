package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pion/logging"

	"github.com/mossy-p/webrtc-gateway/internal/middleware"
)

// RouterConfig collects the arguments to NewRouter.
type RouterConfig struct {
	AllowedOrigins []string
	JWTSecret      string

	// AdminUsers may stop any session, including anonymous ones.
	AdminUsers []string

	// RequireAuth rejects signaling sockets without a valid token.
	RequireAuth bool

	Sessions Sessions

	// Metrics is mounted at /metrics when set.
	Metrics http.Handler

	LoggerFactory logging.LoggerFactory
}

// NewRouter wires every route of the gateway.
func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.LoggerFactory == nil {
		cfg.LoggerFactory = logging.NewDefaultLoggerFactory()
	}

	router := gin.Default()

	// Global CORS middleware (runs before routing)
	router.Use(OriginFilter(cfg.AllowedOrigins))

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if cfg.Metrics != nil {
		router.GET("/metrics", gin.WrapH(cfg.Metrics))
	}

	// Session management API
	apiGroup := router.Group("/api")
	{
		// Login endpoint (public)
		apiGroup.POST("/auth/login", Login(cfg.JWTSecret))

		auth := middleware.JWTAuth(cfg.JWTSecret)
		apiGroup.GET("/sessions", auth, ListSessions(cfg.Sessions))
		apiGroup.GET("/sessions/:sessionId", auth, GetSession(cfg.Sessions))
		apiGroup.DELETE("/sessions/:sessionId", auth, DeleteSession(cfg.Sessions, cfg.AdminUsers, cfg.LoggerFactory))
	}

	// WebSocket signaling endpoint
	wsAuth := middleware.OptionalJWTAuth(cfg.JWTSecret)
	if cfg.RequireAuth {
		wsAuth = middleware.JWTAuth(cfg.JWTSecret)
	}
	router.GET("/ws/signal", wsAuth, HandleSignaling(cfg.Sessions, cfg.LoggerFactory))

	return router
}
