package http

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/siweauth/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// HealthCheck pings one dependency
type HealthCheck func(ctx context.Context) error

// RouterConfig holds the transport settings
type RouterConfig struct {
	CookieName   string
	CookieSecure bool
	Logger       *zap.Logger
	Gatherer     prometheus.Gatherer    // nil disables /metrics
	HealthChecks map[string]HealthCheck // run by /healthz
}

// SetupRouter sets up the Gin router
func SetupRouter(authService *service.AuthService, cfg RouterConfig) *gin.Engine {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(RequestLogger(cfg.Logger), gin.Recovery())

	handlers := NewAuthHandlers(authService, cfg)

	router.GET("/", handlers.Root)
	router.GET("/healthz", handlers.Health)
	if cfg.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}

	siwe := router.Group("/api/siwe")
	{
		siwe.GET("/nonce", handlers.Nonce)
		siwe.POST("/prepare", handlers.Prepare)
		siwe.POST("/verify", handlers.Verify)
		siwe.POST("/logout", handlers.Logout)
		siwe.GET("/me", SessionMiddleware(cfg.CookieName), handlers.Me)
	}

	return router
}
