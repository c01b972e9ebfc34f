package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/guesthost/internal/api/middleware"
	"github.com/GriffinCanCode/guesthost/internal/infrastructure/monitoring"
)

// RouterConfig configures the admin router's middleware
type RouterConfig struct {
	CORS      middleware.CORSConfig
	RateLimit middleware.RateLimitConfig
	LogLevel  http.Handler // optional; served at /log/level
}

// DefaultRouterConfig returns the default middleware settings
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		CORS:      middleware.DefaultCORSConfig(),
		RateLimit: middleware.DefaultRateLimitConfig(),
	}
}

// NewRouter builds the admin API
func NewRouter(h *Handlers, cfg RouterConfig) *gin.Engine {
	if gin.Mode() == gin.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}
	metrics := h.metrics
	if metrics == nil {
		metrics = monitoring.NewMetrics()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.AccessLog(h.logger))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(cfg.CORS))
	router.Use(middleware.RateLimit(cfg.RateLimit))

	router.GET("/health", h.Health)

	perms := router.Group("/permissions")
	perms.GET("", h.GetPermissions)
	perms.POST("/allow", h.Allow)
	perms.POST("/deny", h.Deny)
	perms.POST("/flags", h.SetFlags)
	perms.GET("/audit", h.Audit)

	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{})))

	if cfg.LogLevel != nil {
		router.GET("/log/level", gin.WrapH(cfg.LogLevel))
		router.PUT("/log/level", gin.WrapH(cfg.LogLevel))
	}

	h.logger.Debug("Admin routes registered", zap.Int("routes", len(router.Routes())))
	return router
}
