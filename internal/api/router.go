// Package api serves the local status/control surface the on-device player
// and UI integrate with. It is loopback-only territory; the optional API key
// guards against other apps on the device.
package api

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"vigil/internal/api/handlers"
	"vigil/internal/api/middleware"
	"vigil/internal/engine"
)

// RouterConfig holds dependencies for the API router
type RouterConfig struct {
	Engine *engine.Engine
	APIKey string
	Logger *slog.Logger
}

// NewRouter creates and configures the Gin router
func NewRouter(config RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Apply global middleware
	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery(config.Logger))
	router.Use(middleware.Logging(config.Logger))
	router.Use(middleware.ContentType())

	// Health check (no auth)
	healthHandler := handlers.NewHealthHandler()
	router.GET("/health", healthHandler.GetHealth)

	// API v1 routes (with authentication when a key is configured)
	v1 := router.Group("/v1")
	if config.APIKey != "" {
		v1.Use(authMiddleware(config.APIKey))
	}
	{
		statusHandler := handlers.NewStatusHandler(config.Engine, config.Logger)
		v1.GET("/status", statusHandler.GetStatus)

		playbackHandler := handlers.NewPlaybackHandler(config.Engine, config.Logger)
		v1.POST("/playback/started", playbackHandler.PlaybackStarted)
		v1.POST("/playback/ended", playbackHandler.PlaybackEnded)
		v1.POST("/app/foreground", playbackHandler.AppForeground)
		v1.POST("/app/background", playbackHandler.AppBackground)

		syncHandler := handlers.NewSyncHandler(config.Engine, config.Logger)
		v1.POST("/sync", syncHandler.TriggerSync)
	}

	return router
}

// authMiddleware verifies API key authentication
func authMiddleware(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		providedKey := c.GetHeader("X-Vigil-Key")
		if providedKey != apiKey {
			c.JSON(401, gin.H{
				"error": "Unauthorized",
				"code":  "UNAUTHORIZED",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}
