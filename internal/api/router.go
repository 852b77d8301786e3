package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"onsite-tracker-backend/config"
	"onsite-tracker-backend/internal/mw"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(cfg *config.ServerConfig, handler *Handler) *gin.Engine {
	r := gin.Default()

	// Initialize middleware
	limit := cfg.RateLimitPerSec
	if limit <= 0 {
		limit = 10
	}
	rateLimiter := mw.RateLimiter(rate.Limit(limit), 5)

	cacheTTL := time.Duration(cfg.CacheTTLSeconds) * time.Second
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Second
	}
	cacheStore := cache.New(cacheTTL, 2*cacheTTL)
	caching := mw.Cache(cacheStore, cacheTTL)

	// API group
	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		api.GET("/regions", caching, handler.GetRegions)
		api.GET("/regions/nearest", handler.GetNearestRegion)
		api.POST("/regions", handler.PostRegion)
		api.PATCH("/regions/:region_id", handler.PatchRegion)
		api.DELETE("/regions/:region_id", handler.DeleteRegion)

		api.GET("/sessions", handler.GetSessions)
		api.GET("/sessions/current", handler.GetCurrentSession)
		api.POST("/sessions/current/pause", handler.PauseSession)
		api.POST("/sessions/current/resume", handler.ResumeSession)
		api.POST("/sessions/current/stop", handler.StopSession)
		api.GET("/stats/today", caching, handler.GetTodayStats)

		api.POST("/track/position", handler.PostPosition)
		api.POST("/track/event", handler.PostGeofenceEvent)

		api.GET("/pending", handler.GetPending)
		api.POST("/pending/entry", handler.ResolveEntry)
		api.POST("/pending/exit", handler.ResolveExit)

		api.GET("/subscriptions", handler.GetSubscription)
		api.PUT("/subscriptions", handler.PutSubscription)
		api.DELETE("/subscriptions", handler.DeleteSubscription)
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)
	}

	return r
}
