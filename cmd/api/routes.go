package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"callcenter-platform/internal/events"
	"callcenter-platform/internal/httpapi"
	"callcenter-platform/pkg/logger"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers delegate to internal modules.
func registerRoutes(r *gin.Engine, h httpapi.Handlers, hub *events.Hub, origins []string, health func(context.Context) error) {
	r.GET("/healthz", func(c *gin.Context) {
		if err := health(c.Request.Context()); err != nil {
			logger.FromGin(c).Warn("health check failed", "err", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "ws_clients": hub.ClientCount()})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/ws/events", events.Handler(hub, events.Upgrader(origins)))

	v1 := r.Group("/v1")
	{
		// device-facing
		callsGroup := v1.Group("/calls")
		callsGroup.POST("/upload", h.UploadRecording)
		callsGroup.POST("/webhook", h.CallWebhook)
		callsGroup.GET("/:id", h.GetCall)

		presenceGroup := v1.Group("/presence")
		presenceGroup.POST("/heartbeat", h.Heartbeat)
		presenceGroup.GET("/online", h.OnlineAgents)

		// dashboard
		v1.GET("/live", h.LiveView)
		v1.GET("/jobs/:id", h.GetJob)
		v1.GET("/reports/calls", h.CallsReport)

		admin := v1.Group("/admin")
		admin.POST("/calls/:id/reanalyze", h.Reanalyze)
	}
}

// corsMiddleware allows the dashboard origins. An empty list allows any
// origin, which is only accepted outside production.
func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "X-Request-Id", "X-Operator"},
		ExposeHeaders:    []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cors.New(cfg)
}
