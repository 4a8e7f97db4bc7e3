package main

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"voice-platform/pkg/utils"
)

// registerRoutes mounts handlers. Keep this file free of business logic.
func registerRoutes(r *gin.Engine, a *app, authMW gin.HandlerFunc, db *sql.DB) {
	r.GET("/healthz", func(c *gin.Context) {
		if err := utils.HealthCheck(c.Request.Context(), db, 2*time.Second); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "postgres": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Provider webhooks are public and verified per tenant.
	wh := r.Group("/webhooks")
	wh.POST("/vapi", a.webhooks.HandleVapi)
	wh.POST("/vapi/:tenant_id", a.webhooks.HandleVapi)
	wh.POST("/twilio/status", a.webhooks.HandleTwilioStatus)

	v1 := r.Group("/v1")
	v1.Use(authMW)
	a.api.Register(v1)
}
