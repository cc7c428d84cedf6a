package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"chatmakere/internal/observability"
)

// RegisterHealthRoutes wires the unauthenticated liveness and metrics endpoints.
func RegisterHealthRoutes(router *gin.Engine, service string) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"service":   service,
		})
	})
	router.GET("/metrics", gin.WrapH(observability.MetricsHandler()))
}
