package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"chatmakere/internal/realtime"
	"chatmakere/internal/telemetry"
)

// StatsProvider exposes realtime state for inspection.
type StatsProvider interface {
	Stats() realtime.Stats
}

// RegisterDebugRoutes wires debug-only endpoints.
func RegisterDebugRoutes(router *gin.Engine, emitter *telemetry.AuditEmitter, stats StatsProvider, enabled bool) {
	if !enabled {
		return
	}

	router.GET("/debug/realtime", func(c *gin.Context) {
		if stats == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "realtime core not configured"})
			return
		}
		c.JSON(http.StatusOK, stats.Stats())
	})

	router.GET("/debug/audit-test", func(c *gin.Context) {
		if emitter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit emitter not configured"})
			return
		}
		emitAudit(c, emitter, "INFO", "audit_test", "audit test", nil)
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}
