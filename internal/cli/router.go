package cli

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"chatmakere/internal/auth"
	"chatmakere/internal/config"
	"chatmakere/internal/handlers"
	"chatmakere/internal/middleware"
	"chatmakere/internal/observability"
	"chatmakere/internal/realtime"
	"chatmakere/internal/telemetry"
	"chatmakere/internal/ws"
)

type routerDeps struct {
	validator auth.TokenValidator
	core      *realtime.Core
	audit     *telemetry.AuditEmitter
	wsHandler *ws.Handler
	profiles  *handlers.ProfileHandler
	users     *handlers.UserHandler
	rooms     *handlers.RoomHandler
}

func newRouter(cfg *config.Config, deps routerDeps) *gin.Engine {
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(
		gin.Recovery(),
		otelgin.Middleware(cfg.Service),
		middleware.RequestID(),
		middleware.AccessLog(),
		observability.HTTPMetricsMiddleware(),
	)

	handlers.RegisterHealthRoutes(router, cfg.Service)
	handlers.RegisterDebugRoutes(router, deps.audit, deps.core, cfg.Debug)

	router.GET("/ws", deps.wsHandler.Handle)

	api := router.Group("/api", middleware.AuthMiddleware(deps.validator))
	handlers.RegisterAPIRoutes(api, deps.profiles, deps.users, deps.rooms)
	return router
}
