package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"chatmakere/internal/middleware"
	"chatmakere/internal/telemetry"
)

func requestIDFromContext(c *gin.Context) string {
	if val, ok := c.Get(middleware.RequestIDKey); ok {
		if id, ok := val.(string); ok && id != "" {
			return id
		}
	}

	requestID := c.GetHeader(middleware.RequestIDHeader)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set(middleware.RequestIDKey, requestID)
	return requestID
}

func userIDFromContext(c *gin.Context) *string {
	if identity, ok := middleware.IdentityFrom(c); ok && identity.UserID != uuid.Nil {
		value := identity.UserID.String()
		return &value
	}
	return nil
}

// callerID returns the authenticated user. Routes using it sit behind
// AuthMiddleware.
func callerID(c *gin.Context) uuid.UUID {
	if val, ok := c.Get(middleware.UserIDKey); ok {
		if id, ok := val.(uuid.UUID); ok {
			return id
		}
	}
	return uuid.Nil
}

func emitAudit(c *gin.Context, emitter *telemetry.AuditEmitter, level, action, text string, attrs map[string]any) {
	emitter.Emit(c.Request.Context(), telemetry.AuditEvent{
		Level:     level,
		Action:    action,
		Text:      text,
		RequestID: requestIDFromContext(c),
		UserID:    userIDFromContext(c),
		Attrs:     attrs,
	})
}
