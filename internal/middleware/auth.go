package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"chatmakere/internal/auth"
)

const (
	UserIDKey   = "userID"
	IdentityKey = "identity"
)

// AuthMiddleware validates the bearer token and stores the identity on the
// gin context.
func AuthMiddleware(validator auth.TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			return
		}

		token, ok := auth.BearerToken(header)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header"})
			return
		}

		identity, err := validator.ValidateToken(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(UserIDKey, identity.UserID)
		c.Set(IdentityKey, identity)
		c.Next()
	}
}

// IdentityFrom returns the identity stored by AuthMiddleware.
func IdentityFrom(c *gin.Context) (auth.Identity, bool) {
	val, ok := c.Get(IdentityKey)
	if !ok {
		return auth.Identity{}, false
	}
	identity, ok := val.(auth.Identity)
	return identity, ok
}
