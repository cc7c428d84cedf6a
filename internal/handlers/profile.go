package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"chatmakere/internal/middleware"
	"chatmakere/internal/models"
	"chatmakere/internal/repositories"
)

const minUsernameLength = 3

type profileCache interface {
	GetProfile(ctx context.Context, userID uuid.UUID) (models.User, error)
	Invalidate(ctx context.Context, userID uuid.UUID) error
}

// ProfileHandler manages the caller's own chat profile.
type ProfileHandler struct {
	users    repositories.UserRepository
	profiles profileCache
}

func NewProfileHandler(users repositories.UserRepository, profiles profileCache) *ProfileHandler {
	return &ProfileHandler{users: users, profiles: profiles}
}

// Signup handles POST /api/auth/signup.
func (h *ProfileHandler) Signup(c *gin.Context) {
	identity, _ := middleware.IdentityFrom(c)

	var req struct {
		Username  string  `json:"username" binding:"required"`
		AvatarURL *string `json:"avatar_url"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	username := strings.TrimSpace(req.Username)
	if len(username) < minUsernameLength {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username must be at least 3 characters"})
		return
	}

	user, err := h.users.CreateUser(c.Request.Context(), models.User{
		ID:        identity.UserID,
		Username:  username,
		Email:     identity.Email,
		AvatarURL: req.AvatarURL,
	})
	switch {
	case errors.Is(err, repositories.ErrUsernameTaken):
		c.JSON(http.StatusBadRequest, gin.H{"error": "username already taken"})
		return
	case errors.Is(err, repositories.ErrProfileExists):
		c.JSON(http.StatusBadRequest, gin.H{"error": "profile already exists"})
		return
	case err != nil:
		log.Ctx(c.Request.Context()).Error().Err(err).Msg("signup failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create profile"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"user": user})
}

// GetProfile handles GET /api/auth/profile.
func (h *ProfileHandler) GetProfile(c *gin.Context) {
	user, err := h.users.GetUser(c.Request.Context(), callerID(c))
	if errors.Is(err, repositories.ErrUserNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "profile not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load profile"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

// UpdateProfile handles PUT /api/auth/profile. Absent fields are unchanged.
func (h *ProfileHandler) UpdateProfile(c *gin.Context) {
	var req struct {
		Username  *string `json:"username"`
		AvatarURL *string `json:"avatar_url"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Username != nil {
		trimmed := strings.TrimSpace(*req.Username)
		if len(trimmed) < minUsernameLength {
			c.JSON(http.StatusBadRequest, gin.H{"error": "username must be at least 3 characters"})
			return
		}
		req.Username = &trimmed
	}

	userID := callerID(c)
	user, err := h.users.UpdateProfile(c.Request.Context(), userID, req.Username, req.AvatarURL)
	switch {
	case errors.Is(err, repositories.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "profile not found"})
		return
	case errors.Is(err, repositories.ErrUsernameTaken):
		c.JSON(http.StatusBadRequest, gin.H{"error": "username already taken"})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update profile"})
		return
	}

	if h.profiles != nil {
		if err := h.profiles.Invalidate(c.Request.Context(), userID); err != nil {
			log.Ctx(c.Request.Context()).Warn().Err(err).Str("user_id", userID.String()).Msg("profile cache invalidation failed")
		}
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}
