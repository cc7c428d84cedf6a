package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"chatmakere/internal/repositories"
)

const (
	minSearchLength = 2
	searchLimit     = 20
)

type presenceReader interface {
	IsOnline(userID uuid.UUID) bool
	OnlineUsers() []uuid.UUID
}

// UserHandler serves user lookup endpoints.
type UserHandler struct {
	users    repositories.UserRepository
	profiles profileCache
	presence presenceReader
}

func NewUserHandler(users repositories.UserRepository, profiles profileCache, presence presenceReader) *UserHandler {
	return &UserHandler{users: users, profiles: profiles, presence: presence}
}

// SearchUsers handles GET /api/users/search?q=.
func (h *UserHandler) SearchUsers(c *gin.Context) {
	query := strings.TrimSpace(c.Query("q"))
	if len(query) < minSearchLength {
		c.JSON(http.StatusBadRequest, gin.H{"error": "search query must be at least 2 characters"})
		return
	}

	users, err := h.users.SearchUsers(c.Request.Context(), query, callerID(c), searchLimit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to search users"})
		return
	}
	for i := range users {
		users[i].IsOnline = h.presence.IsOnline(users[i].ID)
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

// OnlineUsers handles GET /api/users/online.
func (h *UserHandler) OnlineUsers(c *gin.Context) {
	ids := h.presence.OnlineUsers()
	if ids == nil {
		ids = []uuid.UUID{}
	}
	c.JSON(http.StatusOK, gin.H{"user_ids": ids})
}

// GetUser handles GET /api/users/:userId.
func (h *UserHandler) GetUser(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("userId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	user, err := h.profiles.GetProfile(c.Request.Context(), userID)
	if errors.Is(err, repositories.ErrUserNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load user"})
		return
	}
	user.IsOnline = h.presence.IsOnline(userID)
	c.JSON(http.StatusOK, gin.H{"user": user})
}
