package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"chatmakere/internal/models"
	"chatmakere/internal/repositories"
	"chatmakere/internal/telemetry"
)

const (
	defaultMessageLimit = 50
	maxMessageLimit     = 100
)

// RoomHandler manages rooms, memberships and message history.
type RoomHandler struct {
	rooms    repositories.RoomRepository
	messages repositories.MessageRepository
	audit    *telemetry.AuditEmitter
}

func NewRoomHandler(rooms repositories.RoomRepository, messages repositories.MessageRepository, audit *telemetry.AuditEmitter) *RoomHandler {
	return &RoomHandler{rooms: rooms, messages: messages, audit: audit}
}

// CreateRoom handles POST /api/rooms. A private chat that already exists is
// returned with 200 instead of being created again.
func (h *RoomHandler) CreateRoom(c *gin.Context) {
	var req struct {
		Name      *string     `json:"name"`
		IsGroup   bool        `json:"is_group"`
		MemberIDs []uuid.UUID `json:"member_ids" binding:"required,min=1"`
		AvatarURL *string     `json:"avatar_url"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.Name != nil {
		trimmed := strings.TrimSpace(*req.Name)
		req.Name = &trimmed
		if trimmed == "" {
			req.Name = nil
		}
	}
	if req.IsGroup && req.Name == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "group rooms require a name"})
		return
	}

	userID := callerID(c)
	room, created, err := h.rooms.CreateRoom(c.Request.Context(), models.CreateRoomParams{
		Name:      req.Name,
		IsGroup:   req.IsGroup,
		AvatarURL: req.AvatarURL,
		CreatorID: userID,
		MemberIDs: req.MemberIDs,
	})
	switch {
	case errors.Is(err, repositories.ErrSelfChat),
		errors.Is(err, repositories.ErrDirectRoomSize),
		errors.Is(err, repositories.ErrUnknownMember):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case err != nil:
		log.Ctx(c.Request.Context()).Error().Err(err).Msg("create room failed")
		emitAudit(c, h.audit, "ERROR", "room_create_failed", "internal error", nil)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create room"})
		return
	}

	if !created {
		c.JSON(http.StatusOK, gin.H{"room": room, "message": "Private chat already exists."})
		return
	}

	emitAudit(c, h.audit, "INFO", "room_created", "Room created", map[string]any{
		"room_id":  room.ID.String(),
		"is_group": room.IsGroup,
		"members":  len(req.MemberIDs) + 1,
	})
	c.JSON(http.StatusCreated, gin.H{"room": room})
}

// ListRooms returns the caller's rooms, most recently active first.
func (h *RoomHandler) ListRooms(c *gin.Context) {
	rooms, err := h.rooms.ListRooms(c.Request.Context(), callerID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load rooms"})
		return
	}
	if rooms == nil {
		rooms = []models.RoomSummary{}
	}
	c.JSON(http.StatusOK, gin.H{"rooms": rooms})
}

// GetRoom handles GET /api/rooms/:roomId.
func (h *RoomHandler) GetRoom(c *gin.Context) {
	roomID, ok := h.memberRoom(c)
	if !ok {
		return
	}

	room, err := h.rooms.GetRoom(c.Request.Context(), roomID)
	if errors.Is(err, repositories.ErrRoomNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load room"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"room": room})
}

// ListMessages handles GET /api/rooms/:roomId/messages?limit=&before=.
func (h *RoomHandler) ListMessages(c *gin.Context) {
	roomID, ok := h.memberRoom(c)
	if !ok {
		return
	}

	limit := defaultMessageLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = min(parsed, maxMessageLimit)
	}

	var before *time.Time
	if raw := c.Query("before"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "before must be an RFC3339 timestamp"})
			return
		}
		before = &parsed
	}

	msgs, err := h.messages.ListMessages(c.Request.Context(), roomID, before, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// AddMembers handles POST /api/rooms/:roomId/members. Only admins of group
// rooms may add members.
func (h *RoomHandler) AddMembers(c *gin.Context) {
	roomID, ok := h.memberRoom(c)
	if !ok {
		return
	}

	var req struct {
		UserIDs []uuid.UUID `json:"user_ids" binding:"required,min=1"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	admin, err := h.rooms.IsAdmin(c.Request.Context(), roomID, callerID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "admin check failed"})
		return
	}
	if !admin {
		emitAudit(c, h.audit, "ERROR", "members_add_denied", "not allowed", map[string]any{"room_id": roomID.String()})
		c.JSON(http.StatusForbidden, gin.H{"error": "only room admins can add members"})
		return
	}

	added, err := h.rooms.AddMembers(c.Request.Context(), roomID, req.UserIDs)
	switch {
	case errors.Is(err, repositories.ErrRoomNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	case errors.Is(err, repositories.ErrNotGroupRoom), errors.Is(err, repositories.ErrUnknownMember):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not add members"})
		return
	}

	emitAudit(c, h.audit, "INFO", "members_added", "Members added", map[string]any{
		"room_id": roomID.String(),
		"added":   len(added),
	})
	if added == nil {
		added = []uuid.UUID{}
	}
	c.JSON(http.StatusOK, gin.H{"added": added})
}

// memberRoom parses :roomId and checks the caller belongs to it, answering
// the request itself when it does not.
func (h *RoomHandler) memberRoom(c *gin.Context) (uuid.UUID, bool) {
	roomID, err := uuid.Parse(c.Param("roomId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room id"})
		return uuid.Nil, false
	}

	member, err := h.rooms.IsMember(c.Request.Context(), roomID, callerID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "membership check failed"})
		return uuid.Nil, false
	}
	if !member {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a room member"})
		return uuid.Nil, false
	}
	return roomID, true
}
