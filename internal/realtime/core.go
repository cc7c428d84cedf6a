// Package realtime implements the connection, presence, typing and room
// session layer between client sockets and the message store.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"chatmakere/internal/apperror"
	"chatmakere/internal/auth"
	"chatmakere/internal/models"
	"chatmakere/internal/observability"
)

const (
	msgNotMember      = "You are not a member of this room."
	msgEmptyMessage   = "Message text cannot be empty."
	msgSendFailed     = "Failed to send message."
	msgRateLimited    = "You are sending messages too quickly."
	msgInvalidFrame   = "Invalid message format."
	msgAuthFailed     = "Authentication error: invalid token."
	msgAuthMissing    = "Authentication error: token not provided."
	messageRoutingKey = "chat_events.messages"
)

// Gateway is the persistence surface the core depends on.
type Gateway interface {
	MembershipStore
	PresenceStore
	InsertMessage(ctx context.Context, roomID, senderID uuid.UUID, text string) (*models.Message, error)
	TouchRoom(ctx context.Context, roomID uuid.UUID) error
	MarkMessageRead(ctx context.Context, messageID, roomID uuid.UUID) error
}

// Limiter throttles message sends per user.
type Limiter interface {
	Allow(ctx context.Context, userID uuid.UUID) (bool, error)
}

// Options configures optional collaborators of the core.
type Options struct {
	Logger    zerolog.Logger
	Validator auth.TokenValidator
	Limiter   Limiter
}

// Core is the realtime event state machine. It owns the hub and registries.
type Core struct {
	hub      *Hub
	presence *PresenceRegistry
	typing   *TypingRegistry
	sessions *SessionManager
	oracle   *MembershipOracle

	gateway  Gateway
	tokens   auth.TokenValidator
	limiter  Limiter
	validate *validator.Validate
	tracer   trace.Tracer
	log      zerolog.Logger
}

// Stats summarises the in-memory state for the debug endpoint.
type Stats struct {
	Hub         HubStats `json:"hub"`
	OnlineUsers int      `json:"online_users"`
	TypingRooms int      `json:"typing_rooms"`
}

func NewCore(gateway Gateway, opts Options) *Core {
	logger := opts.Logger.With().Str("component", "realtime").Logger()
	hub := NewHub(logger)
	typing := NewTypingRegistry()
	oracle := NewMembershipOracle(gateway, logger)
	return &Core{
		hub:      hub,
		presence: NewPresenceRegistry(gateway, logger),
		typing:   typing,
		sessions: NewSessionManager(hub, oracle, typing),
		oracle:   oracle,
		gateway:  gateway,
		tokens:   opts.Validator,
		limiter:  opts.Limiter,
		validate: validator.New(),
		tracer:   otel.Tracer("chatmakere/realtime"),
		log:      logger,
	}
}

func (c *Core) Hub() *Hub                       { return c.hub }
func (c *Core) Presence() *PresenceRegistry     { return c.presence }
func (c *Core) TypingRegistry() *TypingRegistry { return c.typing }

func (c *Core) Stats() Stats {
	return Stats{
		Hub:         c.hub.Stats(),
		OnlineUsers: len(c.presence.OnlineUsers()),
		TypingRooms: c.typing.Rooms(),
	}
}

// Authenticate validates a bearer token before the transport is upgraded.
func (c *Core) Authenticate(ctx context.Context, token string) (auth.Identity, error) {
	if token == "" {
		return auth.Identity{}, apperror.Authentication(msgAuthMissing, nil)
	}
	if c.tokens == nil {
		return auth.Identity{}, apperror.Authentication(msgAuthFailed, errors.New("no token validator configured"))
	}
	identity, err := c.tokens.ValidateToken(ctx, token)
	if err != nil {
		return auth.Identity{}, apperror.Authentication(msgAuthFailed, err)
	}
	return identity, nil
}

// Connect registers an authenticated connection and announces the user when
// this is their first live connection.
func (c *Core) Connect(ctx context.Context, conn *Connection) error {
	_, span := c.tracer.Start(ctx, "realtime.connect", trace.WithAttributes(connAttrs(conn)...))
	defer span.End()

	if !conn.markAuthenticated() {
		return fmt.Errorf("connection %s is %s", conn.ID, conn.State())
	}
	c.hub.Register(conn)
	observability.IncWSActive()
	observability.IncWSEvent("connect")

	becameOnline := c.presence.AddConnection(conn.UserID(), conn.ID, func() {
		c.hub.BroadcastAll(models.Event{
			Name: models.EventUserOnline,
			Data: models.PresencePayload{UserID: conn.UserID()},
		}, conn)
	})
	span.SetAttributes(attribute.Bool("presence.became_online", becameOnline))

	c.log.Info().
		Str("conn_id", conn.ID).
		Str("user_id", conn.UserID().String()).
		Bool("became_online", becameOnline).
		Msg("realtime: connection registered")
	return nil
}

// JoinRoom subscribes conn to roomID after a membership check.
func (c *Core) JoinRoom(ctx context.Context, conn *Connection, roomID uuid.UUID) error {
	newlyJoined, err := c.sessions.Join(ctx, conn, roomID)
	if err != nil {
		c.sendError(conn, err)
		return err
	}

	c.hub.SendTo(conn, models.Event{
		Name: models.EventRoomJoined,
		Data: models.RoomJoinedPayload{RoomID: roomID},
	})
	if newlyJoined {
		c.hub.BroadcastRoom(roomID, models.Event{
			Name: models.EventUserJoinedRoom,
			Data: models.UserJoinedRoomPayload{
				RoomID:   roomID,
				UserID:   conn.UserID(),
				Username: conn.Identity.DisplayName(),
			},
		}, conn)
	}

	c.log.Debug().
		Str("conn_id", conn.ID).
		Str("room_id", roomID.String()).
		Bool("newly_joined", newlyJoined).
		Msg("realtime: room joined")
	return nil
}

func (c *Core) LeaveRoom(_ context.Context, conn *Connection, roomID uuid.UUID) error {
	if c.sessions.Leave(conn, roomID) {
		c.hub.BroadcastRoom(roomID, stoppedTyping(roomID, conn.UserID()), conn)
	}
	return nil
}

// SendMessage persists a message and fans it out to the room, the sender's
// own connection included.
func (c *Core) SendMessage(ctx context.Context, conn *Connection, roomID uuid.UUID, text string) error {
	userID := conn.UserID()

	if !c.oracle.IsMember(ctx, roomID, userID) {
		err := apperror.Authorization(msgNotMember)
		c.sendError(conn, err)
		return err
	}

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		err := apperror.Validation(msgEmptyMessage)
		c.sendError(conn, err)
		return err
	}

	if c.limiter != nil {
		allowed, err := c.limiter.Allow(ctx, userID)
		if err != nil {
			c.log.Warn().Err(err).Str("user_id", userID.String()).Msg("realtime: rate limiter unavailable, allowing send")
		} else if !allowed {
			appErr := apperror.Validation(msgRateLimited)
			c.sendError(conn, appErr)
			return appErr
		}
	}

	msg, err := c.gateway.InsertMessage(ctx, roomID, userID, trimmed)
	if err != nil {
		appErr := apperror.Persistence(msgSendFailed, err)
		c.log.Error().Err(err).
			Str("room_id", roomID.String()).
			Str("user_id", userID.String()).
			Msg("realtime: failed to persist message")
		c.sendError(conn, appErr)
		return appErr
	}
	if msg.Sender == nil {
		msg.Sender = &models.UserSummary{ID: userID, Username: conn.Identity.DisplayName(), IsOnline: true}
	}

	if err := c.gateway.TouchRoom(ctx, roomID); err != nil {
		c.log.Warn().Err(err).Str("room_id", roomID.String()).Msg("realtime: failed to update room timestamp")
	}

	c.hub.BroadcastRoom(roomID, models.Event{
		Name: models.EventReceiveMessage,
		Data: models.ReceiveMessagePayload{RoomID: roomID, Message: msg},
	}, nil)

	if c.typing.ClearUserInRoom(roomID, userID) {
		c.hub.BroadcastRoom(roomID, stoppedTyping(roomID, userID), conn)
	}

	c.publishMessageSent(ctx, conn, msg)
	return nil
}

// Typing records a typing flag change. Non-members are dropped silently.
func (c *Core) Typing(ctx context.Context, conn *Connection, roomID uuid.UUID, isTyping bool) error {
	userID := conn.UserID()
	if !c.oracle.IsMember(ctx, roomID, userID) {
		return apperror.Authorization(msgNotMember)
	}
	if !c.typing.SetTyping(roomID, userID, isTyping) {
		return nil
	}

	event := stoppedTyping(roomID, userID)
	if isTyping {
		event = models.Event{
			Name: models.EventUserTyping,
			Data: models.TypingPayload{RoomID: roomID, UserID: userID, Username: conn.Identity.DisplayName()},
		}
	}
	c.hub.BroadcastRoom(roomID, event, conn)
	return nil
}

// MessageRead marks a message read and sends a receipt to the rest of the
// room. Failures are logged and never reported to the reader.
func (c *Core) MessageRead(ctx context.Context, conn *Connection, messageID, roomID uuid.UUID) error {
	userID := conn.UserID()
	if !c.oracle.IsMember(ctx, roomID, userID) {
		return apperror.Authorization(msgNotMember)
	}
	if err := c.gateway.MarkMessageRead(ctx, messageID, roomID); err != nil {
		c.log.Warn().Err(err).
			Str("message_id", messageID.String()).
			Str("room_id", roomID.String()).
			Msg("realtime: failed to mark message read")
		return apperror.Persistence("Failed to mark message read.", err)
	}
	c.hub.BroadcastRoom(roomID, models.Event{
		Name: models.EventMessageReadReceipt,
		Data: models.ReadReceiptPayload{MessageID: messageID, RoomID: roomID, ReadBy: userID},
	}, conn)
	return nil
}

// Disconnect tears a connection down. Calling it more than once is safe.
func (c *Core) Disconnect(ctx context.Context, conn *Connection) {
	prev := conn.markClosed()
	if prev == StateClosed || prev == StateConnecting {
		return
	}

	_, span := c.tracer.Start(ctx, "realtime.disconnect", trace.WithAttributes(connAttrs(conn)...))
	defer span.End()

	for _, roomID := range c.sessions.LeaveAll(conn) {
		c.hub.BroadcastRoom(roomID, stoppedTyping(roomID, conn.UserID()), conn)
	}
	c.hub.Unregister(conn)
	observability.DecWSActive()
	observability.IncWSEvent("disconnect")

	becameOffline := c.presence.RemoveConnection(conn.UserID(), conn.ID, func() {
		c.hub.BroadcastAll(models.Event{
			Name: models.EventUserOffline,
			Data: models.PresencePayload{UserID: conn.UserID()},
		}, conn)
	})

	c.log.Info().
		Str("conn_id", conn.ID).
		Str("user_id", conn.UserID().String()).
		Bool("became_offline", becameOffline).
		Dur("duration", time.Since(conn.Info.ConnectedAt)).
		Msg("realtime: connection closed")
}

// HandleFrame decodes one inbound frame and runs it to completion. Frames on
// connections that are not yet registered, or already closed, are dropped.
func (c *Core) HandleFrame(ctx context.Context, conn *Connection, raw []byte) error {
	switch conn.State() {
	case StateConnecting, StateClosed:
		return nil
	}

	var frame inboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil || frame.Event == "" {
		appErr := apperror.Validation(msgInvalidFrame)
		c.sendError(conn, appErr)
		return appErr
	}

	name := frame.Event
	if !isInboundEvent(name) {
		name = "unknown"
	}
	ctx, span := c.tracer.Start(ctx, "realtime."+name, trace.WithAttributes(connAttrs(conn)...))
	defer span.End()
	observability.IncWSEvent(name)

	err := c.dispatch(ctx, conn, frame)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (c *Core) dispatch(ctx context.Context, conn *Connection, frame inboundFrame) error {
	switch frame.Event {
	case models.EventJoinRoom:
		var p roomPayload
		if err := c.decode(conn, frame, &p); err != nil {
			return err
		}
		return c.JoinRoom(ctx, conn, mustUUID(p.RoomID))
	case models.EventLeaveRoom:
		var p roomPayload
		if err := c.decode(conn, frame, &p); err != nil {
			return err
		}
		return c.LeaveRoom(ctx, conn, mustUUID(p.RoomID))
	case models.EventSendMessage:
		var p sendMessagePayload
		if err := c.decode(conn, frame, &p); err != nil {
			return err
		}
		return c.SendMessage(ctx, conn, mustUUID(p.RoomID), p.MessageText)
	case models.EventTyping:
		var p typingPayload
		if err := c.decode(conn, frame, &p); err != nil {
			return err
		}
		return c.Typing(ctx, conn, mustUUID(p.RoomID), p.IsTyping)
	case models.EventMessageRead:
		var p messageReadPayload
		if err := c.decode(conn, frame, &p); err != nil {
			return err
		}
		return c.MessageRead(ctx, conn, mustUUID(p.MessageID), mustUUID(p.RoomID))
	default:
		err := apperror.Validation(fmt.Sprintf("Unknown event: %s.", frame.Event))
		c.sendError(conn, err)
		return err
	}
}

func (c *Core) decode(conn *Connection, frame inboundFrame, dst any) error {
	if err := decodePayload(c.validate, frame.Event, frame.Data, dst); err != nil {
		c.sendError(conn, err)
		return err
	}
	return nil
}

// Shutdown closes every transport and flushes pending presence writes.
func (c *Core) Shutdown(ctx context.Context) error {
	conns := c.hub.Connections()
	for _, conn := range conns {
		if conn.sink != nil {
			_ = conn.sink.Close()
		}
		c.Disconnect(ctx, conn)
	}
	c.log.Info().Int("connections", len(conns)).Msg("realtime: shutdown completed")
	return c.presence.Close(ctx)
}

func (c *Core) sendError(conn *Connection, err error) {
	c.hub.SendTo(conn, models.Event{
		Name: models.EventError,
		Data: models.ErrorPayload{Message: apperror.Message(err, "Internal error.")},
	})
}

func (c *Core) publishMessageSent(ctx context.Context, conn *Connection, msg *models.Message) {
	envelope := observability.EventEnvelope{
		EventType: "chat_events",
		EventName: "message_sent",
		Payload: map[string]any{
			"message_id": msg.ID,
			"room_id":    msg.RoomID,
			"sender_id":  msg.SenderID,
			"conn_id":    conn.ID,
			"length":     len(msg.MessageText),
		},
	}
	headers := observability.BuildHeaders(conn.Info.RequestID, conn.Info.TraceID)
	if err := observability.PublishEvent(ctx, messageRoutingKey, envelope, headers); err != nil {
		c.log.Warn().Err(err).Str("message_id", msg.ID.String()).Msg("realtime: failed to publish message event")
	}
}

func stoppedTyping(roomID, userID uuid.UUID) models.Event {
	return models.Event{
		Name: models.EventUserStoppedTyping,
		Data: models.TypingPayload{RoomID: roomID, UserID: userID},
	}
}

func connAttrs(conn *Connection) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("ws.conn_id", conn.ID),
		attribute.String("enduser.id", conn.UserID().String()),
	}
}
