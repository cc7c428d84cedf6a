package ws

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"chatmakere/internal/apperror"
	"chatmakere/internal/auth"
	"chatmakere/internal/models"
	"chatmakere/internal/observability"
	"chatmakere/internal/realtime"
)

const defaultSendBuffer = 256

// ProfileLoader resolves the stored profile used for display names.
type ProfileLoader interface {
	GetProfile(ctx context.Context, userID uuid.UUID) (models.User, error)
}

type Options struct {
	SendBuffer     int
	AllowedOrigins []string
	Logger         zerolog.Logger
}

// Handler upgrades authenticated HTTP requests into realtime connections.
type Handler struct {
	core     *realtime.Core
	profiles ProfileLoader
	upgrader websocket.Upgrader
	buffer   int
	log      zerolog.Logger
}

func NewHandler(core *realtime.Core, profiles ProfileLoader, opts Options) *Handler {
	buffer := opts.SendBuffer
	if buffer <= 0 {
		buffer = defaultSendBuffer
	}
	return &Handler{
		core:     core,
		profiles: profiles,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(opts.AllowedOrigins),
		},
		buffer: buffer,
		log:    opts.Logger.With().Str("component", "ws").Logger(),
	}
}

func (h *Handler) Handle(c *gin.Context) {
	tracer := otel.Tracer("chatmakere/ws")
	ctx, span := tracer.Start(c.Request.Context(), "ws.handshake")
	defer span.End()

	identity, err := h.core.Authenticate(ctx, tokenFromRequest(c.Request))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "unauthorized")
		h.log.Debug().Err(err).Str("ip", observability.IPFromRequest(c.Request)).Msg("ws: handshake rejected")
		status := http.StatusUnauthorized
		var appErr *apperror.Error
		if errors.As(err, &appErr) {
			status = appErr.HTTPStatus()
		}
		c.JSON(status, gin.H{"error": apperror.Message(err, "Authentication failed.")})
		return
	}
	identity.Username = h.displayName(ctx, identity)
	span.SetAttributes(attribute.String("user.id", identity.UserID.String()))

	wsConn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		span.RecordError(err)
		h.log.Warn().Err(err).Str("user_id", identity.UserID.String()).Msg("ws: upgrade failed")
		return
	}

	info := realtime.ConnInfo{
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     observability.TraceIDFromContext(ctx),
		ConnectedAt: time.Now().UTC(),
	}
	client := newClient(wsConn, h.buffer, h.log)
	conn := realtime.NewConnection(identity, client, info)

	// The request context ends when this handler returns.
	connCtx := context.WithoutCancel(ctx)
	if err := h.core.Connect(connCtx, conn); err != nil {
		h.log.Error().Err(err).Str("conn_id", conn.ID).Msg("ws: connect failed")
		_ = wsConn.Close()
		return
	}
	h.publish(connCtx, "ws_connect", conn, "")

	go client.writePump()
	go h.serve(connCtx, client, conn)
}

func (h *Handler) serve(ctx context.Context, client *Client, conn *realtime.Connection) {
	readErr := client.readPump(func(data []byte) {
		_ = h.core.HandleFrame(ctx, conn, data)
	})

	reason, failed := closeReason(client, readErr)
	h.core.Disconnect(ctx, conn)
	_ = client.Close()

	if failed {
		observability.IncWSEvent("ws_error")
		h.publish(ctx, "ws_error", conn, reason)
	}
	h.publish(ctx, "ws_disconnect", conn, reason)
}

// closeReason describes why a session ended and whether it ended abnormally.
func closeReason(client *Client, readErr error) (string, bool) {
	if code, text, ok := client.closedLocally(); ok {
		if text == "" {
			text = "server_close"
		}
		return text, code != websocket.CloseNormalClosure
	}
	if readErr == nil {
		return "", false
	}
	if websocket.IsCloseError(readErr, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return "client_close", false
	}
	return readErr.Error(), true
}

func (h *Handler) publish(ctx context.Context, name string, conn *realtime.Connection, reason string) {
	id := observability.WSIdentity{
		ConnID:      conn.ID,
		UserID:      conn.UserID().String(),
		DeviceID:    conn.Info.DeviceID,
		IP:          conn.Info.IP,
		RequestID:   conn.Info.RequestID,
		TraceID:     conn.Info.TraceID,
		ConnectedAt: conn.Info.ConnectedAt,
	}
	if err := observability.PublishWSEvent(ctx, name, id, reason); err != nil {
		h.log.Warn().Err(err).Str("event", name).Str("conn_id", conn.ID).Msg("ws: failed to publish lifecycle event")
	}
}

// displayName prefers the stored username over the token's claims.
func (h *Handler) displayName(ctx context.Context, identity auth.Identity) string {
	if h.profiles != nil {
		user, err := h.profiles.GetProfile(ctx, identity.UserID)
		if err == nil && user.Username != "" {
			return user.Username
		}
		if err != nil {
			h.log.Debug().Err(err).Str("user_id", identity.UserID.String()).Msg("ws: profile lookup failed")
		}
	}
	return identity.DisplayName()
}

func tokenFromRequest(r *http.Request) string {
	if token, ok := auth.BearerToken(r.Header.Get("Authorization")); ok {
		return token
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		set[strings.TrimRight(origin, "/")] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[strings.TrimRight(origin, "/")]
		return ok
	}
}
