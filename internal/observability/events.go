package observability

import (
	"context"
	"time"
)

const WSRoutingKey = "ws_events.connections"

type EventEnvelope struct {
	EventType  string      `json:"event_type"`
	EventName  string      `json:"event_name"`
	OccurredAt string      `json:"occurred_at,omitempty"`
	Payload    interface{} `json:"payload"`
}

func BuildHeaders(requestID, traceID string) map[string]string {
	headers := map[string]string{}
	if requestID != "" {
		headers["x-request-id"] = requestID
	}
	if traceID != "" {
		headers["trace_id"] = traceID
	}
	return headers
}

// WSIdentity describes who owns a websocket session in ws_events payloads.
type WSIdentity struct {
	ConnID      string
	UserID      string
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}

// PublishWSEvent emits a ws lifecycle event (ws_connect, ws_disconnect,
// ws_error) on the connections routing key.
func PublishWSEvent(ctx context.Context, name string, id WSIdentity, reason string) error {
	ws := map[string]interface{}{
		"event":       name,
		"conn_id":     id.ConnID,
		"duration_ms": time.Since(id.ConnectedAt).Milliseconds(),
	}
	if reason != "" {
		ws["reason"] = reason
	}
	payload := map[string]interface{}{
		"ws": ws,
		"identity": map[string]interface{}{
			"user_id":   id.UserID,
			"device_id": id.DeviceID,
			"ip":        id.IP,
		},
	}
	return PublishEvent(ctx, WSRoutingKey, EventEnvelope{
		EventType:  "ws_events",
		EventName:  name,
		OccurredAt: time.Now().UTC().Format(time.RFC3339Nano),
		Payload:    payload,
	}, BuildHeaders(id.RequestID, id.TraceID))
}
