package telemetry

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Publisher is the broker side of the audit emitter.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any, headers map[string]string) error
}

const AuditRoutingKey = "audit.rooms"

type AuditEmitter struct {
	publisher   Publisher
	routingKey  string
	service     string
	environment string
}

type AuditEnvelope struct {
	SchemaVersion int          `json:"schema_version"`
	EventType     string       `json:"event_type"`
	OccurredAt    string       `json:"occurred_at"`
	Service       string       `json:"service"`
	Environment   string       `json:"environment"`
	RequestID     string       `json:"request_id"`
	UserID        *string      `json:"user_id,omitempty"`
	Payload       AuditPayload `json:"payload"`
}

type AuditPayload struct {
	Level  string         `json:"level"`
	Action string         `json:"action"`
	Text   string         `json:"text"`
	Attrs  map[string]any `json:"attrs,omitempty"`
}

// AuditEvent is one administrative action to record.
type AuditEvent struct {
	Level     string
	Action    string
	Text      string
	RequestID string
	UserID    *string
	Attrs     map[string]any
}

func NewAuditEmitter(publisher Publisher, routingKey, service, environment string) *AuditEmitter {
	return &AuditEmitter{
		publisher:   publisher,
		routingKey:  routingKey,
		service:     service,
		environment: environment,
	}
}

// Emit publishes the event. Publish failures are logged, never returned.
func (e *AuditEmitter) Emit(ctx context.Context, event AuditEvent) {
	if e == nil || e.publisher == nil {
		return
	}
	if event.Level == "" {
		event.Level = "INFO"
	}

	envelope := AuditEnvelope{
		SchemaVersion: 1,
		EventType:     "audit_log",
		OccurredAt:    time.Now().UTC().Format(time.RFC3339Nano),
		Service:       e.service,
		Environment:   e.environment,
		RequestID:     event.RequestID,
		UserID:        event.UserID,
		Payload: AuditPayload{
			Level:  event.Level,
			Action: event.Action,
			Text:   event.Text,
			Attrs:  event.Attrs,
		},
	}
	log.Debug().Str("action", event.Action).Str("request_id", event.RequestID).Msg("audit emit")

	headers := map[string]string{}
	if event.RequestID != "" {
		headers["x-request-id"] = event.RequestID
	}
	if err := e.publisher.Publish(ctx, e.routingKey, envelope, headers); err != nil {
		log.Warn().Err(err).Str("action", event.Action).Msg("audit publish failed")
	}
}
