package telemetry_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"chatmakere/internal/mocks"
	"chatmakere/internal/telemetry"
)

func TestAuditEmitterPublishesEnvelope(t *testing.T) {
	pub := new(mocks.PublisherMock)
	emitter := telemetry.NewAuditEmitter(pub, telemetry.AuditRoutingKey, "chatmakere-api", "test")
	userID := "5b0c6a1e-4a51-4a4e-9a8e-0c7a0f8b9d11"

	pub.On("Publish", mock.Anything, "audit.rooms", mock.MatchedBy(func(e telemetry.AuditEnvelope) bool {
		return e.EventType == "audit_log" &&
			e.Service == "chatmakere-api" &&
			e.Environment == "test" &&
			e.RequestID == "req-1" &&
			*e.UserID == userID &&
			e.Payload.Level == "INFO" &&
			e.Payload.Action == "room_created" &&
			e.Payload.Attrs["is_group"] == true
	}), map[string]string{"x-request-id": "req-1"}).Return(nil).Once()

	emitter.Emit(context.Background(), telemetry.AuditEvent{
		Action:    "room_created",
		Text:      "room created",
		RequestID: "req-1",
		UserID:    &userID,
		Attrs:     map[string]any{"is_group": true},
	})
	pub.AssertExpectations(t)
}

func TestAuditEmitterSwallowsPublishErrors(t *testing.T) {
	pub := new(mocks.PublisherMock)
	pub.On("Publish", mock.Anything, "audit.rooms", mock.Anything, mock.Anything).Return(assert.AnError).Once()

	telemetry.NewAuditEmitter(pub, telemetry.AuditRoutingKey, "svc", "env").
		Emit(context.Background(), telemetry.AuditEvent{Action: "members_added"})
	pub.AssertExpectations(t)
}

func TestNilAuditEmitterIsSafe(t *testing.T) {
	var emitter *telemetry.AuditEmitter
	assert.NotPanics(t, func() {
		emitter.Emit(context.Background(), telemetry.AuditEvent{Action: "noop"})
	})
}
