package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	keys    []string
	events  []any
	headers []map[string]string
	err     error
}

func (p *recordingPublisher) Publish(_ context.Context, routingKey string, event any, headers map[string]string) error {
	p.keys = append(p.keys, routingKey)
	p.events = append(p.events, event)
	p.headers = append(p.headers, headers)
	return p.err
}

func TestPublishEventWithoutPublisherIsNoop(t *testing.T) {
	SetPublisher(nil)
	assert.NoError(t, PublishEvent(context.Background(), "k", "v", nil))
}

func TestPublishWSEvent(t *testing.T) {
	pub := &recordingPublisher{}
	SetPublisher(pub)
	defer SetPublisher(nil)

	err := PublishWSEvent(context.Background(), "ws_disconnect", WSIdentity{
		ConnID:      "01HX",
		UserID:      "u-1",
		RequestID:   "req-1",
		ConnectedAt: time.Now().Add(-time.Second),
	}, "client closed")
	require.NoError(t, err)

	require.Len(t, pub.keys, 1)
	assert.Equal(t, WSRoutingKey, pub.keys[0])
	assert.Equal(t, "req-1", pub.headers[0]["x-request-id"])
	_, hasTrace := pub.headers[0]["trace_id"]
	assert.False(t, hasTrace)

	envelope, ok := pub.events[0].(EventEnvelope)
	require.True(t, ok)
	assert.Equal(t, "ws_events", envelope.EventType)
	assert.Equal(t, "ws_disconnect", envelope.EventName)
	ws := envelope.Payload.(map[string]interface{})["ws"].(map[string]interface{})
	assert.Equal(t, "client closed", ws["reason"])
	assert.GreaterOrEqual(t, ws["duration_ms"].(int64), int64(1000))
}

func TestPublishEventReturnsPublisherError(t *testing.T) {
	SetPublisher(&recordingPublisher{err: errors.New("channel closed")})
	defer SetPublisher(nil)

	assert.EqualError(t, PublishEvent(context.Background(), "k", "v", nil), "channel closed")
}

func TestRequestHelpers(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.RemoteAddr = "10.0.0.9:5123"
	assert.Equal(t, "10.0.0.9", IPFromRequest(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	req.Header.Set("X-Device-Id", "dev-1")
	req.Header.Set("X-Request-Id", "req-9")
	assert.Equal(t, "203.0.113.7", IPFromRequest(req))
	assert.Equal(t, "dev-1", DeviceIDFromRequest(req))
	assert.Equal(t, "req-9", RequestIDFromRequest(req))
}

func TestSplitFullMethod(t *testing.T) {
	service, method := splitFullMethod("/auth.AuthService/ValidateToken")
	assert.Equal(t, "auth.AuthService", service)
	assert.Equal(t, "ValidateToken", method)

	service, method = splitFullMethod("bogus")
	assert.Equal(t, "unknown", service)
	assert.Equal(t, "unknown", method)
}
