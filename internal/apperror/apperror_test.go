package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsKindThroughWrapping(t *testing.T) {
	base := Persistence("Failed to send message.", errors.New("connection reset"))
	wrapped := fmt.Errorf("send: %w", base)

	assert.True(t, IsKind(wrapped, KindPersistence))
	assert.False(t, IsKind(wrapped, KindValidation))
	assert.False(t, IsKind(errors.New("plain"), KindPersistence))
	assert.Equal(t, "Failed to send message.", Message(wrapped, "fallback"))
	assert.Equal(t, "fallback", Message(errors.New("plain"), "fallback"))
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusUnauthorized, Authentication("bad token", nil).HTTPStatus())
	assert.Equal(t, http.StatusForbidden, Authorization("nope").HTTPStatus())
	assert.Equal(t, http.StatusBadRequest, Validation("empty").HTTPStatus())
	assert.Equal(t, http.StatusInternalServerError, Persistence("db", nil).HTTPStatus())
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(KindPersistence, "write failed", cause)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "persistence: write failed: boom", err.Error())
}
