package realtime

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"chatmakere/internal/apperror"
	"chatmakere/internal/models"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type inboundFrame struct {
	Event string              `json:"event"`
	Data  jsoniter.RawMessage `json:"data"`
}

type roomPayload struct {
	RoomID string `json:"roomId" validate:"required,uuid"`
}

type sendMessagePayload struct {
	RoomID      string `json:"roomId" validate:"required,uuid"`
	MessageText string `json:"message_text"`
}

type typingPayload struct {
	RoomID   string `json:"roomId" validate:"required,uuid"`
	IsTyping bool   `json:"isTyping"`
}

type messageReadPayload struct {
	MessageID string `json:"messageId" validate:"required,uuid"`
	RoomID    string `json:"roomId" validate:"required,uuid"`
}

func decodePayload(v *validator.Validate, event string, data jsoniter.RawMessage, dst any) error {
	if len(data) == 0 {
		return apperror.Validation(fmt.Sprintf("Missing payload for %s.", event))
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return apperror.Wrap(apperror.KindValidation, fmt.Sprintf("Invalid payload for %s.", event), err)
	}
	if err := v.Struct(dst); err != nil {
		return apperror.Wrap(apperror.KindValidation, fmt.Sprintf("Invalid payload for %s.", event), err)
	}
	return nil
}

func isInboundEvent(name string) bool {
	switch name {
	case models.EventJoinRoom, models.EventLeaveRoom, models.EventSendMessage, models.EventTyping, models.EventMessageRead:
		return true
	}
	return false
}

// mustUUID parses ids that already passed the uuid validation tag.
func mustUUID(s string) uuid.UUID {
	id, _ := uuid.Parse(s)
	return id
}
