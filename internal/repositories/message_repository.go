package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"chatmakere/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

// MessageRepository defines interactions for room messages.
type MessageRepository interface {
	CreateMessage(ctx context.Context, roomID, senderID uuid.UUID, text string) (models.Message, error)
	ListMessages(ctx context.Context, roomID uuid.UUID, before *time.Time, limit int) ([]models.Message, error)
	MarkRead(ctx context.Context, messageID, roomID uuid.UUID) error
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// messageRow is a message joined with its sender's public profile.
type messageRow struct {
	models.Message
	SenderUsername  sql.NullString `db:"sender_username"`
	SenderAvatarURL *string        `db:"sender_avatar_url"`
	SenderIsOnline  sql.NullBool   `db:"sender_is_online"`
}

func (row messageRow) toMessage() models.Message {
	msg := row.Message
	if row.SenderUsername.Valid {
		msg.Sender = &models.UserSummary{
			ID:        msg.SenderID,
			Username:  row.SenderUsername.String,
			AvatarURL: row.SenderAvatarURL,
			IsOnline:  row.SenderIsOnline.Bool,
		}
	}
	return msg
}

const senderColumns = `u.username AS sender_username, u.avatar_url AS sender_avatar_url, u.is_online AS sender_is_online`

// CreateMessage stores a message and returns it with sender metadata.
func (r *MessageRepo) CreateMessage(ctx context.Context, roomID, senderID uuid.UUID, text string) (models.Message, error) {
	var row messageRow
	err := r.db.GetContext(ctx, &row, `WITH m AS (
            INSERT INTO messages (id, room_id, sender_id, message_text) VALUES ($1, $2, $3, $4)
            RETURNING id, room_id, sender_id, message_text, is_read, created_at
        )
        SELECT m.id, m.room_id, m.sender_id, m.message_text, m.is_read, m.created_at, `+senderColumns+`
        FROM m LEFT JOIN users u ON u.id = m.sender_id`, uuid.New(), roomID, senderID, text)
	if err != nil {
		return models.Message{}, fmt.Errorf("create message: %w", err)
	}
	return row.toMessage(), nil
}

// ListMessages returns up to limit messages older than before (all when nil),
// oldest first.
func (r *MessageRepo) ListMessages(ctx context.Context, roomID uuid.UUID, before *time.Time, limit int) ([]models.Message, error) {
	var rows []messageRow
	err := r.db.SelectContext(ctx, &rows, `SELECT * FROM (
            SELECT m.id, m.room_id, m.sender_id, m.message_text, m.is_read, m.created_at, `+senderColumns+`
            FROM messages m
            LEFT JOIN users u ON u.id = m.sender_id
            WHERE m.room_id = $1 AND ($2::timestamptz IS NULL OR m.created_at < $2)
            ORDER BY m.created_at DESC
            LIMIT $3
        ) page ORDER BY created_at ASC`, roomID, before, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	msgs := make([]models.Message, 0, len(rows))
	for _, row := range rows {
		msgs = append(msgs, row.toMessage())
	}
	return msgs, nil
}

// MarkRead flags a message of roomID as read.
func (r *MessageRepo) MarkRead(ctx context.Context, messageID, roomID uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `UPDATE messages SET is_read = TRUE WHERE id=$1 AND room_id=$2`, messageID, roomID)
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrMessageNotFound
	}
	return nil
}
