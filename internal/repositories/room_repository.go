package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"chatmakere/internal/models"
)

var (
	ErrRoomNotFound   = errors.New("room not found")
	ErrSelfChat       = errors.New("cannot create a private chat with yourself")
	ErrDirectRoomSize = errors.New("private chats have exactly two members")
	ErrNotGroupRoom   = errors.New("members can only be added to group rooms")
	ErrUnknownMember  = errors.New("one or more users do not exist")
)

const (
	directKeyConstraint = "chat_rooms_direct_key_key"
	roomColumns         = `r.id, r.name, r.is_group, r.avatar_url, r.created_by, r.created_at, r.updated_at`
)

// RoomRepository abstracts room and membership persistence.
type RoomRepository interface {
	IsMember(ctx context.Context, roomID, userID uuid.UUID) (bool, error)
	IsAdmin(ctx context.Context, roomID, userID uuid.UUID) (bool, error)
	FindDirectRoom(ctx context.Context, userA, userB uuid.UUID) (models.Room, error)
	CreateRoom(ctx context.Context, params models.CreateRoomParams) (models.Room, bool, error)
	GetRoom(ctx context.Context, roomID uuid.UUID) (models.RoomDetail, error)
	ListRooms(ctx context.Context, userID uuid.UUID) ([]models.RoomSummary, error)
	AddMembers(ctx context.Context, roomID uuid.UUID, userIDs []uuid.UUID) ([]uuid.UUID, error)
	DirectPeer(ctx context.Context, roomID, userID uuid.UUID) (uuid.UUID, error)
	TouchRoom(ctx context.Context, roomID uuid.UUID) error
	DeleteRoom(ctx context.Context, roomID uuid.UUID) error
}

// RoomRepo is a sqlx implementation of RoomRepository.
type RoomRepo struct {
	db *sqlx.DB
}

// NewRoomRepo constructs a RoomRepo.
func NewRoomRepo(db *sqlx.DB) *RoomRepo {
	return &RoomRepo{db: db}
}

func (r *RoomRepo) IsMember(ctx context.Context, roomID, userID uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM room_members WHERE room_id=$1 AND user_id=$2)`, roomID, userID)
	return exists, err
}

func (r *RoomRepo) IsAdmin(ctx context.Context, roomID, userID uuid.UUID) (bool, error) {
	var admin bool
	err := r.db.GetContext(ctx, &admin, `SELECT EXISTS(SELECT 1 FROM room_members WHERE room_id=$1 AND user_id=$2 AND is_admin)`, roomID, userID)
	return admin, err
}

// FindDirectRoom returns the non-group room whose members are exactly the
// two users.
func (r *RoomRepo) FindDirectRoom(ctx context.Context, userA, userB uuid.UUID) (models.Room, error) {
	var room models.Room
	err := r.db.GetContext(ctx, &room, `SELECT `+roomColumns+`
        FROM chat_rooms r
        JOIN room_members m ON m.room_id = r.id
        WHERE r.is_group = FALSE
        GROUP BY r.id
        HAVING COUNT(*) = 2
           AND COUNT(*) FILTER (WHERE m.user_id IN ($1, $2)) = 2
        LIMIT 1`, userA, userB)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Room{}, ErrRoomNotFound
	}
	if err != nil {
		return models.Room{}, fmt.Errorf("find direct room: %w", err)
	}
	return room, nil
}

// CreateRoom creates a room with the creator as admin. For a private chat it
// returns the existing room and created=false when one already exists.
// Membership insert failures delete the room again.
func (r *RoomRepo) CreateRoom(ctx context.Context, params models.CreateRoomParams) (models.Room, bool, error) {
	members := uniqueMembers(params.CreatorID, params.MemberIDs)

	var directKey *string
	if !params.IsGroup {
		if len(members) == 1 {
			return models.Room{}, false, ErrSelfChat
		}
		if len(members) != 2 {
			return models.Room{}, false, ErrDirectRoomSize
		}
		existing, err := r.FindDirectRoom(ctx, members[0], members[1])
		if err == nil {
			return existing, false, nil
		}
		if !errors.Is(err, ErrRoomNotFound) {
			return models.Room{}, false, err
		}
		key := DirectKey(members[0], members[1])
		directKey = &key
	}

	var room models.Room
	err := r.db.GetContext(ctx, &room, `INSERT INTO chat_rooms (id, name, is_group, avatar_url, created_by, direct_key)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING id, name, is_group, avatar_url, created_by, created_at, updated_at`,
		uuid.New(), params.Name, params.IsGroup, params.AvatarURL, params.CreatorID, directKey)
	if isUniqueViolation(err, directKeyConstraint) {
		// The winning insert may not have its members yet.
		existing, findErr := r.directRoomByKey(ctx, *directKey)
		if findErr != nil {
			return models.Room{}, false, fmt.Errorf("resolve concurrent direct room: %w", findErr)
		}
		return existing, false, nil
	}
	if isForeignKeyViolation(err) {
		return models.Room{}, false, ErrUnknownMember
	}
	if err != nil {
		return models.Room{}, false, fmt.Errorf("create room: %w", err)
	}

	if _, err := r.insertMembers(ctx, room.ID, params.CreatorID, members); err != nil {
		if delErr := r.DeleteRoom(ctx, room.ID); delErr != nil {
			log.Error().Err(delErr).Str("room_id", room.ID.String()).Msg("failed to roll back room after membership error")
		}
		return models.Room{}, false, err
	}
	return room, true, nil
}

func (r *RoomRepo) directRoomByKey(ctx context.Context, key string) (models.Room, error) {
	var room models.Room
	err := r.db.GetContext(ctx, &room, `SELECT `+roomColumns+` FROM chat_rooms r WHERE r.direct_key=$1`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Room{}, ErrRoomNotFound
	}
	if err != nil {
		return models.Room{}, fmt.Errorf("find direct room by key: %w", err)
	}
	return room, nil
}

func (r *RoomRepo) insertMembers(ctx context.Context, roomID, adminID uuid.UUID, userIDs []uuid.UUID) ([]uuid.UUID, error) {
	added := []uuid.UUID{}
	err := r.db.SelectContext(ctx, &added, `INSERT INTO room_members (room_id, user_id, is_admin)
        SELECT $1::uuid, m, m = $2::uuid FROM unnest($3::uuid[]) AS m
        ON CONFLICT (room_id, user_id) DO NOTHING
        RETURNING user_id`, roomID, adminID, pq.StringArray(uuidStrings(userIDs)))
	if isForeignKeyViolation(err) {
		return nil, ErrUnknownMember
	}
	if err != nil {
		return nil, fmt.Errorf("insert members: %w", err)
	}
	return added, nil
}

func (r *RoomRepo) GetRoom(ctx context.Context, roomID uuid.UUID) (models.RoomDetail, error) {
	var detail models.RoomDetail
	err := r.db.GetContext(ctx, &detail.Room, `SELECT `+roomColumns+` FROM chat_rooms r WHERE r.id=$1`, roomID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.RoomDetail{}, ErrRoomNotFound
	}
	if err != nil {
		return models.RoomDetail{}, fmt.Errorf("get room: %w", err)
	}

	members, err := r.membersOf(ctx, []uuid.UUID{roomID})
	if err != nil {
		return models.RoomDetail{}, err
	}
	detail.Members = members[roomID]
	if detail.Members == nil {
		detail.Members = []models.RoomMember{}
	}
	return detail, nil
}

// ListRooms returns the user's rooms, most recently active first, with
// members, last message and the peer of private chats.
func (r *RoomRepo) ListRooms(ctx context.Context, userID uuid.UUID) ([]models.RoomSummary, error) {
	rooms := []models.RoomSummary{}
	err := r.db.SelectContext(ctx, &rooms, `SELECT `+roomColumns+`,
            CASE WHEN r.is_group THEN NULL ELSE (
                SELECT o.user_id FROM room_members o WHERE o.room_id = r.id AND o.user_id <> $1 LIMIT 1
            ) END AS peer_id
        FROM chat_rooms r
        JOIN room_members m ON m.room_id = r.id
        WHERE m.user_id = $1
        ORDER BY r.updated_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	if len(rooms) == 0 {
		return rooms, nil
	}

	ids := make([]uuid.UUID, len(rooms))
	for i := range rooms {
		ids[i] = rooms[i].ID
	}
	members, err := r.membersOf(ctx, ids)
	if err != nil {
		return nil, err
	}
	last, err := r.lastMessages(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range rooms {
		rooms[i].Members = members[rooms[i].ID]
		if rooms[i].Members == nil {
			rooms[i].Members = []models.RoomMember{}
		}
		rooms[i].LastMessage = last[rooms[i].ID]
	}
	return rooms, nil
}

type memberRow struct {
	RoomID uuid.UUID `db:"room_id"`
	models.RoomMember
}

func (r *RoomRepo) membersOf(ctx context.Context, roomIDs []uuid.UUID) (map[uuid.UUID][]models.RoomMember, error) {
	var rows []memberRow
	err := r.db.SelectContext(ctx, &rows, `SELECT rm.room_id, rm.user_id, rm.is_admin, u.username, u.avatar_url, u.is_online
        FROM room_members rm
        JOIN users u ON u.id = rm.user_id
        WHERE rm.room_id = ANY($1::uuid[])
        ORDER BY rm.joined_at`, pq.StringArray(uuidStrings(roomIDs)))
	if err != nil {
		return nil, fmt.Errorf("list room members: %w", err)
	}
	out := make(map[uuid.UUID][]models.RoomMember, len(roomIDs))
	for _, row := range rows {
		out[row.RoomID] = append(out[row.RoomID], row.RoomMember)
	}
	return out, nil
}

func (r *RoomRepo) lastMessages(ctx context.Context, roomIDs []uuid.UUID) (map[uuid.UUID]*models.Message, error) {
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs, `SELECT DISTINCT ON (room_id) id, room_id, sender_id, message_text, is_read, created_at
        FROM messages
        WHERE room_id = ANY($1::uuid[])
        ORDER BY room_id, created_at DESC`, pq.StringArray(uuidStrings(roomIDs)))
	if err != nil {
		return nil, fmt.Errorf("last messages: %w", err)
	}
	out := make(map[uuid.UUID]*models.Message, len(msgs))
	for i := range msgs {
		out[msgs[i].RoomID] = &msgs[i]
	}
	return out, nil
}

// AddMembers adds users to a group room and returns the ids actually added.
func (r *RoomRepo) AddMembers(ctx context.Context, roomID uuid.UUID, userIDs []uuid.UUID) ([]uuid.UUID, error) {
	var isGroup bool
	err := r.db.GetContext(ctx, &isGroup, `SELECT is_group FROM chat_rooms WHERE id=$1`, roomID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("add members: %w", err)
	}
	if !isGroup {
		return nil, ErrNotGroupRoom
	}
	return r.insertMembers(ctx, roomID, uuid.Nil, uniqueMembers(uuid.Nil, userIDs))
}

// DirectPeer returns the other member of a private chat.
func (r *RoomRepo) DirectPeer(ctx context.Context, roomID, userID uuid.UUID) (uuid.UUID, error) {
	var peer uuid.UUID
	err := r.db.GetContext(ctx, &peer, `SELECT m.user_id FROM room_members m
        JOIN chat_rooms r ON r.id = m.room_id
        WHERE m.room_id=$1 AND m.user_id <> $2 AND r.is_group = FALSE
        LIMIT 1`, roomID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return uuid.Nil, ErrRoomNotFound
	}
	return peer, err
}

func (r *RoomRepo) TouchRoom(ctx context.Context, roomID uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `UPDATE chat_rooms SET updated_at = NOW() WHERE id=$1`, roomID)
	if err != nil {
		return fmt.Errorf("touch room: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrRoomNotFound
	}
	return nil
}

func (r *RoomRepo) DeleteRoom(ctx context.Context, roomID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM chat_rooms WHERE id=$1`, roomID)
	return err
}

// DirectKey is the order-independent key of a private chat between a and b.
func DirectKey(a, b uuid.UUID) string {
	ids := []string{a.String(), b.String()}
	sort.Strings(ids)
	return ids[0] + ":" + ids[1]
}

// uniqueMembers returns first followed by the distinct non-nil ids of rest.
// A nil first is omitted.
func uniqueMembers(first uuid.UUID, rest []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(rest)+1)
	out := make([]uuid.UUID, 0, len(rest)+1)
	if first != uuid.Nil {
		seen[first] = true
		out = append(out, first)
	}
	for _, id := range rest {
		if id == uuid.Nil || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
