package repositories

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatmakere/internal/models"
)

var roomRowColumns = []string{"id", "name", "is_group", "avatar_url", "created_by", "created_at", "updated_at"}

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = raw.Close()
	})
	return sqlx.NewDb(raw, "postgres"), mock
}

func roomRow(id, createdBy uuid.UUID, isGroup bool) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows(roomRowColumns).AddRow(id.String(), nil, isGroup, nil, createdBy.String(), now, now)
}

func strPtr(s string) *string { return &s }

var (
	findDirectSQL   = regexp.QuoteMeta(`HAVING COUNT(*) = 2`)
	insertRoomSQL   = regexp.QuoteMeta(`INSERT INTO chat_rooms`)
	insertMemberSQL = regexp.QuoteMeta(`INSERT INTO room_members`)
	roomByKeySQL    = regexp.QuoteMeta(`FROM chat_rooms r WHERE r.direct_key=$1`)
	deleteRoomSQL   = regexp.QuoteMeta(`DELETE FROM chat_rooms WHERE id=$1`)
)

func TestFindDirectRoom(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRoomRepo(db)
	alice, bob, roomID := uuid.New(), uuid.New(), uuid.New()

	mock.ExpectQuery(findDirectSQL).WithArgs(alice, bob).WillReturnRows(roomRow(roomID, alice, false))
	room, err := repo.FindDirectRoom(context.Background(), alice, bob)
	require.NoError(t, err)
	assert.Equal(t, roomID, room.ID)
	assert.False(t, room.IsGroup)

	mock.ExpectQuery(findDirectSQL).WithArgs(alice, bob).WillReturnRows(sqlmock.NewRows(roomRowColumns))
	_, err = repo.FindDirectRoom(context.Background(), alice, bob)
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestCreateDirectRoomReturnsExisting(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRoomRepo(db)
	alice, bob, roomID := uuid.New(), uuid.New(), uuid.New()

	mock.ExpectQuery(findDirectSQL).WithArgs(alice, bob).WillReturnRows(roomRow(roomID, bob, false))

	room, created, err := repo.CreateRoom(context.Background(), models.CreateRoomParams{
		CreatorID: alice,
		MemberIDs: []uuid.UUID{bob},
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, roomID, room.ID)
}

func TestCreateDirectRoomResolvesConcurrentInsertByKey(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRoomRepo(db)
	alice, bob, roomID := uuid.New(), uuid.New(), uuid.New()

	mock.ExpectQuery(findDirectSQL).WithArgs(alice, bob).WillReturnRows(sqlmock.NewRows(roomRowColumns))
	mock.ExpectQuery(insertRoomSQL).
		WillReturnError(&pq.Error{Code: pqUniqueViolation, Constraint: directKeyConstraint})
	// The other request's room has no members yet, so only the key can find it.
	mock.ExpectQuery(roomByKeySQL).WithArgs(DirectKey(alice, bob)).WillReturnRows(roomRow(roomID, bob, false))

	room, created, err := repo.CreateRoom(context.Background(), models.CreateRoomParams{
		CreatorID: alice,
		MemberIDs: []uuid.UUID{bob},
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, roomID, room.ID)
}

func TestCreateDirectRoomRejectsSelfAndCrowds(t *testing.T) {
	db, _ := newMockDB(t)
	repo := NewRoomRepo(db)
	alice := uuid.New()

	_, _, err := repo.CreateRoom(context.Background(), models.CreateRoomParams{
		CreatorID: alice,
		MemberIDs: []uuid.UUID{alice},
	})
	assert.ErrorIs(t, err, ErrSelfChat)

	_, _, err = repo.CreateRoom(context.Background(), models.CreateRoomParams{
		CreatorID: alice,
		MemberIDs: []uuid.UUID{uuid.New(), uuid.New()},
	})
	assert.ErrorIs(t, err, ErrDirectRoomSize)
}

func TestCreateGroupRoomAddsMembers(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRoomRepo(db)
	alice, bob, carol, roomID := uuid.New(), uuid.New(), uuid.New(), uuid.New()

	mock.ExpectQuery(insertRoomSQL).
		WithArgs(sqlmock.AnyArg(), "team", true, nil, alice, nil).
		WillReturnRows(roomRow(roomID, alice, true))
	mock.ExpectQuery(insertMemberSQL).
		WithArgs(roomID, alice, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).
			AddRow(alice.String()).AddRow(bob.String()).AddRow(carol.String()))

	room, created, err := repo.CreateRoom(context.Background(), models.CreateRoomParams{
		Name:      strPtr("team"),
		IsGroup:   true,
		CreatorID: alice,
		MemberIDs: []uuid.UUID{bob, carol, bob},
	})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, roomID, room.ID)
}

func TestCreateRoomDeletesRoomWhenMembershipFails(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRoomRepo(db)
	alice, ghost, roomID := uuid.New(), uuid.New(), uuid.New()

	mock.ExpectQuery(insertRoomSQL).WillReturnRows(roomRow(roomID, alice, true))
	mock.ExpectQuery(insertMemberSQL).
		WillReturnError(&pq.Error{Code: pqForeignKeyViolation, Constraint: "room_members_user_id_fkey"})
	mock.ExpectExec(deleteRoomSQL).WithArgs(roomID).WillReturnResult(sqlmock.NewResult(0, 1))

	_, created, err := repo.CreateRoom(context.Background(), models.CreateRoomParams{
		Name:      strPtr("team"),
		IsGroup:   true,
		CreatorID: alice,
		MemberIDs: []uuid.UUID{ghost},
	})
	assert.ErrorIs(t, err, ErrUnknownMember)
	assert.False(t, created)
}

func TestAddMembersRequiresGroupRoom(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRoomRepo(db)
	roomID := uuid.New()
	isGroupSQL := regexp.QuoteMeta(`SELECT is_group FROM chat_rooms WHERE id=$1`)

	mock.ExpectQuery(isGroupSQL).WithArgs(roomID).
		WillReturnRows(sqlmock.NewRows([]string{"is_group"}).AddRow(false))
	_, err := repo.AddMembers(context.Background(), roomID, []uuid.UUID{uuid.New()})
	assert.ErrorIs(t, err, ErrNotGroupRoom)

	mock.ExpectQuery(isGroupSQL).WithArgs(roomID).WillReturnRows(sqlmock.NewRows([]string{"is_group"}))
	_, err = repo.AddMembers(context.Background(), roomID, []uuid.UUID{uuid.New()})
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestMarkReadIsScopedToRoom(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMessageRepo(db)
	msgID, roomID, otherRoom := uuid.New(), uuid.New(), uuid.New()
	markSQL := regexp.QuoteMeta(`UPDATE messages SET is_read = TRUE WHERE id=$1 AND room_id=$2`)

	mock.ExpectExec(markSQL).WithArgs(msgID, roomID).WillReturnResult(sqlmock.NewResult(0, 1))
	assert.NoError(t, repo.MarkRead(context.Background(), msgID, roomID))

	mock.ExpectExec(markSQL).WithArgs(msgID, otherRoom).WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, repo.MarkRead(context.Background(), msgID, otherRoom), ErrMessageNotFound)
}
