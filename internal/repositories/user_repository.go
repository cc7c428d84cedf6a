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

var (
	ErrUserNotFound  = errors.New("user not found")
	ErrUsernameTaken = errors.New("username already taken")
	ErrProfileExists = errors.New("profile already exists")
)

const (
	usernameConstraint = "users_username_key"
	userColumns        = `id, username, email, avatar_url, is_online, last_seen, created_at`
)

// UserRepository abstracts chat profile persistence.
type UserRepository interface {
	CreateUser(ctx context.Context, user models.User) (models.User, error)
	GetUser(ctx context.Context, userID uuid.UUID) (models.User, error)
	UpdateProfile(ctx context.Context, userID uuid.UUID, username, avatarURL *string) (models.User, error)
	SearchUsers(ctx context.Context, query string, excludeID uuid.UUID, limit int) ([]models.UserSummary, error)
	SetUserOnline(ctx context.Context, userID uuid.UUID, online bool, seenAt time.Time) error
}

// UserRepo is a sqlx implementation of UserRepository.
type UserRepo struct {
	db *sqlx.DB
}

// NewUserRepo constructs a UserRepo.
func NewUserRepo(db *sqlx.DB) *UserRepo {
	return &UserRepo{db: db}
}

// CreateUser inserts the profile for an identity issued by the auth provider.
func (r *UserRepo) CreateUser(ctx context.Context, user models.User) (models.User, error) {
	var created models.User
	err := r.db.GetContext(ctx, &created,
		`INSERT INTO users (id, username, email, avatar_url) VALUES ($1, $2, $3, $4) RETURNING `+userColumns,
		user.ID, user.Username, user.Email, user.AvatarURL)
	switch {
	case isUniqueViolation(err, usernameConstraint):
		return models.User{}, ErrUsernameTaken
	case isUniqueViolation(err, ""):
		return models.User{}, ErrProfileExists
	case err != nil:
		return models.User{}, fmt.Errorf("create user: %w", err)
	}
	return created, nil
}

func (r *UserRepo) GetUser(ctx context.Context, userID uuid.UUID) (models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, `SELECT `+userColumns+` FROM users WHERE id=$1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	if err != nil {
		return models.User{}, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

// UpdateProfile changes only the fields that are non-nil.
func (r *UserRepo) UpdateProfile(ctx context.Context, userID uuid.UUID, username, avatarURL *string) (models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, `UPDATE users SET
            username = COALESCE($2, username),
            avatar_url = COALESCE($3, avatar_url)
        WHERE id=$1 RETURNING `+userColumns, userID, username, avatarURL)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return models.User{}, ErrUserNotFound
	case isUniqueViolation(err, usernameConstraint):
		return models.User{}, ErrUsernameTaken
	case err != nil:
		return models.User{}, fmt.Errorf("update profile: %w", err)
	}
	return user, nil
}

// SearchUsers matches usernames case-insensitively, excluding the caller.
func (r *UserRepo) SearchUsers(ctx context.Context, query string, excludeID uuid.UUID, limit int) ([]models.UserSummary, error) {
	users := []models.UserSummary{}
	err := r.db.SelectContext(ctx, &users, `SELECT id, username, avatar_url, is_online FROM users
        WHERE username ILIKE '%' || $1 || '%' AND id <> $2
        ORDER BY username
        LIMIT $3`, escapeLike(query), excludeID, limit)
	if err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}
	return users, nil
}

func (r *UserRepo) SetUserOnline(ctx context.Context, userID uuid.UUID, online bool, seenAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE users SET is_online=$2, last_seen=$3 WHERE id=$1`, userID, online, seenAt)
	if err != nil {
		return fmt.Errorf("set user online: %w", err)
	}
	return nil
}

func escapeLike(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r == '%' || r == '_' || r == '\\' {
			out = append(out, '\\')
		}
		out = append(out, r)
	}
	return string(out)
}
