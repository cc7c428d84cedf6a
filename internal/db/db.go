package db

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

// Options tunes the connection pool.
type Options struct {
	MaxOpenConns int
	MaxIdleConns int
}

// Connect opens the Postgres pool and verifies it with a ping.
func Connect(ctx context.Context, dsn string, opts Options) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	return db, nil
}

// Migrations is the ordered, idempotent schema.
var Migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
            id UUID PRIMARY KEY,
            username TEXT NOT NULL UNIQUE CHECK (char_length(username) >= 3),
            email TEXT NOT NULL DEFAULT '',
            avatar_url TEXT,
            is_online BOOLEAN NOT NULL DEFAULT FALSE,
            last_seen TIMESTAMPTZ,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
	`CREATE TABLE IF NOT EXISTS chat_rooms (
            id UUID PRIMARY KEY,
            name TEXT,
            is_group BOOLEAN NOT NULL DEFAULT FALSE,
            avatar_url TEXT,
            created_by UUID NOT NULL REFERENCES users(id),
            direct_key TEXT UNIQUE,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            CHECK (NOT is_group OR name IS NOT NULL),
            CHECK (is_group OR direct_key IS NOT NULL)
        );`,
	`CREATE TABLE IF NOT EXISTS room_members (
            room_id UUID NOT NULL REFERENCES chat_rooms(id) ON DELETE CASCADE,
            user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
            is_admin BOOLEAN NOT NULL DEFAULT FALSE,
            joined_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            PRIMARY KEY (room_id, user_id)
        );`,
	`CREATE INDEX IF NOT EXISTS room_members_user_idx ON room_members (user_id);`,
	`CREATE TABLE IF NOT EXISTS messages (
            id UUID PRIMARY KEY,
            room_id UUID NOT NULL REFERENCES chat_rooms(id) ON DELETE CASCADE,
            sender_id UUID NOT NULL REFERENCES users(id),
            message_text TEXT NOT NULL,
            is_read BOOLEAN NOT NULL DEFAULT FALSE,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
	`CREATE INDEX IF NOT EXISTS messages_room_created_idx ON messages (room_id, created_at DESC);`,
}

// Migrate applies Migrations in order.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	for i, m := range Migrations {
		if _, err := db.ExecContext(ctx, m); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	log.Info().Int("statements", len(Migrations)).Msg("database migrations applied")
	return nil
}
