package identity

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

//go:embed schema.sql
var schemaSQL string

// PostgresStore implements Resolver on top of PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an open database handle.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	if db == nil {
		panic("identity: db cannot be nil")
	}
	return &PostgresStore{db: db}
}

// Migrate applies the identity schema. Statements are idempotent.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("identity: migrate: %w", err)
	}
	return nil
}

// Resolve finds or creates the mapping in a single atomic statement. The
// upsert guarantees concurrent first contacts converge on one row.
func (s *PostgresStore) Resolve(ctx context.Context, profile Profile) (*User, error) {
	now := time.Now().UTC()
	user := User{
		PlatformUserID: profile.PlatformUserID,
		ChatID:         profile.ChatID,
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO bot_users (
			user_uuid, platform_user_id, chat_id, username, first_name, last_name,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		ON CONFLICT (platform_user_id) DO UPDATE SET updated_at = EXCLUDED.updated_at
		RETURNING user_uuid, username, first_name, last_name, created_at, updated_at
	`, uuid.NewString(), profile.PlatformUserID, profile.ChatID,
		profile.Username, profile.FirstName, profile.LastName, now,
	).Scan(&user.UUID, &user.Username, &user.FirstName, &user.LastName,
		&user.CreatedAt, &user.UpdatedAt)

	if err != nil {
		return nil, fmt.Errorf("%w: resolve platform user %d: %v", ErrUnavailable, profile.PlatformUserID, err)
	}
	return &user, nil
}
