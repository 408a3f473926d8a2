package identity

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Resolver used in development and tests.
type MemoryStore struct {
	mu    sync.Mutex
	users map[int64]*User
}

// NewMemoryStore creates an empty in-memory resolver.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[int64]*User)}
}

// Resolve finds or creates the mapping under a single lock, mirroring the
// atomicity of the Postgres upsert.
func (s *MemoryStore) Resolve(ctx context.Context, profile Profile) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.users[profile.PlatformUserID]; ok {
		existing.UpdatedAt = time.Now().UTC()
		copied := *existing
		return &copied, nil
	}

	now := time.Now().UTC()
	user := &User{
		UUID:           uuid.NewString(),
		PlatformUserID: profile.PlatformUserID,
		ChatID:         profile.ChatID,
		Username:       profile.Username,
		FirstName:      profile.FirstName,
		LastName:       profile.LastName,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	s.users[profile.PlatformUserID] = user
	copied := *user
	return &copied, nil
}
