package dialog

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process session store with the same idle-TTL behavior
// as RedisStore. Meant for local runs and tests.
type MemoryStore struct {
	mu       sync.Mutex
	ttl      time.Duration
	sessions map[int64]memoryEntry
	now      func() time.Time
}

type memoryEntry struct {
	session   Session
	expiresAt time.Time
}

// NewMemoryStore builds an in-memory session store. ttl must be positive.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		panic("dialog: session ttl must be positive")
	}
	return &MemoryStore{
		ttl:      ttl,
		sessions: make(map[int64]memoryEntry),
		now:      time.Now,
	}
}

func (s *MemoryStore) Load(_ context.Context, platformUserID int64) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.sessions[platformUserID]
	if !ok {
		return nil, nil
	}
	if s.now().After(entry.expiresAt) {
		delete(s.sessions, platformUserID)
		return nil, nil
	}
	session := entry.session
	return &session, nil
}

func (s *MemoryStore) Save(_ context.Context, session *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.PlatformUserID] = memoryEntry{
		session:   *session,
		expiresAt: s.now().Add(s.ttl),
	}
	return nil
}

func (s *MemoryStore) Clear(_ context.Context, platformUserID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, platformUserID)
	return nil
}
