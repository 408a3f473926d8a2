package dialog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// RedisStore persists sessions in Redis with an idle TTL; every save resets
// the expiry, so a session dies only after the user goes quiet.
type RedisStore struct {
	redis  *redis.Client
	ttl    time.Duration
	tracer trace.Tracer
}

// NewRedisStore builds a session store. ttl must be positive.
func NewRedisStore(client *redis.Client, ttl time.Duration, tracer trace.Tracer) *RedisStore {
	if client == nil {
		panic("dialog: redis client cannot be nil")
	}
	if ttl <= 0 {
		panic("dialog: session ttl must be positive")
	}
	if tracer == nil {
		tracer = otel.Tracer("appointmentbot.internal.dialog.store")
	}
	return &RedisStore{
		redis:  client,
		ttl:    ttl,
		tracer: tracer,
	}
}

func (s *RedisStore) Load(ctx context.Context, platformUserID int64) (*Session, error) {
	ctx, span := s.tracer.Start(ctx, "dialog.load_session")
	defer span.End()

	data, err := s.redis.Get(ctx, sessionKey(platformUserID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("dialog: failed to load session: %w", err)
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("dialog: failed to decode session: %w", err)
	}
	return &session, nil
}

func (s *RedisStore) Save(ctx context.Context, session *Session) error {
	ctx, span := s.tracer.Start(ctx, "dialog.save_session")
	defer span.End()

	data, err := json.Marshal(session)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("dialog: failed to marshal session: %w", err)
	}
	if err := s.redis.Set(ctx, sessionKey(session.PlatformUserID), data, s.ttl).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("dialog: failed to persist session: %w", err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context, platformUserID int64) error {
	ctx, span := s.tracer.Start(ctx, "dialog.clear_session")
	defer span.End()

	if err := s.redis.Del(ctx, sessionKey(platformUserID)).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("dialog: failed to clear session: %w", err)
	}
	return nil
}

func sessionKey(platformUserID int64) string {
	return fmt.Sprintf("session:%d", platformUserID)
}
