package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisSessionPrefix = "relay:session:"
	redisProofPrefix   = "relay:proof:"
)

// RedisStore backs the registries with Redis, using native key expiry for
// the TTL. Sweep is a no-op: Redis evicts expired keys itself.
type RedisStore struct {
	client     redis.UniversalClient
	sessionTTL time.Duration
	proofTTL   time.Duration
}

func NewRedisStore(client redis.UniversalClient, sessionTTL, proofTTL time.Duration) (*RedisStore, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: nil redis client", ErrInvalidConfig)
	}
	if sessionTTL <= 0 || proofTTL <= 0 {
		return nil, fmt.Errorf("%w: TTLs must be > 0", ErrInvalidConfig)
	}
	return &RedisStore{client: client, sessionTTL: sessionTTL, proofTTL: proofTTL}, nil
}

func (s *RedisStore) PutSession(ctx context.Context, sess Session) error {
	return s.put(ctx, redisSessionPrefix+sess.ID, sess, s.sessionTTL)
}

func (s *RedisStore) GetSession(ctx context.Context, id string) (Session, error) {
	var sess Session
	if err := s.get(ctx, redisSessionPrefix+id, &sess, ErrSessionNotFound); err != nil {
		return Session{}, err
	}
	return sess, nil
}

func (s *RedisStore) PutProof(ctx context.Context, p ProofBundle) error {
	return s.put(ctx, redisProofPrefix+p.ID, p, s.proofTTL)
}

func (s *RedisStore) GetProof(ctx context.Context, id string) (ProofBundle, error) {
	var p ProofBundle
	if err := s.get(ctx, redisProofPrefix+id, &p, ErrProofNotFound); err != nil {
		return ProofBundle{}, err
	}
	return p, nil
}

func (s *RedisStore) Sweep(_ context.Context) (int, error) {
	return 0, nil
}

func (s *RedisStore) put(ctx context.Context, key string, v any, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("session: encode %s: %w", key, err)
	}
	if err := s.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("session: redis set %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) get(ctx context.Context, key string, v any, notFound error) error {
	raw, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return notFound
		}
		return fmt.Errorf("session: redis get %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("session: decode %s: %w", key, err)
	}
	return nil
}
