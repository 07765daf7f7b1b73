package stream

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrNoSnapshot = errors.New("no live snapshot")

// SnapshotCache keeps the latest live payload per session in redis so any
// instance can answer a live query.
type SnapshotCache struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewSnapshotCache(redisClient *redis.Client, ttl time.Duration) *SnapshotCache {
	return &SnapshotCache{redis: redisClient, ttl: ttl}
}

func snapshotKey(sessionID string) string {
	return channelPrefix + sessionID + ":snapshot"
}

func (s *SnapshotCache) Save(ctx context.Context, sessionID string, payload []byte) error {
	if s == nil || s.redis == nil {
		return nil
	}
	return s.redis.Set(ctx, snapshotKey(sessionID), payload, s.ttl).Err()
}

func (s *SnapshotCache) Load(ctx context.Context, sessionID string) ([]byte, error) {
	if s == nil || s.redis == nil {
		return nil, ErrNoSnapshot
	}
	payload, err := s.redis.Get(ctx, snapshotKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoSnapshot
	}
	return payload, err
}

func (s *SnapshotCache) Delete(ctx context.Context, sessionID string) error {
	if s == nil || s.redis == nil {
		return nil
	}
	return s.redis.Del(ctx, snapshotKey(sessionID)).Err()
}
