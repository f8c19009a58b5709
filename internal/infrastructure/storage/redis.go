package storage

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"TimelineWatch/internal/domain"
	"TimelineWatch/internal/ports"
)

// DefaultRedisKey is the set holding processed post ids.
const DefaultRedisKey = "timelinewatch:processed"

// RedisStore keeps processed ids in one Redis set. Every write refreshes the set TTL,
// so ids expire only after a quiet period.
type RedisStore struct {
	client *goredis.Client
	key    string
	ttl    time.Duration
}

var _ ports.ProcessedStore = (*RedisStore)(nil)

// NewRedisStore builds a store; a zero ttl keeps ids forever.
func NewRedisStore(client *goredis.Client, key string, ttl time.Duration) *RedisStore {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisStore{client: client, key: key, ttl: ttl}
}

// AlreadyProcessed checks all ids in one round trip.
func (s *RedisStore) AlreadyProcessed(ctx context.Context, ids []string) (map[string]bool, error) {
	result := make(map[string]bool)
	if s.client == nil || len(ids) == 0 {
		return result, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*goredis.BoolCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.SIsMember(ctx, s.key, id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("redis processed lookup: %w", err)
	}

	for i, cmd := range cmds {
		if cmd.Val() {
			result[ids[i]] = true
		}
	}
	return result, nil
}

// MarkProcessed adds the post id to the set.
func (s *RedisStore) MarkProcessed(ctx context.Context, post domain.Post) error {
	if s.client == nil {
		return nil
	}

	pipe := s.client.TxPipeline()
	pipe.SAdd(ctx, s.key, post.ID)
	if s.ttl > 0 {
		pipe.Expire(ctx, s.key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis mark processed %s: %w", post.ID, err)
	}
	return nil
}
