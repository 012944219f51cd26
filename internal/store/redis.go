package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/makeasinger/sunoflow/internal/model"
	"github.com/redis/go-redis/v9"
)

// RedisTaskStore keeps the queue document under a single key. SET replaces
// the value atomically, which matches the file store's whole-document rewrite.
type RedisTaskStore struct {
	client redis.Cmdable
	key    string
}

// NewRedisTaskStore creates a store using key on client.
func NewRedisTaskStore(client redis.Cmdable, key string) *RedisTaskStore {
	return &RedisTaskStore{client: client, key: key}
}

func (s *RedisTaskStore) Load(ctx context.Context) (*model.TaskQueue, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("redis get %s: %w", s.key, err)
	}

	var q model.TaskQueue
	if err := json.Unmarshal(data, &q); err != nil {
		return nil, fmt.Errorf("unmarshal task queue: %w", err)
	}
	return normalize(&q), nil
}

func (s *RedisTaskStore) Save(ctx context.Context, q *model.TaskQueue) error {
	data, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("marshal task queue: %w", err)
	}
	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", s.key, err)
	}
	return nil
}
