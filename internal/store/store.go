// Package store persists the generation task queue.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/makeasinger/sunoflow/internal/config"
	"github.com/makeasinger/sunoflow/internal/model"
	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned by Load when nothing has been persisted yet.
var ErrNotFound = errors.New("task queue not found")

// TaskStore loads and saves the whole queue document. Implementations
// replace the stored document atomically on Save.
type TaskStore interface {
	Load(ctx context.Context) (*model.TaskQueue, error)
	Save(ctx context.Context, q *model.TaskQueue) error
}

func normalize(q *model.TaskQueue) *model.TaskQueue {
	if q.Pending == nil {
		q.Pending = []model.Task{}
	}
	if q.Completed == nil {
		q.Completed = []model.Task{}
	}
	return q
}

// Open returns the store selected by cfg.Backend. rdb is only used by the
// redis backend.
func Open(cfg *config.TasksConfig, rdb redis.Cmdable) (TaskStore, error) {
	switch cfg.Backend {
	case "", "file":
		return NewFileTaskStore(cfg.File), nil
	case "redis":
		if rdb == nil {
			return nil, fmt.Errorf("redis task store selected without a redis client")
		}
		return NewRedisTaskStore(rdb, cfg.RedisKey), nil
	default:
		return nil, fmt.Errorf("unknown task store backend %q", cfg.Backend)
	}
}
