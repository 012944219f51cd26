package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/makeasinger/sunoflow/internal/model"
)

// FileTaskStore keeps the queue in a single JSON file.
type FileTaskStore struct {
	path string
}

// NewFileTaskStore creates a store backed by path. The parent directory is
// created on first save.
func NewFileTaskStore(path string) *FileTaskStore {
	return &FileTaskStore{path: path}
}

// Path returns the backing file path.
func (s *FileTaskStore) Path() string {
	return s.path
}

// Load reads the queue file. A missing file yields ErrNotFound.
func (s *FileTaskStore) Load(_ context.Context) (*model.TaskQueue, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read task file: %w", err)
	}

	var q model.TaskQueue
	if err := json.Unmarshal(data, &q); err != nil {
		return nil, fmt.Errorf("unmarshal task file: %w", err)
	}
	return normalize(&q), nil
}

// Save rewrites the whole file through a temp file and rename, so a crash
// mid-write leaves the previous document intact.
func (s *FileTaskStore) Save(_ context.Context, q *model.TaskQueue) error {
	data, err := json.MarshalIndent(q, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal task queue: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create task dir: %w", err)
		}
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
