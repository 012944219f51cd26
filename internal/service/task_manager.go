package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/makeasinger/sunoflow/internal/model"
	"github.com/makeasinger/sunoflow/internal/store"
)

// TaskManager tracks submitted generation tasks and persists every change
// before it becomes visible. One process owns the store at a time.
type TaskManager struct {
	store         store.TaskStore
	maxConcurrent int
	now           func() time.Time

	mu       sync.RWMutex
	queue    *model.TaskQueue
	reserved int
	inFlight map[string]bool
}

// NewTaskManager loads the queue from s. An unreadable or missing queue
// starts empty; the bad document is overwritten on the next change.
func NewTaskManager(ctx context.Context, s store.TaskStore, maxConcurrent int) *TaskManager {
	m := &TaskManager{
		store:         s,
		maxConcurrent: maxConcurrent,
		now:           time.Now,
		inFlight:      make(map[string]bool),
	}
	m.queue = m.load(ctx)
	return m
}

func (m *TaskManager) load(ctx context.Context) *model.TaskQueue {
	q, err := m.store.Load(ctx)
	switch {
	case err == nil:
		log.Printf("[Tasks] Loaded %d pending, %d completed", len(q.Pending), len(q.Completed))
		return q
	case errors.Is(err, store.ErrNotFound):
		return model.NewTaskQueue()
	default:
		log.Printf("[Tasks] Could not load task queue, starting empty: %v", err)
		return model.NewTaskQueue()
	}
}

// SetClock replaces the time source used for timestamps.
func (m *TaskManager) SetClock(now func() time.Time) {
	m.now = now
}

// mutate applies fn to a copy of the queue, persists the copy and only then
// swaps it in. A failed save leaves the in-memory queue unchanged.
func (m *TaskManager) mutate(ctx context.Context, fn func(q *model.TaskQueue) bool) error {
	next := m.queue.Clone()
	if !fn(next) {
		return nil
	}
	if err := m.store.Save(ctx, next); err != nil {
		return fmt.Errorf("persist task queue: %w", err)
	}
	m.queue = next
	return nil
}

// AddTask records a newly submitted task as pending. An ID already known
// to either list is rejected with ErrTaskExists.
func (m *TaskManager) AddTask(ctx context.Context, taskID string, prompt model.PromptData, genre string) (*model.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if indexOf(m.queue.Pending, taskID) >= 0 || indexOf(m.queue.Completed, taskID) >= 0 {
		return nil, fmt.Errorf("%w: %s", ErrTaskExists, taskID)
	}

	title := prompt.Title
	if title == "" {
		title = "Untitled"
	}
	task := model.Task{
		TaskID:     taskID,
		Title:      title,
		Genre:      genre,
		PromptData: prompt,
		Status:     model.TaskStatusPending,
		CreatedAt:  m.now().Format(model.TimeLayout),
		Clips:      []model.Clip{},
	}

	err := m.mutate(ctx, func(q *model.TaskQueue) bool {
		q.Pending = append(q.Pending, task)
		return true
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[Tasks] Added %s (%s)", taskID, title)
	return &task, nil
}

// CompleteTask moves a pending task to completed with its clips. An unknown
// ID is a no-op and returns nil.
func (m *TaskManager) CompleteTask(ctx context.Context, taskID string, clips []model.Clip) (*model.Task, error) {
	if clips == nil {
		clips = []model.Clip{}
	}
	return m.finish(ctx, taskID, func(t *model.Task) {
		t.Status = model.TaskStatusCompleted
		t.Clips = clips
	})
}

// FailTask moves a pending task to completed with status failed. An unknown
// ID is a no-op and returns nil.
func (m *TaskManager) FailTask(ctx context.Context, taskID, errMsg string) (*model.Task, error) {
	return m.finish(ctx, taskID, func(t *model.Task) {
		t.Status = model.TaskStatusFailed
		t.Error = errMsg
	})
}

func (m *TaskManager) finish(ctx context.Context, taskID string, apply func(t *model.Task)) (*model.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var done *model.Task
	err := m.mutate(ctx, func(q *model.TaskQueue) bool {
		idx := indexOf(q.Pending, taskID)
		if idx < 0 {
			return false
		}
		t := q.Pending[idx]
		apply(&t)
		ts := m.now().Format(model.TimeLayout)
		t.CompletedAt = &ts

		q.Pending = append(q.Pending[:idx:idx], q.Pending[idx+1:]...)
		q.Completed = append(q.Completed, t)
		done = &t
		return true
	})
	if err != nil {
		return nil, err
	}
	if done != nil {
		log.Printf("[Tasks] %s -> %s", taskID, done.Status)
	}
	return done, nil
}

// RemoveTask drops a pending task without settling it. Finished tasks only
// leave the queue through ClearOldCompleted, so a completed ID reports false.
func (m *TaskManager) RemoveTask(ctx context.Context, taskID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := false
	err := m.mutate(ctx, func(q *model.TaskQueue) bool {
		idx := indexOf(q.Pending, taskID)
		if idx < 0 {
			return false
		}
		q.Pending = append(q.Pending[:idx:idx], q.Pending[idx+1:]...)
		removed = true
		return true
	})
	return removed, err
}

// CanAddTask reports whether another task may be submitted. Slots held by
// Reserve count as taken.
func (m *TaskManager) CanAddTask() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.queue.Pending)+m.reserved < m.maxConcurrent
}

// Reserve takes an admission slot ahead of submission. It returns false when
// the ceiling is reached. Every successful Reserve must be paired with
// Release once the task is recorded or the submission has failed.
func (m *TaskManager) Reserve() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.queue.Pending)+m.reserved >= m.maxConcurrent {
		return false
	}
	m.reserved++
	return true
}

// Release returns a slot taken by Reserve.
func (m *TaskManager) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.reserved > 0 {
		m.reserved--
	}
}

// Claim marks a pending task as being settled by the caller. Only one
// claim per task is held at a time; a second caller gets false and must
// not save the task's clips.
func (m *TaskManager) Claim(taskID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inFlight[taskID] || indexOf(m.queue.Pending, taskID) < 0 {
		return false
	}
	m.inFlight[taskID] = true
	return true
}

// Unclaim drops a claim taken by Claim.
func (m *TaskManager) Unclaim(taskID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.inFlight, taskID)
}

// ActiveCount returns the number of pending tasks.
func (m *TaskManager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.queue.Pending)
}

// MaxConcurrent returns the admission ceiling.
func (m *TaskManager) MaxConcurrent() int {
	return m.maxConcurrent
}

// PendingTasks returns a copy of the pending list in submission order.
func (m *TaskManager) PendingTasks() []model.Task {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Task, len(m.queue.Pending))
	copy(out, m.queue.Pending)
	return out
}

// RecentCompleted returns up to n finished tasks, newest first.
func (m *TaskManager) RecentCompleted(n int) []model.Task {
	m.mu.RLock()
	out := make([]model.Task, len(m.queue.Completed))
	copy(out, m.queue.Completed)
	m.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return completedAt(out[i]) > completedAt(out[j])
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// GetTask looks a task up in both lists.
func (m *TaskManager) GetTask(taskID string) (*model.Task, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if idx := indexOf(m.queue.Pending, taskID); idx >= 0 {
		t := m.queue.Pending[idx]
		return &t, true
	}
	if idx := indexOf(m.queue.Completed, taskID); idx >= 0 {
		t := m.queue.Completed[idx]
		return &t, true
	}
	return nil, false
}

// ClearOldCompleted drops finished tasks older than keepDays. Tasks without
// a completion time count as old. Tasks with an unparseable completion time
// are kept and logged.
func (m *TaskManager) ClearOldCompleted(ctx context.Context, keepDays int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().AddDate(0, 0, -keepDays)
	removed := 0

	err := m.mutate(ctx, func(q *model.TaskQueue) bool {
		kept := make([]model.Task, 0, len(q.Completed))
		for _, t := range q.Completed {
			if t.CompletedAt == nil || *t.CompletedAt == "" {
				removed++
				continue
			}
			at, err := t.CompletedTime()
			if err != nil {
				log.Printf("[Tasks] Keeping %s: bad completed_at %q: %v", t.TaskID, *t.CompletedAt, err)
				kept = append(kept, t)
				continue
			}
			if at.Before(cutoff) {
				removed++
				continue
			}
			kept = append(kept, t)
		}
		q.Completed = kept
		return removed > 0
	})
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		log.Printf("[Tasks] Pruned %d completed tasks older than %d days", removed, keepDays)
	}
	return removed, nil
}

func indexOf(tasks []model.Task, taskID string) int {
	for i := range tasks {
		if tasks[i].TaskID == taskID {
			return i
		}
	}
	return -1
}

func completedAt(t model.Task) string {
	if t.CompletedAt == nil {
		return ""
	}
	return *t.CompletedAt
}
