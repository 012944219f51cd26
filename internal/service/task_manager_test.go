package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/makeasinger/sunoflow/internal/model"
	"github.com/makeasinger/sunoflow/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyStore wraps a store and fails Save while failSave is set.
type flakyStore struct {
	store.TaskStore
	failSave bool
	saves    int
}

func (f *flakyStore) Save(ctx context.Context, q *model.TaskQueue) error {
	f.saves++
	if f.failSave {
		return errors.New("disk full")
	}
	return f.TaskStore.Save(ctx, q)
}

func newTestTaskManager(t *testing.T, maxConcurrent int) (*TaskManager, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pending_tasks.json")
	return NewTaskManager(context.Background(), store.NewFileTaskStore(path), maxConcurrent), path
}

func TestTaskManager_AddTaskPersists(t *testing.T) {
	ctx := context.Background()
	m, path := newTestTaskManager(t, 2)

	task, err := m.AddTask(ctx, "t1", model.PromptData{Title: "Rain", Style: "lofi"}, model.GenreLofi)
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusPending, task.Status)
	assert.Equal(t, "Rain", task.Title)

	reloaded := NewTaskManager(ctx, store.NewFileTaskStore(path), 2)
	pending := reloaded.PendingTasks()
	require.Len(t, pending, 1)
	assert.Equal(t, *task, pending[0])
}

func TestTaskManager_AddTaskRejectsKnownID(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestTaskManager(t, 3)
	_, err := m.AddTask(ctx, "t1", model.PromptData{}, "")
	require.NoError(t, err)

	_, err = m.AddTask(ctx, "t1", model.PromptData{Title: "again"}, "")
	assert.ErrorIs(t, err, ErrTaskExists)
	assert.Equal(t, 1, m.ActiveCount())

	_, err = m.CompleteTask(ctx, "t1", nil)
	require.NoError(t, err)
	_, err = m.AddTask(ctx, "t1", model.PromptData{}, "")
	assert.ErrorIs(t, err, ErrTaskExists)
	assert.Empty(t, m.PendingTasks())
	assert.Len(t, m.RecentCompleted(0), 1)
}

func TestTaskManager_AddTaskDefaultTitle(t *testing.T) {
	m, _ := newTestTaskManager(t, 2)
	task, err := m.AddTask(context.Background(), "t1", model.PromptData{}, "")
	require.NoError(t, err)
	assert.Equal(t, "Untitled", task.Title)
}

func TestTaskManager_CompleteTask(t *testing.T) {
	ctx := context.Background()
	m, path := newTestTaskManager(t, 2)
	_, err := m.AddTask(ctx, "t1", model.PromptData{Title: "A"}, "")
	require.NoError(t, err)

	clips := []model.Clip{{ID: "c1", AudioURL: "https://cdn/1.mp3"}}
	done, err := m.CompleteTask(ctx, "t1", clips)
	require.NoError(t, err)
	require.NotNil(t, done)
	assert.Equal(t, model.TaskStatusCompleted, done.Status)
	assert.NotNil(t, done.CompletedAt)
	assert.Equal(t, 0, m.ActiveCount())

	reloaded := NewTaskManager(ctx, store.NewFileTaskStore(path), 2)
	recent := reloaded.RecentCompleted(10)
	require.Len(t, recent, 1)
	assert.Equal(t, clips, recent[0].Clips)
	assert.Empty(t, reloaded.PendingTasks())
}

func TestTaskManager_FailTask(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestTaskManager(t, 2)
	_, err := m.AddTask(ctx, "t1", model.PromptData{}, "")
	require.NoError(t, err)

	done, err := m.FailTask(ctx, "t1", "generation timed out")
	require.NoError(t, err)
	assert.Equal(t, model.TaskStatusFailed, done.Status)
	assert.Equal(t, "generation timed out", done.Error)

	got, ok := m.GetTask("t1")
	require.True(t, ok)
	assert.Equal(t, model.TaskStatusFailed, got.Status)
}

func TestTaskManager_UnknownIDIsNoop(t *testing.T) {
	ctx := context.Background()
	fs := &flakyStore{TaskStore: store.NewFileTaskStore(filepath.Join(t.TempDir(), "q.json"))}
	m := NewTaskManager(ctx, fs, 2)

	done, err := m.CompleteTask(ctx, "missing", nil)
	assert.NoError(t, err)
	assert.Nil(t, done)

	done, err = m.FailTask(ctx, "missing", "x")
	assert.NoError(t, err)
	assert.Nil(t, done)

	assert.Zero(t, fs.saves)
}

func TestTaskManager_SettleTwiceIsNoop(t *testing.T) {
	ctx := context.Background()
	fs := &flakyStore{TaskStore: store.NewFileTaskStore(filepath.Join(t.TempDir(), "q.json"))}
	m := NewTaskManager(ctx, fs, 2)

	_, err := m.AddTask(ctx, "t1", model.PromptData{}, "")
	require.NoError(t, err)
	first, err := m.CompleteTask(ctx, "t1", []model.Clip{{ID: "c1"}})
	require.NoError(t, err)
	require.NotNil(t, first)
	saves := fs.saves

	done, err := m.CompleteTask(ctx, "t1", []model.Clip{{ID: "c2"}})
	assert.NoError(t, err)
	assert.Nil(t, done)
	done, err = m.FailTask(ctx, "t1", "late failure")
	assert.NoError(t, err)
	assert.Nil(t, done)

	assert.Equal(t, saves, fs.saves)
	assert.Empty(t, m.PendingTasks())
	completed := m.RecentCompleted(0)
	require.Len(t, completed, 1)
	assert.Equal(t, *first, completed[0])
	assert.Equal(t, model.TaskStatusCompleted, completed[0].Status)
}

func TestTaskManager_SaveFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	fs := &flakyStore{TaskStore: store.NewFileTaskStore(filepath.Join(t.TempDir(), "q.json"))}
	m := NewTaskManager(ctx, fs, 2)

	fs.failSave = true
	_, err := m.AddTask(ctx, "t1", model.PromptData{}, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, 0, m.ActiveCount())
	assert.True(t, m.CanAddTask())
}

func TestTaskManager_CanAddTask(t *testing.T) {
	ctx := context.Background()

	t.Run("ceiling zero admits nothing", func(t *testing.T) {
		m, _ := newTestTaskManager(t, 0)
		assert.False(t, m.CanAddTask())
	})

	t.Run("ceiling one", func(t *testing.T) {
		m, _ := newTestTaskManager(t, 1)
		assert.True(t, m.CanAddTask())
		_, err := m.AddTask(ctx, "t1", model.PromptData{}, "")
		require.NoError(t, err)
		assert.False(t, m.CanAddTask())
		_, err = m.CompleteTask(ctx, "t1", nil)
		require.NoError(t, err)
		assert.True(t, m.CanAddTask())
	})

	t.Run("ceiling n", func(t *testing.T) {
		m, _ := newTestTaskManager(t, 3)
		for i, id := range []string{"a", "b", "c"} {
			assert.True(t, m.CanAddTask(), "before task %d", i)
			_, err := m.AddTask(ctx, id, model.PromptData{}, "")
			require.NoError(t, err)
		}
		assert.False(t, m.CanAddTask())
		assert.Equal(t, 3, m.ActiveCount())
	})
}

func TestTaskManager_ClearOldCompleted(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	old := now.AddDate(0, 0, -10).Format(model.TimeLayout)
	fresh := now.AddDate(0, 0, -1).Format(model.TimeLayout)
	bad := "yesterday-ish"

	fs := store.NewFileTaskStore(filepath.Join(t.TempDir(), "q.json"))
	require.NoError(t, fs.Save(ctx, &model.TaskQueue{
		Pending: []model.Task{{TaskID: "p", Status: model.TaskStatusPending}},
		Completed: []model.Task{
			{TaskID: "old", Status: model.TaskStatusCompleted, CompletedAt: &old},
			{TaskID: "fresh", Status: model.TaskStatusCompleted, CompletedAt: &fresh},
			{TaskID: "bad", Status: model.TaskStatusCompleted, CompletedAt: &bad},
			{TaskID: "none", Status: model.TaskStatusFailed},
		},
	}))

	m := NewTaskManager(ctx, fs, 2)
	m.SetClock(func() time.Time { return now })

	removed, err := m.ClearOldCompleted(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	_, ok := m.GetTask("fresh")
	assert.True(t, ok)
	_, ok = m.GetTask("bad")
	assert.True(t, ok)
	_, ok = m.GetTask("old")
	assert.False(t, ok)
	_, ok = m.GetTask("none")
	assert.False(t, ok)
	assert.Equal(t, 1, m.ActiveCount())
}

func TestTaskManager_CorruptFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "q.json")
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o644))

	m := NewTaskManager(context.Background(), store.NewFileTaskStore(path), 2)
	assert.Empty(t, m.PendingTasks())

	_, err := m.AddTask(context.Background(), "t1", model.PromptData{}, "")
	require.NoError(t, err)
	assert.Len(t, m.PendingTasks(), 1)
}

func TestTaskManager_RemoveTask(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestTaskManager(t, 2)
	_, err := m.AddTask(ctx, "t1", model.PromptData{}, "")
	require.NoError(t, err)

	removed, err := m.RemoveTask(ctx, "t1")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = m.RemoveTask(ctx, "t1")
	require.NoError(t, err)
	assert.False(t, removed)

	_, err = m.AddTask(ctx, "t2", model.PromptData{}, "")
	require.NoError(t, err)
	_, err = m.CompleteTask(ctx, "t2", nil)
	require.NoError(t, err)

	removed, err = m.RemoveTask(ctx, "t2")
	require.NoError(t, err)
	assert.False(t, removed)
	_, ok := m.GetTask("t2")
	assert.True(t, ok, "completed tasks only leave through pruning")
}

func TestTaskManager_ReserveCountsTowardCeiling(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestTaskManager(t, 2)

	require.True(t, m.Reserve())
	require.True(t, m.Reserve())
	assert.False(t, m.Reserve())
	assert.False(t, m.CanAddTask())

	_, err := m.AddTask(ctx, "t1", model.PromptData{}, "")
	require.NoError(t, err)
	m.Release()
	assert.False(t, m.CanAddTask(), "recorded task and one reservation fill the ceiling")

	m.Release()
	assert.True(t, m.CanAddTask())
	assert.Equal(t, 1, m.ActiveCount())
}

func TestTaskManager_ReserveConcurrent(t *testing.T) {
	m, _ := newTestTaskManager(t, 3)

	var wg sync.WaitGroup
	var mu sync.Mutex
	granted := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if m.Reserve() {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 3, granted)
}

func TestTaskManager_Claim(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestTaskManager(t, 2)
	_, err := m.AddTask(ctx, "t1", model.PromptData{}, "")
	require.NoError(t, err)

	assert.False(t, m.Claim("missing"))
	require.True(t, m.Claim("t1"))
	assert.False(t, m.Claim("t1"))

	m.Unclaim("t1")
	require.True(t, m.Claim("t1"))
	_, err = m.CompleteTask(ctx, "t1", nil)
	require.NoError(t, err)
	m.Unclaim("t1")
	assert.False(t, m.Claim("t1"), "settled tasks cannot be claimed")
}

func TestTaskManager_RecentCompletedOrder(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestTaskManager(t, 5)
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"first", "second", "third"} {
		ts := base.Add(time.Duration(i) * time.Hour)
		m.SetClock(func() time.Time { return ts })
		_, err := m.AddTask(ctx, id, model.PromptData{}, "")
		require.NoError(t, err)
		_, err = m.CompleteTask(ctx, id, nil)
		require.NoError(t, err)
	}

	recent := m.RecentCompleted(2)
	require.Len(t, recent, 2)
	assert.Equal(t, "third", recent[0].TaskID)
	assert.Equal(t, "second", recent[1].TaskID)
}
