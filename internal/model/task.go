package model

import (
	"fmt"
	"time"
)

// TaskStatus is the local lifecycle state of a generation task
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
)

// TimeLayout is the layout used for persisted task timestamps.
const TimeLayout = time.RFC3339Nano

// PromptData holds the text that was sent to the generator. The task queue
// stores it as-is and never interprets it.
type PromptData struct {
	Title  string `json:"title,omitempty"`
	Style  string `json:"style,omitempty"`
	Lyrics string `json:"lyrics,omitempty"`
	Theme  string `json:"theme,omitempty"`
}

// Task is a persisted generation task. Timestamps are kept as strings so a
// single hand-edited or truncated entry does not invalidate the whole file.
type Task struct {
	TaskID      string     `json:"task_id"`
	Title       string     `json:"title"`
	Genre       string     `json:"genre"`
	PromptData  PromptData `json:"prompt_data"`
	Status      TaskStatus `json:"status"`
	CreatedAt   string     `json:"created_at"`
	CompletedAt *string    `json:"completed_at"`
	Clips       []Clip     `json:"clips"`
	Error       string     `json:"error,omitempty"`
}

// CompletedTime parses CompletedAt.
func (t *Task) CompletedTime() (time.Time, error) {
	if t.CompletedAt == nil || *t.CompletedAt == "" {
		return time.Time{}, fmt.Errorf("task %s has no completion time", t.TaskID)
	}
	return time.Parse(TimeLayout, *t.CompletedAt)
}

// TaskQueue is the document persisted by the task store.
type TaskQueue struct {
	Pending   []Task `json:"pending"`
	Completed []Task `json:"completed"`
}

// NewTaskQueue returns an empty queue with non-nil lists.
func NewTaskQueue() *TaskQueue {
	return &TaskQueue{Pending: []Task{}, Completed: []Task{}}
}

// Clone returns a deep-enough copy for copy-on-write mutation.
func (q *TaskQueue) Clone() *TaskQueue {
	out := &TaskQueue{
		Pending:   make([]Task, len(q.Pending)),
		Completed: make([]Task, len(q.Completed)),
	}
	copy(out.Pending, q.Pending)
	copy(out.Completed, q.Completed)
	return out
}
