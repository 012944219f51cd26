package websocket

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/makeasinger/sunoflow/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, c *Client) []byte {
	t.Helper()
	select {
	case msg := <-c.Send:
		return msg
	case <-time.After(time.Second):
		t.Fatal("no message received")
		return nil
	}
}

func TestHub_BroadcastToTaskSubscribers(t *testing.T) {
	h := NewHub()
	go h.Run()

	watcher := &Client{TaskID: "task-1", Send: make(chan []byte, 4)}
	other := &Client{TaskID: "task-2", Send: make(chan []byte, 4)}
	h.Register(watcher)
	h.Register(other)

	h.BroadcastProgress("task-1", model.TaskStatusPending, "TEXT_SUCCESS", "Waiting")

	var progress model.WSProgressMessage
	require.NoError(t, json.Unmarshal(receive(t, watcher), &progress))
	assert.Equal(t, model.WSMessageTypeProgress, progress.Type)
	assert.Equal(t, "TEXT_SUCCESS", progress.UpstreamStatus)
	assert.Equal(t, 1, h.ClientCount("task-1"))

	h.BroadcastError("task-1", "GENERATION_TIMEOUT", "generation timed out")
	var failure model.WSErrorMessage
	require.NoError(t, json.Unmarshal(receive(t, watcher), &failure))
	assert.Equal(t, "GENERATION_TIMEOUT", failure.Error.Code)

	select {
	case <-other.Send:
		t.Fatal("unrelated task received an event")
	default:
	}
}

func TestHub_UnregisterClosesChannel(t *testing.T) {
	h := NewHub()
	go h.Run()

	c := &Client{TaskID: "task-1", Send: make(chan []byte, 1)}
	h.Register(c)
	h.Unregister(c)

	_, ok := <-c.Send
	assert.False(t, ok)
	assert.Zero(t, h.ClientCount("task-1"))
}

func TestHub_BroadcastComplete(t *testing.T) {
	h := NewHub()
	go h.Run()

	c := &Client{TaskID: "task-1", Send: make(chan []byte, 1)}
	h.Register(c)
	h.BroadcastComplete("task-1", []model.Clip{{ID: "a"}}, nil)

	var done model.WSCompleteMessage
	require.NoError(t, json.Unmarshal(receive(t, c), &done))
	assert.Equal(t, "task-1", done.TaskID)
	require.Len(t, done.Clips, 1)
}

func TestHub_SlowReaderIsDropped(t *testing.T) {
	h := NewHub()
	go h.Run()

	c := &Client{TaskID: "task-1", Send: make(chan []byte, 1)}
	h.Register(c)
	h.BroadcastProgress("task-1", model.TaskStatusPending, "", "one")
	h.BroadcastProgress("task-1", model.TaskStatusPending, "", "two")

	assert.Eventually(t, func() bool { return h.ClientCount("task-1") == 0 }, time.Second, 5*time.Millisecond)

	// a late pong after the hub dropped the client must not panic
	assert.NotPanics(t, func() {
		assert.False(t, c.Deliver([]byte(`{"type":"pong"}`)))
	})

	<-c.Send
	_, ok := <-c.Send
	assert.False(t, ok)
}
