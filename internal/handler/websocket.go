package handler

import (
	"encoding/json"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/makeasinger/sunoflow/internal/model"
	"github.com/makeasinger/sunoflow/internal/service"
	ws "github.com/makeasinger/sunoflow/internal/websocket"
)

// RequireUpgrade rejects plain HTTP requests on websocket routes.
func RequireUpgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// TaskSocket serves GET /ws/tasks/:taskId. The first frame is the task's
// current state so a late subscriber does not miss a settled task.
func TaskSocket(hub *ws.Hub, tasks *service.TaskManager) fiber.Handler {
	return websocket.New(func(c *websocket.Conn) {
		taskID := c.Params("taskId")
		var initial []byte
		if task, ok := tasks.GetTask(taskID); ok {
			initial = taskSnapshot(task)
		}
		hub.HandleConnection(c, taskID, initial)
	})
}

func taskSnapshot(task *model.Task) []byte {
	var msg interface{}
	switch task.Status {
	case model.TaskStatusCompleted:
		msg = model.WSCompleteMessage{
			Type:   model.WSMessageTypeComplete,
			TaskID: task.TaskID,
			Clips:  task.Clips,
		}
	case model.TaskStatusFailed:
		msg = model.WSErrorMessage{
			Type:   model.WSMessageTypeError,
			TaskID: task.TaskID,
			Error:  model.WSError{Code: "JOB_FAILED", Message: task.Error},
		}
	default:
		msg = model.WSProgressMessage{
			Type:   model.WSMessageTypeProgress,
			TaskID: task.TaskID,
			Status: task.Status,
			Step:   "Waiting for generation",
		}
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return nil
	}
	return data
}
