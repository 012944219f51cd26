package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/hibiken/asynq"
	"github.com/makeasinger/sunoflow/internal/model"
	"github.com/makeasinger/sunoflow/internal/service"
)

// Poller is the orchestrator entry point used by the worker
type Poller interface {
	ProcessPoll(ctx context.Context, p model.PollPayload) error
	PruneTasks(ctx context.Context, keepDays int) (int, error)
}

// GenerationWorker waits for submitted generation tasks in the background
type GenerationWorker struct {
	poller          Poller
	defaultKeepDays int
}

// NewGenerationWorker creates a new generation worker
func NewGenerationWorker(poller Poller, defaultKeepDays int) *GenerationWorker {
	return &GenerationWorker{
		poller:          poller,
		defaultKeepDays: defaultKeepDays,
	}
}

// Register mounts the worker's handlers on mux.
func (w *GenerationWorker) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(service.TaskTypeGenerationPoll, w.ProcessPoll)
	mux.HandleFunc(service.TaskTypeTasksPrune, w.ProcessPrune)
}

// ProcessPoll handles one generation:poll task. Settled outcomes are final
// and not retried by the queue; a cancelled context (shutdown) is retried so
// the task resumes on the next worker.
func (w *GenerationWorker) ProcessPoll(ctx context.Context, t *asynq.Task) error {
	var p model.PollPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("failed to unmarshal poll payload: %v: %w", err, asynq.SkipRetry)
	}
	if p.TaskID == "" {
		return fmt.Errorf("poll payload without task id: %w", asynq.SkipRetry)
	}

	log.Printf("[Worker] Polling task %s (resume=%t)", p.TaskID, p.Resume)

	err := w.poller.ProcessPoll(ctx, p)
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		log.Printf("[Worker] Poll for %s interrupted: %v", p.TaskID, err)
		return err
	default:
		log.Printf("[Worker] Task %s finished with error: %v", p.TaskID, err)
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
}

// ProcessPrune handles the periodic tasks:prune task.
func (w *GenerationWorker) ProcessPrune(ctx context.Context, t *asynq.Task) error {
	req := model.PruneRequest{KeepDays: w.defaultKeepDays}
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &req); err != nil {
			return fmt.Errorf("failed to unmarshal prune payload: %v: %w", err, asynq.SkipRetry)
		}
	}

	removed, err := w.poller.PruneTasks(ctx, req.KeepDays)
	if err != nil {
		return err
	}
	log.Printf("[Worker] Pruned %d completed tasks (keep %d days)", removed, req.KeepDays)
	return nil
}

// IsSkipRetry reports whether err tells the queue not to retry.
func IsSkipRetry(err error) bool {
	return errors.Is(err, asynq.SkipRetry)
}
