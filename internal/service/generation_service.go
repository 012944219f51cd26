package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"
	"github.com/makeasinger/sunoflow/internal/client"
	"github.com/makeasinger/sunoflow/internal/model"
)

const (
	TaskTypeGenerationPoll = "generation:poll"
	TaskTypeTasksPrune     = "tasks:prune"

	QueueGeneration  = "generation"
	QueueMaintenance = "maintenance"
)

// Generator is the subset of the Suno client the orchestrator needs
type Generator interface {
	Submit(ctx context.Context, req *client.GenerateMusicRequest) (*model.Job, error)
	WaitForJob(ctx context.Context, job *model.Job) ([]model.Clip, error)
	WaitForCompletion(ctx context.Context, taskID string) ([]model.Clip, error)
	GetTaskStatus(ctx context.Context, taskID string) (*client.TaskStatus, error)
	DownloadAudio(ctx context.Context, audioURL, savePath string) (int64, error)
	GetCredits(ctx context.Context) (float64, error)
}

// Enqueuer schedules background work. *asynq.Client satisfies it.
type Enqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Notifier pushes task progress to interested listeners
type Notifier interface {
	BroadcastProgress(taskID string, status model.TaskStatus, upstreamStatus, step string)
	BroadcastComplete(taskID string, clips []model.Clip, songs []model.Song)
	BroadcastError(taskID, code, message string)
}

// GenerationService runs the submit, wait and save flow on top of the Suno
// client, the task manager and the music library.
type GenerationService struct {
	suno     Generator
	tasks    *TaskManager
	music    *MusicManager
	prompts  PromptGenerator
	enqueuer Enqueuer
	notifier Notifier
}

// NewGenerationService wires the orchestrator. prompts, enqueuer and notifier
// may be nil.
func NewGenerationService(suno Generator, tasks *TaskManager, music *MusicManager, prompts PromptGenerator, enqueuer Enqueuer, notifier Notifier) *GenerationService {
	return &GenerationService{
		suno:     suno,
		tasks:    tasks,
		music:    music,
		prompts:  prompts,
		enqueuer: enqueuer,
		notifier: notifier,
	}
}

// Tasks exposes the task manager.
func (s *GenerationService) Tasks() *TaskManager {
	return s.tasks
}

// Music exposes the song library.
func (s *GenerationService) Music() *MusicManager {
	return s.music
}

// Generate submits one song. With req.Wait the call blocks until the clips
// are saved; otherwise the task is handed to the background poller and the
// response carries the pending task.
func (s *GenerationService) Generate(ctx context.Context, req *model.GenerateRequest) (*model.GenerateResponse, error) {
	if !s.tasks.Reserve() {
		return nil, fmt.Errorf("%w (%d/%d)", ErrTooManyTasks, s.tasks.ActiveCount(), s.tasks.MaxConcurrent())
	}

	musicReq := &client.GenerateMusicRequest{
		Instrumental: req.Instrumental,
		Model:        req.Model,
		CustomMode:   req.CustomMode,
	}
	prompt := model.PromptData{Theme: req.Theme}
	if req.CustomMode {
		musicReq.Prompt = req.Prompt
		musicReq.Style = req.Style
		musicReq.Title = req.Title
		prompt.Title = req.Title
		prompt.Style = req.Style
		prompt.Lyrics = req.Prompt
	} else {
		musicReq.Prompt = req.Description
		if prompt.Theme == "" {
			prompt.Theme = req.Description
		}
	}

	job, err := s.suno.Submit(ctx, musicReq)
	if err != nil {
		s.tasks.Release()
		return nil, err
	}
	if prompt.Title == "" {
		prompt.Title = job.Title
	}
	if prompt.Style == "" {
		prompt.Style = job.Style
	}

	task, err := s.tasks.AddTask(ctx, job.TaskID, prompt, req.Genre)
	s.tasks.Release()
	if err != nil {
		return nil, fmt.Errorf("task %s submitted but not recorded: %w", job.TaskID, err)
	}
	s.progress(job.TaskID, model.TaskStatusPending, model.UpstreamStatusPending, "Submitted")

	resp := &model.GenerateResponse{
		TaskID:    job.TaskID,
		Status:    model.TaskStatusPending,
		CreatedAt: job.SubmittedAt,
	}

	if !req.Wait {
		if err := s.enqueuePoll(model.PollPayload{TaskID: job.TaskID, SubmittedAt: job.SubmittedAt}); err != nil {
			log.Printf("[Generate] Could not queue poll for %s, it will be resumed on restart: %v", job.TaskID, err)
		}
		return resp, nil
	}

	clips, songs, err := s.await(ctx, task, func(ctx context.Context) ([]model.Clip, error) {
		return s.suno.WaitForJob(ctx, job)
	})
	if err != nil {
		return nil, err
	}
	resp.Status = model.TaskStatusCompleted
	resp.Clips = clips
	resp.Songs = songs
	return resp, nil
}

// GenerateFromTheme writes a prompt for the theme and generates a song from it.
func (s *GenerationService) GenerateFromTheme(ctx context.Context, req *model.ThemeGenerateRequest) (*model.GenerateResponse, error) {
	if s.prompts == nil {
		return nil, ErrNotConfigured
	}
	if !s.tasks.CanAddTask() {
		return nil, fmt.Errorf("%w (%d/%d)", ErrTooManyTasks, s.tasks.ActiveCount(), s.tasks.MaxConcurrent())
	}

	prompt, err := s.prompts.GeneratePrompt(ctx, &req.PromptRequest)
	if err != nil {
		return nil, err
	}

	return s.Generate(ctx, &model.GenerateRequest{
		Prompt:       prompt.Lyrics,
		Style:        prompt.Style,
		Title:        prompt.Title,
		Theme:        req.Theme,
		Genre:        req.Genre,
		Instrumental: req.Instrumental,
		CustomMode:   true,
		Model:        req.Model,
		Wait:         req.Wait,
	})
}

// ProcessPoll waits for a queued task and records the outcome. A task that
// is no longer pending has already been settled and is skipped.
func (s *GenerationService) ProcessPoll(ctx context.Context, p model.PollPayload) error {
	task, ok := s.tasks.GetTask(p.TaskID)
	if !ok || task.Status != model.TaskStatusPending {
		log.Printf("[Generate] Poll for %s skipped: not pending", p.TaskID)
		return nil
	}

	s.progress(p.TaskID, model.TaskStatusPending, "", "Waiting for generation")

	_, _, err := s.await(ctx, task, func(ctx context.Context) ([]model.Clip, error) {
		if p.Resume || p.SubmittedAt.IsZero() {
			return s.suno.WaitForCompletion(ctx, p.TaskID)
		}
		return s.suno.WaitForJob(ctx, &model.Job{TaskID: p.TaskID, SubmittedAt: p.SubmittedAt})
	})
	return err
}

// ResumeTask blocks until a pending task finishes, measuring the wait from now.
func (s *GenerationService) ResumeTask(ctx context.Context, taskID string) (*model.GenerateResponse, error) {
	task, ok := s.tasks.GetTask(taskID)
	if !ok {
		return nil, ErrTaskNotFound
	}
	if task.Status != model.TaskStatusPending {
		return &model.GenerateResponse{TaskID: taskID, Status: task.Status, Clips: task.Clips}, nil
	}

	clips, songs, err := s.await(ctx, task, func(ctx context.Context) ([]model.Clip, error) {
		return s.suno.WaitForCompletion(ctx, taskID)
	})
	if err != nil {
		return nil, err
	}
	return &model.GenerateResponse{TaskID: taskID, Status: model.TaskStatusCompleted, Clips: clips, Songs: songs}, nil
}

// Recover queues a poll for every task left pending by a previous run.
// Duplicate polls for the same task are collapsed by task ID.
func (s *GenerationService) Recover(ctx context.Context) (int, error) {
	if s.enqueuer == nil {
		return 0, ErrNotConfigured
	}
	queued := 0
	for _, t := range s.tasks.PendingTasks() {
		if ctx.Err() != nil {
			return queued, ctx.Err()
		}
		err := s.enqueuePoll(model.PollPayload{TaskID: t.TaskID, Resume: true})
		if err != nil && !errors.Is(err, asynq.ErrTaskIDConflict) && !errors.Is(err, asynq.ErrDuplicateTask) {
			return queued, fmt.Errorf("queue recovery poll for %s: %w", t.TaskID, err)
		}
		if err == nil {
			queued++
		}
	}
	if queued > 0 {
		log.Printf("[Generate] Recovered %d pending tasks", queued)
	}
	return queued, nil
}

// await runs wait and settles the task. Caller cancellation leaves the task
// pending so it can be resumed later. Several waiters may poll the same task
// (a resume next to a queued poll); only the one holding the claim records
// the outcome, the others report what the library already has.
func (s *GenerationService) await(ctx context.Context, task *model.Task, wait func(ctx context.Context) ([]model.Clip, error)) ([]model.Clip, []model.Song, error) {
	clips, err := wait(ctx)
	if err != nil && ctx.Err() != nil {
		return nil, nil, err
	}

	if !s.tasks.Claim(task.TaskID) {
		log.Printf("[Generate] Task %s is settled by another waiter", task.TaskID)
		if err != nil {
			return nil, nil, err
		}
		var songs []model.Song
		if s.music != nil {
			songs = s.music.SongsForTask(task.TaskID)
		}
		return clips, songs, nil
	}
	defer s.tasks.Unclaim(task.TaskID)

	if err != nil {
		if _, ferr := s.tasks.FailTask(ctx, task.TaskID, err.Error()); ferr != nil {
			log.Printf("[Generate] Could not record failure of %s: %v", task.TaskID, ferr)
		}
		s.fail(task.TaskID, err)
		return nil, nil, err
	}

	songs := s.saveClips(ctx, task, clips)

	if _, err := s.tasks.CompleteTask(ctx, task.TaskID, clips); err != nil {
		return clips, songs, fmt.Errorf("record completion of %s: %w", task.TaskID, err)
	}
	if s.notifier != nil {
		s.notifier.BroadcastComplete(task.TaskID, clips, songs)
	}
	log.Printf("[Generate] Task %s completed with %d clips", task.TaskID, len(clips))
	return clips, songs, nil
}

// saveClips downloads each clip and records it in the library. A clip that
// cannot be downloaded is still recorded with its remote URL.
func (s *GenerationService) saveClips(ctx context.Context, task *model.Task, clips []model.Clip) []model.Song {
	if s.music == nil {
		return nil
	}
	songs := make([]model.Song, 0, len(clips))
	for i, clip := range clips {
		if clip.TaskID == "" {
			clip.TaskID = task.TaskID
		}
		title := firstNonEmpty(task.PromptData.Title, clip.Title, task.Title)
		s.progress(task.TaskID, model.TaskStatusPending, model.UpstreamStatusSuccess, fmt.Sprintf("Saving clip %d/%d", i+1, len(clips)))

		audioPath := ""
		if clip.AudioURL != "" {
			path, err := s.music.AudioPath(title, clip.ID, i)
			if err == nil {
				_, err = s.suno.DownloadAudio(ctx, clip.AudioURL, path)
			}
			if err != nil {
				log.Printf("[Generate] Download of clip %s failed: %v", clip.ID, err)
			} else {
				audioPath = path
			}
		}

		song, err := s.music.SaveSong(ctx, clip, task.PromptData, audioPath, task.Genre)
		if err != nil {
			log.Printf("[Generate] Could not save clip %s: %v", clip.ID, err)
			continue
		}
		songs = append(songs, *song)
	}
	return songs
}

// RefreshAudioURL re-reads a song's task from the API and stores the
// current audio URL of its clip. Upstream URLs expire.
func (s *GenerationService) RefreshAudioURL(ctx context.Context, songID string) (*model.Song, error) {
	song, ok := s.music.GetSong(songID)
	if !ok {
		return nil, ErrSongNotFound
	}
	if song.TaskID == "" {
		return nil, fmt.Errorf("%w: song %s has no task id", ErrTaskNotFound, songID)
	}

	status, err := s.suno.GetTaskStatus(ctx, song.TaskID)
	if err != nil {
		return nil, err
	}
	for _, clip := range status.Clips {
		if clip.ID != songID || clip.AudioURL == "" {
			continue
		}
		return s.music.UpdateSong(ctx, songID, func(sg *model.Song) {
			sg.AudioURL = clip.AudioURL
			if clip.ImageURL != "" {
				sg.ImageURL = clip.ImageURL
			}
		})
	}
	return nil, fmt.Errorf("%w: clip %s not in task %s (status %s)", ErrSongNotFound, songID, song.TaskID, status.Status)
}

// Credits returns the remaining API credit balance.
func (s *GenerationService) Credits(ctx context.Context) (float64, error) {
	return s.suno.GetCredits(ctx)
}

// ListTasks returns pending tasks and up to recent finished ones.
func (s *GenerationService) ListTasks(recent int) *model.TaskListResponse {
	return &model.TaskListResponse{
		Pending:     s.tasks.PendingTasks(),
		Completed:   s.tasks.RecentCompleted(recent),
		ActiveCount: s.tasks.ActiveCount(),
		CanAdd:      s.tasks.CanAddTask(),
	}
}

// PruneTasks drops finished tasks older than keepDays.
func (s *GenerationService) PruneTasks(ctx context.Context, keepDays int) (int, error) {
	return s.tasks.ClearOldCompleted(ctx, keepDays)
}

func (s *GenerationService) enqueuePoll(p model.PollPayload) error {
	if s.enqueuer == nil {
		return ErrNotConfigured
	}
	task, err := NewPollTask(p)
	if err != nil {
		return err
	}
	_, err = s.enqueuer.Enqueue(task,
		asynq.Queue(QueueGeneration),
		asynq.TaskID("poll:"+p.TaskID),
		asynq.MaxRetry(3),
		asynq.Timeout(15*time.Minute),
		asynq.Retention(24*time.Hour),
	)
	return err
}

func (s *GenerationService) progress(taskID string, status model.TaskStatus, upstream, step string) {
	if s.notifier != nil {
		s.notifier.BroadcastProgress(taskID, status, upstream, step)
	}
}

func (s *GenerationService) fail(taskID string, err error) {
	if s.notifier != nil {
		s.notifier.BroadcastError(taskID, ErrorCode(err), err.Error())
	}
}

// ErrorCode maps an error to the API error code reported to clients.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, client.ErrGenerationTimeout):
		return "GENERATION_TIMEOUT"
	case errors.Is(err, client.ErrGenerationFailed):
		return "JOB_FAILED"
	case errors.Is(err, client.ErrSessionDenied):
		return "SESSION_EXPIRED"
	case errors.Is(err, client.ErrServiceUnavailable):
		return "SERVICE_UNAVAILABLE"
	case errors.Is(err, client.ErrTransient), errors.Is(err, client.ErrConnection):
		return "UPSTREAM_UNAVAILABLE"
	case errors.Is(err, client.ErrApplication), errors.Is(err, client.ErrNoTaskID):
		return "UPSTREAM_REJECTED"
	case errors.Is(err, ErrTooManyTasks):
		return "TOO_MANY_TASKS"
	case errors.Is(err, ErrTaskNotFound), errors.Is(err, ErrSongNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrNotConfigured):
		return "NOT_CONFIGURED"
	default:
		return "INTERNAL_ERROR"
	}
}

// NewPollTask builds the queued task that waits for p.TaskID.
func NewPollTask(p model.PollPayload) (*asynq.Task, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return asynq.NewTask(TaskTypeGenerationPoll, data), nil
}

// NewPruneTask builds the periodic task that prunes finished tasks.
func NewPruneTask(keepDays int) (*asynq.Task, error) {
	data, err := json.Marshal(model.PruneRequest{KeepDays: keepDays})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return asynq.NewTask(TaskTypeTasksPrune, data), nil
}
