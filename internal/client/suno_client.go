package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/makeasinger/sunoflow/internal/config"
	"github.com/makeasinger/sunoflow/internal/model"
)

const (
	submitTimeout   = 120 * time.Second
	statusTimeout   = 60 * time.Second
	downloadTimeout = 60 * time.Second

	defaultStyle = "pop, catchy"
	defaultTitle = "Untitled"
)

// SunoClient submits and polls generation jobs on the sunoapi.org API
type SunoClient struct {
	retry        *RetryClient
	downloader   *http.Client
	baseURL      string
	apiKey       string
	callbackURL  string
	defaultModel model.SunoModel
	pollInterval time.Duration
	maxWait      time.Duration

	now   func() time.Time
	sleep Sleeper
}

// GenerateMusicRequest represents the request for music generation.
// In custom mode Prompt holds the lyrics; otherwise it is a free-text
// description and Style/Title are ignored by the API.
type GenerateMusicRequest struct {
	Prompt       string
	Style        string
	Title        string
	Instrumental bool
	Model        model.SunoModel
	CustomMode   bool
}

// GenerateResult is the outcome of Generate: clips when waited on, or just
// the pending job handle.
type GenerateResult struct {
	Job   *model.Job
	Clips []model.Clip
}

// TaskStatus is one record-info poll, normalised
type TaskStatus struct {
	TaskID       string
	Status       string
	Clips        []model.Clip
	ErrorMessage string
}

// Terminal reports whether no further transitions will happen.
func (s *TaskStatus) Terminal() bool {
	return s.Status == model.UpstreamStatusSuccess || isFailedStatus(s.Status)
}

// generatePayload is the wire body of POST /api/v1/generate
type generatePayload struct {
	CustomMode   bool   `json:"customMode"`
	Instrumental bool   `json:"instrumental"`
	Model        string `json:"model"`
	CallBackURL  string `json:"callBackUrl"`
	Prompt       string `json:"prompt"`
	Style        string `json:"style,omitempty"`
	Title        string `json:"title,omitempty"`
}

// taskIDField accepts both "abc" and {"taskId":"abc"}
type taskIDField string

func (t *taskIDField) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*t = taskIDField(s)
		return nil
	}
	var obj struct {
		TaskID string `json:"taskId"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return fmt.Errorf("unexpected task id shape: %s", truncate(string(b), 100))
	}
	*t = taskIDField(obj.TaskID)
	return nil
}

// recordInfo is the data payload of GET /api/v1/generate/record-info
type recordInfo struct {
	TaskID       string  `json:"taskId"`
	Status       string  `json:"status"`
	ErrorMessage *string `json:"errorMessage"`
	Response     *struct {
		SunoData []sunoItem `json:"sunoData"`
	} `json:"response"`
}

// sunoItem is one clip as returned upstream. The render pipeline fills
// either the primary or the source URL fields, never reliably both.
type sunoItem struct {
	ID             string   `json:"id"`
	Title          string   `json:"title"`
	AudioURL       string   `json:"audioUrl"`
	SourceAudioURL string   `json:"sourceAudioUrl"`
	ImageURL       string   `json:"imageUrl"`
	SourceImageURL string   `json:"sourceImageUrl"`
	Duration       *float64 `json:"duration"`
	Tags           string   `json:"tags"`
	Prompt         string   `json:"prompt"`
	ModelName      string   `json:"modelName"`
}

func (it sunoItem) toClip(taskID string) model.Clip {
	clip := model.Clip{
		ID:        it.ID,
		Title:     it.Title,
		AudioURL:  firstNonEmpty(it.AudioURL, it.SourceAudioURL),
		ImageURL:  firstNonEmpty(it.ImageURL, it.SourceImageURL),
		Status:    model.ClipStatusComplete,
		Tags:      it.Tags,
		Prompt:    it.Prompt,
		TaskID:    taskID,
		ModelName: it.ModelName,
	}
	if it.Duration != nil {
		clip.Duration = *it.Duration
	}
	return clip
}

// NewSunoClient creates a new Suno API client
func NewSunoClient(cfg *config.SunoConfig) *SunoClient {
	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+cfg.APIKey)

	httpClient := &http.Client{Timeout: submitTimeout}

	callbackURL := cfg.CallbackURL
	if callbackURL == "" {
		callbackURL = "https://webhook.site/dummy"
	}
	defaultModel := model.SunoModel(cfg.Model)
	if defaultModel == "" {
		defaultModel = model.ModelV4
	}

	return &SunoClient{
		retry:        NewRetryClient(httpClient, headers, cfg.MaxRetries, cfg.BackoffUnit),
		downloader:   &http.Client{Timeout: 10 * time.Minute},
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:       cfg.APIKey,
		callbackURL:  callbackURL,
		defaultModel: defaultModel,
		pollInterval: cfg.PollInterval,
		maxWait:      cfg.MaxWait,
		now:          time.Now,
		sleep:        sleepContext,
	}
}

// SetClock replaces the wall clock and the sleep used by polling and backoff.
func (c *SunoClient) SetClock(now func() time.Time, sleep Sleeper) {
	c.now = now
	c.sleep = sleep
	c.retry.SetSleeper(sleep)
}

// IsConfigured returns true if the client has valid configuration
func (c *SunoClient) IsConfigured() bool {
	return c.apiKey != ""
}

// DefaultModel returns the model used when a request names none.
func (c *SunoClient) DefaultModel() model.SunoModel {
	return c.defaultModel
}

// Submit creates a generation job and returns its handle. A missing task
// identifier in the response is a permanent error.
func (c *SunoClient) Submit(ctx context.Context, req *GenerateMusicRequest) (*model.Job, error) {
	m := req.Model
	if m == "" {
		m = c.defaultModel
	}

	payload := generatePayload{
		CustomMode:   req.CustomMode,
		Instrumental: req.Instrumental,
		Model:        string(m),
		CallBackURL:  c.callbackURL,
		Prompt:       req.Prompt,
	}
	if req.CustomMode {
		payload.Style = firstNonEmpty(req.Style, defaultStyle)
		payload.Title = firstNonEmpty(req.Title, defaultTitle)
	}

	submittedAt := c.now()
	data, err := c.retry.Do(ctx, http.MethodPost, c.baseURL+"/api/v1/generate", payload, submitTimeout)
	if err != nil {
		return nil, err
	}

	var taskID taskIDField
	if len(data) > 0 && string(data) != "null" {
		if err := json.Unmarshal(data, &taskID); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNoTaskID, err)
		}
	}
	if taskID == "" {
		return nil, ErrNoTaskID
	}

	log.Printf("[Suno API] Submitted task %s (model=%s, custom=%t)", taskID, m, req.CustomMode)

	return &model.Job{
		TaskID:       string(taskID),
		Prompt:       req.Prompt,
		Style:        payload.Style,
		Title:        payload.Title,
		Instrumental: req.Instrumental,
		Model:        m,
		CustomMode:   req.CustomMode,
		SubmittedAt:  submittedAt,
	}, nil
}

// Generate submits lyrics in custom mode and, when wait is set, blocks until
// the job reaches a terminal state.
func (c *SunoClient) Generate(ctx context.Context, req *GenerateMusicRequest, wait bool) (*GenerateResult, error) {
	job, err := c.Submit(ctx, req)
	if err != nil {
		return nil, err
	}
	if !wait {
		return &GenerateResult{Job: job}, nil
	}
	clips, err := c.WaitForJob(ctx, job)
	if err != nil {
		return &GenerateResult{Job: job}, err
	}
	return &GenerateResult{Job: job, Clips: clips}, nil
}

// GenerateWithDescription lets the service write lyrics and style from a
// short description.
func (c *SunoClient) GenerateWithDescription(ctx context.Context, description string, instrumental bool, m model.SunoModel, wait bool) (*GenerateResult, error) {
	return c.Generate(ctx, &GenerateMusicRequest{
		Prompt:       description,
		Instrumental: instrumental,
		Model:        m,
		CustomMode:   false,
	}, wait)
}

// GetTaskStatus performs a single record-info poll
func (c *SunoClient) GetTaskStatus(ctx context.Context, taskID string) (*TaskStatus, error) {
	endpoint := fmt.Sprintf("%s/api/v1/generate/record-info?taskId=%s", c.baseURL, url.QueryEscape(taskID))
	data, err := c.retry.Do(ctx, http.MethodGet, endpoint, nil, statusTimeout)
	if err != nil {
		return nil, err
	}

	var info recordInfo
	if len(data) > 0 && string(data) != "null" {
		if err := json.Unmarshal(data, &info); err != nil {
			return nil, fmt.Errorf("failed to unmarshal task status: %w", err)
		}
	}

	status := &TaskStatus{TaskID: taskID, Status: info.Status}
	if info.ErrorMessage != nil {
		status.ErrorMessage = *info.ErrorMessage
	}
	if info.Response != nil {
		status.Clips = make([]model.Clip, 0, len(info.Response.SunoData))
		for _, item := range info.Response.SunoData {
			status.Clips = append(status.Clips, item.toClip(taskID))
		}
	}
	return status, nil
}

// WaitForJob polls until the job succeeds or fails, measuring the wait from
// the job's submission time.
func (c *SunoClient) WaitForJob(ctx context.Context, job *model.Job) ([]model.Clip, error) {
	start := job.SubmittedAt
	if start.IsZero() {
		start = c.now()
	}
	return c.waitForTask(ctx, job.TaskID, start)
}

// WaitForCompletion polls a task that was submitted earlier, e.g. by a
// previous process. The wait is measured from now.
func (c *SunoClient) WaitForCompletion(ctx context.Context, taskID string) ([]model.Clip, error) {
	return c.waitForTask(ctx, taskID, c.now())
}

func (c *SunoClient) waitForTask(ctx context.Context, taskID string, start time.Time) ([]model.Clip, error) {
	attempt := 0
	for {
		if c.now().Sub(start) > c.maxWait {
			log.Printf("[Suno API] Poll task %s — gave up after %v", taskID, c.maxWait)
			return nil, fmt.Errorf("%w after %v (task %s)", ErrGenerationTimeout, c.maxWait, taskID)
		}

		attempt++
		status, err := c.GetTaskStatus(ctx, taskID)
		if err != nil {
			log.Printf("[Suno API] Poll task #%d (task=%s) — error: %v", attempt, taskID, err)
			return nil, err
		}

		log.Printf("[Suno API] Poll task #%d (task=%s) — status: %s", attempt, taskID, status.Status)

		switch {
		case status.Status == model.UpstreamStatusSuccess:
			return status.Clips, nil
		case isFailedStatus(status.Status):
			msg := status.ErrorMessage
			if msg == "" {
				msg = "Unknown error"
			}
			return nil, &GenerationFailedError{TaskID: taskID, Status: status.Status, Message: msg}
		}

		if err := c.sleep(ctx, c.pollInterval); err != nil {
			log.Printf("[Suno API] Poll task %s — context cancelled", taskID)
			return nil, err
		}
	}
}

// GetCredits returns the remaining credit balance
func (c *SunoClient) GetCredits(ctx context.Context) (float64, error) {
	data, err := c.retry.Do(ctx, http.MethodGet, c.baseURL+"/api/v1/generate/credit", nil, statusTimeout)
	if err != nil {
		return 0, err
	}
	var credits float64
	if err := json.Unmarshal(data, &credits); err != nil {
		return 0, fmt.Errorf("failed to unmarshal credits: %w", err)
	}
	return credits, nil
}

// DownloadAudio streams an audio file to savePath and returns the number of
// bytes written.
func (c *SunoClient) DownloadAudio(ctx context.Context, audioURL, savePath string) (int64, error) {
	return downloadFile(ctx, c.downloader, audioURL, savePath)
}

func downloadFile(ctx context.Context, httpClient *http.Client, fileURL, savePath string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, downloadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		return 0, &APIError{StatusCode: resp.StatusCode, Message: "download failed: " + string(bytes.TrimSpace(body))}
	}

	if err := os.MkdirAll(filepath.Dir(savePath), 0o755); err != nil {
		return 0, fmt.Errorf("failed to create directory: %w", err)
	}
	f, err := os.Create(savePath)
	if err != nil {
		return 0, fmt.Errorf("failed to create file: %w", err)
	}
	n, err := io.Copy(f, resp.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(savePath)
		return 0, fmt.Errorf("failed to write audio: %w", err)
	}
	return n, nil
}

func isFailedStatus(status string) bool {
	switch status {
	case model.UpstreamStatusFailed, "CALLBACK_EXCEPTION", "SENSITIVE_WORD_ERROR":
		return true
	}
	return strings.HasSuffix(status, "_FAILED")
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
