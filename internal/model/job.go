package model

import "time"

// Job is a single generation request as submitted to the Suno API.
// The upstream service owns its state after submission; the local copy is
// never mutated.
type Job struct {
	TaskID       string    `json:"taskId"`
	Prompt       string    `json:"prompt"`
	Style        string    `json:"style,omitempty"`
	Title        string    `json:"title,omitempty"`
	Instrumental bool      `json:"instrumental"`
	Model        SunoModel `json:"model"`
	CustomMode   bool      `json:"customMode"`
	SubmittedAt  time.Time `json:"submittedAt"`
}

// Upstream task statuses reported by the record-info endpoint
const (
	UpstreamStatusPending      = "PENDING"
	UpstreamStatusTextSuccess  = "TEXT_SUCCESS"
	UpstreamStatusFirstSuccess = "FIRST_SUCCESS"
	UpstreamStatusSuccess      = "SUCCESS"
	UpstreamStatusFailed       = "FAILED"
)

// PollPayload is the queued work item that waits for one task to finish.
// Resume marks a task picked up again after a restart; its wait is measured
// from the moment polling resumes rather than from submission.
type PollPayload struct {
	TaskID      string    `json:"taskId"`
	SubmittedAt time.Time `json:"submittedAt"`
	Resume      bool      `json:"resume"`
}
