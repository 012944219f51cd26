package client

import (
	"errors"
	"fmt"
)

// Error classes. Concrete errors wrap one of these so callers can branch
// with errors.Is without caring about the exact type.
var (
	// ErrTransient marks failures that were retried until the attempt cap ran out
	ErrTransient = errors.New("transient upstream failure")

	// ErrApplication marks a rejection reported by the upstream API itself
	ErrApplication = errors.New("upstream application error")

	// ErrNoTaskID is returned when a submission response carries no task identifier
	ErrNoTaskID = errors.New("submission did not return an identifier")

	// ErrGenerationTimeout is returned when polling exceeds the maximum wait.
	// The remote job is left running.
	ErrGenerationTimeout = errors.New("generation timed out")

	// ErrGenerationFailed is wrapped by GenerationFailedError
	ErrGenerationFailed = errors.New("generation failed")

	// ErrSessionDenied is returned when a refreshed studio session is still rejected
	ErrSessionDenied = errors.New("session expired, re-authenticate manually")

	// ErrServiceUnavailable is returned on HTTP 503 from the studio API
	ErrServiceUnavailable = errors.New("service unavailable, try later")

	// ErrConnection wraps transport-level failures of the studio API
	ErrConnection = errors.New("connection to upstream failed")
)

// APIError is a non-retryable failure carrying the upstream status.
// StatusCode is the transport status; Code is the application status from
// the response envelope and is zero when the failure happened at the
// transport layer.
type APIError struct {
	StatusCode int
	Code       int
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("api error (code %d): %s", e.Code, e.Message)
	}
	return fmt.Sprintf("api error (status %d): %s", e.StatusCode, e.Message)
}

// Unwrap classifies envelope rejections as application errors.
func (e *APIError) Unwrap() error {
	if e.Code != 0 {
		return ErrApplication
	}
	return nil
}

// RetryError is returned once every attempt failed with a retryable cause.
type RetryError struct {
	Attempts int
	LastErr  error
}

func (e *RetryError) Error() string {
	return fmt.Sprintf("request failed after %d retries: %v", e.Attempts, e.LastErr)
}

func (e *RetryError) Unwrap() []error {
	return []error{ErrTransient, e.LastErr}
}

// GenerationFailedError carries the upstream failure message of a job.
type GenerationFailedError struct {
	TaskID  string
	Status  string
	Message string
}

func (e *GenerationFailedError) Error() string {
	return fmt.Sprintf("generation failed (task %s, status %s): %s", e.TaskID, e.Status, e.Message)
}

func (e *GenerationFailedError) Unwrap() error {
	return ErrGenerationFailed
}
