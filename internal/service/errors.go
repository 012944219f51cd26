package service

import "errors"

var (
	// ErrTooManyTasks is returned when the admission ceiling is reached
	ErrTooManyTasks = errors.New("too many tasks in progress")

	// ErrTaskNotFound is returned for an unknown task ID
	ErrTaskNotFound = errors.New("task not found")

	// ErrTaskExists is returned when a task ID is recorded twice
	ErrTaskExists = errors.New("task already recorded")

	// ErrSongNotFound is returned for an unknown song ID
	ErrSongNotFound = errors.New("song not found")

	// ErrNotConfigured is returned when an optional collaborator has no credentials
	ErrNotConfigured = errors.New("service not configured")

	// ErrInvalidPrompt is returned when the text model reply cannot be parsed
	ErrInvalidPrompt = errors.New("invalid prompt response")
)
