package model

// Clip is one rendered audio result of a task
type Clip struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	AudioURL  string  `json:"audio_url"`
	ImageURL  string  `json:"image_url"`
	Duration  float64 `json:"duration"`
	Status    string  `json:"status"`
	Tags      string  `json:"tags"`
	Prompt    string  `json:"prompt"`
	TaskID    string  `json:"task_id"`
	ModelName string  `json:"model_name,omitempty"`
}

// ClipStatusComplete marks a clip whose audio is ready
const ClipStatusComplete = "complete"

// LibraryClip is a clip as listed in the user's Suno studio library
type LibraryClip struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	AudioURL  string  `json:"audio_url"`
	ImageURL  string  `json:"image_url"`
	VideoURL  string  `json:"video_url,omitempty"`
	Status    string  `json:"status"`
	ModelName string  `json:"model_name,omitempty"`
	CreatedAt string  `json:"created_at"`
	Duration  float64 `json:"duration"`
	Tags      string  `json:"tags"`
	Prompt    string  `json:"prompt"`
}
