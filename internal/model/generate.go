package model

import "time"

// GenerateRequest is the body of POST /api/generate
type GenerateRequest struct {
	Prompt       string    `json:"prompt" validate:"required_if=CustomMode true,max=5000"`
	Description  string    `json:"description" validate:"required_if=CustomMode false,max=500"`
	Style        string    `json:"style" validate:"omitempty,max=1000"`
	Title        string    `json:"title" validate:"omitempty,max=100"`
	Theme        string    `json:"theme" validate:"omitempty,max=200"`
	Genre        string    `json:"genre" validate:"omitempty,max=50"`
	Instrumental bool      `json:"instrumental"`
	CustomMode   bool      `json:"customMode"`
	Model        SunoModel `json:"model" validate:"omitempty,oneof=V3_5 V4 V4_5 V4_5PLUS V4_5ALL V5"`
	Wait         bool      `json:"wait"`
}

// GenerateResponse is returned for both synchronous and fire-and-forget submissions
type GenerateResponse struct {
	TaskID    string     `json:"taskId"`
	Status    TaskStatus `json:"status"`
	Clips     []Clip     `json:"clips,omitempty"`
	Songs     []Song     `json:"songs,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

// ThemeGenerateRequest asks for a prompt from a theme, then generates music from it
type ThemeGenerateRequest struct {
	PromptRequest
	Model SunoModel `json:"model" validate:"omitempty,oneof=V3_5 V4 V4_5 V4_5PLUS V4_5ALL V5"`
	Wait  bool      `json:"wait"`
}

// PromptRequest is the input to the prompt generator
type PromptRequest struct {
	Theme        string `json:"theme" validate:"required,min=1,max=200"`
	Genre        string `json:"genre" validate:"omitempty,max=50"`
	Mood         string `json:"mood" validate:"omitempty,max=50"`
	Language     string `json:"language" validate:"omitempty,max=30"`
	Gender       string `json:"gender" validate:"omitempty,oneof=Male Female"`
	Age          string `json:"age" validate:"omitempty,max=30"`
	Tempo        string `json:"tempo" validate:"omitempty,max=30"`
	SoundTexture string `json:"soundTexture" validate:"omitempty,max=30"`
	Instrumental bool   `json:"instrumental"`
}

// ThemesRequest asks for random themes
type ThemesRequest struct {
	Count    int    `json:"count" validate:"omitempty,min=1,max=50"`
	Category string `json:"category" validate:"omitempty,max=50"`
}

// ThemesResponse lists generated themes
type ThemesResponse struct {
	Themes []string `json:"themes"`
}

// BatchPromptRequest asks for one prompt per theme with shared settings
type BatchPromptRequest struct {
	Themes       []string `json:"themes" validate:"required,min=1,max=20,dive,required,max=200"`
	Genre        string   `json:"genre" validate:"omitempty,max=50"`
	Mood         string   `json:"mood" validate:"omitempty,max=50"`
	Language     string   `json:"language" validate:"omitempty,max=30"`
	Instrumental bool     `json:"instrumental"`
}

// VariationsRequest asks for one prompt per genre on a single theme
type VariationsRequest struct {
	Theme    string   `json:"theme" validate:"required,max=200"`
	Genres   []string `json:"genres" validate:"required,min=1,max=10,dive,required,max=50"`
	Language string   `json:"language" validate:"omitempty,max=30"`
}

// PromptResult is one entry of a batch; exactly one of Prompt and Error is set
type PromptResult struct {
	Theme  string      `json:"theme"`
	Genre  string      `json:"genre,omitempty"`
	Prompt *PromptData `json:"prompt,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// CreditsResponse reports the remaining API balance
type CreditsResponse struct {
	Credits float64 `json:"credits"`
}

// TaskListResponse lists pending and recently completed tasks
type TaskListResponse struct {
	Pending     []Task `json:"pending"`
	Completed   []Task `json:"completed"`
	ActiveCount int    `json:"activeCount"`
	CanAdd      bool   `json:"canAdd"`
}

// PruneRequest is the body of POST /api/tasks/prune
type PruneRequest struct {
	KeepDays int `json:"keepDays" validate:"omitempty,min=0,max=3650"`
}

// PruneResponse reports how many completed tasks were removed
type PruneResponse struct {
	Removed int `json:"removed"`
}
