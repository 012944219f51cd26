package model

// Song is a locally stored clip plus the prompt it was generated from
type Song struct {
	ID          string      `json:"id"`
	TaskID      string      `json:"task_id"`
	Title       string      `json:"title"`
	Style       string      `json:"style"`
	Lyrics      string      `json:"lyrics"`
	Theme       string      `json:"theme"`
	Genre       string      `json:"genre"`
	AudioURL    string      `json:"audio_url"`
	AudioPath   string      `json:"audio_path"`
	ImageURL    string      `json:"image_url"`
	Duration    float64     `json:"duration"`
	CreatedAt   string      `json:"created_at"`
	Suno        SunoDetails `json:"suno_data"`
	Uploaded    bool        `json:"uploaded"`
	UploadError string      `json:"upload_error,omitempty"`
	StorageURL  string      `json:"storage_url,omitempty"`
}

// SunoDetails carries upstream details kept for reference
type SunoDetails struct {
	Model  string `json:"model"`
	Status string `json:"status"`
}

// SongLibrary is the metadata document written next to the audio files
type SongLibrary struct {
	Songs []Song       `json:"songs"`
	Stats LibraryStats `json:"stats"`
}

type LibraryStats struct {
	TotalGenerated int `json:"total_generated"`
}

// SongStats summarises the local library
type SongStats struct {
	TotalGenerated int            `json:"total_generated"`
	TotalSaved     int            `json:"total_saved"`
	TodayCount     int            `json:"today_count"`
	Genres         map[string]int `json:"genres"`
}

// YouTubeExport is the upload payload for one song
type YouTubeExport struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	AudioPath   string   `json:"audio_path"`
}
