package model

// WebSocket message types
const (
	WSMessageTypeProgress = "progress"
	WSMessageTypeComplete = "complete"
	WSMessageTypeError    = "error"
	WSMessageTypePing     = "ping"
	WSMessageTypePong     = "pong"
)

// WSMessage represents a generic WebSocket message
type WSMessage struct {
	Type string `json:"type"`
}

// WSProgressMessage reports a task's local status and the last upstream status seen
type WSProgressMessage struct {
	Type           string     `json:"type"`
	TaskID         string     `json:"taskId"`
	Status         TaskStatus `json:"status"`
	UpstreamStatus string     `json:"upstreamStatus,omitempty"`
	Step           string     `json:"step,omitempty"`
}

// WSCompleteMessage represents task completion
type WSCompleteMessage struct {
	Type   string `json:"type"`
	TaskID string `json:"taskId"`
	Clips  []Clip `json:"clips"`
	Songs  []Song `json:"songs,omitempty"`
}

// WSErrorMessage represents a task failure
type WSErrorMessage struct {
	Type   string  `json:"type"`
	TaskID string  `json:"taskId"`
	Error  WSError `json:"error"`
}

// WSError represents error details
type WSError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
