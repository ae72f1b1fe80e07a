package model

import "fmt"

// WebSocket message types
const (
	WSMessageTypeStatus   = "status"
	WSMessageTypeLog      = "log"
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

// WSStatusMessage carries a job snapshot after a state change
type WSStatusMessage struct {
	Type  string       `json:"type"`
	JobID string       `json:"jobId"`
	Job   IngestionJob `json:"job"`
}

// WSLogMessage carries one narration line
type WSLogMessage struct {
	Type  string `json:"type"`
	JobID string `json:"jobId"`
	Index int    `json:"index"`
	Line  string `json:"line"`
}

// WSProgressMessage reports the backend status of an upload being processed
type WSProgressMessage struct {
	Type        string       `json:"type"`
	JobID       string       `json:"jobId"`
	Status      UploadStatus `json:"status"`
	CurrentStep string       `json:"currentStep,omitempty"`
}

// WSCompleteMessage represents completion
type WSCompleteMessage struct {
	Type   string      `json:"type"`
	JobID  string      `json:"jobId"`
	Result interface{} `json:"result"`
}

// WSErrorMessage represents an error
type WSErrorMessage struct {
	Type  string  `json:"type"`
	JobID string  `json:"jobId"`
	Error WSError `json:"error"`
}

// WSError represents error details
type WSError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// UploadChannel is the hub channel carrying manual processing updates of an upload
func UploadChannel(uploadID int) string {
	return fmt.Sprintf("upload-%d", uploadID)
}
