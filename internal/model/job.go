package model

import (
	"io"
	"time"
)

// SourceFile is the raw payload selected for one submission. Reader is consumed once.
type SourceFile struct {
	Name   string
	Size   int64
	Reader io.Reader
}

// IngestionJobConfig holds the user-supplied parameters for one submission attempt.
type IngestionJobConfig struct {
	DataModelID string
	SourceFile  *SourceFile
	Period      string // YYYY-MM, optional
	Public      bool
}

// IngestionJob is a point-in-time view of one tracked submission
type IngestionJob struct {
	ID                string          `json:"id"`
	Status            IngestionStatus `json:"status"`
	DataModel         *DataModel      `json:"dataModel,omitempty"`
	FileName          string          `json:"fileName,omitempty"`
	FileSize          int64           `json:"fileSize,omitempty"`
	Period            string          `json:"period,omitempty"`
	Visibility        Visibility      `json:"visibility,omitempty"`
	LogLines          []string        `json:"logLines"`
	ProcessedCount    *int            `json:"processedCount,omitempty"`
	OutputArtifactRef *string         `json:"outputArtifactRef,omitempty"`
	ErrorMessage      *string         `json:"errorMessage,omitempty"`
	CreatedAt         time.Time       `json:"createdAt"`
	StartedAt         *time.Time      `json:"startedAt,omitempty"`
	CompletedAt       *time.Time      `json:"completedAt,omitempty"`
}

// IngestionResult is what the backend reported for a successful submission
type IngestionResult struct {
	Count      int    `json:"count"`
	OutputFile string `json:"outputFile,omitempty"`
	UploadID   *int   `json:"uploadId,omitempty"`
	TotalRows  *int   `json:"totalRows,omitempty"`
	FailedRows *int   `json:"failedRows,omitempty"`
	Message    string `json:"message,omitempty"`
}

// ProcessTicket acknowledges a queued manual processing request
type ProcessTicket struct {
	TaskID   string    `json:"taskId"`
	UploadID int       `json:"uploadId"`
	Channel  string    `json:"channel"`
	QueuedAt time.Time `json:"queuedAt"`
}

// ProcessOutcome is the last known result of a manual processing run
type ProcessOutcome struct {
	UploadID   int              `json:"uploadId"`
	Status     UploadStatus     `json:"status"`
	Record     *UploadRecord    `json:"record,omitempty"`
	Result     *IngestionResult `json:"result,omitempty"`
	Error      string           `json:"error,omitempty"`
	FinishedAt time.Time        `json:"finishedAt"`
}
