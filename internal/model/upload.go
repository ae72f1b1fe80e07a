package model

import "time"

// UploadRecord is the backend's history entry for one ingestion run
type UploadRecord struct {
	ID                    int          `json:"id"`
	FileName              string       `json:"file_name"`
	FileFormat            FileFormat   `json:"file_format"`
	UploadedAt            time.Time    `json:"uploaded_at"`
	Status                UploadStatus `json:"status"`
	StatusDisplay         string       `json:"status_display,omitempty"`
	TotalRows             int          `json:"total_rows"`
	ProcessedRows         int          `json:"processed_rows"`
	FailedRows            int          `json:"failed_rows,omitempty"`
	Report                *string      `json:"report,omitempty"`
	ErrorMessage          *string      `json:"error_message,omitempty"`
	ProcessingStartedAt   *time.Time   `json:"processing_started_at,omitempty"`
	ProcessingCompletedAt *time.Time   `json:"processing_completed_at,omitempty"`
}

// UploadPage is the normalized list shape, whatever envelope the backend used
type UploadPage struct {
	Count    int            `json:"count"`
	Next     *string        `json:"next,omitempty"`
	Previous *string        `json:"previous,omitempty"`
	Results  []UploadRecord `json:"results"`
}
