package model

import (
	"path/filepath"
	"strings"
)

// Ingestion job status (console side)
type IngestionStatus string

const (
	IngestionIdle       IngestionStatus = "IDLE"
	IngestionProcessing IngestionStatus = "PROCESSING"
	IngestionDone       IngestionStatus = "DONE"
	IngestionError      IngestionStatus = "ERROR"
)

// IsTerminal reports whether no further automatic transition can happen.
func (s IngestionStatus) IsTerminal() bool {
	return s == IngestionDone || s == IngestionError
}

// Upload status (backend side, RawFileUpload)
type UploadStatus string

const (
	UploadPending    UploadStatus = "PENDING"
	UploadProcessing UploadStatus = "PROCESSING"
	UploadCompleted  UploadStatus = "COMPLETED"
	UploadFailed     UploadStatus = "FAILED"
)

var ValidUploadStatuses = []UploadStatus{
	UploadPending, UploadProcessing, UploadCompleted, UploadFailed,
}

// IsTerminal reports whether the backend finished with the upload.
func (s UploadStatus) IsTerminal() bool {
	return s == UploadCompleted || s == UploadFailed
}

// ParseUploadStatus accepts both "PENDING" and "pending".
func ParseUploadStatus(s string) (UploadStatus, bool) {
	status := UploadStatus(strings.ToUpper(strings.TrimSpace(s)))
	for _, v := range ValidUploadStatuses {
		if v == status {
			return status, true
		}
	}
	return "", false
}

// File formats accepted by the ingestion endpoint
type FileFormat string

const (
	FileFormatCSV   FileFormat = "CSV"
	FileFormatExcel FileFormat = "EXCEL"
)

// AcceptedExtensions lists the source file extensions the pipeline takes.
var AcceptedExtensions = []string{".csv", ".xlsx"}

// IsAcceptedFile reports whether name carries one of AcceptedExtensions.
func IsAcceptedFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, accepted := range AcceptedExtensions {
		if ext == accepted {
			return true
		}
	}
	return false
}

// FileFormatFromName infers the format tag: .csv is CSV, anything else accepted is EXCEL.
func FileFormatFromName(name string) FileFormat {
	if strings.EqualFold(filepath.Ext(name), ".csv") {
		return FileFormatCSV
	}
	return FileFormatExcel
}

// Visibility of the indicators created from a file
type Visibility string

const (
	VisibilityPublic  Visibility = "PUBLIC"
	VisibilityPrivate Visibility = "PRIVATE"
)

func VisibilityFromFlag(public bool) Visibility {
	if public {
		return VisibilityPublic
	}
	return VisibilityPrivate
}

// User roles known to the portal
const (
	RoleAdmin   = "ADMIN"
	RolePartner = "PARTNER"
	RolePublic  = "PUBLIC"
)
