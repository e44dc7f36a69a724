package domain

import (
	"time"

	"github.com/google/uuid"
)

// ReportFormat enumerates supported report file formats.
type ReportFormat string

const (
	ReportFormatXLSX ReportFormat = "xlsx"
	ReportFormatCSV  ReportFormat = "csv"
)

// ReportJobStatus captures lifecycle state for a report export job.
type ReportJobStatus string

const (
	ReportJobStatusPending   ReportJobStatus = "pending"
	ReportJobStatusRunning   ReportJobStatus = "running"
	ReportJobStatusCompleted ReportJobStatus = "completed"
	ReportJobStatusFailed    ReportJobStatus = "failed"
	ReportJobStatusCancelled ReportJobStatus = "cancelled"
)

// ReportJob mirrors persisted report export metadata for dashboards and workers.
type ReportJob struct {
	ID           uuid.UUID       `json:"id"`
	RTOID        uuid.UUID       `json:"rto_id"`
	SessionID    uuid.UUID       `json:"session_id"`
	Format       ReportFormat    `json:"format"`
	Status       ReportJobStatus `json:"status"`
	RowsExported int             `json:"rows_exported"`
	FilePath     *string         `json:"file_path,omitempty"`
	FileMimeType *string         `json:"file_mime_type,omitempty"`
	FileByteSize *int64          `json:"file_byte_size,omitempty"`
	ErrorMessage *string         `json:"error_message,omitempty"`
	EnqueuedAt   time.Time       `json:"enqueued_at"`
	StartedAt    *time.Time      `json:"started_at,omitempty"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
	UpdatedAt    time.Time       `json:"updated_at"`
}
