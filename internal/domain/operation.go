package domain

import (
	"time"

	"github.com/google/uuid"
)

// OperationStatus captures lifecycle state for a long-running provider job.
type OperationStatus string

const (
	OperationStatusPending    OperationStatus = "pending"
	OperationStatusProcessing OperationStatus = "processing"
	OperationStatusCompleted  OperationStatus = "completed"
	OperationStatusFailed     OperationStatus = "failed"
	OperationStatusTimeout    OperationStatus = "timeout"
)

// IsTerminal reports whether the status is absorbing. Once an operation
// reaches a terminal status it is never re-opened.
func (s OperationStatus) IsTerminal() bool {
	switch s {
	case OperationStatusCompleted, OperationStatusFailed, OperationStatusTimeout:
		return true
	}
	return false
}

// Operation is a handle to a long-running external indexing job for one
// document. The most recent operation for a document is authoritative.
type Operation struct {
	ID                 uuid.UUID       `json:"id"`
	DocumentID         uuid.UUID       `json:"document_id"`
	ProviderOperation  string          `json:"provider_operation"`
	Status             OperationStatus `json:"status"`
	ProgressPercentage int             `json:"progress_percentage"`
	ElapsedTimeMs      int64           `json:"elapsed_time_ms"`
	MaxWaitTimeMs      int64           `json:"max_wait_time_ms"`
	CheckCount         int             `json:"check_count"`
	ErrorMessage       *string         `json:"error_message,omitempty"`
	StartedAt          time.Time       `json:"started_at"`
	LastCheckedAt      *time.Time      `json:"last_checked_at,omitempty"`
	CompletedAt        *time.Time      `json:"completed_at,omitempty"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// NewOperation creates a pending operation for a document.
func NewOperation(documentID uuid.UUID, maxWait time.Duration) Operation {
	now := time.Now()
	maxWaitMs := maxWait.Milliseconds()
	if maxWaitMs <= 0 {
		maxWaitMs = (5 * time.Minute).Milliseconds()
	}
	return Operation{
		ID:            uuid.New(),
		DocumentID:    documentID,
		Status:        OperationStatusPending,
		MaxWaitTimeMs: maxWaitMs,
		StartedAt:     now,
		UpdatedAt:     now,
	}
}

// EstimateProgress maps elapsed wall-clock time onto a monotonically
// increasing percentage, capped below 100 until the provider reports
// completion.
func EstimateProgress(elapsedMs, maxWaitMs int64) int {
	if maxWaitMs <= 0 {
		return 0
	}
	progress := int(elapsedMs * 100 / maxWaitMs)
	if progress > 95 {
		progress = 95
	}
	if progress < 0 {
		progress = 0
	}
	return progress
}
