package domain

import (
	"time"

	"github.com/google/uuid"
)

// DocumentStatus captures the indexing state of an uploaded document.
type DocumentStatus string

const (
	DocumentStatusPending    DocumentStatus = "pending"
	DocumentStatusProcessing DocumentStatus = "processing"
	DocumentStatusCompleted  DocumentStatus = "completed"
	DocumentStatusFailed     DocumentStatus = "failed"
)

// Document is an uploaded assessment or learner-guide file owned by a
// validation session. Status is mutated only by the operation reconciler and
// the row is immutable once completed.
type Document struct {
	ID          uuid.UUID      `json:"id"`
	SessionID   uuid.UUID      `json:"session_id"`
	FileName    string         `json:"file_name"`
	StoragePath string         `json:"storage_path"`
	Status      DocumentStatus `json:"embedding_status"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// NewDocument creates a pending document for a session.
func NewDocument(sessionID uuid.UUID, fileName, storagePath string) Document {
	now := time.Now()
	return Document{
		ID:          uuid.New(),
		SessionID:   sessionID,
		FileName:    fileName,
		StoragePath: storagePath,
		Status:      DocumentStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
