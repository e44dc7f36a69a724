package domain

import (
	"time"

	"github.com/google/uuid"
)

// SessionStage captures the workflow stage of a validation session.
type SessionStage string

const (
	SessionStagePending      SessionStage = "pending"
	SessionStageRequirements SessionStage = "requirements"
	SessionStageDocuments    SessionStage = "documents"
	SessionStageValidated    SessionStage = "validated"
)

// ValidationSession ties a set of documents and their indexing operations to a
// unit of competency and the overall workflow stage. Sessions are retained for
// audit history and never physically deleted.
type ValidationSession struct {
	ID                    uuid.UUID `json:"id"`
	RTOID                 uuid.UUID `json:"rto_id"`
	UnitCode              string    `json:"unit_code"`
	DocExtracted          bool      `json:"doc_extracted"`
	ReqExtracted          bool      `json:"req_extracted"`
	TotalRequirements     int       `json:"total_requirements"`
	CompletedRequirements int       `json:"completed_requirements"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// NewValidationSession creates a new session in its initial stage.
func NewValidationSession(rtoID uuid.UUID, unitCode string) ValidationSession {
	now := time.Now()
	return ValidationSession{
		ID:        uuid.New(),
		RTOID:     rtoID,
		UnitCode:  unitCode,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Stage recomputes the workflow stage from the session's current counts.
func (s ValidationSession) Stage() SessionStage {
	return DeriveStage(s.DocExtracted, s.ReqExtracted, s.CompletedRequirements, s.TotalRequirements)
}

// DeriveStage is a pure function of the extraction flags and requirement
// counts. It recomputes from current state every time, so it self-corrects if
// the underlying counts change out of the expected order.
func DeriveStage(docExtracted, reqExtracted bool, completed, total int) SessionStage {
	switch {
	case reqExtracted && docExtracted && total > 0 && completed >= total:
		return SessionStageValidated
	case reqExtracted && docExtracted:
		return SessionStageDocuments
	case reqExtracted:
		return SessionStageRequirements
	default:
		return SessionStagePending
	}
}
