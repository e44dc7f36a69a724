package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ResultStatus is the per-requirement verdict.
type ResultStatus string

const (
	ResultStatusPending ResultStatus = "pending"
	ResultStatusMet     ResultStatus = "met"
	ResultStatusPartial ResultStatus = "partial"
	ResultStatusNotMet  ResultStatus = "not_met"
)

// Evidence is one citation supporting a verdict. The payload is a tagged
// union keyed by the requirement type: document-based requirement categories
// carry document citations, assessment conditions carry condition references.
type Evidence struct {
	Type RequirementType `json:"type"`

	// Document citation fields (knowledge/performance evidence,
	// foundation skills, performance criteria).
	DocumentID *uuid.UUID `json:"document_id,omitempty"`
	FileName   string     `json:"file_name,omitempty"`
	Excerpt    string     `json:"excerpt,omitempty"`
	Page       *int       `json:"page,omitempty"`

	// Assessment-condition reference fields.
	Condition string `json:"condition,omitempty"`
	Source    string `json:"source,omitempty"`
}

// ValidationResult is one row per regulatory requirement per session. A later
// single-requirement revalidation overwrites the row in place.
type ValidationResult struct {
	ID                uuid.UUID       `json:"id"`
	SessionID         uuid.UUID       `json:"session_id"`
	RequirementType   RequirementType `json:"requirement_type"`
	RequirementNumber string          `json:"requirement_number"`
	RequirementText   string          `json:"requirement_text"`
	Status            ResultStatus    `json:"status"`
	Reasoning         string          `json:"reasoning"`
	Evidence          []Evidence      `json:"evidence"`
	GeneratedQuestion *string         `json:"generated_question,omitempty"`
	BenchmarkAnswer   *string         `json:"benchmark_answer,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// EvidenceToJSON marshals citations into the JSONB layout stored in Postgres.
func (r ValidationResult) EvidenceToJSON() (json.RawMessage, error) {
	evidence := r.Evidence
	if evidence == nil {
		evidence = []Evidence{}
	}
	return json.Marshal(evidence)
}

// EvidenceFromJSON unmarshals persisted citation JSON.
func EvidenceFromJSON(data []byte) ([]Evidence, error) {
	if len(data) == 0 {
		return []Evidence{}, nil
	}
	var evidence []Evidence
	if err := json.Unmarshal(data, &evidence); err != nil {
		return nil, err
	}
	if evidence == nil {
		evidence = []Evidence{}
	}
	return evidence, nil
}

// ImportLogEntry stores a requirements-import error for observability.
type ImportLogEntry struct {
	ID           uuid.UUID `json:"id"`
	RTOID        uuid.UUID `json:"rto_id"`
	UnitCode     string    `json:"unit_code"`
	FileName     string    `json:"file_name"`
	RowNumber    *int      `json:"row_number,omitempty"`
	ErrorMessage string    `json:"error_message"`
	CreatedAt    time.Time `json:"created_at"`
}
