package domain

import (
	"time"

	"github.com/google/uuid"
)

// RequirementType enumerates the regulatory requirement categories of a unit.
type RequirementType string

const (
	RequirementKnowledgeEvidence    RequirementType = "knowledge_evidence"
	RequirementPerformanceEvidence  RequirementType = "performance_evidence"
	RequirementFoundationSkills     RequirementType = "foundation_skills"
	RequirementPerformanceCriteria  RequirementType = "performance_criteria"
	RequirementAssessmentConditions RequirementType = "assessment_conditions"
)

// KnownRequirementTypes lists every requirement category in display order.
var KnownRequirementTypes = []RequirementType{
	RequirementKnowledgeEvidence,
	RequirementPerformanceEvidence,
	RequirementFoundationSkills,
	RequirementPerformanceCriteria,
	RequirementAssessmentConditions,
}

// IsValidRequirementType reports whether the value is a known requirement category.
func IsValidRequirementType(value string) bool {
	for _, t := range KnownRequirementTypes {
		if string(t) == value {
			return true
		}
	}
	return false
}

// UnitOfCompetency is a regulatory skill/knowledge standard with sub-requirements.
type UnitOfCompetency struct {
	ID           uuid.UUID     `json:"id"`
	Code         string        `json:"code"`
	Title        string        `json:"title"`
	Release      string        `json:"release"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
	Requirements []Requirement `json:"requirements,omitempty"`
}

// Requirement is a single assessable line item within a unit of competency.
type Requirement struct {
	ID        uuid.UUID       `json:"id"`
	UnitID    uuid.UUID       `json:"unit_id"`
	Type      RequirementType `json:"requirement_type"`
	Number    string          `json:"requirement_number"`
	Text      string          `json:"requirement_text"`
	CreatedAt time.Time       `json:"created_at"`
}

// NewUnitOfCompetency creates a new unit of competency
func NewUnitOfCompetency(code, title, release string) UnitOfCompetency {
	now := time.Now()
	if release == "" {
		release = "1"
	}
	return UnitOfCompetency{
		ID:        uuid.New(),
		Code:      code,
		Title:     title,
		Release:   release,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
