package validation

import (
	"fmt"
	"strings"

	"github.com/rtoassure/backend/internal/domain"
	"github.com/rtoassure/backend/internal/indexing"
)

const verdictSystemPrompt = `You are a compliance auditor for Australian vocational education.
You judge whether a Registered Training Organisation's assessment materials
address a specific requirement from a unit of competency.

Respond with a single JSON object and nothing else:
{"status": "met" | "partial" | "not_met", "reasoning": "<2-4 sentences citing the evidence>"}

Rules:
- "met" only when the evidence clearly and completely addresses the requirement.
- "partial" when the evidence touches the requirement but leaves gaps.
- "not_met" when no evidence addresses the requirement.
- Reason only from the supplied evidence passages. Never invent content.`

const questionSystemPrompt = `You are a compliance consultant for Australian vocational education.
A requirement was judged not fully met. Write one targeted assessment question
an RTO could add to close the gap, plus the benchmark answer an assessor would
accept.

Respond with a single JSON object and nothing else:
{"question": "<the question>", "benchmark_answer": "<the acceptable answer>"}`

func buildVerdictPrompt(unitCode string, req domain.Requirement, hits []indexing.QueryHit) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Unit of competency: %s\n", unitCode)
	fmt.Fprintf(&b, "Requirement type: %s\n", req.Type)
	fmt.Fprintf(&b, "Requirement %s: %s\n\n", req.Number, req.Text)

	if len(hits) == 0 {
		b.WriteString("No evidence passages were retrieved from the uploaded documents.\n")
		return b.String()
	}

	b.WriteString("Evidence passages retrieved from the uploaded documents:\n")
	for i, hit := range hits {
		fmt.Fprintf(&b, "\n[%d] source: %s", i+1, hit.FileName)
		if hit.Page != nil {
			fmt.Fprintf(&b, " (page %d)", *hit.Page)
		}
		fmt.Fprintf(&b, "\n%s\n", strings.TrimSpace(hit.Excerpt))
	}
	return b.String()
}

func buildQuestionPrompt(unitCode string, result domain.ValidationResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Unit of competency: %s\n", unitCode)
	fmt.Fprintf(&b, "Requirement type: %s\n", result.RequirementType)
	fmt.Fprintf(&b, "Requirement %s: %s\n\n", result.RequirementNumber, result.RequirementText)
	fmt.Fprintf(&b, "Verdict: %s\n", result.Status)
	fmt.Fprintf(&b, "Auditor reasoning: %s\n", result.Reasoning)
	return b.String()
}
