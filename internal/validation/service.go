package validation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rtoassure/backend/internal/domain"
	"github.com/rtoassure/backend/internal/indexing"
	"github.com/rtoassure/backend/internal/repository"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// CreditConsumer spends tenant credits before validation work begins.
type CreditConsumer interface {
	Consume(ctx context.Context, rtoID uuid.UUID, kind domain.CreditKind, amount int, reason string) error
}

// EvidenceSearcher retrieves passages from the indexed documents.
type EvidenceSearcher interface {
	Query(ctx context.Context, query string, limit int) ([]indexing.QueryHit, error)
}

// Options configures the validation service.
type Options struct {
	ValidationCost  int
	EvidenceLimit   int
	WorkflowWebhook string
}

// Service runs requirement validation for a session.
type Service struct {
	sessions   repository.SessionRepository
	units      repository.UnitRepository
	results    repository.ResultRepository
	credits    CreditConsumer
	searcher   EvidenceSearcher
	judge      Judge
	opts       Options
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewService wires the validation service.
func NewService(
	sessions repository.SessionRepository,
	units repository.UnitRepository,
	results repository.ResultRepository,
	credits CreditConsumer,
	searcher EvidenceSearcher,
	judge Judge,
	opts Options,
	logger *logrus.Logger,
) *Service {
	if opts.ValidationCost <= 0 {
		opts.ValidationCost = 1
	}
	if opts.EvidenceLimit <= 0 {
		opts.EvidenceLimit = 5
	}
	return &Service{
		sessions:   sessions,
		units:      units,
		results:    results,
		credits:    credits,
		searcher:   searcher,
		judge:      judge,
		opts:       opts,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

func (s *Service) scopedSession(ctx context.Context, rtoID, sessionID uuid.UUID) (domain.ValidationSession, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return domain.ValidationSession{}, err
	}
	if session.RTOID != rtoID {
		return domain.ValidationSession{}, fmt.Errorf("session %s: %w", sessionID, repository.ErrNotFound)
	}
	return session, nil
}

// CreateRecords seeds one pending result row per requirement of the
// session's unit and marks requirement extraction done. Calling it again is
// harmless: existing rows are kept.
func (s *Service) CreateRecords(ctx context.Context, rtoID, sessionID uuid.UUID) (int, error) {
	session, err := s.scopedSession(ctx, rtoID, sessionID)
	if err != nil {
		return 0, err
	}

	unit, err := s.units.GetByCode(ctx, session.UnitCode)
	if err != nil {
		return 0, err
	}
	if len(unit.Requirements) == 0 {
		return 0, fmt.Errorf("unit %s has no requirements loaded", session.UnitCode)
	}

	rows := make([]domain.ValidationResult, 0, len(unit.Requirements))
	for _, req := range unit.Requirements {
		rows = append(rows, domain.ValidationResult{
			SessionID:         sessionID,
			RequirementType:   req.Type,
			RequirementNumber: req.Number,
			RequirementText:   req.Text,
			Status:            domain.ResultStatusPending,
		})
	}
	if _, err := s.results.CreateBatch(ctx, rows); err != nil {
		return 0, err
	}

	completed, err := s.results.CountCompleted(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	if err := s.sessions.SetRequirementCounts(ctx, sessionID, len(unit.Requirements), completed); err != nil {
		return 0, err
	}
	if err := s.sessions.SetReqExtracted(ctx, sessionID, true); err != nil {
		return 0, err
	}
	return len(unit.Requirements), nil
}

// Run validates every pending requirement for the session. One validation
// credit is consumed up front; an insufficient balance aborts before any LLM
// call.
func (s *Service) Run(ctx context.Context, rtoID, sessionID uuid.UUID) ([]domain.ValidationResult, error) {
	session, err := s.scopedSession(ctx, rtoID, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.ReqExtracted {
		return nil, fmt.Errorf("session %s has no requirement records yet", sessionID)
	}
	if !session.DocExtracted {
		return nil, fmt.Errorf("session %s still has documents indexing", sessionID)
	}

	if err := s.credits.Consume(ctx, rtoID, domain.CreditKindValidation, s.opts.ValidationCost, "session validation"); err != nil {
		return nil, err
	}

	rows, err := s.results.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	validated := make([]domain.ValidationResult, 0, len(rows))
	for _, row := range rows {
		if row.Status != domain.ResultStatusPending {
			validated = append(validated, row)
			continue
		}
		updated, err := s.validateOne(ctx, session, row)
		if err != nil {
			s.logger.WithError(err).WithFields(logrus.Fields{
				"session_id":  sessionID,
				"requirement": row.RequirementNumber,
			}).Error("requirement validation failed")
			validated = append(validated, row)
			continue
		}
		validated = append(validated, updated)
	}

	if err := s.refreshCompletedCount(ctx, sessionID); err != nil {
		return validated, err
	}
	return validated, nil
}

// Revalidate reruns one requirement and overwrites its row in place.
func (s *Service) Revalidate(ctx context.Context, rtoID, sessionID uuid.UUID, reqType domain.RequirementType, number string) (domain.ValidationResult, error) {
	session, err := s.scopedSession(ctx, rtoID, sessionID)
	if err != nil {
		return domain.ValidationResult{}, err
	}

	row, err := s.results.GetByRequirement(ctx, sessionID, reqType, number)
	if err != nil {
		return domain.ValidationResult{}, err
	}

	updated, err := s.validateOne(ctx, session, row)
	if err != nil {
		return domain.ValidationResult{}, err
	}
	if err := s.refreshCompletedCount(ctx, sessionID); err != nil {
		return updated, err
	}
	return updated, nil
}

// RegenerateQuestions produces a remediation question and benchmark answer
// for a requirement that was not fully met.
func (s *Service) RegenerateQuestions(ctx context.Context, rtoID, sessionID uuid.UUID, reqType domain.RequirementType, number string) (domain.ValidationResult, error) {
	session, err := s.scopedSession(ctx, rtoID, sessionID)
	if err != nil {
		return domain.ValidationResult{}, err
	}

	row, err := s.results.GetByRequirement(ctx, sessionID, reqType, number)
	if err != nil {
		return domain.ValidationResult{}, err
	}
	if row.Status != domain.ResultStatusPartial && row.Status != domain.ResultStatusNotMet {
		return domain.ValidationResult{}, fmt.Errorf("requirement %s is %s; questions apply to partial or not_met only", number, row.Status)
	}

	generated, err := s.judge.GenerateQuestion(ctx, buildQuestionPrompt(session.UnitCode, row))
	if err != nil {
		return domain.ValidationResult{}, err
	}
	if err := s.results.SetQuestion(ctx, row.ID, generated.Question, generated.BenchmarkAnswer); err != nil {
		return domain.ValidationResult{}, err
	}
	return s.results.GetByRequirement(ctx, sessionID, reqType, number)
}

// TriggerWorkflow notifies the configured workflow engine that a session is
// ready for its automated pipeline.
func (s *Service) TriggerWorkflow(ctx context.Context, rtoID, sessionID uuid.UUID) error {
	if s.opts.WorkflowWebhook == "" {
		return fmt.Errorf("no workflow webhook configured")
	}
	session, err := s.scopedSession(ctx, rtoID, sessionID)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(map[string]any{
		"session_id": session.ID,
		"rto_id":     session.RTOID,
		"unit_code":  session.UnitCode,
		"stage":      session.Stage(),
	})
	if err != nil {
		return fmt.Errorf("encode webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.opts.WorkflowWebhook, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("call workflow webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("workflow webhook returned %d", resp.StatusCode)
	}

	s.logger.WithField("session_id", sessionID).Info("workflow triggered")
	return nil
}

// Results returns the stored verdicts for a session.
func (s *Service) Results(ctx context.Context, rtoID, sessionID uuid.UUID) ([]domain.ValidationResult, error) {
	if _, err := s.scopedSession(ctx, rtoID, sessionID); err != nil {
		return nil, err
	}
	return s.results.ListBySession(ctx, sessionID)
}

func (s *Service) validateOne(ctx context.Context, session domain.ValidationSession, row domain.ValidationResult) (domain.ValidationResult, error) {
	hits, err := s.searcher.Query(ctx, row.RequirementText, s.opts.EvidenceLimit)
	if err != nil {
		return domain.ValidationResult{}, fmt.Errorf("evidence query: %w", err)
	}

	req := domain.Requirement{
		Type:   row.RequirementType,
		Number: row.RequirementNumber,
		Text:   row.RequirementText,
	}
	verdict, err := s.judge.JudgeRequirement(ctx, buildVerdictPrompt(session.UnitCode, req, hits))
	if err != nil {
		return domain.ValidationResult{}, err
	}

	row.Status = domain.ResultStatus(verdict.Status)
	row.Reasoning = verdict.Reasoning
	row.Evidence = evidenceFromHits(row.RequirementType, hits)
	return s.results.Upsert(ctx, row)
}

func (s *Service) refreshCompletedCount(ctx context.Context, sessionID uuid.UUID) error {
	completed, err := s.results.CountCompleted(ctx, sessionID)
	if err != nil {
		return err
	}
	return s.sessions.SetCompletedCount(ctx, sessionID, completed)
}

// evidenceFromHits maps retrieval hits to the typed evidence union. Document
// citations carry file references; assessment conditions carry the condition
// text and its source.
func evidenceFromHits(reqType domain.RequirementType, hits []indexing.QueryHit) []domain.Evidence {
	evidence := make([]domain.Evidence, 0, len(hits))
	for _, hit := range hits {
		item := domain.Evidence{Type: reqType}
		if reqType == domain.RequirementAssessmentConditions {
			item.Condition = hit.Excerpt
			item.Source = hit.FileName
		} else {
			if id, err := uuid.Parse(hit.DocumentKey); err == nil {
				item.DocumentID = &id
			}
			item.FileName = hit.FileName
			item.Excerpt = hit.Excerpt
			item.Page = hit.Page
		}
		evidence = append(evidence, item)
	}
	return evidence
}
