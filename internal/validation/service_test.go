package validation

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/rtoassure/backend/internal/domain"
	"github.com/rtoassure/backend/internal/indexing"
	"github.com/rtoassure/backend/internal/repository"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type stubSessions struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]domain.ValidationSession
}

func newStubSessions() *stubSessions {
	return &stubSessions{sessions: map[uuid.UUID]domain.ValidationSession{}}
}

func (r *stubSessions) Create(ctx context.Context, session domain.ValidationSession) (domain.ValidationSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[session.ID] = session
	return session, nil
}

func (r *stubSessions) GetByID(ctx context.Context, id uuid.UUID) (domain.ValidationSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[id]
	if !ok {
		return domain.ValidationSession{}, repository.ErrNotFound
	}
	return session, nil
}

func (r *stubSessions) ListByRTO(ctx context.Context, rtoID uuid.UUID, limit, offset int) ([]domain.ValidationSession, error) {
	return nil, nil
}

func (r *stubSessions) SetDocExtracted(ctx context.Context, id uuid.UUID, extracted bool) error {
	return r.mutate(id, func(s *domain.ValidationSession) { s.DocExtracted = extracted })
}

func (r *stubSessions) SetReqExtracted(ctx context.Context, id uuid.UUID, extracted bool) error {
	return r.mutate(id, func(s *domain.ValidationSession) { s.ReqExtracted = extracted })
}

func (r *stubSessions) SetRequirementCounts(ctx context.Context, id uuid.UUID, total, completed int) error {
	return r.mutate(id, func(s *domain.ValidationSession) {
		s.TotalRequirements = total
		s.CompletedRequirements = completed
	})
}

func (r *stubSessions) SetCompletedCount(ctx context.Context, id uuid.UUID, completed int) error {
	return r.mutate(id, func(s *domain.ValidationSession) { s.CompletedRequirements = completed })
}

func (r *stubSessions) mutate(id uuid.UUID, fn func(*domain.ValidationSession)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[id]
	if !ok {
		return repository.ErrNotFound
	}
	fn(&session)
	r.sessions[id] = session
	return nil
}

type stubUnits struct {
	units map[string]domain.UnitOfCompetency
}

func (r *stubUnits) Create(ctx context.Context, unit domain.UnitOfCompetency) (domain.UnitOfCompetency, error) {
	r.units[unit.Code] = unit
	return unit, nil
}

func (r *stubUnits) GetByCode(ctx context.Context, code string) (domain.UnitOfCompetency, error) {
	unit, ok := r.units[code]
	if !ok {
		return domain.UnitOfCompetency{}, repository.ErrNotFound
	}
	return unit, nil
}

func (r *stubUnits) List(ctx context.Context, limit, offset int) ([]domain.UnitOfCompetency, error) {
	return nil, nil
}

func (r *stubUnits) ListRequirements(ctx context.Context, unitID uuid.UUID) ([]domain.Requirement, error) {
	for _, unit := range r.units {
		if unit.ID == unitID {
			return unit.Requirements, nil
		}
	}
	return nil, nil
}

func (r *stubUnits) UpsertRequirement(ctx context.Context, req domain.Requirement) (domain.Requirement, error) {
	return req, nil
}

type resultKey struct {
	reqType domain.RequirementType
	number  string
}

type stubResults struct {
	mu   sync.Mutex
	rows map[uuid.UUID]map[resultKey]domain.ValidationResult
}

func newStubResults() *stubResults {
	return &stubResults{rows: map[uuid.UUID]map[resultKey]domain.ValidationResult{}}
}

func (r *stubResults) CreateBatch(ctx context.Context, results []domain.ValidationResult) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inserted := 0
	for _, result := range results {
		byKey := r.rows[result.SessionID]
		if byKey == nil {
			byKey = map[resultKey]domain.ValidationResult{}
			r.rows[result.SessionID] = byKey
		}
		key := resultKey{reqType: result.RequirementType, number: result.RequirementNumber}
		if _, exists := byKey[key]; exists {
			continue
		}
		result.ID = uuid.New()
		result.Status = domain.ResultStatusPending
		byKey[key] = result
		inserted++
	}
	return inserted, nil
}

func (r *stubResults) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]domain.ValidationResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var results []domain.ValidationResult
	for _, result := range r.rows[sessionID] {
		results = append(results, result)
	}
	return results, nil
}

func (r *stubResults) GetByRequirement(ctx context.Context, sessionID uuid.UUID, reqType domain.RequirementType, number string) (domain.ValidationResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result, ok := r.rows[sessionID][resultKey{reqType: reqType, number: number}]
	if !ok {
		return domain.ValidationResult{}, repository.ErrNotFound
	}
	return result, nil
}

func (r *stubResults) Upsert(ctx context.Context, result domain.ValidationResult) (domain.ValidationResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	byKey := r.rows[result.SessionID]
	if byKey == nil {
		byKey = map[resultKey]domain.ValidationResult{}
		r.rows[result.SessionID] = byKey
	}
	key := resultKey{reqType: result.RequirementType, number: result.RequirementNumber}
	if existing, ok := byKey[key]; ok {
		result.ID = existing.ID
	} else if result.ID == uuid.Nil {
		result.ID = uuid.New()
	}
	byKey[key] = result
	return result, nil
}

func (r *stubResults) SetQuestion(ctx context.Context, id uuid.UUID, question, answer string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for sessionID, byKey := range r.rows {
		for key, result := range byKey {
			if result.ID == id {
				result.GeneratedQuestion = &question
				result.BenchmarkAnswer = &answer
				r.rows[sessionID][key] = result
				return nil
			}
		}
	}
	return repository.ErrNotFound
}

func (r *stubResults) CountCompleted(ctx context.Context, sessionID uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, result := range r.rows[sessionID] {
		if result.Status != domain.ResultStatusPending {
			count++
		}
	}
	return count, nil
}

type stubCreditConsumer struct {
	balance int
	calls   int
}

func (c *stubCreditConsumer) Consume(ctx context.Context, rtoID uuid.UUID, kind domain.CreditKind, amount int, reason string) error {
	c.calls++
	if c.balance < amount {
		return repository.ErrInsufficientCredits
	}
	c.balance -= amount
	return nil
}

type stubSearcher struct {
	hits []indexing.QueryHit
	err  error
}

func (s *stubSearcher) Query(ctx context.Context, query string, limit int) ([]indexing.QueryHit, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.hits, nil
}

type stubJudge struct {
	mu       sync.Mutex
	verdicts map[string]Verdict
	fallback Verdict
	question GeneratedQuestion
	calls    int
}

func (j *stubJudge) JudgeRequirement(ctx context.Context, prompt string) (Verdict, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.calls++
	for marker, verdict := range j.verdicts {
		if strings.Contains(prompt, marker) {
			return verdict, nil
		}
	}
	if j.fallback.Status == "" {
		return Verdict{Status: "met", Reasoning: "covered by the evidence"}, nil
	}
	return j.fallback, nil
}

func (j *stubJudge) GenerateQuestion(ctx context.Context, prompt string) (GeneratedQuestion, error) {
	if j.question.Question == "" {
		return GeneratedQuestion{Question: "Describe the procedure.", BenchmarkAnswer: "A complete description."}, nil
	}
	return j.question, nil
}

func fixtureUnit(code string) domain.UnitOfCompetency {
	unit := domain.NewUnitOfCompetency(code, "Assist clients with medication", "1")
	unit.Requirements = []domain.Requirement{
		{ID: uuid.New(), UnitID: unit.ID, Type: domain.RequirementKnowledgeEvidence, Number: "KE1", Text: "legislation governing medication assistance"},
		{ID: uuid.New(), UnitID: unit.ID, Type: domain.RequirementKnowledgeEvidence, Number: "KE2", Text: "roles and responsibilities of care workers"},
		{ID: uuid.New(), UnitID: unit.ID, Type: domain.RequirementPerformanceEvidence, Number: "PE1", Text: "assisted three clients with medication"},
	}
	return unit
}

func newValidationFixture(t *testing.T) (*Service, *stubSessions, *stubResults, *stubCreditConsumer, *stubJudge, domain.ValidationSession) {
	t.Helper()
	sessions := newStubSessions()
	units := &stubUnits{units: map[string]domain.UnitOfCompetency{}}
	results := newStubResults()
	credits := &stubCreditConsumer{balance: 5}
	searcher := &stubSearcher{hits: []indexing.QueryHit{
		{DocumentKey: uuid.NewString(), FileName: "assessment.pdf", Excerpt: "relevant passage"},
	}}
	judge := &stubJudge{}

	unit := fixtureUnit("HLTHPS006")
	units.units[unit.Code] = unit

	session := domain.NewValidationSession(uuid.New(), unit.Code)
	session.DocExtracted = true
	sessions.sessions[session.ID] = session

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	svc := NewService(sessions, units, results, credits, searcher, judge, Options{}, logger)
	return svc, sessions, results, credits, judge, session
}

func TestCreateRecordsSeedsPendingRows(t *testing.T) {
	svc, sessions, results, _, _, session := newValidationFixture(t)

	count, err := svc.CreateRecords(context.Background(), session.RTOID, session.ID)
	if err != nil {
		t.Fatalf("CreateRecords failed: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 requirements, got %d", count)
	}

	rows, _ := results.ListBySession(context.Background(), session.ID)
	if len(rows) != 3 {
		t.Fatalf("expected 3 result rows, got %d", len(rows))
	}
	for _, row := range rows {
		if row.Status != domain.ResultStatusPending {
			t.Errorf("requirement %s should start pending, got %s", row.RequirementNumber, row.Status)
		}
	}

	updated, _ := sessions.GetByID(context.Background(), session.ID)
	if !updated.ReqExtracted {
		t.Error("req_extracted should be set after record creation")
	}
	if updated.TotalRequirements != 3 {
		t.Errorf("expected total 3, got %d", updated.TotalRequirements)
	}
	if updated.Stage() != domain.SessionStageDocuments {
		t.Errorf("expected documents stage, got %s", updated.Stage())
	}

	// Idempotent: a second call keeps the existing rows.
	if _, err := svc.CreateRecords(context.Background(), session.RTOID, session.ID); err != nil {
		t.Fatalf("second CreateRecords failed: %v", err)
	}
	rows, _ = results.ListBySession(context.Background(), session.ID)
	if len(rows) != 3 {
		t.Errorf("second call must not duplicate rows, got %d", len(rows))
	}
}

func TestRunValidatesAllPendingRequirements(t *testing.T) {
	svc, sessions, results, credits, judge, session := newValidationFixture(t)
	judge.verdicts = map[string]Verdict{
		"PE1": {Status: "not_met", Reasoning: "no practical evidence"},
	}

	if _, err := svc.CreateRecords(context.Background(), session.RTOID, session.ID); err != nil {
		t.Fatalf("CreateRecords failed: %v", err)
	}

	validated, err := svc.Run(context.Background(), session.RTOID, session.ID)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(validated) != 3 {
		t.Fatalf("expected 3 results, got %d", len(validated))
	}
	if credits.balance != 4 {
		t.Errorf("expected one validation credit consumed, balance %d", credits.balance)
	}

	row, err := results.GetByRequirement(context.Background(), session.ID, domain.RequirementPerformanceEvidence, "PE1")
	if err != nil {
		t.Fatalf("GetByRequirement failed: %v", err)
	}
	if row.Status != domain.ResultStatusNotMet {
		t.Errorf("expected PE1 not_met, got %s", row.Status)
	}
	if len(row.Evidence) == 0 {
		t.Error("expected evidence citations on the verdict")
	}

	updated, _ := sessions.GetByID(context.Background(), session.ID)
	if updated.CompletedRequirements != 3 {
		t.Errorf("expected completed count 3, got %d", updated.CompletedRequirements)
	}
	if updated.Stage() != domain.SessionStageValidated {
		t.Errorf("expected validated stage, got %s", updated.Stage())
	}
}

func TestRunRefusedWithoutCredits(t *testing.T) {
	svc, _, results, credits, judge, session := newValidationFixture(t)
	credits.balance = 0

	if _, err := svc.CreateRecords(context.Background(), session.RTOID, session.ID); err != nil {
		t.Fatalf("CreateRecords failed: %v", err)
	}

	_, err := svc.Run(context.Background(), session.RTOID, session.ID)
	if !errors.Is(err, repository.ErrInsufficientCredits) {
		t.Fatalf("expected ErrInsufficientCredits, got %v", err)
	}
	if judge.calls != 0 {
		t.Errorf("LLM must not be called on a refused consume, got %d calls", judge.calls)
	}

	rows, _ := results.ListBySession(context.Background(), session.ID)
	for _, row := range rows {
		if row.Status != domain.ResultStatusPending {
			t.Errorf("requirement %s must stay pending, got %s", row.RequirementNumber, row.Status)
		}
	}
}

func TestRevalidateOverwritesSingleRow(t *testing.T) {
	svc, _, results, credits, judge, session := newValidationFixture(t)

	if _, err := svc.CreateRecords(context.Background(), session.RTOID, session.ID); err != nil {
		t.Fatalf("CreateRecords failed: %v", err)
	}
	if _, err := svc.Run(context.Background(), session.RTOID, session.ID); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	before, _ := results.GetByRequirement(context.Background(), session.ID, domain.RequirementKnowledgeEvidence, "KE1")

	judge.fallback = Verdict{Status: "partial", Reasoning: "evidence only covers state legislation"}
	creditsBefore := credits.balance

	after, err := svc.Revalidate(context.Background(), session.RTOID, session.ID, domain.RequirementKnowledgeEvidence, "KE1")
	if err != nil {
		t.Fatalf("Revalidate failed: %v", err)
	}
	if after.ID != before.ID {
		t.Error("revalidation must overwrite the row, not create a new one")
	}
	if after.Status != domain.ResultStatusPartial {
		t.Errorf("expected partial after revalidation, got %s", after.Status)
	}
	if credits.balance != creditsBefore {
		t.Errorf("single-requirement revalidation must not consume a credit")
	}

	rows, _ := results.ListBySession(context.Background(), session.ID)
	if len(rows) != 3 {
		t.Errorf("row count must stay 3, got %d", len(rows))
	}
}

func TestRegenerateQuestionsOnlyForUnmet(t *testing.T) {
	svc, _, results, _, judge, session := newValidationFixture(t)
	judge.verdicts = map[string]Verdict{
		"PE1": {Status: "not_met", Reasoning: "no practical evidence"},
	}
	judge.question = GeneratedQuestion{
		Question:        "Outline the steps for assisting a client with oral medication.",
		BenchmarkAnswer: "Check the medication chart, confirm identity, observe self-administration.",
	}

	if _, err := svc.CreateRecords(context.Background(), session.RTOID, session.ID); err != nil {
		t.Fatalf("CreateRecords failed: %v", err)
	}
	if _, err := svc.Run(context.Background(), session.RTOID, session.ID); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	result, err := svc.RegenerateQuestions(context.Background(), session.RTOID, session.ID, domain.RequirementPerformanceEvidence, "PE1")
	if err != nil {
		t.Fatalf("RegenerateQuestions failed: %v", err)
	}
	if result.GeneratedQuestion == nil || *result.GeneratedQuestion == "" {
		t.Error("expected a generated question")
	}
	if result.BenchmarkAnswer == nil || *result.BenchmarkAnswer == "" {
		t.Error("expected a benchmark answer")
	}

	// A met requirement gets no question.
	if _, err := svc.RegenerateQuestions(context.Background(), session.RTOID, session.ID, domain.RequirementKnowledgeEvidence, "KE1"); err == nil {
		t.Error("expected refusal for a met requirement")
	}

	row, _ := results.GetByRequirement(context.Background(), session.ID, domain.RequirementKnowledgeEvidence, "KE1")
	if row.GeneratedQuestion != nil {
		t.Error("met requirement must not receive a question")
	}
}
