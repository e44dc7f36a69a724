package report

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rtoassure/backend/internal/domain"
	"github.com/rtoassure/backend/internal/repository"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type stubReportJobRepo struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]domain.ReportJob
}

func newStubReportJobRepo() *stubReportJobRepo {
	return &stubReportJobRepo{jobs: map[uuid.UUID]domain.ReportJob{}}
}

func (r *stubReportJobRepo) Create(ctx context.Context, job domain.ReportJob) (domain.ReportJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job.ID = uuid.New()
	job.Status = domain.ReportJobStatusPending
	job.EnqueuedAt = time.Now()
	r.jobs[job.ID] = job
	return job, nil
}

func (r *stubReportJobRepo) GetByID(ctx context.Context, id uuid.UUID) (domain.ReportJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return domain.ReportJob{}, repository.ErrNotFound
	}
	return job, nil
}

func (r *stubReportJobRepo) List(ctx context.Context, rtoID *uuid.UUID, statuses []domain.ReportJobStatus, limit, offset int) ([]domain.ReportJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.ReportJob
	for _, job := range r.jobs {
		if rtoID != nil && job.RTOID != *rtoID {
			continue
		}
		out = append(out, job)
	}
	return out, nil
}

func (r *stubReportJobRepo) mutate(id uuid.UUID, from []domain.ReportJobStatus, apply func(*domain.ReportJob)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return repository.ErrNotFound
	}
	allowed := false
	for _, status := range from {
		if job.Status == status {
			allowed = true
			break
		}
	}
	if !allowed {
		return repository.ErrReportJobStatusConflict
	}
	apply(&job)
	r.jobs[id] = job
	return nil
}

func (r *stubReportJobRepo) MarkRunning(ctx context.Context, id uuid.UUID) error {
	return r.mutate(id, []domain.ReportJobStatus{domain.ReportJobStatusPending}, func(job *domain.ReportJob) {
		job.Status = domain.ReportJobStatusRunning
	})
}

func (r *stubReportJobRepo) UpdateProgress(ctx context.Context, id uuid.UUID, rowsExported int) error {
	return r.mutate(id, []domain.ReportJobStatus{domain.ReportJobStatusRunning}, func(job *domain.ReportJob) {
		job.RowsExported = rowsExported
	})
}

func (r *stubReportJobRepo) MarkCompleted(ctx context.Context, id uuid.UUID, result repository.ReportResult) error {
	return r.mutate(id, []domain.ReportJobStatus{domain.ReportJobStatusRunning}, func(job *domain.ReportJob) {
		job.Status = domain.ReportJobStatusCompleted
		job.RowsExported = result.RowsExported
		job.FilePath = result.FilePath
		job.FileMimeType = result.FileMimeType
		job.FileByteSize = result.FileByteSize
	})
}

func (r *stubReportJobRepo) MarkFailed(ctx context.Context, id uuid.UUID, message string) error {
	return r.mutate(id, []domain.ReportJobStatus{domain.ReportJobStatusPending, domain.ReportJobStatusRunning}, func(job *domain.ReportJob) {
		job.Status = domain.ReportJobStatusFailed
		job.ErrorMessage = &message
	})
}

func (r *stubReportJobRepo) MarkCancelled(ctx context.Context, id uuid.UUID, reason string) error {
	return r.mutate(id, []domain.ReportJobStatus{domain.ReportJobStatusPending, domain.ReportJobStatusRunning}, func(job *domain.ReportJob) {
		job.Status = domain.ReportJobStatusCancelled
		job.ErrorMessage = &reason
	})
}

type stubSessionRepo struct {
	sessions map[uuid.UUID]domain.ValidationSession
}

func (r *stubSessionRepo) Create(ctx context.Context, session domain.ValidationSession) (domain.ValidationSession, error) {
	r.sessions[session.ID] = session
	return session, nil
}

func (r *stubSessionRepo) GetByID(ctx context.Context, id uuid.UUID) (domain.ValidationSession, error) {
	session, ok := r.sessions[id]
	if !ok {
		return domain.ValidationSession{}, repository.ErrNotFound
	}
	return session, nil
}

func (r *stubSessionRepo) ListByRTO(ctx context.Context, rtoID uuid.UUID, limit, offset int) ([]domain.ValidationSession, error) {
	return nil, nil
}

func (r *stubSessionRepo) SetDocExtracted(ctx context.Context, id uuid.UUID, extracted bool) error {
	return nil
}

func (r *stubSessionRepo) SetReqExtracted(ctx context.Context, id uuid.UUID, extracted bool) error {
	return nil
}

func (r *stubSessionRepo) SetRequirementCounts(ctx context.Context, id uuid.UUID, total, completed int) error {
	return nil
}

func (r *stubSessionRepo) SetCompletedCount(ctx context.Context, id uuid.UUID, completed int) error {
	return nil
}

type stubResultRepo struct {
	results []domain.ValidationResult
}

func (r *stubResultRepo) CreateBatch(ctx context.Context, results []domain.ValidationResult) (int, error) {
	return 0, nil
}

func (r *stubResultRepo) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]domain.ValidationResult, error) {
	return r.results, nil
}

func (r *stubResultRepo) GetByRequirement(ctx context.Context, sessionID uuid.UUID, reqType domain.RequirementType, number string) (domain.ValidationResult, error) {
	return domain.ValidationResult{}, repository.ErrNotFound
}

func (r *stubResultRepo) Upsert(ctx context.Context, result domain.ValidationResult) (domain.ValidationResult, error) {
	return result, nil
}

func (r *stubResultRepo) SetQuestion(ctx context.Context, id uuid.UUID, question, answer string) error {
	return nil
}

func (r *stubResultRepo) CountCompleted(ctx context.Context, sessionID uuid.UUID) (int, error) {
	return 0, nil
}

func newReportFixture(t *testing.T) (*Service, *stubReportJobRepo, domain.ValidationSession) {
	t.Helper()

	session := domain.NewValidationSession(uuid.New(), "CHCCCS015")
	sessions := &stubSessionRepo{sessions: map[uuid.UUID]domain.ValidationSession{session.ID: session}}

	question := "Describe the record-keeping obligations for client files."
	answer := "Records must be stored securely for seven years."
	results := &stubResultRepo{results: []domain.ValidationResult{
		{
			ID:                uuid.New(),
			SessionID:         session.ID,
			RequirementType:   domain.RequirementKnowledgeEvidence,
			RequirementNumber: "KE1",
			RequirementText:   "Legislative requirements for client records",
			Status:            domain.ResultStatusMet,
			Reasoning:         "Covered in the learner guide",
		},
		{
			ID:                uuid.New(),
			SessionID:         session.ID,
			RequirementType:   domain.RequirementPerformanceEvidence,
			RequirementNumber: "PE1",
			RequirementText:   "Responded to three simulated client scenarios",
			Status:            domain.ResultStatusNotMet,
			Reasoning:         "No scenario evidence found",
			GeneratedQuestion: &question,
			BenchmarkAnswer:   &answer,
		},
	}}

	jobs := newStubReportJobRepo()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	svc := NewService(jobs, sessions, results, logger, WithReportDirectory(t.TempDir()))
	return svc, jobs, session
}

func TestRunExportWritesCSVAndCompletesJob(t *testing.T) {
	svc, jobs, session := newReportFixture(t)

	job, err := jobs.Create(context.Background(), domain.ReportJob{
		RTOID:     session.RTOID,
		SessionID: session.ID,
		Format:    domain.ReportFormatCSV,
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := svc.runExport(context.Background(), job); err != nil {
		t.Fatalf("runExport failed: %v", err)
	}

	updated, err := jobs.GetByID(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if updated.Status != domain.ReportJobStatusCompleted {
		t.Fatalf("expected completed job, got %s", updated.Status)
	}
	if updated.RowsExported != 2 {
		t.Errorf("expected 2 exported rows, got %d", updated.RowsExported)
	}
	if updated.FilePath == nil {
		t.Fatal("expected a file path on the completed job")
	}

	file, err := os.Open(*updated.FilePath)
	if err != nil {
		t.Fatalf("open report file: %v", err)
	}
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		t.Fatalf("read report csv: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d", len(records))
	}
	if records[0][0] != "unit_code" {
		t.Errorf("unexpected header row: %v", records[0])
	}
	if records[2][4] != "not_met" {
		t.Errorf("expected not_met status in second row, got %q", records[2][4])
	}
	if !strings.Contains(records[2][7], "record-keeping") {
		t.Errorf("expected generated question in export, got %q", records[2][7])
	}
}

func TestRunExportWritesXLSX(t *testing.T) {
	svc, jobs, session := newReportFixture(t)

	job, err := jobs.Create(context.Background(), domain.ReportJob{
		RTOID:     session.RTOID,
		SessionID: session.ID,
		Format:    domain.ReportFormatXLSX,
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := svc.runExport(context.Background(), job); err != nil {
		t.Fatalf("runExport failed: %v", err)
	}

	updated, _ := jobs.GetByID(context.Background(), job.ID)
	if updated.Status != domain.ReportJobStatusCompleted {
		t.Fatalf("expected completed job, got %s", updated.Status)
	}
	if updated.FileMimeType == nil || !strings.Contains(*updated.FileMimeType, "spreadsheetml") {
		t.Errorf("expected xlsx mime type, got %v", updated.FileMimeType)
	}
	if updated.FileByteSize == nil || *updated.FileByteSize == 0 {
		t.Error("expected a non-empty report file")
	}
}

func TestRunExportSkipsCancelledJob(t *testing.T) {
	svc, jobs, session := newReportFixture(t)

	job, err := jobs.Create(context.Background(), domain.ReportJob{
		RTOID:     session.RTOID,
		SessionID: session.ID,
		Format:    domain.ReportFormatCSV,
	})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := jobs.MarkCancelled(context.Background(), job.ID, "Cancelled by user"); err != nil {
		t.Fatalf("MarkCancelled failed: %v", err)
	}

	if err := svc.runExport(context.Background(), job); !errors.Is(err, errJobNotRunnable) {
		t.Fatalf("expected errJobNotRunnable, got %v", err)
	}

	updated, _ := jobs.GetByID(context.Background(), job.ID)
	if updated.Status != domain.ReportJobStatusCancelled {
		t.Fatalf("expected job to stay cancelled, got %s", updated.Status)
	}
}

func TestQueueRejectsForeignSession(t *testing.T) {
	svc, _, session := newReportFixture(t)

	_, err := svc.Queue(context.Background(), QueueRequest{
		RTOID:     uuid.New(),
		SessionID: session.ID,
		Format:    domain.ReportFormatCSV,
	})
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign session, got %v", err)
	}
}

func TestDownloadTokenRoundTrip(t *testing.T) {
	signer := newDownloadSigner(time.Minute)
	jobID := uuid.New()
	issued := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)

	token := signer.Sign(jobID, issued)
	if err := signer.Verify(jobID, token, issued.Add(30*time.Second)); err != nil {
		t.Fatalf("expected token to verify, got %v", err)
	}
	if err := signer.Verify(jobID, token, issued.Add(2*time.Minute)); err == nil {
		t.Fatal("expected expired token to be rejected")
	}
	if err := signer.Verify(uuid.New(), token, issued.Add(30*time.Second)); err == nil {
		t.Fatal("expected token for a different job to be rejected")
	}
}
