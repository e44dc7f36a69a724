package report

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rtoassure/backend/internal/domain"
	"github.com/rtoassure/backend/internal/repository"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"
)

var errJobNotRunnable = errors.New("report job is no longer runnable")

var reportColumns = []string{
	"unit_code",
	"requirement_type",
	"requirement_number",
	"requirement_text",
	"status",
	"reasoning",
	"evidence_count",
	"generated_question",
	"benchmark_answer",
}

// Service builds session compliance reports asynchronously. Each queued job
// runs in its own goroutine with a cancellable context; the persisted job row
// is the source of truth for progress and the final file location.
type Service struct {
	jobs     repository.ReportJobRepository
	sessions repository.SessionRepository
	results  repository.ResultRepository

	reportDir  string
	jobTimeout time.Duration
	now        func() time.Time
	logger     *logrus.Logger

	downloadSigner *downloadSigner

	workerCancels sync.Map // map[uuid.UUID]context.CancelFunc
}

type Option func(*Service)

func WithReportDirectory(dir string) Option {
	return func(s *Service) {
		if strings.TrimSpace(dir) != "" {
			s.reportDir = filepath.Clean(dir)
		}
	}
}

func WithJobTimeout(timeout time.Duration) Option {
	return func(s *Service) {
		if timeout > 0 {
			s.jobTimeout = timeout
		}
	}
}

// WithDownloadTokenTTL customizes the TTL for generated download links.
func WithDownloadTokenTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.downloadSigner = newDownloadSigner(ttl)
		}
	}
}

func NewService(
	jobs repository.ReportJobRepository,
	sessions repository.SessionRepository,
	results repository.ResultRepository,
	logger *logrus.Logger,
	opts ...Option,
) *Service {
	service := &Service{
		jobs:       jobs,
		sessions:   sessions,
		results:    results,
		reportDir:  filepath.Join(os.TempDir(), "rtoassure-reports"),
		jobTimeout: 10 * time.Minute,
		now:        time.Now,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(service)
	}
	if service.downloadSigner == nil {
		service.downloadSigner = newDownloadSigner(5 * time.Minute)
	}
	return service
}

// QueueRequest describes one report export.
type QueueRequest struct {
	RTOID     uuid.UUID
	SessionID uuid.UUID
	Format    domain.ReportFormat
}

// Queue validates the request, persists a pending job and starts the worker.
func (s *Service) Queue(ctx context.Context, req QueueRequest) (domain.ReportJob, error) {
	if req.RTOID == uuid.Nil {
		return domain.ReportJob{}, errors.New("rto id is required")
	}
	if req.SessionID == uuid.Nil {
		return domain.ReportJob{}, errors.New("session id is required")
	}
	if req.Format != domain.ReportFormatXLSX && req.Format != domain.ReportFormatCSV {
		return domain.ReportJob{}, fmt.Errorf("unsupported report format %q", req.Format)
	}

	session, err := s.sessions.GetByID(ctx, req.SessionID)
	if err != nil {
		return domain.ReportJob{}, err
	}
	if session.RTOID != req.RTOID {
		return domain.ReportJob{}, fmt.Errorf("session %s: %w", req.SessionID, repository.ErrNotFound)
	}

	job := domain.ReportJob{
		RTOID:     req.RTOID,
		SessionID: req.SessionID,
		Format:    req.Format,
	}
	persisted, err := s.jobs.Create(ctx, job)
	if err != nil {
		return domain.ReportJob{}, err
	}
	s.launchWorker(persisted)
	return persisted, nil
}

// Get returns the metadata for a single report job.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (domain.ReportJob, error) {
	if id == uuid.Nil {
		return domain.ReportJob{}, errors.New("job id is required")
	}
	return s.jobs.GetByID(ctx, id)
}

// List returns jobs filtered by tenant and status.
func (s *Service) List(ctx context.Context, rtoID *uuid.UUID, statuses []domain.ReportJobStatus, limit, offset int) ([]domain.ReportJob, error) {
	return s.jobs.List(ctx, rtoID, statuses, limit, offset)
}

// Cancel requests cancellation for a pending or running job.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (domain.ReportJob, error) {
	if id == uuid.Nil {
		return domain.ReportJob{}, errors.New("job id is required")
	}
	job, err := s.jobs.GetByID(ctx, id)
	if err != nil {
		return domain.ReportJob{}, err
	}
	if job.Status != domain.ReportJobStatusPending && job.Status != domain.ReportJobStatusRunning {
		return job, fmt.Errorf("report job in status %s cannot be cancelled", job.Status)
	}
	if err := s.jobs.MarkCancelled(ctx, id, "Cancelled by user"); err != nil {
		if errors.Is(err, repository.ErrReportJobStatusConflict) {
			return s.jobs.GetByID(ctx, id)
		}
		return domain.ReportJob{}, err
	}
	if cancel, ok := s.workerCancels.LoadAndDelete(id); ok {
		if fn, okCast := cancel.(context.CancelFunc); okCast {
			fn()
		}
	}
	return s.jobs.GetByID(ctx, id)
}

// BuildDownloadURL signs a short-lived download URL for completed report files.
func (s *Service) BuildDownloadURL(job domain.ReportJob) (*string, error) {
	if job.Status != domain.ReportJobStatusCompleted {
		return nil, nil
	}
	if job.FilePath == nil || strings.TrimSpace(*job.FilePath) == "" {
		return nil, nil
	}
	token := s.downloadSigner.Sign(job.ID, s.now())
	values := url.Values{}
	values.Set("token", token)
	download := fmt.Sprintf("/api/reports/files/%s?%s", job.ID.String(), values.Encode())
	return &download, nil
}

// ValidateDownloadToken ensures the token is valid for the given job.
func (s *Service) ValidateDownloadToken(jobID uuid.UUID, token string) error {
	return s.downloadSigner.Verify(jobID, token, s.now())
}

// OpenJobFile opens the completed report file for streaming to the client.
func (s *Service) OpenJobFile(job domain.ReportJob) (*os.File, error) {
	if job.Status != domain.ReportJobStatusCompleted {
		return nil, errors.New("report is not completed")
	}
	if job.FilePath == nil || strings.TrimSpace(*job.FilePath) == "" {
		return nil, errors.New("report file is unavailable")
	}
	file, err := os.Open(*job.FilePath)
	if err != nil {
		return nil, fmt.Errorf("open report file: %w", err)
	}
	return file, nil
}

func (s *Service) launchWorker(job domain.ReportJob) {
	baseCtx, baseCancel := context.WithCancel(context.Background())
	ctx := baseCtx
	cancelFunc := baseCancel
	if s.jobTimeout > 0 {
		timeoutCtx, timeoutCancel := context.WithTimeout(baseCtx, s.jobTimeout)
		ctx = timeoutCtx
		cancelFunc = func() {
			timeoutCancel()
			baseCancel()
		}
	}
	s.workerCancels.Store(job.ID, cancelFunc)
	go func() {
		defer func() {
			cancelFunc()
			s.workerCancels.Delete(job.ID)
		}()
		defer func() {
			if rec := recover(); rec != nil {
				err := fmt.Errorf("panic: %v", rec)
				s.logger.WithField("job_id", job.ID).Errorf("panic while building report: %v", rec)
				s.failJob(context.Background(), job.ID, err)
			}
		}()
		if err := s.runExport(ctx, job); err != nil {
			switch {
			case errors.Is(err, context.Canceled):
				s.logger.WithField("job_id", job.ID).Info("report job cancelled")
			case errors.Is(err, errJobNotRunnable):
				s.logger.WithField("job_id", job.ID).Info("report job not runnable, skipping")
			default:
				s.failJob(ctx, job.ID, err)
			}
		}
	}()
}

func (s *Service) failJob(ctx context.Context, jobID uuid.UUID, err error) {
	if err == nil {
		return
	}
	if ctx == nil || ctx.Err() != nil {
		ctx = context.Background()
	}
	message := truncateError(err)
	if markErr := s.jobs.MarkFailed(ctx, jobID, message); markErr != nil {
		s.logger.WithField("job_id", jobID).Errorf("failed to mark report job failed: %v (original error: %v)", markErr, err)
		return
	}
	s.logger.WithField("job_id", jobID).Warnf("report job failed: %v", err)
}

func (s *Service) runExport(ctx context.Context, job domain.ReportJob) error {
	if err := s.jobs.MarkRunning(ctx, job.ID); err != nil {
		if errors.Is(err, repository.ErrReportJobStatusConflict) {
			return errJobNotRunnable
		}
		return fmt.Errorf("mark report job running: %w", err)
	}

	session, err := s.sessions.GetByID(ctx, job.SessionID)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	results, err := s.results.ListBySession(ctx, job.SessionID)
	if err != nil {
		return fmt.Errorf("load session results: %w", err)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	if err := os.MkdirAll(s.reportDir, 0o755); err != nil {
		return fmt.Errorf("ensure report directory: %w", err)
	}

	var (
		finalPath string
		written   int
	)
	switch job.Format {
	case domain.ReportFormatCSV:
		finalPath, written, err = s.writeCSV(ctx, job, session, results)
	case domain.ReportFormatXLSX:
		finalPath, written, err = s.writeXLSX(ctx, job, session, results)
	default:
		err = fmt.Errorf("unsupported report format %q", job.Format)
	}
	if err != nil {
		return err
	}

	info, err := os.Stat(finalPath)
	if err != nil {
		return fmt.Errorf("stat report file: %w", err)
	}
	size := info.Size()
	mime := mimeForFormat(job.Format)
	if err := s.jobs.MarkCompleted(ctx, job.ID, repository.ReportResult{
		RowsExported: written,
		FilePath:     &finalPath,
		FileMimeType: &mime,
		FileByteSize: &size,
	}); err != nil {
		return fmt.Errorf("mark report completed: %w", err)
	}
	s.logger.WithFields(logrus.Fields{
		"job_id": job.ID,
		"rows":   written,
		"path":   finalPath,
	}).Info("report job completed")
	return nil
}

func (s *Service) writeCSV(ctx context.Context, job domain.ReportJob, session domain.ValidationSession, results []domain.ValidationResult) (string, int, error) {
	tempFile, err := os.CreateTemp(s.reportDir, fmt.Sprintf("%s-*.csv", job.ID))
	if err != nil {
		return "", 0, fmt.Errorf("create temp report file: %w", err)
	}
	tempPath := tempFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = tempFile.Close()
			_ = os.Remove(tempPath)
		}
	}()

	buffered := bufio.NewWriter(tempFile)
	csvWriter := csv.NewWriter(buffered)

	if err := csvWriter.Write(reportColumns); err != nil {
		return "", 0, fmt.Errorf("write header: %w", err)
	}

	written := 0
	for _, result := range results {
		if ctx.Err() != nil {
			return "", 0, ctx.Err()
		}
		if err := csvWriter.Write(reportRow(session, result)); err != nil {
			return "", 0, fmt.Errorf("write result row: %w", err)
		}
		written++
		if written%100 == 0 {
			if err := s.jobs.UpdateProgress(ctx, job.ID, written); err != nil {
				return "", 0, fmt.Errorf("update report progress: %w", err)
			}
		}
	}

	csvWriter.Flush()
	if err := csvWriter.Error(); err != nil {
		return "", 0, fmt.Errorf("final flush: %w", err)
	}
	if err := buffered.Flush(); err != nil {
		return "", 0, fmt.Errorf("final buffered flush: %w", err)
	}
	if err := tempFile.Sync(); err != nil {
		return "", 0, fmt.Errorf("sync report file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return "", 0, fmt.Errorf("close report file: %w", err)
	}

	finalPath := filepath.Join(s.reportDir, finalFileName(job, session))
	if err := os.Rename(tempPath, finalPath); err != nil {
		return "", 0, fmt.Errorf("promote report file: %w", err)
	}
	cleanup = false
	return finalPath, written, nil
}

func (s *Service) writeXLSX(ctx context.Context, job domain.ReportJob, session domain.ValidationSession, results []domain.ValidationResult) (string, int, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet := "Results"
	f.SetSheetName(f.GetSheetName(0), sheet)

	for col, header := range reportColumns {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return "", 0, fmt.Errorf("compute header cell: %w", err)
		}
		if err := f.SetCellValue(sheet, cell, header); err != nil {
			return "", 0, fmt.Errorf("write header cell: %w", err)
		}
	}

	written := 0
	for rowIdx, result := range results {
		if ctx.Err() != nil {
			return "", 0, ctx.Err()
		}
		for col, value := range reportRow(session, result) {
			cell, err := excelize.CoordinatesToCellName(col+1, rowIdx+2)
			if err != nil {
				return "", 0, fmt.Errorf("compute cell: %w", err)
			}
			if err := f.SetCellValue(sheet, cell, value); err != nil {
				return "", 0, fmt.Errorf("write cell: %w", err)
			}
		}
		written++
		if written%100 == 0 {
			if err := s.jobs.UpdateProgress(ctx, job.ID, written); err != nil {
				return "", 0, fmt.Errorf("update report progress: %w", err)
			}
		}
	}

	finalPath := filepath.Join(s.reportDir, finalFileName(job, session))
	if err := f.SaveAs(finalPath); err != nil {
		return "", 0, fmt.Errorf("save report workbook: %w", err)
	}
	return finalPath, written, nil
}

func reportRow(session domain.ValidationSession, result domain.ValidationResult) []string {
	question := ""
	if result.GeneratedQuestion != nil {
		question = *result.GeneratedQuestion
	}
	answer := ""
	if result.BenchmarkAnswer != nil {
		answer = *result.BenchmarkAnswer
	}
	return []string{
		session.UnitCode,
		string(result.RequirementType),
		result.RequirementNumber,
		result.RequirementText,
		string(result.Status),
		result.Reasoning,
		fmt.Sprintf("%d", len(result.Evidence)),
		question,
		answer,
	}
}

func finalFileName(job domain.ReportJob, session domain.ValidationSession) string {
	base := sanitizeFileComponent(session.UnitCode)
	if base == "" {
		base = "session-report"
	}
	return fmt.Sprintf("%s-%s.%s", base, job.ID.String(), job.Format)
}

func mimeForFormat(format domain.ReportFormat) string {
	if format == domain.ReportFormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv"
}

func sanitizeFileComponent(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return ""
	}
	builder := strings.Builder{}
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z':
			builder.WriteRune(r)
		case r >= '0' && r <= '9':
			builder.WriteRune(r)
		case r == '-' || r == '_':
			builder.WriteRune(r)
		default:
			builder.WriteRune('-')
		}
	}
	result := strings.Trim(builder.String(), "-")
	if result == "" {
		return "report"
	}
	return result
}

func truncateError(err error) string {
	if err == nil {
		return ""
	}
	const maxLen = 512
	msg := err.Error()
	if len(msg) > maxLen {
		return msg[:maxLen]
	}
	return msg
}
