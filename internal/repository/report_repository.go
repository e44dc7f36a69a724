package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rtoassure/backend/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// reportJobRepository implements ReportJobRepository interface
type reportJobRepository struct {
	pool *pgxpool.Pool
}

// NewReportJobRepository wires a repository backed by pgxpool.
func NewReportJobRepository(pool *pgxpool.Pool) ReportJobRepository {
	return &reportJobRepository{pool: pool}
}

const reportJobColumns = `id, rto_id, session_id, format, status, rows_exported,
	 file_path, file_mime_type, file_byte_size, error_message,
	 enqueued_at, started_at, completed_at, updated_at`

func scanReportJob(row pgx.Row) (domain.ReportJob, error) {
	var job domain.ReportJob
	err := row.Scan(
		&job.ID,
		&job.RTOID,
		&job.SessionID,
		&job.Format,
		&job.Status,
		&job.RowsExported,
		&job.FilePath,
		&job.FileMimeType,
		&job.FileByteSize,
		&job.ErrorMessage,
		&job.EnqueuedAt,
		&job.StartedAt,
		&job.CompletedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ReportJob{}, fmt.Errorf("report job: %w", ErrNotFound)
		}
		return domain.ReportJob{}, err
	}
	return job, nil
}

// Create enqueues a new report job in pending state
func (r *reportJobRepository) Create(ctx context.Context, job domain.ReportJob) (domain.ReportJob, error) {
	row := r.pool.QueryRow(
		ctx,
		`INSERT INTO report_jobs (rto_id, session_id, format, status)
		 VALUES ($1, $2, $3, $4)
		 RETURNING `+reportJobColumns,
		job.RTOID,
		job.SessionID,
		string(job.Format),
		string(domain.ReportJobStatusPending),
	)
	created, err := scanReportJob(row)
	if err != nil {
		return domain.ReportJob{}, fmt.Errorf("failed to create report job: %w", err)
	}
	return created, nil
}

// GetByID retrieves a report job by ID
func (r *reportJobRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.ReportJob, error) {
	row := r.pool.QueryRow(
		ctx,
		`SELECT `+reportJobColumns+` FROM report_jobs WHERE id = $1`,
		id,
	)
	job, err := scanReportJob(row)
	if err != nil {
		return domain.ReportJob{}, fmt.Errorf("failed to get report job: %w", err)
	}
	return job, nil
}

// List retrieves report jobs filtered by tenant and status, newest first
func (r *reportJobRepository) List(ctx context.Context, rtoID *uuid.UUID, statuses []domain.ReportJobStatus, limit, offset int) ([]domain.ReportJob, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	var conditions []string
	var args []any
	if rtoID != nil {
		args = append(args, *rtoID)
		conditions = append(conditions, fmt.Sprintf("rto_id = $%d", len(args)))
	}
	if len(statuses) > 0 {
		values := make([]string, len(statuses))
		for i, status := range statuses {
			values[i] = string(status)
		}
		args = append(args, values)
		conditions = append(conditions, fmt.Sprintf("status = ANY($%d)", len(args)))
	}

	query := `SELECT ` + reportJobColumns + ` FROM report_jobs`
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, " AND ")
	}
	args = append(args, limit)
	query += fmt.Sprintf(` ORDER BY enqueued_at DESC LIMIT $%d`, len(args))
	args = append(args, offset)
	query += fmt.Sprintf(` OFFSET $%d`, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list report jobs: %w", err)
	}
	defer rows.Close()

	var jobs []domain.ReportJob
	for rows.Next() {
		job, err := scanReportJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan report job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate report jobs: %w", err)
	}
	return jobs, nil
}

// MarkRunning claims a pending job for a worker.
func (r *reportJobRepository) MarkRunning(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(
		ctx,
		`UPDATE report_jobs
		 SET status = $1, started_at = now(), updated_at = now()
		 WHERE id = $2 AND status = $3`,
		string(domain.ReportJobStatusRunning),
		id,
		string(domain.ReportJobStatusPending),
	)
	if err != nil {
		return fmt.Errorf("failed to mark report job running: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("report job %s: %w", id, ErrReportJobStatusConflict)
	}
	return nil
}

// UpdateProgress records rows exported so far on a running job
func (r *reportJobRepository) UpdateProgress(ctx context.Context, id uuid.UUID, rowsExported int) error {
	tag, err := r.pool.Exec(
		ctx,
		`UPDATE report_jobs
		 SET rows_exported = $1, updated_at = now()
		 WHERE id = $2 AND status = $3`,
		rowsExported,
		id,
		string(domain.ReportJobStatusRunning),
	)
	if err != nil {
		return fmt.Errorf("failed to update report job progress: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("report job %s: %w", id, ErrReportJobStatusConflict)
	}
	return nil
}

// MarkCompleted stores the finished file metadata on a running job.
func (r *reportJobRepository) MarkCompleted(ctx context.Context, id uuid.UUID, result ReportResult) error {
	tag, err := r.pool.Exec(
		ctx,
		`UPDATE report_jobs
		 SET status = $1,
		     rows_exported = $2,
		     file_path = $3,
		     file_mime_type = $4,
		     file_byte_size = $5,
		     completed_at = now(),
		     updated_at = now()
		 WHERE id = $6 AND status = $7`,
		string(domain.ReportJobStatusCompleted),
		result.RowsExported,
		result.FilePath,
		result.FileMimeType,
		result.FileByteSize,
		id,
		string(domain.ReportJobStatusRunning),
	)
	if err != nil {
		return fmt.Errorf("failed to mark report job completed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("report job %s: %w", id, ErrReportJobStatusConflict)
	}
	return nil
}

// MarkFailed records a worker failure on a pending or running job.
func (r *reportJobRepository) MarkFailed(ctx context.Context, id uuid.UUID, errorMessage string) error {
	tag, err := r.pool.Exec(
		ctx,
		`UPDATE report_jobs
		 SET status = $1, error_message = $2, completed_at = now(), updated_at = now()
		 WHERE id = $3 AND status IN ($4, $5)`,
		string(domain.ReportJobStatusFailed),
		errorMessage,
		id,
		string(domain.ReportJobStatusPending),
		string(domain.ReportJobStatusRunning),
	)
	if err != nil {
		return fmt.Errorf("failed to mark report job failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("report job %s: %w", id, ErrReportJobStatusConflict)
	}
	return nil
}

// MarkCancelled cancels a job that has not finished yet.
func (r *reportJobRepository) MarkCancelled(ctx context.Context, id uuid.UUID, reason string) error {
	tag, err := r.pool.Exec(
		ctx,
		`UPDATE report_jobs
		 SET status = $1, error_message = $2, completed_at = now(), updated_at = now()
		 WHERE id = $3 AND status IN ($4, $5)`,
		string(domain.ReportJobStatusCancelled),
		reason,
		id,
		string(domain.ReportJobStatusPending),
		string(domain.ReportJobStatusRunning),
	)
	if err != nil {
		return fmt.Errorf("failed to mark report job cancelled: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("report job %s: %w", id, ErrReportJobStatusConflict)
	}
	return nil
}
