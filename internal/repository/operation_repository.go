package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/rtoassure/backend/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// operationRepository implements OperationRepository interface
type operationRepository struct {
	pool *pgxpool.Pool
}

// NewOperationRepository wires a repository backed by pgxpool.
func NewOperationRepository(pool *pgxpool.Pool) OperationRepository {
	return &operationRepository{pool: pool}
}

const operationColumns = `id, document_id, provider_operation, status, progress_percentage,
	 elapsed_time_ms, max_wait_time_ms, check_count, error_message,
	 started_at, last_checked_at, completed_at, updated_at`

func scanOperation(row pgx.Row) (domain.Operation, error) {
	var op domain.Operation
	err := row.Scan(
		&op.ID,
		&op.DocumentID,
		&op.ProviderOperation,
		&op.Status,
		&op.ProgressPercentage,
		&op.ElapsedTimeMs,
		&op.MaxWaitTimeMs,
		&op.CheckCount,
		&op.ErrorMessage,
		&op.StartedAt,
		&op.LastCheckedAt,
		&op.CompletedAt,
		&op.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Operation{}, fmt.Errorf("operation: %w", ErrNotFound)
		}
		return domain.Operation{}, err
	}
	return op, nil
}

const openStatusFilter = `status NOT IN ('completed', 'failed', 'timeout')`

// Create creates a new index operation
func (r *operationRepository) Create(ctx context.Context, op domain.Operation) (domain.Operation, error) {
	row := r.pool.QueryRow(
		ctx,
		`INSERT INTO index_operations (document_id, provider_operation, status, max_wait_time_ms)
		 VALUES ($1, $2, $3, $4)
		 RETURNING `+operationColumns,
		op.DocumentID,
		op.ProviderOperation,
		string(domain.OperationStatusPending),
		op.MaxWaitTimeMs,
	)
	created, err := scanOperation(row)
	if err != nil {
		return domain.Operation{}, fmt.Errorf("failed to create operation: %w", err)
	}
	return created, nil
}

// GetByID retrieves an operation by ID
func (r *operationRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.Operation, error) {
	row := r.pool.QueryRow(
		ctx,
		`SELECT `+operationColumns+` FROM index_operations WHERE id = $1`,
		id,
	)
	op, err := scanOperation(row)
	if err != nil {
		return domain.Operation{}, fmt.Errorf("failed to get operation: %w", err)
	}
	return op, nil
}

// LatestByDocument retrieves the most recently started operation for a
// document. The latest operation is the authoritative one after a reindex.
func (r *operationRepository) LatestByDocument(ctx context.Context, documentID uuid.UUID) (domain.Operation, error) {
	row := r.pool.QueryRow(
		ctx,
		`SELECT `+operationColumns+`
		 FROM index_operations
		 WHERE document_id = $1
		 ORDER BY started_at DESC
		 LIMIT 1`,
		documentID,
	)
	op, err := scanOperation(row)
	if err != nil {
		return domain.Operation{}, fmt.Errorf("failed to get latest operation: %w", err)
	}
	return op, nil
}

// ListOpenBySession retrieves non-terminal operations for a session's documents
func (r *operationRepository) ListOpenBySession(ctx context.Context, sessionID uuid.UUID) ([]domain.Operation, error) {
	rows, err := r.pool.Query(
		ctx,
		`SELECT o.id, o.document_id, o.provider_operation, o.status, o.progress_percentage,
		        o.elapsed_time_ms, o.max_wait_time_ms, o.check_count, o.error_message,
		        o.started_at, o.last_checked_at, o.completed_at, o.updated_at
		 FROM index_operations o
		 JOIN documents d ON d.id = o.document_id
		 WHERE d.session_id = $1 AND o.`+openStatusFilter+`
		 ORDER BY o.started_at`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list open operations: %w", err)
	}
	defer rows.Close()

	var operations []domain.Operation
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan operation: %w", err)
		}
		operations = append(operations, op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate operations: %w", err)
	}
	return operations, nil
}

// SetProviderOperation stores the provider's opaque operation handle
func (r *operationRepository) SetProviderOperation(ctx context.Context, id uuid.UUID, name string) error {
	tag, err := r.pool.Exec(
		ctx,
		`UPDATE index_operations
		 SET provider_operation = $1, status = $2, updated_at = now()
		 WHERE id = $3 AND `+openStatusFilter,
		name,
		string(domain.OperationStatusProcessing),
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to set provider operation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("operation %s: %w", id, ErrOperationStatusConflict)
	}
	return nil
}

// RecordCheck stamps one reconciliation pass onto an open operation.
func (r *operationRepository) RecordCheck(ctx context.Context, id uuid.UUID, progress int, elapsedMs int64) error {
	tag, err := r.pool.Exec(
		ctx,
		`UPDATE index_operations
		 SET progress_percentage = $1,
		     elapsed_time_ms = $2,
		     check_count = check_count + 1,
		     last_checked_at = now(),
		     updated_at = now()
		 WHERE id = $3 AND `+openStatusFilter,
		progress,
		elapsedMs,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to record check: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("operation %s: %w", id, ErrOperationStatusConflict)
	}
	return nil
}

// MarkCompleted transitions an open operation to completed at 100%.
func (r *operationRepository) MarkCompleted(ctx context.Context, id uuid.UUID, elapsedMs int64) error {
	tag, err := r.pool.Exec(
		ctx,
		`UPDATE index_operations
		 SET status = $1,
		     progress_percentage = 100,
		     elapsed_time_ms = $2,
		     check_count = check_count + 1,
		     completed_at = now(),
		     last_checked_at = now(),
		     updated_at = now()
		 WHERE id = $3 AND `+openStatusFilter,
		string(domain.OperationStatusCompleted),
		elapsedMs,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark operation completed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("operation %s: %w", id, ErrOperationStatusConflict)
	}
	return nil
}

// MarkFailed transitions an open operation to failed with the provider error.
func (r *operationRepository) MarkFailed(ctx context.Context, id uuid.UUID, message string, elapsedMs int64) error {
	return r.markTerminal(ctx, id, domain.OperationStatusFailed, message, elapsedMs)
}

// MarkTimeout transitions an open operation to timeout. Progress is left at
// its last recorded value.
func (r *operationRepository) MarkTimeout(ctx context.Context, id uuid.UUID, message string, elapsedMs int64) error {
	return r.markTerminal(ctx, id, domain.OperationStatusTimeout, message, elapsedMs)
}

func (r *operationRepository) markTerminal(ctx context.Context, id uuid.UUID, status domain.OperationStatus, message string, elapsedMs int64) error {
	tag, err := r.pool.Exec(
		ctx,
		`UPDATE index_operations
		 SET status = $1,
		     error_message = $2,
		     elapsed_time_ms = $3,
		     check_count = check_count + 1,
		     completed_at = now(),
		     last_checked_at = now(),
		     updated_at = now()
		 WHERE id = $4 AND `+openStatusFilter,
		string(status),
		message,
		elapsedMs,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark operation %s: %w", status, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("operation %s: %w", id, ErrOperationStatusConflict)
	}
	return nil
}
