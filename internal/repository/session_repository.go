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

// sessionRepository implements SessionRepository interface
type sessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository wires a repository backed by pgxpool.
func NewSessionRepository(pool *pgxpool.Pool) SessionRepository {
	return &sessionRepository{pool: pool}
}

const sessionColumns = `id, rto_id, unit_code, doc_extracted, req_extracted,
	 total_requirements, completed_requirements, created_at, updated_at`

func scanSession(row pgx.Row) (domain.ValidationSession, error) {
	var s domain.ValidationSession
	err := row.Scan(
		&s.ID,
		&s.RTOID,
		&s.UnitCode,
		&s.DocExtracted,
		&s.ReqExtracted,
		&s.TotalRequirements,
		&s.CompletedRequirements,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ValidationSession{}, fmt.Errorf("validation session: %w", ErrNotFound)
		}
		return domain.ValidationSession{}, err
	}
	return s, nil
}

// Create creates a new validation session
func (r *sessionRepository) Create(ctx context.Context, session domain.ValidationSession) (domain.ValidationSession, error) {
	row := r.pool.QueryRow(
		ctx,
		`INSERT INTO validation_sessions (rto_id, unit_code, total_requirements)
		 VALUES ($1, $2, $3)
		 RETURNING `+sessionColumns,
		session.RTOID,
		session.UnitCode,
		session.TotalRequirements,
	)
	created, err := scanSession(row)
	if err != nil {
		return domain.ValidationSession{}, fmt.Errorf("failed to create session: %w", err)
	}
	return created, nil
}

// GetByID retrieves a validation session by ID
func (r *sessionRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.ValidationSession, error) {
	row := r.pool.QueryRow(
		ctx,
		`SELECT `+sessionColumns+` FROM validation_sessions WHERE id = $1`,
		id,
	)
	session, err := scanSession(row)
	if err != nil {
		return domain.ValidationSession{}, fmt.Errorf("failed to get session: %w", err)
	}
	return session, nil
}

// ListByRTO retrieves a tenant's sessions, newest first
func (r *sessionRepository) ListByRTO(ctx context.Context, rtoID uuid.UUID, limit, offset int) ([]domain.ValidationSession, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := r.pool.Query(
		ctx,
		`SELECT `+sessionColumns+`
		 FROM validation_sessions
		 WHERE rto_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2 OFFSET $3`,
		rtoID,
		limit,
		offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []domain.ValidationSession
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", err)
	}
	return sessions, nil
}

// SetDocExtracted flips the document-extraction flag
func (r *sessionRepository) SetDocExtracted(ctx context.Context, id uuid.UUID, extracted bool) error {
	if _, err := r.pool.Exec(
		ctx,
		`UPDATE validation_sessions SET doc_extracted = $1, updated_at = now() WHERE id = $2`,
		extracted,
		id,
	); err != nil {
		return fmt.Errorf("failed to set doc_extracted: %w", err)
	}
	return nil
}

// SetReqExtracted flips the requirement-extraction flag
func (r *sessionRepository) SetReqExtracted(ctx context.Context, id uuid.UUID, extracted bool) error {
	if _, err := r.pool.Exec(
		ctx,
		`UPDATE validation_sessions SET req_extracted = $1, updated_at = now() WHERE id = $2`,
		extracted,
		id,
	); err != nil {
		return fmt.Errorf("failed to set req_extracted: %w", err)
	}
	return nil
}

// SetRequirementCounts updates both requirement counters
func (r *sessionRepository) SetRequirementCounts(ctx context.Context, id uuid.UUID, total, completed int) error {
	if _, err := r.pool.Exec(
		ctx,
		`UPDATE validation_sessions
		 SET total_requirements = $1, completed_requirements = $2, updated_at = now()
		 WHERE id = $3`,
		total,
		completed,
		id,
	); err != nil {
		return fmt.Errorf("failed to set requirement counts: %w", err)
	}
	return nil
}

// SetCompletedCount updates the completed-requirement counter
func (r *sessionRepository) SetCompletedCount(ctx context.Context, id uuid.UUID, completed int) error {
	if _, err := r.pool.Exec(
		ctx,
		`UPDATE validation_sessions SET completed_requirements = $1, updated_at = now() WHERE id = $2`,
		completed,
		id,
	); err != nil {
		return fmt.Errorf("failed to set completed count: %w", err)
	}
	return nil
}
