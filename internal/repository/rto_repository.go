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

// rtoRepository implements RTORepository interface
type rtoRepository struct {
	pool *pgxpool.Pool
}

// NewRTORepository wires a repository backed by pgxpool.
func NewRTORepository(pool *pgxpool.Pool) RTORepository {
	return &rtoRepository{pool: pool}
}

func scanRTO(row pgx.Row) (domain.RTO, error) {
	var rto domain.RTO
	err := row.Scan(&rto.ID, &rto.Code, &rto.Name, &rto.ContactEmail, &rto.CreatedAt, &rto.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.RTO{}, fmt.Errorf("rto: %w", ErrNotFound)
		}
		return domain.RTO{}, err
	}
	return rto, nil
}

// Create creates a new RTO
func (r *rtoRepository) Create(ctx context.Context, rto domain.RTO) (domain.RTO, error) {
	row := r.pool.QueryRow(
		ctx,
		`INSERT INTO rtos (code, name, contact_email)
		 VALUES ($1, $2, $3)
		 RETURNING id, code, name, contact_email, created_at, updated_at`,
		rto.Code,
		rto.Name,
		rto.ContactEmail,
	)
	created, err := scanRTO(row)
	if err != nil {
		return domain.RTO{}, fmt.Errorf("failed to create rto: %w", err)
	}
	return created, nil
}

// GetByID retrieves an RTO by ID
func (r *rtoRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.RTO, error) {
	row := r.pool.QueryRow(
		ctx,
		`SELECT id, code, name, contact_email, created_at, updated_at
		 FROM rtos WHERE id = $1`,
		id,
	)
	rto, err := scanRTO(row)
	if err != nil {
		return domain.RTO{}, fmt.Errorf("failed to get rto: %w", err)
	}
	return rto, nil
}

// GetByCode retrieves an RTO by its national provider code
func (r *rtoRepository) GetByCode(ctx context.Context, code string) (domain.RTO, error) {
	row := r.pool.QueryRow(
		ctx,
		`SELECT id, code, name, contact_email, created_at, updated_at
		 FROM rtos WHERE code = $1`,
		code,
	)
	rto, err := scanRTO(row)
	if err != nil {
		return domain.RTO{}, fmt.Errorf("failed to get rto by code: %w", err)
	}
	return rto, nil
}

// List retrieves all RTOs
func (r *rtoRepository) List(ctx context.Context) ([]domain.RTO, error) {
	rows, err := r.pool.Query(
		ctx,
		`SELECT id, code, name, contact_email, created_at, updated_at
		 FROM rtos ORDER BY code`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list rtos: %w", err)
	}
	defer rows.Close()

	var rtos []domain.RTO
	for rows.Next() {
		var rto domain.RTO
		if err := rows.Scan(&rto.ID, &rto.Code, &rto.Name, &rto.ContactEmail, &rto.CreatedAt, &rto.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan rto: %w", err)
		}
		rtos = append(rtos, rto)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rtos: %w", err)
	}
	return rtos, nil
}
