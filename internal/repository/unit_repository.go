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

// unitRepository implements UnitRepository interface
type unitRepository struct {
	pool *pgxpool.Pool
}

// NewUnitRepository wires a repository backed by pgxpool.
func NewUnitRepository(pool *pgxpool.Pool) UnitRepository {
	return &unitRepository{pool: pool}
}

// Create creates a new unit of competency
func (r *unitRepository) Create(ctx context.Context, unit domain.UnitOfCompetency) (domain.UnitOfCompetency, error) {
	row := r.pool.QueryRow(
		ctx,
		`INSERT INTO units_of_competency (code, title, release)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (code) DO UPDATE SET title = EXCLUDED.title, release = EXCLUDED.release, updated_at = now()
		 RETURNING id, code, title, release, created_at, updated_at`,
		unit.Code,
		unit.Title,
		unit.Release,
	)
	var created domain.UnitOfCompetency
	if err := row.Scan(&created.ID, &created.Code, &created.Title, &created.Release, &created.CreatedAt, &created.UpdatedAt); err != nil {
		return domain.UnitOfCompetency{}, fmt.Errorf("failed to create unit: %w", err)
	}
	return created, nil
}

// GetByCode retrieves a unit of competency with its requirements
func (r *unitRepository) GetByCode(ctx context.Context, code string) (domain.UnitOfCompetency, error) {
	row := r.pool.QueryRow(
		ctx,
		`SELECT id, code, title, release, created_at, updated_at
		 FROM units_of_competency WHERE code = $1`,
		code,
	)
	var unit domain.UnitOfCompetency
	if err := row.Scan(&unit.ID, &unit.Code, &unit.Title, &unit.Release, &unit.CreatedAt, &unit.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.UnitOfCompetency{}, fmt.Errorf("unit %s: %w", code, ErrNotFound)
		}
		return domain.UnitOfCompetency{}, fmt.Errorf("failed to get unit: %w", err)
	}

	requirements, err := r.ListRequirements(ctx, unit.ID)
	if err != nil {
		return domain.UnitOfCompetency{}, err
	}
	unit.Requirements = requirements
	return unit, nil
}

// List retrieves units of competency ordered by code
func (r *unitRepository) List(ctx context.Context, limit, offset int) ([]domain.UnitOfCompetency, error) {
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := r.pool.Query(
		ctx,
		`SELECT id, code, title, release, created_at, updated_at
		 FROM units_of_competency
		 ORDER BY code
		 LIMIT $1 OFFSET $2`,
		limit,
		offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list units: %w", err)
	}
	defer rows.Close()

	var units []domain.UnitOfCompetency
	for rows.Next() {
		var unit domain.UnitOfCompetency
		if err := rows.Scan(&unit.ID, &unit.Code, &unit.Title, &unit.Release, &unit.CreatedAt, &unit.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan unit: %w", err)
		}
		units = append(units, unit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate units: %w", err)
	}
	return units, nil
}

// ListRequirements retrieves all requirements for a unit
func (r *unitRepository) ListRequirements(ctx context.Context, unitID uuid.UUID) ([]domain.Requirement, error) {
	rows, err := r.pool.Query(
		ctx,
		`SELECT id, unit_id, requirement_type, requirement_number, requirement_text, created_at
		 FROM unit_requirements
		 WHERE unit_id = $1
		 ORDER BY requirement_type, requirement_number`,
		unitID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list requirements: %w", err)
	}
	defer rows.Close()

	var requirements []domain.Requirement
	for rows.Next() {
		var req domain.Requirement
		if err := rows.Scan(&req.ID, &req.UnitID, &req.Type, &req.Number, &req.Text, &req.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan requirement: %w", err)
		}
		requirements = append(requirements, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate requirements: %w", err)
	}
	return requirements, nil
}

// UpsertRequirement inserts or replaces one requirement line item
func (r *unitRepository) UpsertRequirement(ctx context.Context, req domain.Requirement) (domain.Requirement, error) {
	row := r.pool.QueryRow(
		ctx,
		`INSERT INTO unit_requirements (unit_id, requirement_type, requirement_number, requirement_text)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (unit_id, requirement_type, requirement_number)
		 DO UPDATE SET requirement_text = EXCLUDED.requirement_text
		 RETURNING id, unit_id, requirement_type, requirement_number, requirement_text, created_at`,
		req.UnitID,
		string(req.Type),
		req.Number,
		req.Text,
	)
	var saved domain.Requirement
	if err := row.Scan(&saved.ID, &saved.UnitID, &saved.Type, &saved.Number, &saved.Text, &saved.CreatedAt); err != nil {
		return domain.Requirement{}, fmt.Errorf("failed to upsert requirement: %w", err)
	}
	return saved, nil
}
