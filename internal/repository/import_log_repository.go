package repository

import (
	"context"
	"fmt"

	"github.com/rtoassure/backend/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// importLogRepository implements ImportLogRepository interface
type importLogRepository struct {
	pool *pgxpool.Pool
}

// NewImportLogRepository wires a repository backed by pgxpool.
func NewImportLogRepository(pool *pgxpool.Pool) ImportLogRepository {
	return &importLogRepository{pool: pool}
}

// Record stores one import error row
func (r *importLogRepository) Record(ctx context.Context, entry domain.ImportLogEntry) error {
	if _, err := r.pool.Exec(
		ctx,
		`INSERT INTO import_logs (rto_id, unit_code, file_name, row_number, error_message)
		 VALUES ($1, $2, $3, $4, $5)`,
		entry.RTOID,
		entry.UnitCode,
		entry.FileName,
		entry.RowNumber,
		entry.ErrorMessage,
	); err != nil {
		return fmt.Errorf("failed to record import log: %w", err)
	}
	return nil
}

// List retrieves import errors for a tenant, optionally scoped to one unit
func (r *importLogRepository) List(ctx context.Context, rtoID uuid.UUID, unitCode string, limit, offset int) ([]domain.ImportLogEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := r.pool.Query(
		ctx,
		`SELECT id, rto_id, unit_code, file_name, row_number, error_message, created_at
		 FROM import_logs
		 WHERE rto_id = $1 AND ($2 = '' OR unit_code = $2)
		 ORDER BY created_at DESC
		 LIMIT $3 OFFSET $4`,
		rtoID,
		unitCode,
		limit,
		offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list import logs: %w", err)
	}
	defer rows.Close()

	var entries []domain.ImportLogEntry
	for rows.Next() {
		var entry domain.ImportLogEntry
		if err := rows.Scan(&entry.ID, &entry.RTOID, &entry.UnitCode, &entry.FileName, &entry.RowNumber, &entry.ErrorMessage, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan import log: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate import logs: %w", err)
	}
	return entries, nil
}
