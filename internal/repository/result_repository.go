package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rtoassure/backend/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// resultRepository implements ResultRepository interface
type resultRepository struct {
	pool *pgxpool.Pool
}

// NewResultRepository wires a repository backed by pgxpool.
func NewResultRepository(pool *pgxpool.Pool) ResultRepository {
	return &resultRepository{pool: pool}
}

const resultColumns = `id, session_id, requirement_type, requirement_number, requirement_text,
	 status, reasoning, evidence, generated_question, benchmark_answer, created_at, updated_at`

func scanResult(row pgx.Row) (domain.ValidationResult, error) {
	var result domain.ValidationResult
	var evidenceJSON []byte
	err := row.Scan(
		&result.ID,
		&result.SessionID,
		&result.RequirementType,
		&result.RequirementNumber,
		&result.RequirementText,
		&result.Status,
		&result.Reasoning,
		&evidenceJSON,
		&result.GeneratedQuestion,
		&result.BenchmarkAnswer,
		&result.CreatedAt,
		&result.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ValidationResult{}, fmt.Errorf("validation result: %w", ErrNotFound)
		}
		return domain.ValidationResult{}, err
	}
	evidence, err := domain.EvidenceFromJSON(evidenceJSON)
	if err != nil {
		return domain.ValidationResult{}, fmt.Errorf("decode evidence: %w", err)
	}
	result.Evidence = evidence
	return result, nil
}

// CreateBatch inserts pending result rows for a session's requirements.
// Rows already present for the same requirement are left untouched so the
// call is idempotent. Returns the number of rows actually inserted.
func (r *resultRepository) CreateBatch(ctx context.Context, results []domain.ValidationResult) (int, error) {
	if len(results) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, result := range results {
		evidence, err := result.EvidenceToJSON()
		if err != nil {
			return 0, fmt.Errorf("encode evidence: %w", err)
		}
		batch.Queue(
			`INSERT INTO validation_results
			 (session_id, requirement_type, requirement_number, requirement_text, status, reasoning, evidence)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 ON CONFLICT (session_id, requirement_type, requirement_number) DO NOTHING`,
			result.SessionID,
			string(result.RequirementType),
			result.RequirementNumber,
			result.RequirementText,
			string(domain.ResultStatusPending),
			result.Reasoning,
			evidence,
		)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	inserted := 0
	for range results {
		tag, err := br.Exec()
		if err != nil {
			return inserted, fmt.Errorf("failed to create result rows: %w", err)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

// ListBySession retrieves all results for a session in requirement order
func (r *resultRepository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]domain.ValidationResult, error) {
	rows, err := r.pool.Query(
		ctx,
		`SELECT `+resultColumns+`
		 FROM validation_results
		 WHERE session_id = $1
		 ORDER BY requirement_type, requirement_number`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list results: %w", err)
	}
	defer rows.Close()

	var results []domain.ValidationResult
	for rows.Next() {
		result, err := scanResult(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		results = append(results, result)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate results: %w", err)
	}
	return results, nil
}

// GetByRequirement retrieves the result row for one requirement
func (r *resultRepository) GetByRequirement(ctx context.Context, sessionID uuid.UUID, reqType domain.RequirementType, number string) (domain.ValidationResult, error) {
	row := r.pool.QueryRow(
		ctx,
		`SELECT `+resultColumns+`
		 FROM validation_results
		 WHERE session_id = $1 AND requirement_type = $2 AND requirement_number = $3`,
		sessionID,
		string(reqType),
		number,
	)
	result, err := scanResult(row)
	if err != nil {
		return domain.ValidationResult{}, fmt.Errorf("failed to get result: %w", err)
	}
	return result, nil
}

// Upsert writes a verdict, replacing any prior verdict for the requirement.
func (r *resultRepository) Upsert(ctx context.Context, result domain.ValidationResult) (domain.ValidationResult, error) {
	evidence, err := result.EvidenceToJSON()
	if err != nil {
		return domain.ValidationResult{}, fmt.Errorf("encode evidence: %w", err)
	}

	var rawEvidence json.RawMessage = evidence
	row := r.pool.QueryRow(
		ctx,
		`INSERT INTO validation_results
		 (session_id, requirement_type, requirement_number, requirement_text, status, reasoning, evidence, generated_question, benchmark_answer)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (session_id, requirement_type, requirement_number)
		 DO UPDATE SET
		     requirement_text = EXCLUDED.requirement_text,
		     status = EXCLUDED.status,
		     reasoning = EXCLUDED.reasoning,
		     evidence = EXCLUDED.evidence,
		     generated_question = EXCLUDED.generated_question,
		     benchmark_answer = EXCLUDED.benchmark_answer,
		     updated_at = now()
		 RETURNING `+resultColumns,
		result.SessionID,
		string(result.RequirementType),
		result.RequirementNumber,
		result.RequirementText,
		string(result.Status),
		result.Reasoning,
		rawEvidence,
		result.GeneratedQuestion,
		result.BenchmarkAnswer,
	)
	saved, err := scanResult(row)
	if err != nil {
		return domain.ValidationResult{}, fmt.Errorf("failed to upsert result: %w", err)
	}
	return saved, nil
}

// SetQuestion stores a regenerated remediation question and benchmark answer
func (r *resultRepository) SetQuestion(ctx context.Context, id uuid.UUID, question, answer string) error {
	tag, err := r.pool.Exec(
		ctx,
		`UPDATE validation_results
		 SET generated_question = $1, benchmark_answer = $2, updated_at = now()
		 WHERE id = $3`,
		question,
		answer,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to set question: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("result %s: %w", id, ErrNotFound)
	}
	return nil
}

// CountCompleted counts results that have received a verdict
func (r *resultRepository) CountCompleted(ctx context.Context, sessionID uuid.UUID) (int, error) {
	var count int
	err := r.pool.QueryRow(
		ctx,
		`SELECT COUNT(*) FROM validation_results
		 WHERE session_id = $1 AND status <> $2`,
		sessionID,
		string(domain.ResultStatusPending),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count completed results: %w", err)
	}
	return count, nil
}
