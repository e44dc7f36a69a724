package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/rtoassure/backend/internal/db"
	"github.com/rtoassure/backend/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// documentRepository implements DocumentRepository interface
type documentRepository struct {
	conn *db.Connection
}

// NewDocumentRepository wires a repository backed by the shared connection.
// It needs the connection wrapper (not just the pool) for the transactional
// document+operation insert.
func NewDocumentRepository(conn *db.Connection) DocumentRepository {
	return &documentRepository{conn: conn}
}

const documentColumns = `id, session_id, file_name, storage_path, embedding_status, created_at, updated_at`

func scanDocument(row pgx.Row) (domain.Document, error) {
	var doc domain.Document
	err := row.Scan(&doc.ID, &doc.SessionID, &doc.FileName, &doc.StoragePath, &doc.Status, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Document{}, fmt.Errorf("document: %w", ErrNotFound)
		}
		return domain.Document{}, err
	}
	return doc, nil
}

// CreateWithOperation inserts the document and its first operation atomically.
func (r *documentRepository) CreateWithOperation(ctx context.Context, doc domain.Document, op domain.Operation) (domain.Document, domain.Operation, error) {
	var createdDoc domain.Document
	var createdOp domain.Operation

	err := r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(
			ctx,
			`INSERT INTO documents (session_id, file_name, storage_path, embedding_status)
			 VALUES ($1, $2, $3, $4)
			 RETURNING `+documentColumns,
			doc.SessionID,
			doc.FileName,
			doc.StoragePath,
			string(domain.DocumentStatusPending),
		)
		var scanErr error
		createdDoc, scanErr = scanDocument(row)
		if scanErr != nil {
			return fmt.Errorf("insert document: %w", scanErr)
		}

		opRow := tx.QueryRow(
			ctx,
			`INSERT INTO index_operations (document_id, provider_operation, status, max_wait_time_ms)
			 VALUES ($1, $2, $3, $4)
			 RETURNING `+operationColumns,
			createdDoc.ID,
			op.ProviderOperation,
			string(domain.OperationStatusPending),
			op.MaxWaitTimeMs,
		)
		createdOp, scanErr = scanOperation(opRow)
		if scanErr != nil {
			return fmt.Errorf("insert operation: %w", scanErr)
		}
		return nil
	})
	if err != nil {
		return domain.Document{}, domain.Operation{}, fmt.Errorf("failed to create document with operation: %w", err)
	}
	return createdDoc, createdOp, nil
}

// GetByID retrieves a document by ID
func (r *documentRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.Document, error) {
	row := r.conn.Pool.QueryRow(
		ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = $1`,
		id,
	)
	doc, err := scanDocument(row)
	if err != nil {
		return domain.Document{}, fmt.Errorf("failed to get document: %w", err)
	}
	return doc, nil
}

// ListBySession retrieves all documents for a session
func (r *documentRepository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]domain.Document, error) {
	rows, err := r.conn.Pool.Query(
		ctx,
		`SELECT `+documentColumns+`
		 FROM documents
		 WHERE session_id = $1
		 ORDER BY created_at`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var documents []domain.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		documents = append(documents, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate documents: %w", err)
	}
	return documents, nil
}

// UpdateStatus mutates the indexing status. Completed documents are
// immutable: updating one is a no-op, not an error, so a later operation for
// the same document (reindex, stale reconcile) can terminate cleanly.
func (r *documentRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.DocumentStatus) error {
	tag, err := r.conn.Pool.Exec(
		ctx,
		`UPDATE documents
		 SET embedding_status = $1, updated_at = now()
		 WHERE id = $2 AND embedding_status <> $3`,
		string(status),
		id,
		string(domain.DocumentStatusCompleted),
	)
	if err != nil {
		return fmt.Errorf("failed to update document status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Zero rows means either a missing document or one already
		// completed; only the former is an error.
		var exists bool
		if err := r.conn.Pool.QueryRow(
			ctx,
			`SELECT EXISTS (SELECT 1 FROM documents WHERE id = $1)`,
			id,
		).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check document existence: %w", err)
		}
		if !exists {
			return fmt.Errorf("document %s: %w", id, ErrNotFound)
		}
	}
	return nil
}

// CountUnfinishedBySession counts documents still pending or processing
func (r *documentRepository) CountUnfinishedBySession(ctx context.Context, sessionID uuid.UUID) (int, error) {
	var count int
	err := r.conn.Pool.QueryRow(
		ctx,
		`SELECT COUNT(*) FROM documents
		 WHERE session_id = $1 AND embedding_status IN ($2, $3)`,
		sessionID,
		string(domain.DocumentStatusPending),
		string(domain.DocumentStatusProcessing),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count unfinished documents: %w", err)
	}
	return count, nil
}
