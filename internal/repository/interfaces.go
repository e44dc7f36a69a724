package repository

import (
	"context"
	"errors"

	"github.com/rtoassure/backend/internal/domain"

	"github.com/google/uuid"
)

// ErrNotFound indicates a missing database row.
var ErrNotFound = errors.New("record not found")

// ErrOperationStatusConflict indicates an operation cannot transition out of
// a terminal state.
var ErrOperationStatusConflict = errors.New("operation status conflict")

// ErrReportJobStatusConflict indicates a report job cannot transition to the
// requested state.
var ErrReportJobStatusConflict = errors.New("report job status conflict")

// ErrInsufficientCredits indicates a consume would drive the balance negative.
var ErrInsufficientCredits = errors.New("insufficient credits")

// RTORepository defines the interface for tenant operations
type RTORepository interface {
	Create(ctx context.Context, rto domain.RTO) (domain.RTO, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.RTO, error)
	GetByCode(ctx context.Context, code string) (domain.RTO, error)
	List(ctx context.Context) ([]domain.RTO, error)
}

// UnitRepository defines the interface for unit-of-competency operations
type UnitRepository interface {
	Create(ctx context.Context, unit domain.UnitOfCompetency) (domain.UnitOfCompetency, error)
	GetByCode(ctx context.Context, code string) (domain.UnitOfCompetency, error)
	List(ctx context.Context, limit, offset int) ([]domain.UnitOfCompetency, error)
	ListRequirements(ctx context.Context, unitID uuid.UUID) ([]domain.Requirement, error)
	UpsertRequirement(ctx context.Context, req domain.Requirement) (domain.Requirement, error)
}

// SessionRepository defines the interface for validation session operations.
// Sessions are never deleted; they are retained for audit history.
type SessionRepository interface {
	Create(ctx context.Context, session domain.ValidationSession) (domain.ValidationSession, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.ValidationSession, error)
	ListByRTO(ctx context.Context, rtoID uuid.UUID, limit, offset int) ([]domain.ValidationSession, error)
	SetDocExtracted(ctx context.Context, id uuid.UUID, extracted bool) error
	SetReqExtracted(ctx context.Context, id uuid.UUID, extracted bool) error
	SetRequirementCounts(ctx context.Context, id uuid.UUID, total, completed int) error
	SetCompletedCount(ctx context.Context, id uuid.UUID, completed int) error
}

// DocumentRepository defines the interface for document operations
type DocumentRepository interface {
	// CreateWithOperation inserts the document and its first operation in a
	// single transaction so a partial failure cannot leave an orphaned row.
	CreateWithOperation(ctx context.Context, doc domain.Document, op domain.Operation) (domain.Document, domain.Operation, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.Document, error)
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]domain.Document, error)
	// UpdateStatus leaves completed documents untouched (no-op, nil error);
	// a missing document is ErrNotFound.
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.DocumentStatus) error
	CountUnfinishedBySession(ctx context.Context, sessionID uuid.UUID) (int, error)
}

// OperationRepository defines the interface for provider operation tracking.
// Terminal statuses are absorbing: every mutating call is guarded so that a
// row already completed, failed or timed out is left untouched.
type OperationRepository interface {
	Create(ctx context.Context, op domain.Operation) (domain.Operation, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.Operation, error)
	LatestByDocument(ctx context.Context, documentID uuid.UUID) (domain.Operation, error)
	ListOpenBySession(ctx context.Context, sessionID uuid.UUID) ([]domain.Operation, error)
	SetProviderOperation(ctx context.Context, id uuid.UUID, name string) error
	RecordCheck(ctx context.Context, id uuid.UUID, progress int, elapsedMs int64) error
	MarkCompleted(ctx context.Context, id uuid.UUID, elapsedMs int64) error
	MarkFailed(ctx context.Context, id uuid.UUID, message string, elapsedMs int64) error
	MarkTimeout(ctx context.Context, id uuid.UUID, message string, elapsedMs int64) error
}

// CreditLedgerRepository defines the interface for credit bookkeeping.
type CreditLedgerRepository interface {
	EnsureAccount(ctx context.Context, rtoID uuid.UUID, kind domain.CreditKind) (domain.CreditAccount, error)
	GetAccount(ctx context.Context, rtoID uuid.UUID, kind domain.CreditKind) (domain.CreditAccount, error)
	// ApplyDelta applies a signed delta and records a transaction row. A
	// consume that would drive the balance negative fails with
	// ErrInsufficientCredits and writes nothing.
	ApplyDelta(ctx context.Context, accountID uuid.UUID, delta int, reason string) (domain.CreditAccount, error)
	ListTransactions(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.CreditTransaction, error)
	GetPromoCode(ctx context.Context, code string) (domain.PromoCode, error)
	RedeemPromoCode(ctx context.Context, id uuid.UUID) error
}

// ResultRepository defines the interface for per-requirement verdicts
type ResultRepository interface {
	CreateBatch(ctx context.Context, results []domain.ValidationResult) (int, error)
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]domain.ValidationResult, error)
	GetByRequirement(ctx context.Context, sessionID uuid.UUID, reqType domain.RequirementType, number string) (domain.ValidationResult, error)
	Upsert(ctx context.Context, result domain.ValidationResult) (domain.ValidationResult, error)
	SetQuestion(ctx context.Context, id uuid.UUID, question, answer string) error
	CountCompleted(ctx context.Context, sessionID uuid.UUID) (int, error)
}

// ImportLogRepository stores requirements-import errors for observability.
type ImportLogRepository interface {
	Record(ctx context.Context, entry domain.ImportLogEntry) error
	List(ctx context.Context, rtoID uuid.UUID, unitCode string, limit, offset int) ([]domain.ImportLogEntry, error)
}

// ReportJobRepository defines operations for persisted report export jobs
type ReportJobRepository interface {
	Create(ctx context.Context, job domain.ReportJob) (domain.ReportJob, error)
	GetByID(ctx context.Context, id uuid.UUID) (domain.ReportJob, error)
	List(ctx context.Context, rtoID *uuid.UUID, statuses []domain.ReportJobStatus, limit, offset int) ([]domain.ReportJob, error)
	MarkRunning(ctx context.Context, id uuid.UUID) error
	UpdateProgress(ctx context.Context, id uuid.UUID, rowsExported int) error
	MarkCompleted(ctx context.Context, id uuid.UUID, result ReportResult) error
	MarkFailed(ctx context.Context, id uuid.UUID, errorMessage string) error
	MarkCancelled(ctx context.Context, id uuid.UUID, reason string) error
}

// ReportResult returns metadata about a completed report file.
type ReportResult struct {
	RowsExported int
	FilePath     *string
	FileMimeType *string
	FileByteSize *int64
}
