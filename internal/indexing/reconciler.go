package indexing

import (
	"context"
	"fmt"
	"time"

	"github.com/rtoassure/backend/internal/domain"
	"github.com/rtoassure/backend/internal/repository"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Reconciler advances tracked operations toward the provider's view of them.
// It is driven by status polls from clients and is safe to call at any
// frequency: terminal rows are never touched again.
type Reconciler struct {
	ops       repository.OperationRepository
	documents repository.DocumentRepository
	sessions  repository.SessionRepository
	provider  Provider
	logger    *logrus.Logger
	now       func() time.Time
}

// NewReconciler wires the reconciler. now is injectable for tests.
func NewReconciler(
	ops repository.OperationRepository,
	documents repository.DocumentRepository,
	sessions repository.SessionRepository,
	provider Provider,
	logger *logrus.Logger,
	now func() time.Time,
) *Reconciler {
	if now == nil {
		now = time.Now
	}
	return &Reconciler{
		ops:       ops,
		documents: documents,
		sessions:  sessions,
		provider:  provider,
		logger:    logger,
		now:       now,
	}
}

// Check reconciles one operation against the provider and returns the
// refreshed row. A terminal operation is returned unchanged.
func (r *Reconciler) Check(ctx context.Context, operationID uuid.UUID) (domain.Operation, error) {
	op, err := r.ops.GetByID(ctx, operationID)
	if err != nil {
		return domain.Operation{}, err
	}
	if op.Status.IsTerminal() {
		return op, nil
	}

	elapsed := r.now().Sub(op.StartedAt).Milliseconds()

	if op.ProviderOperation == "" {
		// Provider job was never recorded; the upload flow crashed between
		// insert and start. Treat like any other open operation and let the
		// max-wait timeout close it.
		if elapsed > op.MaxWaitTimeMs {
			return r.finish(ctx, op, domain.OperationStatusTimeout, "provider job was never started", elapsed)
		}
		if err := r.ops.RecordCheck(ctx, op.ID, domain.EstimateProgress(elapsed, op.MaxWaitTimeMs), elapsed); err != nil {
			return domain.Operation{}, err
		}
		return r.ops.GetByID(ctx, op.ID)
	}

	state, err := r.provider.GetOperation(ctx, op.ProviderOperation)
	if err != nil {
		return r.finish(ctx, op, domain.OperationStatusFailed, err.Error(), elapsed)
	}
	if state.Error != "" {
		return r.finish(ctx, op, domain.OperationStatusFailed, state.Error, elapsed)
	}
	if state.Done {
		return r.finish(ctx, op, domain.OperationStatusCompleted, "", elapsed)
	}
	if elapsed > op.MaxWaitTimeMs {
		message := fmt.Sprintf("indexing exceeded max wait of %dms", op.MaxWaitTimeMs)
		return r.finish(ctx, op, domain.OperationStatusTimeout, message, elapsed)
	}

	if err := r.ops.RecordCheck(ctx, op.ID, domain.EstimateProgress(elapsed, op.MaxWaitTimeMs), elapsed); err != nil {
		return domain.Operation{}, err
	}
	return r.ops.GetByID(ctx, op.ID)
}

// CheckAll reconciles every open operation belonging to a session.
func (r *Reconciler) CheckAll(ctx context.Context, sessionID uuid.UUID) ([]domain.Operation, error) {
	open, err := r.ops.ListOpenBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	operations := make([]domain.Operation, 0, len(open))
	for _, op := range open {
		checked, err := r.Check(ctx, op.ID)
		if err != nil {
			return operations, err
		}
		operations = append(operations, checked)
	}
	return operations, nil
}

func (r *Reconciler) finish(ctx context.Context, op domain.Operation, status domain.OperationStatus, message string, elapsed int64) (domain.Operation, error) {
	var err error
	switch status {
	case domain.OperationStatusCompleted:
		err = r.ops.MarkCompleted(ctx, op.ID, elapsed)
	case domain.OperationStatusFailed:
		err = r.ops.MarkFailed(ctx, op.ID, message, elapsed)
	case domain.OperationStatusTimeout:
		err = r.ops.MarkTimeout(ctx, op.ID, message, elapsed)
	default:
		return domain.Operation{}, fmt.Errorf("cannot finish operation with status %s", status)
	}
	if err != nil {
		return domain.Operation{}, err
	}

	docStatus := domain.DocumentStatusFailed
	if status == domain.OperationStatusCompleted {
		docStatus = domain.DocumentStatusCompleted
	}
	if err := r.documents.UpdateStatus(ctx, op.DocumentID, docStatus); err != nil {
		return domain.Operation{}, err
	}

	if status == domain.OperationStatusCompleted {
		if err := r.maybeFlipDocExtracted(ctx, op.DocumentID); err != nil {
			r.logger.WithError(err).WithField("document_id", op.DocumentID).Warn("failed to update session extraction flag")
		}
	}

	r.logger.WithFields(logrus.Fields{
		"operation_id": op.ID,
		"document_id":  op.DocumentID,
		"status":       status,
		"elapsed_ms":   elapsed,
	}).Info("operation finished")

	return r.ops.GetByID(ctx, op.ID)
}

// maybeFlipDocExtracted marks the session ready for validation once its last
// unfinished document completes.
func (r *Reconciler) maybeFlipDocExtracted(ctx context.Context, documentID uuid.UUID) error {
	doc, err := r.documents.GetByID(ctx, documentID)
	if err != nil {
		return err
	}
	remaining, err := r.documents.CountUnfinishedBySession(ctx, doc.SessionID)
	if err != nil {
		return err
	}
	if remaining > 0 {
		return nil
	}
	return r.sessions.SetDocExtracted(ctx, doc.SessionID, true)
}
