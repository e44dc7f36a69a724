package indexing

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rtoassure/backend/internal/domain"
	"github.com/rtoassure/backend/internal/repository"
	"github.com/rtoassure/backend/internal/storage"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// CreditConsumer spends tenant credits. Consumption happens before any
// side-effectful work so an insufficient balance aborts the whole upload.
type CreditConsumer interface {
	Consume(ctx context.Context, rtoID uuid.UUID, kind domain.CreditKind, amount int, reason string) error
}

// Options configures the indexing service.
type Options struct {
	Store      string
	MaxWait    time.Duration
	UploadCost int
}

// Service owns the document upload and reindex flows.
type Service struct {
	documents repository.DocumentRepository
	ops       repository.OperationRepository
	sessions  repository.SessionRepository
	credits   CreditConsumer
	objects   storage.ObjectStore
	provider  Provider
	opts      Options
	logger    *logrus.Logger
}

// NewService wires the indexing service.
func NewService(
	documents repository.DocumentRepository,
	ops repository.OperationRepository,
	sessions repository.SessionRepository,
	credits CreditConsumer,
	objects storage.ObjectStore,
	provider Provider,
	opts Options,
	logger *logrus.Logger,
) *Service {
	if opts.UploadCost <= 0 {
		opts.UploadCost = 1
	}
	if opts.MaxWait <= 0 {
		opts.MaxWait = 5 * time.Minute
	}
	return &Service{
		documents: documents,
		ops:       ops,
		sessions:  sessions,
		credits:   credits,
		objects:   objects,
		provider:  provider,
		opts:      opts,
		logger:    logger,
	}
}

// Upload stores the file, creates the Document and its first Operation in one
// transaction, and starts the provider indexing job. One AI credit is
// consumed up front; a refused consume leaves no trace of the upload.
func (s *Service) Upload(ctx context.Context, rtoID, sessionID uuid.UUID, fileName string, contents io.Reader) (domain.Document, domain.Operation, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return domain.Document{}, domain.Operation{}, err
	}
	if session.RTOID != rtoID {
		return domain.Document{}, domain.Operation{}, fmt.Errorf("session %s: %w", sessionID, repository.ErrNotFound)
	}

	if err := s.credits.Consume(ctx, rtoID, domain.CreditKindAI, s.opts.UploadCost, "document upload"); err != nil {
		return domain.Document{}, domain.Operation{}, err
	}

	// The provider needs its own copy of the bytes after the object store
	// has consumed the reader.
	var fileCopy bytes.Buffer
	key := fmt.Sprintf("sessions/%s/%s_%s", sessionID, uuid.New(), fileName)
	storagePath, err := s.objects.Put(ctx, key, io.TeeReader(contents, &fileCopy))
	if err != nil {
		return domain.Document{}, domain.Operation{}, fmt.Errorf("store upload: %w", err)
	}

	doc := domain.NewDocument(sessionID, fileName, storagePath)
	op := domain.NewOperation(doc.ID, s.opts.MaxWait)
	doc, op, err = s.documents.CreateWithOperation(ctx, doc, op)
	if err != nil {
		return domain.Document{}, domain.Operation{}, err
	}

	if err := s.startProviderJob(ctx, doc, op, &fileCopy); err != nil {
		return doc, op, err
	}

	op, err = s.ops.GetByID(ctx, op.ID)
	if err != nil {
		return doc, op, err
	}
	return doc, op, nil
}

// Reindex starts a fresh indexing operation for an existing document. The new
// operation becomes the authoritative one.
func (s *Service) Reindex(ctx context.Context, rtoID, documentID uuid.UUID) (domain.Operation, error) {
	doc, err := s.documents.GetByID(ctx, documentID)
	if err != nil {
		return domain.Operation{}, err
	}
	session, err := s.sessions.GetByID(ctx, doc.SessionID)
	if err != nil {
		return domain.Operation{}, err
	}
	if session.RTOID != rtoID {
		return domain.Operation{}, fmt.Errorf("document %s: %w", documentID, repository.ErrNotFound)
	}

	contents, err := s.objects.Get(ctx, doc.StoragePath)
	if err != nil {
		return domain.Operation{}, err
	}
	defer contents.Close()

	// The provider keys index entries by document ID; drop the stale entry
	// so the fresh job replaces it instead of merging with it.
	if err := s.provider.Delete(ctx, s.opts.Store, doc.ID.String()); err != nil {
		s.logger.WithError(err).WithField("document_id", doc.ID).Warn("failed to remove stale index entry")
	}

	op, err := s.ops.Create(ctx, domain.NewOperation(doc.ID, s.opts.MaxWait))
	if err != nil {
		return domain.Operation{}, err
	}
	if err := s.documents.UpdateStatus(ctx, doc.ID, domain.DocumentStatusProcessing); err != nil {
		return op, err
	}
	if err := s.sessions.SetDocExtracted(ctx, doc.SessionID, false); err != nil {
		return op, err
	}

	if err := s.startProviderJob(ctx, doc, op, contents); err != nil {
		return op, err
	}
	return s.ops.GetByID(ctx, op.ID)
}

// Query runs a retrieval query against the provider's index.
func (s *Service) Query(ctx context.Context, query string, limit int) ([]QueryHit, error) {
	if limit <= 0 {
		limit = 10
	}
	return s.provider.Query(ctx, s.opts.Store, query, limit)
}

func (s *Service) startProviderJob(ctx context.Context, doc domain.Document, op domain.Operation, contents io.Reader) error {
	providerOp, err := s.provider.StartIndexing(ctx, s.opts.Store, doc.ID.String(), doc.FileName, contents)
	if err != nil {
		elapsed := time.Since(op.StartedAt).Milliseconds()
		if markErr := s.ops.MarkFailed(ctx, op.ID, err.Error(), elapsed); markErr != nil {
			s.logger.WithError(markErr).WithField("operation_id", op.ID).Warn("failed to record provider start failure")
		}
		if docErr := s.documents.UpdateStatus(ctx, doc.ID, domain.DocumentStatusFailed); docErr != nil {
			s.logger.WithError(docErr).WithField("document_id", doc.ID).Warn("failed to mark document failed")
		}
		return fmt.Errorf("start indexing: %w", err)
	}

	if err := s.ops.SetProviderOperation(ctx, op.ID, providerOp); err != nil {
		return err
	}
	if err := s.documents.UpdateStatus(ctx, doc.ID, domain.DocumentStatusProcessing); err != nil {
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"document_id":  doc.ID,
		"operation_id": op.ID,
		"provider_op":  providerOp,
	}).Info("document indexing started")
	return nil
}
