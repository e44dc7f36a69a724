package tenant

import (
	"context"
	"errors"
	"strings"

	"github.com/rtoassure/backend/internal/domain"
	"github.com/rtoassure/backend/internal/repository"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Service handles RTO onboarding and lookup.
type Service struct {
	rtos   repository.RTORepository
	ledger repository.CreditLedgerRepository
	logger *logrus.Logger
}

func NewService(rtos repository.RTORepository, ledger repository.CreditLedgerRepository, logger *logrus.Logger) *Service {
	return &Service{rtos: rtos, ledger: ledger, logger: logger}
}

// Register creates the tenant and seeds an empty credit account per kind so
// later consume calls never race account creation.
func (s *Service) Register(ctx context.Context, code, name, contactEmail string) (domain.RTO, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	name = strings.TrimSpace(name)
	if code == "" {
		return domain.RTO{}, errors.New("rto code is required")
	}
	if name == "" {
		return domain.RTO{}, errors.New("rto name is required")
	}

	rto, err := s.rtos.Create(ctx, domain.NewRTO(code, name, strings.TrimSpace(contactEmail)))
	if err != nil {
		return domain.RTO{}, err
	}

	for _, kind := range []domain.CreditKind{domain.CreditKindAI, domain.CreditKindValidation} {
		if _, err := s.ledger.EnsureAccount(ctx, rto.ID, kind); err != nil {
			return domain.RTO{}, err
		}
	}

	s.logger.WithFields(logrus.Fields{
		"rto_id": rto.ID,
		"code":   rto.Code,
	}).Info("tenant registered")
	return rto, nil
}

// Get returns one tenant by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (domain.RTO, error) {
	return s.rtos.GetByID(ctx, id)
}

// GetByCode returns one tenant by its public code.
func (s *Service) GetByCode(ctx context.Context, code string) (domain.RTO, error) {
	return s.rtos.GetByCode(ctx, strings.ToUpper(strings.TrimSpace(code)))
}

// List returns all tenants.
func (s *Service) List(ctx context.Context) ([]domain.RTO, error) {
	return s.rtos.List(ctx)
}
