package units

import (
	"context"
	"strings"

	"github.com/rtoassure/backend/internal/domain"
	"github.com/rtoassure/backend/internal/repository"

	"github.com/sirupsen/logrus"
)

// Service serves units of competency and their requirements, with a TTL
// cache in front of the repository.
type Service struct {
	units  repository.UnitRepository
	cache  *Cache
	logger *logrus.Logger
}

// NewService wires the unit service.
func NewService(units repository.UnitRepository, cache *Cache, logger *logrus.Logger) *Service {
	return &Service{units: units, cache: cache, logger: logger}
}

// List returns units ordered by code. Listing bypasses the cache; it does
// not load requirements.
func (s *Service) List(ctx context.Context, limit, offset int) ([]domain.UnitOfCompetency, error) {
	return s.units.List(ctx, limit, offset)
}

// Get returns one unit with its requirements, served from cache when fresh.
func (s *Service) Get(ctx context.Context, code string) (domain.UnitOfCompetency, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if unit, ok := s.cache.Get(code); ok {
		return unit, nil
	}

	unit, err := s.units.GetByCode(ctx, code)
	if err != nil {
		return domain.UnitOfCompetency{}, err
	}
	s.cache.Set(code, unit)
	return unit, nil
}

// Requirements returns the requirement rows for a unit.
func (s *Service) Requirements(ctx context.Context, code string) ([]domain.Requirement, error) {
	unit, err := s.Get(ctx, code)
	if err != nil {
		return nil, err
	}
	return unit.Requirements, nil
}

// Invalidate drops the cached copy of a unit after its requirements change.
func (s *Service) Invalidate(code string) {
	s.cache.Invalidate(strings.ToUpper(strings.TrimSpace(code)))
}
