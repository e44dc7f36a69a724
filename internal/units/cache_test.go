package units

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rtoassure/backend/internal/domain"
	"github.com/rtoassure/backend/internal/repository"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type countingUnitRepo struct {
	mu    sync.Mutex
	units map[string]domain.UnitOfCompetency
	gets  int
}

func (r *countingUnitRepo) Create(ctx context.Context, unit domain.UnitOfCompetency) (domain.UnitOfCompetency, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.units[unit.Code] = unit
	return unit, nil
}

func (r *countingUnitRepo) GetByCode(ctx context.Context, code string) (domain.UnitOfCompetency, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gets++
	unit, ok := r.units[code]
	if !ok {
		return domain.UnitOfCompetency{}, repository.ErrNotFound
	}
	return unit, nil
}

func (r *countingUnitRepo) List(ctx context.Context, limit, offset int) ([]domain.UnitOfCompetency, error) {
	return nil, nil
}

func (r *countingUnitRepo) ListRequirements(ctx context.Context, unitID uuid.UUID) ([]domain.Requirement, error) {
	return nil, nil
}

func (r *countingUnitRepo) UpsertRequirement(ctx context.Context, req domain.Requirement) (domain.Requirement, error) {
	return req, nil
}

func TestCacheExpiry(t *testing.T) {
	current := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	cache := NewCache(time.Minute, func() time.Time { return current })

	unit := domain.NewUnitOfCompetency("BSBWHS311", "Assist with maintaining workplace safety", "1")
	cache.Set(unit.Code, unit)

	if _, ok := cache.Get(unit.Code); !ok {
		t.Fatal("expected cache hit inside TTL")
	}

	current = current.Add(2 * time.Minute)
	if _, ok := cache.Get(unit.Code); ok {
		t.Fatal("expected cache miss after TTL elapsed")
	}
}

func TestServiceServesFromCache(t *testing.T) {
	repo := &countingUnitRepo{units: map[string]domain.UnitOfCompetency{}}
	unit := domain.NewUnitOfCompetency("CHCCCS015", "Provide individualised support", "2")
	repo.units[unit.Code] = unit

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	svc := NewService(repo, NewCache(time.Minute, nil), logger)

	for i := 0; i < 3; i++ {
		got, err := svc.Get(context.Background(), "chcccs015")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got.Code != unit.Code {
			t.Fatalf("expected %s, got %s", unit.Code, got.Code)
		}
	}
	if repo.gets != 1 {
		t.Errorf("expected one repository read, got %d", repo.gets)
	}
}

func TestInvalidateForcesReload(t *testing.T) {
	repo := &countingUnitRepo{units: map[string]domain.UnitOfCompetency{}}
	unit := domain.NewUnitOfCompetency("CHCCCS015", "Provide individualised support", "2")
	repo.units[unit.Code] = unit

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	svc := NewService(repo, NewCache(time.Minute, nil), logger)

	if _, err := svc.Get(context.Background(), unit.Code); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	svc.Invalidate(unit.Code)
	if _, err := svc.Get(context.Background(), unit.Code); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if repo.gets != 2 {
		t.Errorf("expected reload after invalidation, got %d reads", repo.gets)
	}
}
