package tenant

import (
	"context"
	"io"
	"testing"

	"github.com/rtoassure/backend/internal/domain"
	"github.com/rtoassure/backend/internal/repository"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type stubRTORepo struct {
	byCode map[string]domain.RTO
}

func (r *stubRTORepo) Create(ctx context.Context, rto domain.RTO) (domain.RTO, error) {
	r.byCode[rto.Code] = rto
	return rto, nil
}

func (r *stubRTORepo) GetByID(ctx context.Context, id uuid.UUID) (domain.RTO, error) {
	for _, rto := range r.byCode {
		if rto.ID == id {
			return rto, nil
		}
	}
	return domain.RTO{}, repository.ErrNotFound
}

func (r *stubRTORepo) GetByCode(ctx context.Context, code string) (domain.RTO, error) {
	rto, ok := r.byCode[code]
	if !ok {
		return domain.RTO{}, repository.ErrNotFound
	}
	return rto, nil
}

func (r *stubRTORepo) List(ctx context.Context) ([]domain.RTO, error) {
	var out []domain.RTO
	for _, rto := range r.byCode {
		out = append(out, rto)
	}
	return out, nil
}

type accountKey struct {
	rtoID uuid.UUID
	kind  domain.CreditKind
}

type stubLedger struct {
	accounts map[accountKey]domain.CreditAccount
}

func (l *stubLedger) EnsureAccount(ctx context.Context, rtoID uuid.UUID, kind domain.CreditKind) (domain.CreditAccount, error) {
	key := accountKey{rtoID: rtoID, kind: kind}
	if account, ok := l.accounts[key]; ok {
		return account, nil
	}
	account := domain.CreditAccount{ID: uuid.New(), RTOID: rtoID, Kind: kind}
	l.accounts[key] = account
	return account, nil
}

func (l *stubLedger) GetAccount(ctx context.Context, rtoID uuid.UUID, kind domain.CreditKind) (domain.CreditAccount, error) {
	account, ok := l.accounts[accountKey{rtoID: rtoID, kind: kind}]
	if !ok {
		return domain.CreditAccount{}, repository.ErrNotFound
	}
	return account, nil
}

func (l *stubLedger) ApplyDelta(ctx context.Context, accountID uuid.UUID, delta int, reason string) (domain.CreditAccount, error) {
	return domain.CreditAccount{}, nil
}

func (l *stubLedger) ListTransactions(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.CreditTransaction, error) {
	return nil, nil
}

func (l *stubLedger) GetPromoCode(ctx context.Context, code string) (domain.PromoCode, error) {
	return domain.PromoCode{}, repository.ErrNotFound
}

func (l *stubLedger) RedeemPromoCode(ctx context.Context, id uuid.UUID) error {
	return repository.ErrNotFound
}

func TestRegisterSeedsCreditAccounts(t *testing.T) {
	rtos := &stubRTORepo{byCode: map[string]domain.RTO{}}
	ledger := &stubLedger{accounts: map[accountKey]domain.CreditAccount{}}
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	svc := NewService(rtos, ledger, logger)

	rto, err := svc.Register(context.Background(), "rto-90210", "Coastal Training College", "admin@coastal.example")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if rto.Code != "RTO-90210" {
		t.Errorf("expected upper-cased code, got %q", rto.Code)
	}
	if len(ledger.accounts) != 2 {
		t.Fatalf("expected one account per credit kind, got %d", len(ledger.accounts))
	}
	for _, kind := range []domain.CreditKind{domain.CreditKindAI, domain.CreditKindValidation} {
		if _, ok := ledger.accounts[accountKey{rtoID: rto.ID, kind: kind}]; !ok {
			t.Errorf("missing %s credit account", kind)
		}
	}
}

func TestRegisterRejectsBlankCode(t *testing.T) {
	rtos := &stubRTORepo{byCode: map[string]domain.RTO{}}
	ledger := &stubLedger{accounts: map[accountKey]domain.CreditAccount{}}
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	svc := NewService(rtos, ledger, logger)

	if _, err := svc.Register(context.Background(), "   ", "No Code College", ""); err == nil {
		t.Fatal("expected blank code to be rejected")
	}
	if len(rtos.byCode) != 0 {
		t.Fatal("expected no tenant to be created")
	}
}
