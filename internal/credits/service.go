package credits

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rtoassure/backend/internal/domain"
	"github.com/rtoassure/backend/internal/repository"

	"github.com/bsm/redislock"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ErrPromoNotRedeemable indicates an expired or exhausted promo code.
var ErrPromoNotRedeemable = errors.New("promo code is no longer redeemable")

// Service owns the per-tenant credit ledgers. The database's conditional
// update is the real balance guard; the optional Redis lock only serializes
// concurrent adjustments for one tenant to keep the ledger ordering sane.
type Service struct {
	ledger repository.CreditLedgerRepository
	locker *redislock.Client
	logger *logrus.Logger
	now    func() time.Time
}

// NewService wires the credit service. locker may be nil when Redis is not
// configured; now is injectable for tests.
func NewService(ledger repository.CreditLedgerRepository, locker *redislock.Client, logger *logrus.Logger, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{ledger: ledger, locker: locker, logger: logger, now: now}
}

// Adjust applies one signed delta to a tenant's balance for a credit kind.
// Consumes that would drive the balance negative are refused with
// repository.ErrInsufficientCredits and leave no ledger entry.
func (s *Service) Adjust(ctx context.Context, rtoID uuid.UUID, kind domain.CreditKind, delta int, reason string) (domain.CreditAccount, error) {
	if !domain.IsValidCreditKind(string(kind)) {
		return domain.CreditAccount{}, fmt.Errorf("unknown credit kind %q", kind)
	}
	if delta == 0 {
		return domain.CreditAccount{}, fmt.Errorf("delta must be non-zero")
	}

	release, err := s.lockTenant(ctx, rtoID, kind)
	if err != nil {
		return domain.CreditAccount{}, err
	}
	defer release()

	account, err := s.ledger.EnsureAccount(ctx, rtoID, kind)
	if err != nil {
		return domain.CreditAccount{}, err
	}

	updated, err := s.ledger.ApplyDelta(ctx, account.ID, delta, reason)
	if err != nil {
		return domain.CreditAccount{}, err
	}

	s.logger.WithFields(logrus.Fields{
		"rto_id":  rtoID,
		"kind":    kind,
		"delta":   delta,
		"balance": updated.CurrentCredits,
		"reason":  reason,
	}).Info("credit balance adjusted")
	return updated, nil
}

// Consume spends credits. Satisfies the consumer interfaces of the upload and
// validation flows.
func (s *Service) Consume(ctx context.Context, rtoID uuid.UUID, kind domain.CreditKind, amount int, reason string) error {
	if amount <= 0 {
		return fmt.Errorf("amount must be positive")
	}
	_, err := s.Adjust(ctx, rtoID, kind, -amount, reason)
	return err
}

// Get returns the stored balance without recomputing from transaction history.
func (s *Service) Get(ctx context.Context, rtoID uuid.UUID, kind domain.CreditKind) (domain.CreditAccount, error) {
	if !domain.IsValidCreditKind(string(kind)) {
		return domain.CreditAccount{}, fmt.Errorf("unknown credit kind %q", kind)
	}
	return s.ledger.EnsureAccount(ctx, rtoID, kind)
}

// Transactions lists ledger entries for a tenant's account, newest first.
func (s *Service) Transactions(ctx context.Context, rtoID uuid.UUID, kind domain.CreditKind, limit, offset int) ([]domain.CreditTransaction, error) {
	account, err := s.ledger.EnsureAccount(ctx, rtoID, kind)
	if err != nil {
		return nil, err
	}
	return s.ledger.ListTransactions(ctx, account.ID, limit, offset)
}

// RedeemPromo validates and redeems a promo code, granting its credits.
func (s *Service) RedeemPromo(ctx context.Context, rtoID uuid.UUID, code string) (domain.CreditAccount, error) {
	promo, err := s.ledger.GetPromoCode(ctx, code)
	if err != nil {
		return domain.CreditAccount{}, err
	}
	if !promo.Redeemable(s.now()) {
		return domain.CreditAccount{}, fmt.Errorf("promo code %s: %w", code, ErrPromoNotRedeemable)
	}
	if err := s.ledger.RedeemPromoCode(ctx, promo.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.CreditAccount{}, fmt.Errorf("promo code %s: %w", code, ErrPromoNotRedeemable)
		}
		return domain.CreditAccount{}, err
	}
	return s.Adjust(ctx, rtoID, promo.Kind, promo.Credits, "promo code "+promo.Code)
}

// lockTenant obtains a short per-tenant lock when Redis is configured. The
// ledger stays correct without it, so lock failures degrade to a warning.
func (s *Service) lockTenant(ctx context.Context, rtoID uuid.UUID, kind domain.CreditKind) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}
	key := fmt.Sprintf("credits:%s:%s", rtoID, kind)
	lock, err := s.locker.Obtain(ctx, key, 10*time.Second, &redislock.Options{
		RetryStrategy: redislock.LinearBackoff(50 * time.Millisecond),
	})
	if err != nil {
		if errors.Is(err, redislock.ErrNotObtained) {
			s.logger.WithField("key", key).Warn("could not obtain credit lock; proceeding without it")
			return func() {}, nil
		}
		s.logger.WithError(err).WithField("key", key).Warn("error obtaining credit lock; proceeding without it")
		return func() {}, nil
	}
	return func() {
		if err := lock.Release(ctx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			s.logger.WithError(err).WithField("key", key).Warn("failed to release credit lock")
		}
	}, nil
}
