package domain

import (
	"time"

	"github.com/google/uuid"
)

// CreditKind distinguishes the consumable quota pools tracked per tenant.
type CreditKind string

const (
	CreditKindAI         CreditKind = "ai"
	CreditKindValidation CreditKind = "validation"
)

// IsValidCreditKind reports whether the value names a known credit pool.
func IsValidCreditKind(value string) bool {
	return value == string(CreditKindAI) || value == string(CreditKindValidation)
}

// CreditAccount holds the current and total allocated balance for one tenant
// and credit kind. The balance must never go negative; the mutation path
// enforces this, not the read path.
type CreditAccount struct {
	ID                  uuid.UUID  `json:"id"`
	RTOID               uuid.UUID  `json:"rto_id"`
	Kind                CreditKind `json:"kind"`
	CurrentCredits      int        `json:"current_credits"`
	TotalCredits        int        `json:"total_credits"`
	SubscriptionCredits int        `json:"subscription_credits"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// CreditTransaction records one signed delta applied to an account.
type CreditTransaction struct {
	ID           uuid.UUID `json:"id"`
	AccountID    uuid.UUID `json:"account_id"`
	Delta        int       `json:"delta"`
	Reason       string    `json:"reason"`
	BalanceAfter int       `json:"balance_after"`
	CreatedAt    time.Time `json:"created_at"`
}

// PromoCode grants bonus credits when redeemed.
type PromoCode struct {
	ID             uuid.UUID  `json:"id"`
	Code           string     `json:"code"`
	Kind           CreditKind `json:"kind"`
	Credits        int        `json:"credits"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	MaxRedemptions int        `json:"max_redemptions"`
	Redemptions    int        `json:"redemptions"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Redeemable reports whether the promo code can still be redeemed at the
// given time.
func (p PromoCode) Redeemable(now time.Time) bool {
	if p.ExpiresAt != nil && now.After(*p.ExpiresAt) {
		return false
	}
	if p.MaxRedemptions > 0 && p.Redemptions >= p.MaxRedemptions {
		return false
	}
	return true
}
