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

// creditRepository implements CreditLedgerRepository interface
type creditRepository struct {
	conn *db.Connection
}

// NewCreditLedgerRepository wires the ledger against the shared connection.
// ApplyDelta needs a transaction spanning the balance update and the
// transaction row insert.
func NewCreditLedgerRepository(conn *db.Connection) CreditLedgerRepository {
	return &creditRepository{conn: conn}
}

const accountColumns = `id, rto_id, kind, current_credits, total_credits, subscription_credits, created_at, updated_at`

func scanAccount(row pgx.Row) (domain.CreditAccount, error) {
	var account domain.CreditAccount
	err := row.Scan(
		&account.ID,
		&account.RTOID,
		&account.Kind,
		&account.CurrentCredits,
		&account.TotalCredits,
		&account.SubscriptionCredits,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.CreditAccount{}, fmt.Errorf("credit account: %w", ErrNotFound)
		}
		return domain.CreditAccount{}, err
	}
	return account, nil
}

// EnsureAccount creates the per-tenant account for a kind if missing.
func (r *creditRepository) EnsureAccount(ctx context.Context, rtoID uuid.UUID, kind domain.CreditKind) (domain.CreditAccount, error) {
	row := r.conn.Pool.QueryRow(
		ctx,
		`INSERT INTO credit_accounts (rto_id, kind)
		 VALUES ($1, $2)
		 ON CONFLICT (rto_id, kind) DO UPDATE SET updated_at = credit_accounts.updated_at
		 RETURNING `+accountColumns,
		rtoID,
		string(kind),
	)
	account, err := scanAccount(row)
	if err != nil {
		return domain.CreditAccount{}, fmt.Errorf("failed to ensure credit account: %w", err)
	}
	return account, nil
}

// GetAccount retrieves the credit account for a tenant and kind
func (r *creditRepository) GetAccount(ctx context.Context, rtoID uuid.UUID, kind domain.CreditKind) (domain.CreditAccount, error) {
	row := r.conn.Pool.QueryRow(
		ctx,
		`SELECT `+accountColumns+`
		 FROM credit_accounts
		 WHERE rto_id = $1 AND kind = $2`,
		rtoID,
		string(kind),
	)
	account, err := scanAccount(row)
	if err != nil {
		return domain.CreditAccount{}, fmt.Errorf("failed to get credit account: %w", err)
	}
	return account, nil
}

// ApplyDelta applies one signed delta inside a transaction. The balance
// update is conditional so a consume that would go negative affects zero
// rows and the whole transaction is abandoned without a ledger entry.
func (r *creditRepository) ApplyDelta(ctx context.Context, accountID uuid.UUID, delta int, reason string) (domain.CreditAccount, error) {
	var updated domain.CreditAccount

	err := r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		totalDelta := 0
		if delta > 0 {
			totalDelta = delta
		}
		row := tx.QueryRow(
			ctx,
			`UPDATE credit_accounts
			 SET current_credits = current_credits + $1,
			     total_credits = total_credits + $2,
			     updated_at = now()
			 WHERE id = $3 AND current_credits + $1 >= 0
			 RETURNING `+accountColumns,
			delta,
			totalDelta,
			accountID,
		)
		var scanErr error
		updated, scanErr = scanAccount(row)
		if scanErr != nil {
			if errors.Is(scanErr, ErrNotFound) {
				// Either the account does not exist or the balance would
				// have gone negative. Distinguish so callers see the right
				// sentinel.
				var exists bool
				if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM credit_accounts WHERE id = $1)`, accountID).Scan(&exists); err != nil {
					return fmt.Errorf("check account: %w", err)
				}
				if exists {
					return fmt.Errorf("account %s delta %d: %w", accountID, delta, ErrInsufficientCredits)
				}
				return fmt.Errorf("account %s: %w", accountID, ErrNotFound)
			}
			return fmt.Errorf("update balance: %w", scanErr)
		}

		if _, err := tx.Exec(
			ctx,
			`INSERT INTO credit_transactions (account_id, delta, reason, balance_after)
			 VALUES ($1, $2, $3, $4)`,
			accountID,
			delta,
			reason,
			updated.CurrentCredits,
		); err != nil {
			return fmt.Errorf("insert transaction: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrInsufficientCredits) || errors.Is(err, ErrNotFound) {
			return domain.CreditAccount{}, err
		}
		return domain.CreditAccount{}, fmt.Errorf("failed to apply credit delta: %w", err)
	}
	return updated, nil
}

// ListTransactions retrieves ledger entries for an account, newest first
func (r *creditRepository) ListTransactions(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.CreditTransaction, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := r.conn.Pool.Query(
		ctx,
		`SELECT id, account_id, delta, reason, balance_after, created_at
		 FROM credit_transactions
		 WHERE account_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2 OFFSET $3`,
		accountID,
		limit,
		offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var transactions []domain.CreditTransaction
	for rows.Next() {
		var txn domain.CreditTransaction
		if err := rows.Scan(&txn.ID, &txn.AccountID, &txn.Delta, &txn.Reason, &txn.BalanceAfter, &txn.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		transactions = append(transactions, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transactions: %w", err)
	}
	return transactions, nil
}

// GetPromoCode retrieves a promo code by its redeemable code string
func (r *creditRepository) GetPromoCode(ctx context.Context, code string) (domain.PromoCode, error) {
	row := r.conn.Pool.QueryRow(
		ctx,
		`SELECT id, code, kind, credits, expires_at, max_redemptions, redemptions, created_at
		 FROM promo_codes
		 WHERE code = $1`,
		code,
	)
	var promo domain.PromoCode
	err := row.Scan(
		&promo.ID,
		&promo.Code,
		&promo.Kind,
		&promo.Credits,
		&promo.ExpiresAt,
		&promo.MaxRedemptions,
		&promo.Redemptions,
		&promo.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.PromoCode{}, fmt.Errorf("promo code: %w", ErrNotFound)
		}
		return domain.PromoCode{}, fmt.Errorf("failed to get promo code: %w", err)
	}
	return promo, nil
}

// RedeemPromoCode bumps the redemption counter if capacity remains.
func (r *creditRepository) RedeemPromoCode(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn.Pool.Exec(
		ctx,
		`UPDATE promo_codes
		 SET redemptions = redemptions + 1
		 WHERE id = $1 AND (max_redemptions = 0 OR redemptions < max_redemptions)`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to redeem promo code: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("promo code %s: %w", id, ErrNotFound)
	}
	return nil
}
