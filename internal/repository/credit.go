package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-checkout/internal/domain/account"
	"github.com/xenking/kart-checkout/internal/domain/credit"
)

const (
	lockCreditSQL = `SELECT credit FROM accounts WHERE id = $1 FOR UPDATE`

	insertCreditEntrySQL = `INSERT INTO credit_entries (account_id, amount, order_code, reason)
		VALUES ($1, $2, $3, $4)`

	adjustCreditSQL = `UPDATE accounts SET credit = credit + $2 WHERE id = $1`
)

var _ credit.Ledger = (*CreditRepository)(nil)

// CreditRepository implements credit.Ledger on the accounts table and an
// append-only entries table.
type CreditRepository struct {
	db DBTX
}

// NewCreditRepository returns a CreditRepository that uses the given pool
// or transaction.
func NewCreditRepository(db DBTX) *CreditRepository {
	return &CreditRepository{db: db}
}

// BalanceForUpdate returns the account balance and locks the account row
// until the surrounding transaction ends.
func (r *CreditRepository) BalanceForUpdate(ctx context.Context, accountID string) (decimal.Decimal, error) {
	var balance decimal.Decimal
	if err := r.db.QueryRow(ctx, lockCreditSQL, accountID).Scan(&balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, account.ErrNotFound
		}
		return decimal.Zero, fmt.Errorf("locking credit of %q: %w", accountID, err)
	}
	return balance, nil
}

// Append records e and adjusts the balance by e.Amount.
func (r *CreditRepository) Append(ctx context.Context, e credit.Entry) error {
	if _, err := r.db.Exec(ctx, insertCreditEntrySQL, e.AccountID, e.Amount, e.OrderCode, e.Reason); err != nil {
		return fmt.Errorf("recording credit entry: %w", err)
	}
	tag, err := r.db.Exec(ctx, adjustCreditSQL, e.AccountID, e.Amount)
	if err != nil {
		return fmt.Errorf("adjusting credit of %q: %w", e.AccountID, err)
	}
	if tag.RowsAffected() == 0 {
		return account.ErrNotFound
	}
	return nil
}
