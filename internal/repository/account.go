package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/kart-checkout/internal/domain/account"
)

const (
	findAccountBySessionSQL = `SELECT id, email, credit, session_hash
		FROM accounts WHERE session_hash = $1`

	upsertAccountSQL = `INSERT INTO accounts (id, email, credit, session_hash)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			email = EXCLUDED.email,
			credit = EXCLUDED.credit,
			session_hash = EXCLUDED.session_hash`
)

var _ account.Repository = (*AccountRepository)(nil)

// AccountRepository provides session lookups backed by PostgreSQL.
type AccountRepository struct {
	db DBTX
}

// NewAccountRepository returns an AccountRepository that uses the given
// pool or transaction.
func NewAccountRepository(db DBTX) *AccountRepository {
	return &AccountRepository{db: db}
}

// FindBySessionHash looks an account up by the HMAC of its session token.
// Returns account.ErrNotFound when no session matches.
func (r *AccountRepository) FindBySessionHash(ctx context.Context, hash string) (*account.Account, error) {
	var a account.Account
	err := r.db.QueryRow(ctx, findAccountBySessionSQL, hash).Scan(&a.ID, &a.Email, &a.Credit, &a.SessionHash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, account.ErrNotFound
		}
		return nil, fmt.Errorf("finding account by session: %w", err)
	}
	return &a, nil
}

// Upsert stores a, replacing the account with the same ID.
func (r *AccountRepository) Upsert(ctx context.Context, a account.Account) error {
	_, err := r.db.Exec(ctx, upsertAccountSQL, a.ID, a.Email, a.Credit, a.SessionHash)
	if err != nil {
		return fmt.Errorf("upserting account %q: %w", a.ID, err)
	}
	return nil
}
