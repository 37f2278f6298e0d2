// Package account resolves session tokens to customer accounts.
package account

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrUnauthorized is returned when a session token does not resolve.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNotFound is returned by a Repository when no session matches.
	ErrNotFound = errors.New("session not found")
)

// Account is the customer behind a session.
type Account struct {
	ID     string
	Email  string
	Credit decimal.Decimal
	// SessionHash is the stored HMAC of the session token.
	SessionHash string
}

// Repository looks accounts up by session token hash.
type Repository interface {
	FindBySessionHash(ctx context.Context, hash string) (*Account, error)
}

// HashToken returns the hex HMAC-SHA256 of token keyed by pepper. Session
// tokens are stored only in this form.
func HashToken(token string, pepper []byte) string {
	mac := hmac.New(sha256.New, pepper)
	mac.Write([]byte(token))
	return hex.EncodeToString(mac.Sum(nil))
}

// Authenticator resolves session tokens.
type Authenticator struct {
	accounts Repository
	pepper   []byte
}

// NewAuthenticator creates an Authenticator with the given account
// repository and HMAC pepper.
func NewAuthenticator(accounts Repository, pepper []byte) *Authenticator {
	return &Authenticator{accounts: accounts, pepper: pepper}
}

// Authenticate returns the account owning token.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (*Account, error) {
	if token == "" {
		return nil, ErrUnauthorized
	}
	hash := HashToken(token, a.pepper)

	acc, err := a.accounts.FindBySessionHash(ctx, hash)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, errors.Wrap(err, "find session")
	}

	computed, _ := hex.DecodeString(hash)
	stored, err := hex.DecodeString(acc.SessionHash)
	if err != nil || subtle.ConstantTimeCompare(computed, stored) != 1 {
		return nil, ErrUnauthorized
	}
	return acc, nil
}
