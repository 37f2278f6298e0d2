// Package credit allocates account credit against a payable total.
package credit

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Allocation error codes.
const (
	CodeOverBalance = "USER_SPEND_MORE_CREDIT_THAN_THEY_HAVE"
	CodeOverTotal   = "CREDIT_EXCEEDS_ORDER_TOTAL"
)

// ErrNegativeRequest is returned when a negative credit amount is requested.
var ErrNegativeRequest = errors.New("requested credit must not be negative")

// Error reports a credit request that cannot be honoured.
type Error struct {
	Code      string
	Requested decimal.Decimal
	Limit     decimal.Decimal
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: requested %s, limit %s", e.Code, e.Requested, e.Limit)
}

// Allocate returns the credit to apply. Requests above the balance or above
// the payable total fail; they are never clamped.
func Allocate(requested, balance, payable decimal.Decimal) (decimal.Decimal, error) {
	if requested.IsNegative() {
		return decimal.Zero, ErrNegativeRequest
	}
	if requested.GreaterThan(balance) {
		return decimal.Zero, &Error{Code: CodeOverBalance, Requested: requested, Limit: balance}
	}
	if requested.GreaterThan(payable) {
		return decimal.Zero, &Error{Code: CodeOverTotal, Requested: requested, Limit: payable}
	}
	return requested, nil
}

// Signed converts an applied credit into the value stored on a payment
// summary, where credit reduces the total.
func Signed(applied decimal.Decimal) decimal.Decimal {
	return applied.Neg()
}

// Entry is one movement of an account credit ledger. Debits are negative.
type Entry struct {
	AccountID string
	Amount    decimal.Decimal
	OrderCode string
	Reason    string
}

// Ledger is the per-account credit balance.
type Ledger interface {
	// BalanceForUpdate returns the balance holding a row lock until the
	// surrounding transaction ends.
	BalanceForUpdate(ctx context.Context, accountID string) (decimal.Decimal, error)
	// Append records e and adjusts the balance by e.Amount.
	Append(ctx context.Context, e Entry) error
}
