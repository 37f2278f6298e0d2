package voucher

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// DiscountType enumerates the supported voucher discount strategies.
type DiscountType string

const (
	// DiscountAmount takes a fixed amount off the subtotal.
	DiscountAmount DiscountType = "amount"
	// DiscountPercentage takes a percentage of the subtotal, optionally capped.
	DiscountPercentage DiscountType = "percentage"
)

// ErrNotFound is returned by a Repository when no voucher matches a code.
var ErrNotFound = errors.New("voucher not found")

// Voucher is an issued discount instance.
type Voucher struct {
	ID                    string
	Code                  string
	CampaignID            string
	DiscountType          DiscountType
	Amount                decimal.Decimal
	MaximumDiscountAmount decimal.NullDecimal
	MinimumPurchase       decimal.NullDecimal
	NumberOfItems         int
	StartDate             time.Time
	Expiry                time.Time
	// BinRange lists accepted card number prefixes.
	BinRange []string
	// SpecificDays lists ISO weekdays (Monday=1 .. Sunday=7).
	SpecificDays              []int
	OncePerAccount            bool
	OncePerAccountForCampaign bool
	ForNewCustomer            bool
	MultipleUser              bool
	NumberOfUsage             int
	Used                      int
	CustomerID                string
}

// Redeemed reports whether a single-use instance has already been consumed.
func (v *Voucher) Redeemed() bool {
	return !v.MultipleUser && v.NumberOfUsage == 0 && v.Used > 0
}

// Discount is the outcome of a successful evaluation.
type Discount struct {
	Amount     decimal.Decimal
	Code       string
	CampaignID string
}

// Usage records one redemption of a voucher.
type Usage struct {
	VoucherID  string
	Code       string
	CampaignID string
	CustomerID string
	OrderCode  string
	Amount     decimal.Decimal
}

// NormalizeCode canonicalizes a user supplied voucher code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Repository provides voucher lookups and usage accounting.
type Repository interface {
	FindByCode(ctx context.Context, code string) (*Voucher, error)
	// FindByCodeForUpdate is FindByCode holding a row lock until the
	// surrounding transaction ends.
	FindByCodeForUpdate(ctx context.Context, code string) (*Voucher, error)
	// RecordUsage increments the usage counter and stores the usage entry.
	RecordUsage(ctx context.Context, u Usage) error
}
