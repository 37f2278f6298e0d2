// Package cart models the session cart as it is presented to checkout.
package cart

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-checkout/internal/domain/catalog"
)

const (
	// HomeZone is the fulfillment country that never triggers cross-border handling.
	HomeZone = "VN"
	// MaxDistinctProducts caps the number of distinct products a cart may hold.
	MaxDistinctProducts = 8
	// MoneyPlaces is the number of fractional digits kept for VND amounts.
	MoneyPlaces int32 = 0
)

var (
	// ErrEmpty is returned when a cart holds no lines.
	ErrEmpty = errors.New("cart is empty")
	// ErrTooManyProducts is returned when a cart exceeds MaxDistinctProducts.
	ErrTooManyProducts = errors.New("too many distinct products in cart")
	// ErrNotFound is returned by a Store when no cart exists for an account.
	ErrNotFound = errors.New("cart not found")
)

// Line is a single product entry of a cart.
type Line struct {
	ProductID   string          `json:"productId"`
	NSID        string          `json:"nsId"`
	Name        string          `json:"name"`
	Quantity    int             `json:"quantity"`
	SalePrice   decimal.Decimal `json:"salePrice"`
	RetailPrice decimal.Decimal `json:"retailPrice"`
	Country     string          `json:"country"`
	SaleEndsAt  *time.Time      `json:"saleEndsAt,omitempty"`
}

// Total returns salePrice * quantity.
func (l Line) Total() decimal.Decimal {
	return l.SalePrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// LineFor builds a cart line from the current catalog state of p.
func LineFor(p catalog.Product, qty int) Line {
	return Line{
		ProductID:   p.ID,
		NSID:        p.NSID,
		Name:        p.Name,
		Quantity:    qty,
		SalePrice:   p.SalePrice,
		RetailPrice: p.RetailPrice,
		Country:     p.Country,
		SaleEndsAt:  p.SaleEndsAt,
	}
}

// InvalidLineError reports a line that violates the cart line invariants.
type InvalidLineError struct {
	ProductID string
	Reason    string
}

func (e *InvalidLineError) Error() string {
	return fmt.Sprintf("invalid cart line %s: %s", e.ProductID, e.Reason)
}

// Snapshot is an immutable view of the cart taken at checkout time.
type Snapshot struct {
	lines []Line
}

// New validates lines and returns a Snapshot holding a copy of them.
func New(lines []Line) (Snapshot, error) {
	if len(lines) == 0 {
		return Snapshot{}, ErrEmpty
	}
	seen := make(map[string]struct{}, len(lines))
	for _, l := range lines {
		if l.Quantity < 1 {
			return Snapshot{}, &InvalidLineError{ProductID: l.ProductID, Reason: "quantity must be at least 1"}
		}
		if l.SalePrice.GreaterThan(l.RetailPrice) {
			return Snapshot{}, &InvalidLineError{ProductID: l.ProductID, Reason: "sale price exceeds retail price"}
		}
		seen[l.ProductID] = struct{}{}
	}
	if len(seen) > MaxDistinctProducts {
		return Snapshot{}, ErrTooManyProducts
	}
	return Snapshot{lines: append([]Line(nil), lines...)}, nil
}

// Lines returns a copy of the snapshot lines in cart order.
func (s Snapshot) Lines() []Line {
	return append([]Line(nil), s.lines...)
}

// Len returns the number of lines.
func (s Snapshot) Len() int { return len(s.lines) }

// Subtotal is the sum of line totals.
func (s Snapshot) Subtotal() decimal.Decimal {
	return Subtotal(s.lines)
}

// DistinctProducts counts distinct product ids.
func (s Snapshot) DistinctProducts() int {
	seen := make(map[string]struct{}, len(s.lines))
	for _, l := range s.lines {
		seen[l.ProductID] = struct{}{}
	}
	return len(seen)
}

// TotalQuantity is the sum of all line quantities.
func (s Snapshot) TotalQuantity() int {
	n := 0
	for _, l := range s.lines {
		n += l.Quantity
	}
	return n
}

// IsCrossBorder reports whether any line ships from outside home.
func (s Snapshot) IsCrossBorder(home string) bool {
	return IsCrossBorder(s.lines, home)
}

// Subtotal sums the totals of lines.
func Subtotal(lines []Line) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		sum = sum.Add(l.Total())
	}
	return sum
}

// IsCrossBorder reports whether any of lines ships from outside home.
func IsCrossBorder(lines []Line, home string) bool {
	for _, l := range lines {
		if l.Country != home {
			return true
		}
	}
	return false
}

// Store holds the server-side cart of each account.
type Store interface {
	Get(ctx context.Context, accountID string) (Snapshot, error)
	Put(ctx context.Context, accountID string, lines []Line) error
	Clear(ctx context.Context, accountID string) error
}
