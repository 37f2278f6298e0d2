package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Availability error codes.
const (
	CodeOutOfStock   = "OUT_OF_STOCK"
	CodeLimitedStock = "LIMITED_STOCK"
	CodeSaleEnded    = "SALE_ENDED"
)

// Product is a sellable catalog entry together with its current sale window
// and remaining stock.
type Product struct {
	ID           string
	NSID         string
	Name         string
	SalePrice    decimal.Decimal
	RetailPrice  decimal.Decimal
	Country      string
	Stock        int
	SaleStartsAt *time.Time
	SaleEndsAt   *time.Time
}

// AvailabilityError reports that a line item cannot be fulfilled right now.
type AvailabilityError struct {
	Code      string
	ProductID string
	Available int
}

func (e *AvailabilityError) Error() string {
	return fmt.Sprintf("%s: product %s", e.Code, e.ProductID)
}

// CheckAvailability verifies that qty units of p can be sold at now.
func CheckAvailability(p Product, qty int, now time.Time) error {
	if p.SaleEndsAt != nil && now.After(*p.SaleEndsAt) {
		return &AvailabilityError{Code: CodeSaleEnded, ProductID: p.ID, Available: p.Stock}
	}
	if p.SaleStartsAt != nil && now.Before(*p.SaleStartsAt) {
		return &AvailabilityError{Code: CodeSaleEnded, ProductID: p.ID, Available: p.Stock}
	}
	if p.Stock <= 0 {
		return &AvailabilityError{Code: CodeOutOfStock, ProductID: p.ID}
	}
	if qty > p.Stock {
		return &AvailabilityError{Code: CodeLimitedStock, ProductID: p.ID, Available: p.Stock}
	}
	return nil
}

// Repository provides catalog lookups and the stock counter.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
	// DecrementStock removes qty units from the product stock. It returns an
	// *AvailabilityError when fewer than qty units remain.
	DecrementStock(ctx context.Context, id string, qty int) error
}
