package order

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-checkout/internal/domain/address"
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPending       Status = "pending"
	StatusPlaced        Status = "placed"
	StatusFailed        Status = "failed"
	StatusConfirmed     Status = "confirmed"
	StatusCancelled     Status = "cancelled"
	StatusShipped       Status = "shipped"
	StatusDelivered     Status = "delivered"
	StatusReturnRequest Status = "return_request"
	StatusReturned      Status = "returned"
)

var transitions = map[Status][]Status{
	StatusPending:       {StatusPending, StatusPlaced, StatusFailed},
	StatusPlaced:        {StatusConfirmed, StatusCancelled},
	StatusFailed:        {StatusPending, StatusPlaced, StatusFailed},
	StatusConfirmed:     {StatusShipped, StatusCancelled},
	StatusShipped:       {StatusDelivered},
	StatusDelivered:     {StatusReturnRequest},
	StatusReturnRequest: {StatusReturned},
}

// CanTransition reports whether an order may move from one status to another.
// The failed and pending self loops serve recheckout.
func CanTransition(from, to Status) bool {
	return slices.Contains(transitions[from], to)
}

// Completed reports whether an order in status s counts as a completed
// purchase in customer history.
func (s Status) Completed() bool {
	switch s {
	case StatusPlaced, StatusConfirmed, StatusShipped, StatusDelivered, StatusReturnRequest, StatusReturned:
		return true
	default:
		return false
	}
}

// Retryable reports whether a recheckout may resume an order in status s.
func (s Status) Retryable() bool {
	return s == StatusPending || s == StatusFailed
}

var (
	// ErrNotFound is returned when no order matches the lookup.
	ErrNotFound = errors.New("order not found")
	// ErrNotRetryable is returned when a recheckout targets orders that are
	// neither failed nor pending.
	ErrNotRetryable = errors.New("order is not awaiting payment")
)

// TransitionError reports a forbidden status change.
type TransitionError struct {
	From, To Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot move order from %s to %s", e.From, e.To)
}

// Product is a line of an order, frozen at checkout time.
type Product struct {
	ProductID   string          `json:"productId"`
	NSID        string          `json:"nsId"`
	Name        string          `json:"name"`
	Quantity    int             `json:"quantity"`
	SalePrice   decimal.Decimal `json:"salePrice"`
	RetailPrice decimal.Decimal `json:"retailPrice"`
	Country     string          `json:"country"`
}

// Total returns salePrice * quantity.
func (p Product) Total() decimal.Decimal {
	return p.SalePrice.Mul(decimal.NewFromInt(int64(p.Quantity)))
}

// PaymentSummary breaks an order total down. AccountCredit is stored
// negative since it reduces the total.
type PaymentSummary struct {
	Method        string
	Subtotal      decimal.Decimal
	Shipping      decimal.Decimal
	VoucherAmount decimal.Decimal
	AccountCredit decimal.Decimal
	Total         decimal.Decimal
}

// Recompute sets Total from the other components.
func (p *PaymentSummary) Recompute() {
	p.Total = p.Subtotal.Add(p.Shipping).Sub(p.VoucherAmount).Add(p.AccountCredit)
}

// Order is one persisted sub-order of a checkout. All sub-orders of a
// checkout share Code and are told apart by SubCode.
type Order struct {
	ID               string
	Code             string
	SubCode          string
	Zone             string
	Status           Status
	CustomerID       string
	Products         []Product
	Payment          PaymentSummary
	IsCrossBorder    bool
	ShippingAddress  address.Address
	BillingAddress   address.Address
	VoucherCode      string
	VoucherCampaign  string
	PaymentReference string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Transition moves o to status to when allowed.
func (o *Order) Transition(to Status) error {
	if !CanTransition(o.Status, to) {
		return &TransitionError{From: o.Status, To: to}
	}
	o.Status = to
	return nil
}

// TotalQuantity is the sum of product quantities.
func (o *Order) TotalQuantity() int {
	n := 0
	for _, p := range o.Products {
		n += p.Quantity
	}
	return n
}

// Repository defines persistence operations for orders.
type Repository interface {
	CreateBatch(ctx context.Context, orders []*Order) error
	GetByID(ctx context.Context, id string) (*Order, error)
	ListByCode(ctx context.Context, code string) ([]*Order, error)
	ListByCustomer(ctx context.Context, customerID string) ([]*Order, error)
	// Update persists status, payment summary and payment reference of o.
	Update(ctx context.Context, o *Order) error
}
