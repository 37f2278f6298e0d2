package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/kart-checkout/internal/domain/order"
)

const (
	orderColumns = `id, code, sub_code, zone, status, customer_id, products,
		payment_method, subtotal, shipping, voucher_amount, account_credit, total,
		is_cross_border, shipping_address, billing_address, voucher_code, voucher_campaign,
		payment_reference, created_at, updated_at`

	insertOrderSQL = `INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`

	getOrderByIDSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	listOrdersByCodeSQL = `SELECT ` + orderColumns + ` FROM orders WHERE code = $1 ORDER BY sub_code`

	listOrdersByCustomerSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE customer_id = $1 ORDER BY created_at DESC, sub_code`

	updateOrderSQL = `UPDATE orders SET
			status = $2,
			payment_method = $3,
			shipping = $4,
			total = $5,
			payment_reference = $6,
			updated_at = $7
		WHERE id = $1`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL. Line
// items and addresses are stored as JSONB.
type OrderRepository struct {
	db DBTX
}

// NewOrderRepository returns an OrderRepository that uses the given pool or
// transaction.
func NewOrderRepository(db DBTX) *OrderRepository {
	return &OrderRepository{db: db}
}

// CreateBatch persists all sub-orders of a checkout in one round trip.
func (r *OrderRepository) CreateBatch(ctx context.Context, orders []*order.Order) error {
	batch := &pgx.Batch{}
	for _, o := range orders {
		products, err := json.Marshal(o.Products)
		if err != nil {
			return fmt.Errorf("marshaling products of %q: %w", o.SubCode, err)
		}
		shipping, err := json.Marshal(o.ShippingAddress)
		if err != nil {
			return fmt.Errorf("marshaling shipping address of %q: %w", o.SubCode, err)
		}
		billing, err := json.Marshal(o.BillingAddress)
		if err != nil {
			return fmt.Errorf("marshaling billing address of %q: %w", o.SubCode, err)
		}
		batch.Queue(insertOrderSQL,
			o.ID, o.Code, o.SubCode, o.Zone, string(o.Status), o.CustomerID, products,
			o.Payment.Method, o.Payment.Subtotal, o.Payment.Shipping, o.Payment.VoucherAmount,
			o.Payment.AccountCredit, o.Payment.Total,
			o.IsCrossBorder, shipping, billing, o.VoucherCode, o.VoucherCampaign,
			o.PaymentReference, o.CreatedAt, o.UpdatedAt,
		)
	}

	br := r.db.SendBatch(ctx, batch)
	for _, o := range orders {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("creating order %q: %w", o.SubCode, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("creating orders: %w", err)
	}
	return nil
}

// GetByID returns a single sub-order.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	rows, err := r.db.Query(ctx, getOrderByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	return o, nil
}

// ListByCode returns every sub-order sharing a checkout code.
func (r *OrderRepository) ListByCode(ctx context.Context, code string) ([]*order.Order, error) {
	rows, err := r.db.Query(ctx, listOrdersByCodeSQL, code)
	if err != nil {
		return nil, fmt.Errorf("listing orders of %q: %w", code, err)
	}
	return pgx.CollectRows(rows, scanOrder)
}

// ListByCustomer returns the customer's sub-orders, newest first.
func (r *OrderRepository) ListByCustomer(ctx context.Context, customerID string) ([]*order.Order, error) {
	rows, err := r.db.Query(ctx, listOrdersByCustomerSQL, customerID)
	if err != nil {
		return nil, fmt.Errorf("listing orders of customer %q: %w", customerID, err)
	}
	return pgx.CollectRows(rows, scanOrder)
}

// Update persists the mutable fields of o.
func (r *OrderRepository) Update(ctx context.Context, o *order.Order) error {
	tag, err := r.db.Exec(ctx, updateOrderSQL,
		o.ID, string(o.Status), o.Payment.Method, o.Payment.Shipping, o.Payment.Total,
		o.PaymentReference, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("updating order %q: %w", o.SubCode, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

func scanOrder(row pgx.CollectableRow) (*order.Order, error) {
	var (
		o                           order.Order
		status                      string
		products, shipping, billing []byte
	)
	err := row.Scan(
		&o.ID, &o.Code, &o.SubCode, &o.Zone, &status, &o.CustomerID, &products,
		&o.Payment.Method, &o.Payment.Subtotal, &o.Payment.Shipping, &o.Payment.VoucherAmount,
		&o.Payment.AccountCredit, &o.Payment.Total,
		&o.IsCrossBorder, &shipping, &billing, &o.VoucherCode, &o.VoucherCampaign,
		&o.PaymentReference, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	o.Status = order.Status(status)
	if err := json.Unmarshal(products, &o.Products); err != nil {
		return nil, fmt.Errorf("unmarshaling products: %w", err)
	}
	if err := json.Unmarshal(shipping, &o.ShippingAddress); err != nil {
		return nil, fmt.Errorf("unmarshaling shipping address: %w", err)
	}
	if err := json.Unmarshal(billing, &o.BillingAddress); err != nil {
		return nil, fmt.Errorf("unmarshaling billing address: %w", err)
	}
	return &o, nil
}
