package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/kart-checkout/internal/domain/catalog"
)

const (
	productColumns = `id, nsid, name, sale_price, retail_price, country, stock, sale_starts_at, sale_ends_at`

	getProductByIDSQL = `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	getProductsByIDsSQL = `SELECT ` + productColumns + ` FROM products WHERE id = ANY($1)`

	decrementStockSQL = `UPDATE products SET stock = stock - $2
		WHERE id = $1 AND stock >= $2
		RETURNING stock`

	stockSQL = `SELECT stock FROM products WHERE id = $1`

	upsertProductSQL = `INSERT INTO products (` + productColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			nsid = EXCLUDED.nsid,
			name = EXCLUDED.name,
			sale_price = EXCLUDED.sale_price,
			retail_price = EXCLUDED.retail_price,
			country = EXCLUDED.country,
			stock = EXCLUDED.stock,
			sale_starts_at = EXCLUDED.sale_starts_at,
			sale_ends_at = EXCLUDED.sale_ends_at`
)

var _ catalog.Repository = (*ProductRepository)(nil)

// ProductRepository implements catalog.Repository backed by PostgreSQL.
type ProductRepository struct {
	db DBTX
}

// NewProductRepository returns a ProductRepository that uses the given
// pool or transaction.
func NewProductRepository(db DBTX) *ProductRepository {
	return &ProductRepository{db: db}
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*catalog.Product, error) {
	rows, err := r.db.Query(ctx, getProductByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrNotFound
		}
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}
	return &p, nil
}

// GetByIDs returns products matching any of the given IDs. Unknown IDs are
// skipped.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]catalog.Product, error) {
	rows, err := r.db.Query(ctx, getProductsByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting products by ids: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// DecrementStock removes qty units in a single conditional update, so two
// transactions can never both take the last unit.
func (r *ProductRepository) DecrementStock(ctx context.Context, id string, qty int) error {
	var left int
	err := r.db.QueryRow(ctx, decrementStockSQL, id, qty).Scan(&left)
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("decrementing stock of %q: %w", id, err)
	}

	var stock int
	if err := r.db.QueryRow(ctx, stockSQL, id).Scan(&stock); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return catalog.ErrNotFound
		}
		return fmt.Errorf("reading stock of %q: %w", id, err)
	}
	code := catalog.CodeLimitedStock
	if stock <= 0 {
		code = catalog.CodeOutOfStock
	}
	return &catalog.AvailabilityError{Code: code, ProductID: id, Available: stock}
}

// Upsert inserts p or replaces the stored product with the same ID.
func (r *ProductRepository) Upsert(ctx context.Context, p catalog.Product) error {
	_, err := r.db.Exec(ctx, upsertProductSQL,
		p.ID, p.NSID, p.Name, p.SalePrice, p.RetailPrice, p.Country, p.Stock, p.SaleStartsAt, p.SaleEndsAt,
	)
	if err != nil {
		return fmt.Errorf("upserting product %q: %w", p.ID, err)
	}
	return nil
}

func scanProduct(row pgx.CollectableRow) (catalog.Product, error) {
	var p catalog.Product
	err := row.Scan(
		&p.ID, &p.NSID, &p.Name, &p.SalePrice, &p.RetailPrice,
		&p.Country, &p.Stock, &p.SaleStartsAt, &p.SaleEndsAt,
	)
	return p, err
}
