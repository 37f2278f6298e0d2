package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"

	"github.com/xenking/kart-checkout/internal/domain/voucher"
)

const (
	voucherColumns = `id, code, campaign_id, discount_type, amount, maximum_discount_amount,
		minimum_purchase, number_of_items, start_date, expiry, bin_range, specific_days,
		once_per_account, once_per_account_for_campaign, for_new_customer, multiple_user,
		number_of_usage, used, customer_id`

	findVoucherSQL = `SELECT ` + voucherColumns + ` FROM vouchers WHERE code = $1`

	findVoucherForUpdateSQL = findVoucherSQL + ` FOR UPDATE`

	incrementVoucherUsedSQL = `UPDATE vouchers SET used = used + 1 WHERE id = $1`

	insertVoucherUsageSQL = `INSERT INTO voucher_usages (voucher_id, code, campaign_id, customer_id, order_code, amount)
		VALUES ($1, $2, $3, $4, $5, $6)`

	upsertVoucherSQL = `INSERT INTO vouchers (` + voucherColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		ON CONFLICT (code) DO UPDATE SET
			campaign_id = EXCLUDED.campaign_id,
			discount_type = EXCLUDED.discount_type,
			amount = EXCLUDED.amount,
			maximum_discount_amount = EXCLUDED.maximum_discount_amount,
			minimum_purchase = EXCLUDED.minimum_purchase,
			number_of_items = EXCLUDED.number_of_items,
			start_date = EXCLUDED.start_date,
			expiry = EXCLUDED.expiry,
			bin_range = EXCLUDED.bin_range,
			specific_days = EXCLUDED.specific_days,
			once_per_account = EXCLUDED.once_per_account,
			once_per_account_for_campaign = EXCLUDED.once_per_account_for_campaign,
			for_new_customer = EXCLUDED.for_new_customer,
			multiple_user = EXCLUDED.multiple_user,
			number_of_usage = EXCLUDED.number_of_usage,
			customer_id = EXCLUDED.customer_id`
)

var _ voucher.Repository = (*VoucherRepository)(nil)

// VoucherRepository implements voucher.Repository backed by PostgreSQL.
// Codes are stored normalized, see voucher.NormalizeCode.
type VoucherRepository struct {
	db DBTX
}

// NewVoucherRepository returns a VoucherRepository that uses the given pool
// or transaction.
func NewVoucherRepository(db DBTX) *VoucherRepository {
	return &VoucherRepository{db: db}
}

// FindByCode looks a voucher up by its normalized code.
// Returns voucher.ErrNotFound when no voucher matches.
func (r *VoucherRepository) FindByCode(ctx context.Context, code string) (*voucher.Voucher, error) {
	return r.find(ctx, findVoucherSQL, code)
}

// FindByCodeForUpdate is FindByCode holding the row lock until the
// surrounding transaction ends. Called outside a transaction the lock is
// released immediately.
func (r *VoucherRepository) FindByCodeForUpdate(ctx context.Context, code string) (*voucher.Voucher, error) {
	return r.find(ctx, findVoucherForUpdateSQL, code)
}

func (r *VoucherRepository) find(ctx context.Context, query, code string) (*voucher.Voucher, error) {
	rows, err := r.db.Query(ctx, query, code)
	if err != nil {
		return nil, fmt.Errorf("finding voucher %q: %w", code, err)
	}

	v, err := pgx.CollectExactlyOneRow(rows, scanVoucher)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, voucher.ErrNotFound
		}
		return nil, fmt.Errorf("finding voucher %q: %w", code, err)
	}
	return &v, nil
}

// RecordUsage increments the usage counter and stores the usage entry.
func (r *VoucherRepository) RecordUsage(ctx context.Context, u voucher.Usage) error {
	tag, err := r.db.Exec(ctx, incrementVoucherUsedSQL, u.VoucherID)
	if err != nil {
		return fmt.Errorf("incrementing usage of voucher %q: %w", u.Code, err)
	}
	if tag.RowsAffected() == 0 {
		return voucher.ErrNotFound
	}
	_, err = r.db.Exec(ctx, insertVoucherUsageSQL,
		u.VoucherID, u.Code, u.CampaignID, u.CustomerID, u.OrderCode, u.Amount,
	)
	if err != nil {
		return fmt.Errorf("recording usage of voucher %q: %w", u.Code, err)
	}
	return nil
}

// Upsert inserts v or replaces the voucher with the same code. The usage
// counter of an existing voucher is kept.
func (r *VoucherRepository) Upsert(ctx context.Context, v voucher.Voucher) error {
	days := make([]int32, len(v.SpecificDays))
	for i, d := range v.SpecificDays {
		days[i] = int32(d)
	}
	bins := v.BinRange
	if bins == nil {
		bins = []string{}
	}
	_, err := r.db.Exec(ctx, upsertVoucherSQL,
		v.ID, voucher.NormalizeCode(v.Code), v.CampaignID, string(v.DiscountType), v.Amount,
		v.MaximumDiscountAmount, v.MinimumPurchase, v.NumberOfItems, v.StartDate, v.Expiry,
		bins, days, v.OncePerAccount, v.OncePerAccountForCampaign, v.ForNewCustomer,
		v.MultipleUser, v.NumberOfUsage, v.Used, v.CustomerID,
	)
	if err != nil {
		return fmt.Errorf("upserting voucher %q: %w", v.Code, err)
	}
	return nil
}

func scanVoucher(row pgx.CollectableRow) (voucher.Voucher, error) {
	var (
		v            voucher.Voucher
		discountType string
		days         []int32
	)
	err := row.Scan(
		&v.ID, &v.Code, &v.CampaignID, &discountType, &v.Amount, &v.MaximumDiscountAmount,
		&v.MinimumPurchase, &v.NumberOfItems, &v.StartDate, &v.Expiry, &v.BinRange, &days,
		&v.OncePerAccount, &v.OncePerAccountForCampaign, &v.ForNewCustomer, &v.MultipleUser,
		&v.NumberOfUsage, &v.Used, &v.CustomerID,
	)
	v.DiscountType = voucher.DiscountType(discountType)
	for _, d := range days {
		v.SpecificDays = append(v.SpecificDays, int(d))
	}
	return v, err
}
