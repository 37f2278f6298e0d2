package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-checkout/internal/domain/account"
	"github.com/xenking/kart-checkout/internal/domain/catalog"
	"github.com/xenking/kart-checkout/internal/domain/voucher"
	"github.com/xenking/kart-checkout/internal/repository"
)

type productJSON struct {
	ID           string          `json:"id"`
	NSID         string          `json:"nsid"`
	Name         string          `json:"name"`
	SalePrice    decimal.Decimal `json:"salePrice"`
	RetailPrice  decimal.Decimal `json:"retailPrice"`
	Country      string          `json:"country"`
	Stock        int             `json:"stock"`
	SaleStartsAt *time.Time      `json:"saleStartsAt"`
	SaleEndsAt   *time.Time      `json:"saleEndsAt"`
}

func main() {
	var (
		databaseURL   string
		productsFile  string
		sessionToken  string
		sessionPepper string
		credit        int64
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
	flag.StringVar(&sessionToken, "session-token", "", "session token of the demo customer (or CHECKOUT_SEED_SESSION_TOKEN env)")
	flag.StringVar(&sessionPepper, "session-pepper", "", "HMAC pepper for session hashing (or CHECKOUT_SESSION_PEPPER env)")
	flag.Int64Var(&credit, "credit", 200000, "account credit of the demo customer, in VND")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if sessionToken == "" {
		sessionToken = os.Getenv("CHECKOUT_SEED_SESSION_TOKEN")
	}
	if sessionToken == "" {
		slog.Error("session token is required: set --session-token or CHECKOUT_SEED_SESSION_TOKEN")
		os.Exit(1)
	}
	if sessionPepper == "" {
		sessionPepper = os.Getenv("CHECKOUT_SESSION_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, productsFile, sessionToken, sessionPepper, credit); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, productsFile, token, pepper string, credit int64) error {
	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := repository.RunMigrations(pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	store := repository.NewStore(pool)

	if err := seedProducts(ctx, store.Products, productsFile); err != nil {
		return errors.Wrap(err, "seed products")
	}

	if err := seedVouchers(ctx, store.Vouchers, time.Now()); err != nil {
		return errors.Wrap(err, "seed vouchers")
	}

	if err := seedAccount(ctx, store.Accounts, token, pepper, credit); err != nil {
		return errors.Wrap(err, "seed account")
	}

	return nil
}

func seedProducts(ctx context.Context, products *repository.ProductRepository, productsFile string) error {
	slog.Info("reading products file", slog.String("path", productsFile))

	data, err := os.ReadFile(productsFile)
	if err != nil {
		return errors.Wrap(err, "read products file")
	}

	var items []productJSON
	if err := json.Unmarshal(data, &items); err != nil {
		return errors.Wrap(err, "parse products JSON")
	}

	slog.Info("upserting products", slog.Int("count", len(items)))

	for _, p := range items {
		if err := products.Upsert(ctx, catalog.Product{
			ID:           p.ID,
			NSID:         p.NSID,
			Name:         p.Name,
			SalePrice:    p.SalePrice,
			RetailPrice:  p.RetailPrice,
			Country:      p.Country,
			Stock:        p.Stock,
			SaleStartsAt: p.SaleStartsAt,
			SaleEndsAt:   p.SaleEndsAt,
		}); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}

		slog.Info("upserted product", slog.String("id", p.ID), slog.String("country", p.Country))
	}

	return nil
}

func seedVouchers(ctx context.Context, vouchers *repository.VoucherRepository, now time.Time) error {
	slog.Info("seeding demo vouchers")

	start := now.Add(-24 * time.Hour).Truncate(time.Hour)
	expiry := now.AddDate(1, 0, 0).Truncate(time.Hour)

	items := []voucher.Voucher{
		{
			ID:              "v-welcome50k",
			Code:            "WELCOME50K",
			CampaignID:      "welcome",
			DiscountType:    voucher.DiscountAmount,
			Amount:          decimal.NewFromInt(50000),
			MinimumPurchase: decimal.NewNullDecimal(decimal.NewFromInt(300000)),
			StartDate:       start,
			Expiry:          expiry,
			ForNewCustomer:  true,
			MultipleUser:    true,
			OncePerAccount:  true,
		},
		{
			ID:                    "v-sale10",
			Code:                  "SALE10",
			CampaignID:            "sale10",
			DiscountType:          voucher.DiscountPercentage,
			Amount:                decimal.NewFromInt(10),
			MaximumDiscountAmount: decimal.NewNullDecimal(decimal.NewFromInt(100000)),
			StartDate:             start,
			Expiry:                expiry,
			MultipleUser:          true,
			NumberOfUsage:         1000,
		},
		{
			ID:              "v-visa20",
			Code:            "VISA20",
			CampaignID:      "visa",
			DiscountType:    voucher.DiscountPercentage,
			Amount:          decimal.NewFromInt(20),
			MinimumPurchase: decimal.NewNullDecimal(decimal.NewFromInt(1000000)),
			StartDate:       start,
			Expiry:          expiry,
			BinRange:        []string{"4"},
			MultipleUser:    true,
		},
	}

	for _, v := range items {
		if err := vouchers.Upsert(ctx, v); err != nil {
			return errors.Wrapf(err, "upsert voucher %s", v.Code)
		}

		slog.Info("upserted voucher", slog.String("code", v.Code), slog.String("type", string(v.DiscountType)))
	}

	return nil
}

func seedAccount(ctx context.Context, accounts *repository.AccountRepository, token, pepper string, credit int64) error {
	slog.Info("seeding demo account")

	if err := accounts.Upsert(ctx, account.Account{
		ID:          "demo",
		Email:       "demo@example.com",
		Credit:      decimal.NewFromInt(credit),
		SessionHash: account.HashToken(token, []byte(pepper)),
	}); err != nil {
		return errors.Wrap(err, "upsert demo account")
	}

	slog.Info("upserted account", slog.String("id", "demo"), slog.Int64("credit", credit))

	return nil
}
