package main

import (
	"bufio"
	"context"
	"flag"
	"log/slog"
	"math/bits"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/kart-checkout/internal/domain/voucher"
	"github.com/xenking/kart-checkout/internal/repository"
)

const (
	bloomFPR      = 0.001
	progressEvery = 1_000_000
	minCodeLen    = 6
	maxCodeLen    = 32
	maxFiles      = 64
	writers       = 8
)

// campaign describes the vouchers issued from every code in the batch.
type campaign struct {
	id              string
	discountType    voucher.DiscountType
	amount          decimal.Decimal
	maxDiscount     decimal.NullDecimal
	minimumPurchase decimal.NullDecimal
	start           time.Time
	expiry          time.Time
}

func (c campaign) voucher(code string) voucher.Voucher {
	return voucher.Voucher{
		ID:                    c.id + ":" + code,
		Code:                  code,
		CampaignID:            c.id,
		DiscountType:          c.discountType,
		Amount:                c.amount,
		MaximumDiscountAmount: c.maxDiscount,
		MinimumPurchase:       c.minimumPurchase,
		StartDate:             c.start,
		Expiry:                c.expiry,
	}
}

// upserter stores vouchers.
type upserter interface {
	Upsert(ctx context.Context, v voucher.Voucher) error
}

func main() {
	var (
		dataDir      string
		databaseURL  string
		campaignID   string
		discountType string
		amount       string
		maxDiscount  string
		minPurchase  string
		validFor     time.Duration
		capacity     uint
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing gzip code batches (*.gz), one code per line")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&campaignID, "campaign", "", "campaign id of the issued vouchers")
	flag.StringVar(&discountType, "type", string(voucher.DiscountAmount), "discount type: amount or percentage")
	flag.StringVar(&amount, "amount", "", "discount amount in VND, or percent for percentage vouchers")
	flag.StringVar(&maxDiscount, "max-discount", "", "cap of a percentage discount in VND")
	flag.StringVar(&minPurchase, "min-purchase", "", "minimum cart subtotal in VND")
	flag.DurationVar(&validFor, "valid-for", 30*24*time.Hour, "voucher lifetime from now")
	flag.UintVar(&capacity, "capacity", 10_000_000, "expected codes per file, sizes the bloom filters")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	now := time.Now()
	c, err := parseCampaign(campaignID, discountType, amount, maxDiscount, minPurchase, now, now.Add(validFor))
	if err != nil {
		slog.Error("invalid campaign", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, dataDir, databaseURL, c, capacity); err != nil {
		slog.Error("voucher ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("voucher ingest completed successfully")
}

func parseCampaign(id, discountType, amount, maxDiscount, minPurchase string, start, expiry time.Time) (campaign, error) {
	c := campaign{id: id, start: start, expiry: expiry}
	if id == "" {
		return c, errors.New("campaign id is required")
	}
	switch t := voucher.DiscountType(discountType); t {
	case voucher.DiscountAmount, voucher.DiscountPercentage:
		c.discountType = t
	default:
		return c, errors.Errorf("unknown discount type %q", discountType)
	}

	var err error
	if c.amount, err = decimal.NewFromString(amount); err != nil {
		return c, errors.Wrap(err, "parse amount")
	}
	if !c.amount.IsPositive() {
		return c, errors.New("amount must be positive")
	}
	if c.discountType == voucher.DiscountPercentage && c.amount.GreaterThan(decimal.NewFromInt(100)) {
		return c, errors.New("percentage must not exceed 100")
	}
	if c.maxDiscount, err = parseOptional(maxDiscount); err != nil {
		return c, errors.Wrap(err, "parse max discount")
	}
	if c.minimumPurchase, err = parseOptional(minPurchase); err != nil {
		return c, errors.Wrap(err, "parse minimum purchase")
	}
	return c, nil
}

func parseOptional(s string) (decimal.NullDecimal, error) {
	if s == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(d), nil
}

func run(ctx context.Context, dataDir, databaseURL string, c campaign, capacity uint) error {
	files, err := filepath.Glob(filepath.Join(dataDir, "*.gz"))
	if err != nil {
		return errors.Wrap(err, "list code files")
	}
	if len(files) == 0 {
		return errors.Errorf("no *.gz files in %s", dataDir)
	}
	if len(files) > maxFiles {
		return errors.Errorf("too many code files: %d (max %d)", len(files), maxFiles)
	}
	slices.Sort(files)

	// Codes issued by more than one batch cannot be attributed and are
	// rejected.
	slog.Info("pass 1: building bloom filters", slog.Int("files", len(files)))

	filters, err := buildBloomFilters(ctx, files, capacity)
	if err != nil {
		return errors.Wrap(err, "build bloom filters")
	}

	slog.Info("pass 2: finding codes shared between files")

	shared, err := findSharedCodes(ctx, files, filters)
	if err != nil {
		return errors.Wrap(err, "find shared codes")
	}

	slog.Info("shared codes rejected", slog.Int("count", len(shared)))

	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	written, err := writeVouchers(ctx, repository.NewVoucherRepository(pool), c, files, shared)
	if err != nil {
		return errors.Wrap(err, "write vouchers to database")
	}

	slog.Info("vouchers written", slog.Uint64("count", written), slog.String("campaign", c.id))
	return nil
}

// buildBloomFilters creates one bloom filter per file, concurrently.
func buildBloomFilters(ctx context.Context, files []string, capacity uint) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			filter := bloom.NewWithEstimates(capacity, bloomFPR)
			var count uint64

			if err := streamCodes(ctx, path, func(code string) {
				filter.AddString(code)
				count++
				if count%progressEvery == 0 {
					slog.Info("pass 1 progress", slog.String("file", path), slog.Uint64("codes", count))
				}
			}); err != nil {
				return errors.Wrapf(err, "build filter for %s", path)
			}

			slog.Info("pass 1 complete", slog.String("file", path), slog.Uint64("total_codes", count))
			filters[i] = filter
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return filters, nil
}

// findSharedCodes re-streams each file, collects codes that test positive in
// another file's filter, and keeps those actually seen in two or more files.
func findSharedCodes(ctx context.Context, files []string, filters []*bloom.BloomFilter) (map[string]struct{}, error) {
	candidates := make([]map[string]uint64, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			found := make(map[string]uint64)
			fileBit := uint64(1) << uint(i)

			if err := streamCodes(ctx, path, func(code string) {
				for j, f := range filters {
					if j != i && f.TestString(code) {
						found[code] |= fileBit
						return
					}
				}
			}); err != nil {
				return errors.Wrapf(err, "scan %s for shared codes", path)
			}

			candidates[i] = found
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make(map[string]uint64)
	for _, found := range candidates {
		for code, mask := range found {
			merged[code] |= mask
		}
	}

	shared := make(map[string]struct{})
	for code, mask := range merged {
		if bits.OnesCount64(mask) >= 2 {
			shared[code] = struct{}{}
		}
	}
	return shared, nil
}

// writeVouchers upserts one voucher per unique code. Duplicates within a
// single file are written once.
func writeVouchers(ctx context.Context, repo upserter, c campaign, files []string, shared map[string]struct{}) (uint64, error) {
	codes := make(chan string, 1024)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(codes)
		for _, path := range files {
			seen := make(map[string]struct{})
			err := streamCodes(gCtx, path, func(code string) {
				if _, dup := shared[code]; dup {
					return
				}
				if _, ok := seen[code]; ok {
					return
				}
				seen[code] = struct{}{}
				select {
				case codes <- code:
				case <-gCtx.Done():
				}
			})
			if err != nil {
				return errors.Wrapf(err, "stream %s", path)
			}
		}
		return nil
	})

	counts := make([]uint64, writers)
	for w := range writers {
		g.Go(func() error {
			for code := range codes {
				if err := repo.Upsert(gCtx, c.voucher(code)); err != nil {
					return errors.Wrapf(err, "upsert voucher %s", code)
				}
				counts[w]++
				if counts[w]%progressEvery == 0 {
					slog.Info("write progress", slog.Int("writer", w), slog.Uint64("written", counts[w]))
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return 0, err
	}

	var total uint64
	for _, n := range counts {
		total += n
	}
	return total, nil
}

// streamCodes opens a gzip-compressed file and calls fn for every valid
// normalized code in it.
func streamCodes(ctx context.Context, path string, fn func(code string)) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		code := voucher.NormalizeCode(scanner.Text())
		if len(code) < minCodeLen || len(code) > maxCodeLen {
			continue
		}
		fn(code)
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}
	return nil
}
