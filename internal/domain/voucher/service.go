package voucher

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"golang.org/x/sync/singleflight"

	"github.com/xenking/kart-checkout/internal/domain/cart"
)

// Service looks vouchers up and runs Evaluate against them. Inspect never
// changes usage counters; Redeem is meant to run inside the checkout
// transaction with a transaction-bound Repository.
type Service struct {
	repo    Repository
	now     func() time.Time
	lookups singleflight.Group
}

// NewService creates a Service backed by the given Repository.
func NewService(repo Repository, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{repo: repo, now: now}
}

// InspectRequest is the input of a dry-run evaluation.
type InspectRequest struct {
	Code       string
	CustomerID string
	Lines      []cart.Line
	History    History
	Payment    *Payment
}

// Inspect evaluates the voucher for the given code without redeeming it.
func (s *Service) Inspect(ctx context.Context, req InspectRequest) (Discount, *Voucher, error) {
	code := NormalizeCode(req.Code)

	// Concurrent inspections of the same code share one lookup, so it must
	// outlive the caller that happened to start it.
	res, err, _ := s.lookups.Do(code, func() (any, error) {
		return s.find(context.WithoutCancel(ctx), s.repo, code, false)
	})
	if err != nil {
		return Discount{}, nil, err
	}
	v, _ := res.(*Voucher)

	d, err := Evaluate(v, Input{
		Code:       code,
		Lines:      req.Lines,
		CustomerID: req.CustomerID,
		History:    req.History,
		Payment:    req.Payment,
		Now:        s.now(),
		Mode:       ModeInspect,
	})
	if err != nil {
		return Discount{}, v, err
	}
	return d, v, nil
}

// RedeemRequest is the input of a commit-time redemption.
type RedeemRequest struct {
	Code       string
	CustomerID string
	OrderCode  string
	Lines      []cart.Line
	History    History
	Payment    Payment
}

// Redeem locks the voucher row through repo, re-evaluates it in commit mode
// and records the usage. repo must be bound to the checkout transaction so
// a concurrent checkout observes the incremented counter.
func (s *Service) Redeem(ctx context.Context, repo Repository, req RedeemRequest) (Discount, error) {
	code := NormalizeCode(req.Code)
	v, err := s.find(ctx, repo, code, true)
	if err != nil {
		return Discount{}, err
	}

	payment := req.Payment
	d, err := Evaluate(v, Input{
		Code:       code,
		Lines:      req.Lines,
		CustomerID: req.CustomerID,
		History:    req.History,
		Payment:    &payment,
		Now:        s.now(),
		Mode:       ModeCommit,
	})
	if err != nil {
		return Discount{}, err
	}

	if err := repo.RecordUsage(ctx, Usage{
		VoucherID:  v.ID,
		Code:       v.Code,
		CampaignID: v.CampaignID,
		CustomerID: req.CustomerID,
		OrderCode:  req.OrderCode,
		Amount:     d.Amount,
	}); err != nil {
		return Discount{}, errors.Wrap(err, "record voucher usage")
	}
	return d, nil
}

// find returns a nil voucher without error when the code does not exist so
// that Evaluate reports it with the proper rejection code.
func (s *Service) find(ctx context.Context, repo Repository, code string, lock bool) (*Voucher, error) {
	var (
		v   *Voucher
		err error
	)
	if lock {
		v, err = repo.FindByCodeForUpdate(ctx, code)
	} else {
		v, err = repo.FindByCode(ctx, code)
	}
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "lookup voucher")
	}
	return v, nil
}
