package checkout

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-checkout/internal/domain/cart"
	"github.com/xenking/kart-checkout/internal/domain/payment"
	"github.com/xenking/kart-checkout/internal/domain/voucher"
)

// ApplyRequest previews a voucher against the customer's held cart.
type ApplyRequest struct {
	Customer Customer
	Code     string
	// Method and BIN are optional. Without them card range restrictions are
	// not checked.
	Method string
	BIN    string
}

// ApplyResult is the previewed discount.
type ApplyResult struct {
	Code       string
	CampaignID string
	Subtotal   decimal.Decimal
	Discount   decimal.Decimal
	Total      decimal.Decimal
}

// ApplyVoucher evaluates a voucher without redeeming it.
func (s *Service) ApplyVoucher(ctx context.Context, req ApplyRequest) (_ *ApplyResult, err error) {
	ctx, span := s.tracer.Start(ctx, "checkout.ApplyVoucher")
	defer func() {
		s.record(ctx, "apply_voucher", err)
		span.End()
	}()

	held, err := s.carts.Get(ctx, req.Customer.ID)
	if err != nil {
		if errors.Is(err, cart.ErrNotFound) {
			return nil, cart.ErrEmpty
		}
		return nil, errors.Wrap(err, "load cart")
	}
	if held.Len() == 0 {
		return nil, cart.ErrEmpty
	}

	prior, err := s.orders.ListByCustomer(ctx, req.Customer.ID)
	if err != nil {
		return nil, errors.Wrap(err, "load order history")
	}

	var pay *voucher.Payment
	if req.Method != "" {
		m, err := payment.ParseMethod(req.Method)
		if err != nil {
			return nil, &ValidationError{Fields: methodFieldError()}
		}
		pay = &voucher.Payment{Card: m.Card(), BIN: req.BIN}
	}

	d, _, err := s.vouchers.Inspect(ctx, voucher.InspectRequest{
		Code:       req.Code,
		CustomerID: req.Customer.ID,
		Lines:      held.Lines(),
		History:    historyOf(prior),
		Payment:    pay,
	})
	if err != nil {
		return nil, err
	}

	subtotal := held.Subtotal()
	return &ApplyResult{
		Code:       d.Code,
		CampaignID: d.CampaignID,
		Subtotal:   subtotal,
		Discount:   d.Amount,
		Total:      subtotal.Sub(d.Amount),
	}, nil
}
