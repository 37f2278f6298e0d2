package checkout

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/kart-checkout/internal/domain/order"
	"github.com/xenking/kart-checkout/internal/domain/payment"
)

// ErrInvalidCallback is returned for callbacks failing signature checks.
var ErrInvalidCallback = errors.New("invalid payment callback")

// Callback is a settlement notification of the redirect gateway.
type Callback struct {
	OrderRef  string
	Code      string
	Reference string
	// Fields are the raw signed fields as posted by the gateway.
	Fields map[string]string
}

// HandleCallback settles the pending orders of a redirect checkout. Orders
// that already left pending are left untouched, so repeated deliveries are
// harmless.
func (s *Service) HandleCallback(ctx context.Context, cb Callback) (_ *Result, err error) {
	ctx, span := s.tracer.Start(ctx, "checkout.HandleCallback")
	defer func() {
		s.record(ctx, "callback", err)
		span.End()
	}()

	if s.verifier != nil {
		if err := s.verifier.VerifyCallback(cb.Fields); err != nil {
			zctx.From(ctx).Warn("Reject payment callback", zap.String("order_ref", cb.OrderRef), zap.Error(err))
			return nil, errors.Wrap(ErrInvalidCallback, err.Error())
		}
	}

	orders, err := s.orders.ListByCode(ctx, cb.OrderRef)
	if err != nil {
		return nil, errors.Wrap(err, "list orders by code")
	}
	if len(orders) == 0 {
		return nil, order.ErrNotFound
	}

	res := &Result{Code: cb.OrderRef, Orders: orders, Holds: map[string][]order.HoldReason{}}
	to, changed := payment.CallbackStatus(cb.Code)
	if !changed {
		zctx.From(ctx).Info("Payment callback leaves orders pending",
			zap.String("order_ref", cb.OrderRef),
			zap.String("code", cb.Code),
		)
		return res, nil
	}

	var settled []*order.Order
	for _, o := range orders {
		if o.Status != order.StatusPending {
			continue
		}
		if cb.Reference != "" {
			o.PaymentReference = cb.Reference
		}
		if err := s.move(ctx, o, to); err != nil {
			return nil, err
		}
		settled = append(settled, o)
	}
	if len(settled) == 0 || to != order.StatusPlaced {
		return res, nil
	}

	prior, err := s.orders.ListByCustomer(ctx, settled[0].CustomerID)
	if err != nil {
		return nil, errors.Wrap(err, "load order history")
	}
	if err := s.confirm(ctx, settled, prior, res); err != nil {
		return nil, err
	}
	return res, nil
}
