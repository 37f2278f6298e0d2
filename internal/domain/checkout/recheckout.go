package checkout

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/xenking/kart-checkout/internal/domain/cart"
	"github.com/xenking/kart-checkout/internal/domain/order"
	"github.com/xenking/kart-checkout/internal/domain/payment"
	"github.com/xenking/kart-checkout/internal/domain/zone"
)

// RecheckoutRequest retries payment of an earlier checkout.
type RecheckoutRequest struct {
	Customer Customer
	Code     string
	// Method switches the payment method when set.
	Method string
	Source payment.Source
}

// Recheckout retries the failed or pending sub-orders of checkout code. The
// code, voucher, credit and stock committed by the original checkout are
// kept; only sale windows are checked again. Changing the payment method
// recomputes shipping.
func (s *Service) Recheckout(ctx context.Context, req RecheckoutRequest) (_ *Result, err error) {
	ctx, span := s.tracer.Start(ctx, "checkout.Recheckout")
	span.SetAttributes(attribute.String("checkout.code", req.Code))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, errorCode(err))
		}
		s.record(ctx, "recheckout", err)
		span.End()
	}()

	all, err := s.owned.OwnedByCode(ctx, req.Customer.ID, req.Code)
	if err != nil {
		return nil, err
	}
	var retry []*order.Order
	for _, o := range all {
		if o.Status.Retryable() {
			retry = append(retry, o)
		}
	}
	if len(retry) == 0 {
		return nil, order.ErrNotRetryable
	}

	method := payment.Method(retry[0].Payment.Method)
	if req.Method != "" {
		if method, err = payment.ParseMethod(req.Method); err != nil {
			return nil, &ValidationError{Fields: methodFieldError()}
		}
	}

	if _, err := s.resolve(ctx, linesOf(retry), false); err != nil {
		return nil, err
	}
	if err := payment.CheckMethod(method, retry[0].IsCrossBorder); err != nil {
		return nil, err
	}

	if string(method) != retry[0].Payment.Method {
		s.reprice(retry, method)
	}
	total := decimal.Zero
	for _, o := range retry {
		total = total.Add(o.Payment.Total)
	}
	if err := payment.CheckTotal(method, total); err != nil {
		return nil, err
	}

	target := order.StatusPending
	if settlesImmediately(method, total) {
		target = order.StatusPlaced
	}
	for _, o := range retry {
		if err := s.move(ctx, o, target); err != nil {
			return nil, err
		}
	}

	prior, err := s.orders.ListByCustomer(ctx, req.Customer.ID)
	if err != nil {
		return nil, errors.Wrap(err, "load order history")
	}

	zctx.From(ctx).Info("Recheckout",
		zap.String("code", req.Code),
		zap.String("method", string(method)),
		zap.Int("orders", len(retry)),
	)
	return s.settle(ctx, req.Code, method, req.Source, retry, prior)
}

// reprice switches orders to method and recomputes their shipping.
func (s *Service) reprice(orders []*order.Order, method payment.Method) {
	weights := make([]decimal.Decimal, len(orders))
	for i, o := range orders {
		weights[i] = o.Payment.Subtotal
	}
	shipping := zone.Apportion(s.shippingFor(method), weights, cart.MoneyPlaces)
	for i, o := range orders {
		o.Payment.Method = string(method)
		o.Payment.Shipping = shipping[i]
		o.Payment.Recompute()
	}
}

func linesOf(orders []*order.Order) []cart.Line {
	var lines []cart.Line
	for _, o := range orders {
		for _, p := range o.Products {
			lines = append(lines, cart.Line{
				ProductID:   p.ProductID,
				NSID:        p.NSID,
				Name:        p.Name,
				Quantity:    p.Quantity,
				SalePrice:   p.SalePrice,
				RetailPrice: p.RetailPrice,
				Country:     p.Country,
			})
		}
	}
	return lines
}
