package checkout

import (
	"context"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/xenking/kart-checkout/internal/domain/address"
	"github.com/xenking/kart-checkout/internal/domain/cart"
	"github.com/xenking/kart-checkout/internal/domain/catalog"
	"github.com/xenking/kart-checkout/internal/domain/credit"
	"github.com/xenking/kart-checkout/internal/domain/order"
	"github.com/xenking/kart-checkout/internal/domain/payment"
	"github.com/xenking/kart-checkout/internal/domain/voucher"
	"github.com/xenking/kart-checkout/internal/domain/zone"
)

// Request is a new checkout.
type Request struct {
	Customer Customer
	// Lines is the cart as the client sees it. It must match the server-held
	// cart exactly.
	Lines       []cart.Line
	Shipping    address.Address
	Billing     address.Address
	Method      string
	VoucherCode string
	Credit      decimal.Decimal
	Source      payment.Source
}

// Checkout turns the customer's cart into one or more orders. Validation,
// cart integrity, availability, voucher, credit and payment method errors
// leave no side effect behind. Gateway failures do not return an error: the
// orders persist as failed and Result.PaymentError describes the failure.
func (s *Service) Checkout(ctx context.Context, req Request) (_ *Result, err error) {
	ctx, span := s.tracer.Start(ctx, "checkout.Checkout")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, errorCode(err))
		}
		s.record(ctx, "checkout", err)
		span.End()
	}()

	method, err := validate(req)
	if err != nil {
		return nil, err
	}

	held, err := s.carts.Get(ctx, req.Customer.ID)
	if err != nil {
		if errors.Is(err, cart.ErrNotFound) {
			return nil, &cart.IntegrityError{Code: cart.CodeMismatch}
		}
		return nil, errors.Wrap(err, "load cart")
	}
	if err := cart.Reconcile(req.Lines, held); err != nil {
		return nil, err
	}

	lines, err := s.resolve(ctx, held.Lines(), true)
	if err != nil {
		return nil, err
	}
	snap, err := cart.New(lines)
	if err != nil {
		return nil, errors.Wrap(err, "snapshot cart")
	}

	crossBorder := snap.IsCrossBorder(s.cfg.HomeZone)
	if err := payment.CheckMethod(method, crossBorder); err != nil {
		return nil, err
	}

	code := s.newCode()
	parts := zone.Split(snap.Lines(), code, s.cfg.HomeZone, s.cfg.SplitThreshold)
	shipping := s.shippingFor(method)
	span.SetAttributes(
		attribute.String("checkout.code", code),
		attribute.String("checkout.method", string(method)),
		attribute.Int("checkout.partitions", len(parts)),
	)

	var (
		orders []*order.Order
		prior  []*order.Order
	)
	err = s.tx.InTx(ctx, func(ctx context.Context, r Repos) error {
		var err error
		prior, err = r.Orders.ListByCustomer(ctx, req.Customer.ID)
		if err != nil {
			return errors.Wrap(err, "load order history")
		}

		discount := voucher.Discount{Amount: decimal.Zero}
		if req.VoucherCode != "" {
			discount, err = s.vouchers.Redeem(ctx, r.Vouchers, voucher.RedeemRequest{
				Code:       req.VoucherCode,
				CustomerID: req.Customer.ID,
				OrderCode:  code,
				Lines:      snap.Lines(),
				History:    historyOf(prior),
				Payment:    voucher.Payment{Card: method.Card(), BIN: req.Source.BIN},
			})
			if err != nil {
				return err
			}
		}

		payable := snap.Subtotal().Add(shipping).Sub(discount.Amount)
		applied := decimal.Zero
		if req.Credit.IsPositive() {
			balance, err := r.Credits.BalanceForUpdate(ctx, req.Customer.ID)
			if err != nil {
				return errors.Wrap(err, "lock credit balance")
			}
			if applied, err = credit.Allocate(req.Credit, balance, payable); err != nil {
				return err
			}
			if err := r.Credits.Append(ctx, credit.Entry{
				AccountID: req.Customer.ID,
				Amount:    credit.Signed(applied),
				OrderCode: code,
				Reason:    "checkout",
			}); err != nil {
				return errors.Wrap(err, "debit credit")
			}
		}

		total := payable.Sub(applied)
		if err := payment.CheckTotal(method, total); err != nil {
			return err
		}

		for _, l := range snap.Lines() {
			if err := r.Catalog.DecrementStock(ctx, l.ProductID, l.Quantity); err != nil {
				return err
			}
		}

		orders = s.build(buildInput{
			code:        code,
			customerID:  req.Customer.ID,
			method:      method,
			parts:       parts,
			crossBorder: crossBorder,
			shipping:    shipping,
			discount:    discount,
			credit:      applied,
			shippingTo:  req.Shipping,
			billingTo:   req.Billing,
			immediate:   settlesImmediately(method, total),
		})
		if err := r.Orders.CreateBatch(ctx, orders); err != nil {
			return errors.Wrap(err, "create orders")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	lg := zctx.From(ctx)
	lg.Info("Checkout committed",
		zap.String("code", code),
		zap.String("customer_id", req.Customer.ID),
		zap.Int("orders", len(orders)),
	)
	s.created.Add(ctx, int64(len(orders)))

	if err := s.carts.Clear(ctx, req.Customer.ID); err != nil {
		lg.Warn("Clear cart after checkout", zap.String("code", code), zap.Error(err))
	}

	events := make([]order.Event, len(orders))
	for i, o := range orders {
		events[i] = order.Event{Type: order.EventCreated, At: o.CreatedAt, Order: o}
	}
	s.publish(ctx, events...)

	return s.settle(ctx, code, method, req.Source, orders, prior)
}

func validate(req Request) (payment.Method, error) {
	fields := address.Validate(req.Shipping, req.Billing)

	method, err := payment.ParseMethod(req.Method)
	if err != nil {
		fields = append(fields, methodFieldError()...)
	}
	if len(req.Lines) == 0 {
		fields = append(fields, address.FieldError{Field: "cart", Message: "cart is required"})
	}
	seen := make(map[string]struct{}, len(req.Lines))
	for i, l := range req.Lines {
		if l.ProductID == "" {
			fields = append(fields, address.FieldError{Field: "cart[" + strconv.Itoa(i) + "].productId", Message: "productId is required"})
		}
		if l.Quantity < 1 {
			fields = append(fields, address.FieldError{Field: "cart[" + strconv.Itoa(i) + "].quantity", Message: "quantity must be at least 1"})
		}
		seen[l.ProductID] = struct{}{}
	}
	if len(seen) > cart.MaxDistinctProducts {
		fields = append(fields, address.FieldError{Field: "cart", Message: "cart holds more than 8 distinct products"})
	}
	if req.Credit.IsNegative() {
		fields = append(fields, address.FieldError{Field: "credit", Message: "credit must not be negative"})
	}
	if len(fields) > 0 {
		return "", &ValidationError{Fields: fields}
	}
	return method, nil
}

// resolve reprices lines from the current catalog and, when checkStock is
// set, verifies stock. Sale windows are always checked.
func (s *Service) resolve(ctx context.Context, lines []cart.Line, checkStock bool) ([]cart.Line, error) {
	ids := make([]string, len(lines))
	for i, l := range lines {
		ids[i] = l.ProductID
	}
	products, err := s.catalog.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	byID := make(map[string]catalog.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	now := s.now()
	out := make([]cart.Line, len(lines))
	for i, l := range lines {
		p, ok := byID[l.ProductID]
		if !ok {
			return nil, &cart.IntegrityError{Code: cart.CodeMismatchUnknown, ProductID: l.ProductID}
		}
		if checkStock {
			if err := catalog.CheckAvailability(p, l.Quantity, now); err != nil {
				return nil, err
			}
		} else if p.SaleEndsAt != nil && now.After(*p.SaleEndsAt) {
			return nil, &catalog.AvailabilityError{Code: catalog.CodeSaleEnded, ProductID: p.ID, Available: p.Stock}
		}
		if !p.SalePrice.Equal(l.SalePrice) {
			return nil, &cart.IntegrityError{Code: cart.CodePriceMismatch, ProductID: l.ProductID}
		}
		out[i] = cart.LineFor(p, l.Quantity)
	}
	return out, nil
}

type buildInput struct {
	code        string
	customerID  string
	method      payment.Method
	parts       []zone.Partition
	crossBorder bool
	shipping    decimal.Decimal
	discount    voucher.Discount
	credit      decimal.Decimal
	shippingTo  address.Address
	billingTo   address.Address
	immediate   bool
}

// build creates one order per partition. Shipping and voucher are
// apportioned by partition subtotal, the voucher never above a subtotal.
// Credit is apportioned by what each partition still owes, so no order
// total drops below zero.
func (s *Service) build(in buildInput) []*order.Order {
	weights := zone.Subtotals(in.parts)
	shipping := zone.Apportion(in.shipping, weights, cart.MoneyPlaces)
	discounts := zone.ApportionWithin(in.discount.Amount, weights, cart.MoneyPlaces)
	payable := make([]decimal.Decimal, len(weights))
	for i, w := range weights {
		payable[i] = w.Add(shipping[i]).Sub(discounts[i])
	}
	credits := zone.ApportionWithin(in.credit, payable, cart.MoneyPlaces)

	billing := in.billingTo
	if billing.IsZero() {
		billing = in.shippingTo
	}

	now := s.now()
	orders := make([]*order.Order, len(in.parts))
	for i, p := range in.parts {
		o := &order.Order{
			ID:              uuid.NewString(),
			Code:            in.code,
			SubCode:         p.SubCode,
			Zone:            p.Zone,
			Status:          order.StatusPending,
			CustomerID:      in.customerID,
			IsCrossBorder:   in.crossBorder,
			ShippingAddress: in.shippingTo,
			BillingAddress:  billing,
			VoucherCode:     in.discount.Code,
			VoucherCampaign: in.discount.CampaignID,
			CreatedAt:       now,
			UpdatedAt:       now,
			Payment: order.PaymentSummary{
				Method:        string(in.method),
				Subtotal:      p.Subtotal,
				Shipping:      shipping[i],
				VoucherAmount: discounts[i],
				AccountCredit: credit.Signed(credits[i]),
			},
		}
		o.Payment.Recompute()
		for _, l := range p.Lines {
			o.Products = append(o.Products, order.Product{
				ProductID:   l.ProductID,
				NSID:        l.NSID,
				Name:        l.Name,
				Quantity:    l.Quantity,
				SalePrice:   l.SalePrice,
				RetailPrice: l.RetailPrice,
				Country:     l.Country,
			})
		}
		if in.immediate {
			o.Status = order.StatusPlaced
		}
		orders[i] = o
	}
	return orders
}

func settlesImmediately(m payment.Method, total decimal.Decimal) bool {
	return m == payment.MethodCOD || m == payment.MethodFree || total.IsZero()
}
