// Package checkout composes cart, voucher, credit, zone splitting, payment
// and confirmation into the checkout and recheckout protocols.
package checkout

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/kart-checkout/internal/domain/cart"
	"github.com/xenking/kart-checkout/internal/domain/catalog"
	"github.com/xenking/kart-checkout/internal/domain/credit"
	"github.com/xenking/kart-checkout/internal/domain/order"
	"github.com/xenking/kart-checkout/internal/domain/payment"
	"github.com/xenking/kart-checkout/internal/domain/voucher"
	"github.com/xenking/kart-checkout/internal/domain/zone"
)

// Repos are the repositories bound to one checkout transaction.
type Repos struct {
	Vouchers voucher.Repository
	Credits  credit.Ledger
	Catalog  catalog.Repository
	Orders   order.Repository
}

// TxRunner runs fn inside a transaction. Every change made through the
// given Repos is rolled back when fn returns an error.
type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context, r Repos) error) error
}

// CallbackVerifier authenticates redirect gateway callbacks.
type CallbackVerifier interface {
	VerifyCallback(fields map[string]string) error
}

// Config holds the checkout tunables.
type Config struct {
	HomeZone       string
	SplitThreshold decimal.Decimal
	CODShippingFee decimal.Decimal
}

// DefaultConfig returns the production checkout settings.
func DefaultConfig() Config {
	return Config{
		HomeZone:       cart.HomeZone,
		SplitThreshold: zone.DefaultThreshold,
		CODShippingFee: decimal.NewFromInt(25_000),
	}
}

// Deps are the collaborators of a Service.
type Deps struct {
	Carts      cart.Store
	Catalog    catalog.Repository
	Orders     order.Repository
	Vouchers   *voucher.Service
	Tx         TxRunner
	Dispatcher *payment.Dispatcher
	Verifier   CallbackVerifier
	Events     order.Publisher
	Policy     order.Policy

	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
}

// Service runs checkouts.
type Service struct {
	cfg        Config
	carts      cart.Store
	catalog    catalog.Repository
	orders     order.Repository
	owned      *order.Service
	vouchers   *voucher.Service
	tx         TxRunner
	dispatcher *payment.Dispatcher
	verifier   CallbackVerifier
	events     order.Publisher
	policy     order.Policy

	now     func() time.Time
	newCode func() string

	tracer   trace.Tracer
	outcomes metric.Int64Counter
	created  metric.Int64Counter
}

// NewService creates a checkout Service.
func NewService(cfg Config, deps Deps) (*Service, error) {
	tp := deps.TracerProvider
	if tp == nil {
		tp = tracenoop.NewTracerProvider()
	}
	mp := deps.MeterProvider
	if mp == nil {
		mp = metricnoop.NewMeterProvider()
	}
	meter := mp.Meter("checkout")

	outcomes, err := meter.Int64Counter("checkout.requests",
		metric.WithDescription("Checkout requests by operation and outcome"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create requests counter")
	}
	created, err := meter.Int64Counter("checkout.orders.created",
		metric.WithDescription("Sub-orders created by checkout"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create orders counter")
	}

	return &Service{
		cfg:        cfg,
		carts:      deps.Carts,
		catalog:    deps.Catalog,
		orders:     deps.Orders,
		owned:      order.NewService(deps.Orders),
		vouchers:   deps.Vouchers,
		tx:         deps.Tx,
		dispatcher: deps.Dispatcher,
		verifier:   deps.Verifier,
		events:     deps.Events,
		policy:     deps.Policy,
		now:        time.Now,
		newCode:    newCode,
		tracer:     tp.Tracer("checkout"),
		outcomes:   outcomes,
		created:    created,
	}, nil
}

func newCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:10])
}

// Customer identifies the account checking out.
type Customer struct {
	ID    string
	Email string
}

// Result is the outcome of a checkout or recheckout. PaymentError is set
// when the gateway rejected the charge; the orders are then failed and can
// be retried with Recheckout.
type Result struct {
	Code         string
	Orders       []*order.Order
	Redirect     *payment.Redirect
	PaymentError *payment.GatewayError
	// Holds maps a sub-order code to the reasons it awaits manual
	// confirmation.
	Holds map[string][]order.HoldReason
}

func (s *Service) record(ctx context.Context, op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = errorCode(err)
	}
	s.outcomes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("outcome", outcome),
	))
}

func (s *Service) shippingFor(m payment.Method) decimal.Decimal {
	if m == payment.MethodCOD {
		return s.cfg.CODShippingFee
	}
	return decimal.Zero
}

// settle charges the pending orders in one gateway call, applies the outcome
// to each of them and runs the confirmation policy on placed ones.
func (s *Service) settle(ctx context.Context, code string, m payment.Method, src payment.Source, orders, prior []*order.Order) (*Result, error) {
	res := &Result{Code: code, Orders: orders, Holds: map[string][]order.HoldReason{}}

	var (
		pending []*order.Order
		amount  = decimal.Zero
	)
	for _, o := range orders {
		if o.Status == order.StatusPending {
			pending = append(pending, o)
			amount = amount.Add(o.Payment.Total)
		}
	}

	if len(pending) > 0 {
		out := s.dispatcher.Dispatch(ctx, payment.ChargeRequest{
			Method:   m,
			OrderRef: code,
			Amount:   amount,
			Source:   src,
		})
		res.Redirect = out.Redirect
		res.PaymentError = out.Error
		for _, o := range pending {
			o.PaymentReference = out.Reference
			if err := s.move(ctx, o, out.Status); err != nil {
				return nil, err
			}
		}
	}

	if err := s.confirm(ctx, orders, prior, res); err != nil {
		return nil, err
	}
	return res, nil
}

// confirm applies the confirmation policy to every placed order.
func (s *Service) confirm(ctx context.Context, orders, prior []*order.Order, res *Result) error {
	lg := zctx.From(ctx)
	for _, o := range orders {
		d := s.policy.Decide(o, prior)
		if len(d.Holds) > 0 && d.Status == order.StatusPlaced {
			res.Holds[o.SubCode] = d.Holds
			lg.Info("Order held for manual confirmation",
				zap.String("sub_code", o.SubCode),
				zap.Any("holds", d.Holds),
			)
		}
		if d.Status == o.Status {
			continue
		}
		if d.RegularCustomer {
			lg.Info("Regular customer override", zap.String("sub_code", o.SubCode))
		}
		if err := s.move(ctx, o, d.Status); err != nil {
			return err
		}
	}
	return nil
}

// move transitions o, persists it and announces the change.
func (s *Service) move(ctx context.Context, o *order.Order, to order.Status) error {
	prev := o.Status
	if prev != to {
		if err := o.Transition(to); err != nil {
			return err
		}
	}
	o.UpdatedAt = s.now()
	if err := s.orders.Update(ctx, o); err != nil {
		return errors.Wrapf(err, "update order %s", o.SubCode)
	}
	if prev != to {
		s.publish(ctx, order.Event{Type: order.EventStatusChanged, At: o.UpdatedAt, Previous: prev, Order: o})
	}
	return nil
}

// publish delivers events on a best effort basis; the orders are already
// committed when it runs.
func (s *Service) publish(ctx context.Context, events ...order.Event) {
	if s.events == nil || len(events) == 0 {
		return
	}
	if err := s.events.Publish(ctx, events...); err != nil {
		zctx.From(ctx).Warn("Publish order events", zap.Int("count", len(events)), zap.Error(err))
	}
}

// historyOf summarizes the completed checkouts among prior orders.
func historyOf(prior []*order.Order) voucher.History {
	var (
		h     voucher.History
		codes = map[string]struct{}{}
	)
	for _, o := range prior {
		if !o.Status.Completed() {
			continue
		}
		if _, ok := codes[o.Code]; !ok {
			codes[o.Code] = struct{}{}
			h.CompletedOrders++
		}
		if o.VoucherCode != "" {
			h.UsedCodes = append(h.UsedCodes, o.VoucherCode)
		}
		if o.VoucherCampaign != "" {
			h.UsedCampaigns = append(h.UsedCampaigns, o.VoucherCampaign)
		}
	}
	return h
}
