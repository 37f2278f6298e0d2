// Package handler serves the checkout HTTP API.
package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/kart-checkout/internal/domain/account"
	"github.com/xenking/kart-checkout/internal/domain/cart"
	"github.com/xenking/kart-checkout/internal/domain/checkout"
	"github.com/xenking/kart-checkout/internal/domain/order"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// CheckoutService runs checkouts.
type CheckoutService interface {
	Checkout(ctx context.Context, req checkout.Request) (*checkout.Result, error)
	Recheckout(ctx context.Context, req checkout.RecheckoutRequest) (*checkout.Result, error)
	ApplyVoucher(ctx context.Context, req checkout.ApplyRequest) (*checkout.ApplyResult, error)
	HandleCallback(ctx context.Context, cb checkout.Callback) (*checkout.Result, error)
}

// OrderService reads a customer's orders.
type OrderService interface {
	List(ctx context.Context, customerID string) ([]*order.Order, error)
	Get(ctx context.Context, customerID, idOrCode string) ([]*order.Order, error)
}

// CartService maintains the server-held cart.
type CartService interface {
	Get(ctx context.Context, accountID string) ([]cart.Line, error)
	SetItem(ctx context.Context, accountID, productID string, qty int) ([]cart.Line, error)
	RemoveItem(ctx context.Context, accountID, productID string) ([]cart.Line, error)
}

// Authenticator resolves session tokens.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*account.Account, error)
}

// Handler holds the API endpoints.
type Handler struct {
	checkout CheckoutService
	orders   OrderService
	carts    CartService
	auth     Authenticator
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(checkout CheckoutService, orders OrderService, carts CartService, auth Authenticator) *Handler {
	return &Handler{
		checkout: checkout,
		orders:   orders,
		carts:    carts,
		auth:     auth,
	}
}

// Mount registers the API routes under /api. Everything but the gateway
// callback requires a session.
func (h *Handler) Mount(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/payments/callback", h.PaymentCallback)

		r.Group(func(r chi.Router) {
			r.Use(h.Authenticate)

			r.Post("/checkout", h.Checkout)
			r.Post("/checkout/order/{code}", h.Recheckout)
			r.Post("/vouchers/apply", h.ApplyVoucher)

			r.Get("/orders", h.ListOrders)
			r.Get("/orders/{idOrCode}", h.GetOrder)

			r.Get("/cart", h.GetCart)
			r.Post("/cart/items", h.SetCartItem)
			r.Delete("/cart/items/{productId}", h.RemoveCartItem)
		})
	})
}

// Router returns a chi router serving the API.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	h.Mount(r)
	return r
}
