package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"
)

// ListOrders handles GET /api/orders.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.List(r.Context(), customerOf(r.Context()).ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeOrders(e, orders)
	})
}

// GetOrder handles GET /api/orders/{idOrCode}. An order id answers with an
// object; a checkout code answers with every sub-order, as an array when
// the checkout was split.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.Get(r.Context(), customerOf(r.Context()).ID, chi.URLParam(r, "idOrCode"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		if len(orders) == 1 {
			encodeOrder(e, orders[0])
			return
		}
		encodeOrders(e, orders)
	})
}
