package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

// GetCart handles GET /api/cart.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	lines, err := h.carts.Get(r.Context(), customerOf(r.Context()).ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, encodeCart(lines))
}

// SetCartItem handles POST /api/cart/items. The quantity replaces any
// quantity already held for the product.
func (h *Handler) SetCartItem(w http.ResponseWriter, r *http.Request) {
	var (
		productID string
		quantity  int
	)
	err := decodeBody(w, r, false, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "productId":
			productID, err = d.Str()
		case "quantity":
			quantity, err = d.Int()
		default:
			return d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, key)
		}
		return nil
	})
	if err == nil && productID == "" {
		err = errors.New("productId is required")
	}
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	lines, err := h.carts.SetItem(r.Context(), customerOf(r.Context()).ID, productID, quantity)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, encodeCart(lines))
}

// RemoveCartItem handles DELETE /api/cart/items/{productId}.
func (h *Handler) RemoveCartItem(w http.ResponseWriter, r *http.Request) {
	lines, err := h.carts.RemoveItem(r.Context(), customerOf(r.Context()).ID, chi.URLParam(r, "productId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, encodeCart(lines))
}
