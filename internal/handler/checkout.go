package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/kart-checkout/internal/domain/checkout"
	"github.com/xenking/kart-checkout/internal/gateway"
)

// Checkout handles POST /api/checkout.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	req, err := decodeCheckout(w, r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	req.Customer = customerOf(r.Context())

	res, err := h.checkout.Checkout(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeResult(w, r, http.StatusCreated, res)
}

// Recheckout handles POST /api/checkout/order/{code}.
func (h *Handler) Recheckout(w http.ResponseWriter, r *http.Request) {
	req := checkout.RecheckoutRequest{
		Customer: customerOf(r.Context()),
		Code:     chi.URLParam(r, "code"),
	}
	err := decodeBody(w, r, true, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "method":
			req.Method, err = decodeOptStr(d)
		case "paymentSource":
			req.Source, err = decodeSource(d)
		default:
			return d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, key)
		}
		return nil
	})
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	res, err := h.checkout.Recheckout(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeResult(w, r, http.StatusOK, res)
}

// writeResult answers with the checkout result, or with a 402 envelope
// carrying the failed orders when the gateway rejected the charge.
func writeResult(w http.ResponseWriter, r *http.Request, status int, res *checkout.Result) {
	if res.PaymentError == nil {
		writeJSON(w, status, encodeResult(res))
		return
	}
	zctx.From(r.Context()).Info("Payment failed",
		zap.String("code", res.Code),
		zap.String("gateway_code", res.PaymentError.Code),
	)
	a := &apiError{
		status:  http.StatusPaymentRequired,
		code:    CodePaymentFailed,
		message: res.PaymentError.Message,
		gateway: res.PaymentError,
		data: func(e *jx.Encoder) {
			e.ObjStart()
			e.FieldStart("code")
			e.Str(res.Code)
			e.FieldStart("orders")
			encodeOrders(e, res.Orders)
			e.ObjEnd()
		},
	}
	writeJSON(w, a.status, a.encode)
}

// ApplyVoucher handles POST /api/vouchers/apply.
func (h *Handler) ApplyVoucher(w http.ResponseWriter, r *http.Request) {
	req := checkout.ApplyRequest{Customer: customerOf(r.Context())}
	err := decodeBody(w, r, false, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "code":
			req.Code, err = d.Str()
		case "method":
			req.Method, err = decodeOptStr(d)
		case "bin":
			req.BIN, err = decodeOptStr(d)
		default:
			return d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, key)
		}
		return nil
	})
	if err == nil && req.Code == "" {
		err = errors.New("code is required")
	}
	if err != nil {
		writeBadRequest(w, err)
		return
	}

	res, err := h.checkout.ApplyVoucher(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("code")
		e.Str(res.Code)
		if res.CampaignID != "" {
			e.FieldStart("campaignId")
			e.Str(res.CampaignID)
		}
		encodeMoney(e, "subtotal", res.Subtotal)
		encodeMoney(e, "discount", res.Discount)
		encodeMoney(e, "total", res.Total)
		e.ObjEnd()
	})
}

// PaymentCallback handles POST /api/payments/callback, the form posted by
// the redirect gateway once the customer finished paying.
func (h *Handler) PaymentCallback(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		writeBadRequest(w, errors.Wrap(err, "parse form"))
		return
	}
	fields := make(map[string]string, len(r.PostForm))
	for k := range r.PostForm {
		fields[k] = r.PostForm.Get(k)
	}
	cb := checkout.Callback{
		OrderRef:  fields[gateway.CallbackRef],
		Code:      fields[gateway.CallbackCode],
		Reference: fields[gateway.CallbackPayRef],
		Fields:    fields,
	}
	if cb.OrderRef == "" {
		writeBadRequest(w, errors.New("missing order reference"))
		return
	}

	if _, err := h.checkout.HandleCallback(r.Context(), cb); err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
