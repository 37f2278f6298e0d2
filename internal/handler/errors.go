package handler

import (
	"net/http"
	"strconv"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/kart-checkout/internal/domain/account"
	"github.com/xenking/kart-checkout/internal/domain/address"
	"github.com/xenking/kart-checkout/internal/domain/cart"
	"github.com/xenking/kart-checkout/internal/domain/catalog"
	"github.com/xenking/kart-checkout/internal/domain/checkout"
	"github.com/xenking/kart-checkout/internal/domain/credit"
	"github.com/xenking/kart-checkout/internal/domain/order"
	"github.com/xenking/kart-checkout/internal/domain/payment"
	"github.com/xenking/kart-checkout/internal/domain/voucher"
)

// Envelope codes not carried by a domain error.
const (
	CodeInvalidRequest  = "INVALID_REQUEST"
	CodeValidation      = "VALIDATION_ERROR"
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeOrderNotFound   = "ORDER_NOT_FOUND"
	CodeNotRetryable    = "ORDER_NOT_RETRYABLE"
	CodeProductNotFound = "PRODUCT_NOT_FOUND"
	CodePaymentFailed   = "PAYMENT_FAILED"
	CodeInvalidCallback = "INVALID_CALLBACK"
	CodeInternal        = "INTERNAL"
)

// apiError is the error envelope {code, message, data?, fields?, gateway?}.
type apiError struct {
	status  int
	code    string
	message string
	data    func(e *jx.Encoder)
	fields  []address.FieldError
	gateway *payment.GatewayError
}

func (a *apiError) encode(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("code")
	e.Str(a.code)
	e.FieldStart("message")
	e.Str(a.message)
	if a.data != nil {
		e.FieldStart("data")
		a.data(e)
	}
	if len(a.fields) > 0 {
		e.FieldStart("fields")
		e.ArrStart()
		for _, f := range a.fields {
			e.ObjStart()
			e.FieldStart("field")
			e.Str(f.Field)
			e.FieldStart("message")
			e.Str(f.Message)
			e.ObjEnd()
		}
		e.ArrEnd()
	}
	if a.gateway != nil {
		e.FieldStart("gateway")
		encodeGatewayError(e, a.gateway)
	}
	e.ObjEnd()
}

func stringMap(m map[string]string) func(e *jx.Encoder) {
	return func(e *jx.Encoder) {
		e.ObjStart()
		for k, v := range m {
			e.FieldStart(k)
			e.Str(v)
		}
		e.ObjEnd()
	}
}

// toAPIError maps a service error to its envelope.
func toAPIError(err error) *apiError {
	var (
		vErr    *checkout.ValidationError
		iErr    *cart.IntegrityError
		lineErr *cart.InvalidLineError
		aErr    *catalog.AvailabilityError
		rErr    *voucher.RejectionError
		cErr    *credit.Error
		pErr    *payment.PolicyError
	)
	switch {
	case errors.As(err, &vErr):
		return &apiError{status: http.StatusBadRequest, code: CodeValidation, message: "request validation failed", fields: vErr.Fields}
	case errors.As(err, &iErr):
		a := &apiError{status: http.StatusBadRequest, code: iErr.Code, message: "cart does not match the server cart"}
		if iErr.ProductID != "" {
			a.data = stringMap(map[string]string{"productId": iErr.ProductID})
		}
		return a
	case errors.As(err, &lineErr):
		return &apiError{status: http.StatusBadRequest, code: CodeValidation, message: lineErr.Error()}
	case errors.Is(err, cart.ErrEmpty):
		return &apiError{status: http.StatusBadRequest, code: "CART_EMPTY", message: "cart is empty"}
	case errors.Is(err, cart.ErrTooManyProducts):
		return &apiError{status: http.StatusBadRequest, code: "TOO_MANY_PRODUCTS", message: "cart holds more than 8 distinct products"}
	case errors.As(err, &aErr):
		return &apiError{
			status:  http.StatusConflict,
			code:    aErr.Code,
			message: "product is not available",
			data: func(e *jx.Encoder) {
				e.ObjStart()
				e.FieldStart("productId")
				e.Str(aErr.ProductID)
				e.FieldStart("available")
				e.Int(aErr.Available)
				e.ObjEnd()
			},
		}
	case errors.Is(err, catalog.ErrNotFound):
		return &apiError{status: http.StatusNotFound, code: CodeProductNotFound, message: "product not found"}
	case errors.As(err, &rErr):
		a := &apiError{status: http.StatusUnprocessableEntity, code: rErr.Code, message: "voucher cannot be applied"}
		if len(rErr.Data) > 0 {
			a.data = stringMap(rErr.Data)
		}
		return a
	case errors.As(err, &cErr):
		return &apiError{
			status:  http.StatusUnprocessableEntity,
			code:    cErr.Code,
			message: "credit cannot be applied",
			data: stringMap(map[string]string{
				"requested": cErr.Requested.String(),
				"limit":     cErr.Limit.String(),
			}),
		}
	case errors.As(err, &pErr):
		return &apiError{status: http.StatusUnprocessableEntity, code: pErr.Code, message: pErr.Message}
	case errors.Is(err, order.ErrNotFound):
		return &apiError{status: http.StatusNotFound, code: CodeOrderNotFound, message: "order not found"}
	case errors.Is(err, order.ErrNotRetryable):
		return &apiError{status: http.StatusConflict, code: CodeNotRetryable, message: "order is not awaiting payment"}
	case errors.Is(err, checkout.ErrInvalidCallback):
		return &apiError{status: http.StatusBadRequest, code: CodeInvalidCallback, message: "invalid payment callback"}
	case errors.Is(err, account.ErrUnauthorized):
		return &apiError{status: http.StatusUnauthorized, code: CodeUnauthorized, message: "missing or invalid session"}
	default:
		return &apiError{status: http.StatusInternalServerError, code: CodeInternal, message: "internal error"}
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	a := toAPIError(err)
	if a.status >= http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	writeJSON(w, a.status, a.encode)
}

func writeBadRequest(w http.ResponseWriter, err error) {
	a := &apiError{status: http.StatusBadRequest, code: CodeInvalidRequest, message: err.Error()}
	writeJSON(w, a.status, a.encode)
}

func writeJSON(w http.ResponseWriter, status int, encode func(e *jx.Encoder)) {
	var e jx.Encoder
	encode(&e)
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(len(e.Bytes())))
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}
