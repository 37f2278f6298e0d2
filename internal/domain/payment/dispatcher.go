package payment

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/kart-checkout/internal/domain/order"
)

// Provider error codes normalized by the dispatcher.
const (
	ErrTypeCard           = "card_error"
	ErrTypeInvalidRequest = "invalid_request_error"
	ErrTypeAPI            = "api_error"

	CodeTimeout     = "gateway_timeout"
	CodeUnavailable = "gateway_unavailable"
)

var customerMessages = map[string]string{
	"card_declined":      "Your card was declined.",
	"expired_card":       "Your card has expired.",
	"incorrect_cvc":      "Your card's security code is incorrect.",
	"incorrect_number":   "Your card number is incorrect.",
	"insufficient_funds": "Your card has insufficient funds.",
	"processing_error":   "An error occurred while processing your card. Try again.",
	"parameter_missing":  "Payment information is incomplete.",
	"invalid_request":    "Payment information is invalid.",
	"unsupported_brand":  "This card brand is not supported.",
	CodeTimeout:          "The payment provider did not respond in time. Please retry.",
	CodeUnavailable:      "The payment provider is unavailable. Please retry.",
}

// Outcome is the order level result of dispatching a payment.
type Outcome struct {
	Status    order.Status
	Reference string
	Redirect  *Redirect
	Error     *GatewayError
}

// Dispatcher routes a charge to the settlement flow of its method.
type Dispatcher struct {
	redirect Gateway
	token    Gateway
	timeout  time.Duration
}

// NewDispatcher creates a Dispatcher. redirect serves CC and token serves
// STRIPE; each gateway call is bounded by timeout.
func NewDispatcher(redirect, token Gateway, timeout time.Duration) *Dispatcher {
	return &Dispatcher{redirect: redirect, token: token, timeout: timeout}
}

// Dispatch settles req. COD, FREE and zero amounts settle immediately
// without a gateway call. CC leaves the orders pending behind a redirect.
// STRIPE settles synchronously. Gateway failures and timeouts never return
// an error; they produce a failed outcome carrying the error envelope.
func (d *Dispatcher) Dispatch(ctx context.Context, req ChargeRequest) Outcome {
	if req.Method == MethodCOD || req.Method == MethodFree || req.Amount.IsZero() {
		return Outcome{Status: order.StatusPlaced}
	}

	gw := d.token
	if req.Method == MethodCC {
		gw = d.redirect
	}

	callCtx := ctx
	if d.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	res, err := gw.Charge(callCtx, req)
	if err != nil {
		gErr := transportError(err)
		zctx.From(ctx).Warn("Gateway call failed",
			zap.String("method", string(req.Method)),
			zap.String("order_ref", req.OrderRef),
			zap.Error(err),
		)
		return Outcome{Status: order.StatusFailed, Error: gErr}
	}

	switch res.Status {
	case StatusSettled:
		return Outcome{Status: order.StatusPlaced, Reference: res.Reference}
	case StatusPending:
		return Outcome{Status: order.StatusPending, Reference: res.Reference, Redirect: res.Redirect}
	default:
		return Outcome{Status: order.StatusFailed, Reference: res.Reference, Error: Normalize(res.Error)}
	}
}

func transportError(err error) *GatewayError {
	code := CodeUnavailable
	if errors.Is(err, context.DeadlineExceeded) {
		code = CodeTimeout
	}
	return &GatewayError{
		Type:      ErrTypeAPI,
		Code:      code,
		Message:   customerMessages[code],
		Retryable: true,
	}
}

// Normalize maps a provider error onto the uniform envelope. Invalid
// request errors are the only ones a retry cannot fix.
func Normalize(e *GatewayError) *GatewayError {
	if e == nil {
		return &GatewayError{Type: ErrTypeAPI, Code: "processing_error", Message: customerMessages["processing_error"], Retryable: true}
	}
	out := *e
	switch out.Type {
	case ErrTypeCard, ErrTypeInvalidRequest:
	default:
		out.Type = ErrTypeAPI
	}
	if msg, ok := customerMessages[out.Code]; ok {
		out.Message = msg
	}
	out.Retryable = out.Type != ErrTypeInvalidRequest
	return &out
}

// Callback response codes of the redirect gateway.
const (
	CallbackSuccess          = "0"
	CallbackFailure          = "1"
	CallbackUnsupportedBrand = "3"
)

// CallbackStatus maps a redirect gateway response code to the order status
// it settles to. changed is false when the order must stay pending.
func CallbackStatus(code string) (status order.Status, changed bool) {
	switch code {
	case CallbackSuccess:
		return order.StatusPlaced, true
	case CallbackFailure:
		return order.StatusFailed, true
	default:
		return order.StatusPending, false
	}
}
