// Package payment dispatches checkout payments to the matching settlement
// flow.
package payment

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Method is a payment method selectable at checkout.
type Method string

const (
	// MethodCOD is cash on delivery, settled immediately.
	MethodCOD Method = "COD"
	// MethodCC goes through the redirect card gateway.
	MethodCC Method = "CC"
	// MethodStripe charges a pre-tokenized card synchronously.
	MethodStripe Method = "STRIPE"
	// MethodFree settles orders with nothing left to pay.
	MethodFree Method = "FREE"
)

// ErrUnknownMethod is returned by ParseMethod for unsupported values.
var ErrUnknownMethod = errors.New("unknown payment method")

// ParseMethod validates a payment method name.
func ParseMethod(s string) (Method, error) {
	switch m := Method(s); m {
	case MethodCOD, MethodCC, MethodStripe, MethodFree:
		return m, nil
	default:
		return "", ErrUnknownMethod
	}
}

// Card reports whether m pays by card.
func (m Method) Card() bool {
	return m == MethodCC || m == MethodStripe
}

// Source identifies what is being charged. Token is used by the token
// gateway; SavedCardID replaces card entry on the redirect gateway. BIN is
// the card number prefix when known.
type Source struct {
	Token       string
	SavedCardID string
	BIN         string
}

// ChargeRequest is the input of Gateway.Charge.
type ChargeRequest struct {
	Method   Method
	OrderRef string
	Amount   decimal.Decimal
	Source   Source
}

// Status is the settlement state reported by a gateway.
type Status string

const (
	StatusSettled Status = "settled"
	StatusPending Status = "pending"
	StatusFailed  Status = "failed"
)

// Redirect is the payload a client posts to the redirect gateway.
type Redirect struct {
	URL      string
	OrderRef string
	Fields   map[string]string
}

// GatewayError is the uniform customer facing error envelope of a failed
// charge.
type GatewayError struct {
	Type      string
	Code      string
	Message   string
	Retryable bool
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway %s: %s: %s", e.Type, e.Code, e.Message)
}

// ChargeResult is the outcome of a charge.
type ChargeResult struct {
	Status    Status
	Reference string
	Redirect  *Redirect
	Error     *GatewayError
}

// Gateway is the single capability the checkout needs from a payment
// provider.
type Gateway interface {
	Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error)
}

// Method policy error codes.
const (
	CodeInternationalRequiresCard = "INTERNATIONAL_REQUIRES_CARD"
	CodeFreeRequiresZeroTotal     = "FREE_REQUIRES_ZERO_TOTAL"
)

// PolicyError reports a payment method that cannot be used for a cart.
type PolicyError struct {
	Code    string
	Message string
}

func (e *PolicyError) Error() string {
	return e.Code + ": " + e.Message
}

// CheckMethod verifies that m may pay for a cart. Cross border carts must be
// paid by card.
func CheckMethod(m Method, crossBorder bool) error {
	if m == MethodCOD && crossBorder {
		return &PolicyError{
			Code:    CodeInternationalRequiresCard,
			Message: "International orders must be paid by credit card",
		}
	}
	return nil
}

// CheckTotal verifies that m may settle total.
func CheckTotal(m Method, total decimal.Decimal) error {
	if m == MethodFree && !total.IsZero() {
		return &PolicyError{
			Code:    CodeFreeRequiresZeroTotal,
			Message: "Free checkout is only available when nothing is left to pay",
		}
	}
	return nil
}
