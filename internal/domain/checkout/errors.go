package checkout

import (
	"strings"

	"github.com/go-faster/errors"

	"github.com/xenking/kart-checkout/internal/domain/address"
	"github.com/xenking/kart-checkout/internal/domain/cart"
	"github.com/xenking/kart-checkout/internal/domain/catalog"
	"github.com/xenking/kart-checkout/internal/domain/credit"
	"github.com/xenking/kart-checkout/internal/domain/order"
	"github.com/xenking/kart-checkout/internal/domain/payment"
	"github.com/xenking/kart-checkout/internal/domain/voucher"
)

// ValidationError lists request fields that failed validation.
type ValidationError struct {
	Fields []address.FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Message
	}
	return "invalid checkout request: " + strings.Join(parts, "; ")
}

func methodFieldError() []address.FieldError {
	return []address.FieldError{{Field: "method", Message: "method must be one of COD, CC, STRIPE, FREE"}}
}

// errorCode extracts the domain code of err for metrics.
func errorCode(err error) string {
	var (
		vErr *ValidationError
		iErr *cart.IntegrityError
		aErr *catalog.AvailabilityError
		rErr *voucher.RejectionError
		cErr *credit.Error
		pErr *payment.PolicyError
	)
	switch {
	case errors.As(err, &vErr):
		return "VALIDATION"
	case errors.As(err, &iErr):
		return iErr.Code
	case errors.As(err, &aErr):
		return aErr.Code
	case errors.As(err, &rErr):
		return rErr.Code
	case errors.As(err, &cErr):
		return cErr.Code
	case errors.As(err, &pErr):
		return pErr.Code
	case errors.Is(err, order.ErrNotFound):
		return "ORDER_NOT_FOUND"
	case errors.Is(err, order.ErrNotRetryable):
		return "ORDER_NOT_RETRYABLE"
	case errors.Is(err, cart.ErrEmpty):
		return "CART_EMPTY"
	case errors.Is(err, ErrInvalidCallback):
		return "INVALID_CALLBACK"
	default:
		return "INTERNAL"
	}
}
