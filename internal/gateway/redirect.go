// Package gateway implements the payment providers behind payment.Gateway.
package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/go-faster/errors"

	"github.com/xenking/kart-checkout/internal/domain/payment"
)

// Redirect form field names.
const (
	FieldMerchantID  = "merchantId"
	FieldOrderRef    = "orderRef"
	FieldAmount      = "amount"
	FieldCurrency    = "currCode"
	FieldPayType     = "payType"
	FieldMemberPay   = "memberPay"
	FieldMemberToken = "memberPayToken"
	FieldSecureHash  = "secureHash"

	// Callback fields posted back by the provider.
	CallbackRef        = "Ref"
	CallbackPayRef     = "PayRef"
	CallbackCode       = "successcode"
	CallbackCurrency   = "Cur"
	CallbackAmount     = "Amt"
	CallbackSecureHash = "secureHash"
)

// ErrSignature is returned for callbacks whose secure hash does not match.
var ErrSignature = errors.New("secure hash mismatch")

// RedirectConfig configures the hosted payment page gateway.
type RedirectConfig struct {
	URL        string
	MerchantID string
	Secret     string
	Currency   string
}

// Redirect is the hosted payment page gateway. Charge never talks to the
// provider; it signs the form the client posts to URL. Settlement arrives
// later through a callback checked by VerifyCallback.
type Redirect struct {
	cfg RedirectConfig
}

var _ payment.Gateway = (*Redirect)(nil)

// NewRedirect creates a Redirect gateway.
func NewRedirect(cfg RedirectConfig) *Redirect {
	return &Redirect{cfg: cfg}
}

// Charge builds the signed redirect payload. A saved card token replaces
// the card fields the customer would otherwise enter on the payment page.
func (r *Redirect) Charge(_ context.Context, req payment.ChargeRequest) (payment.ChargeResult, error) {
	if req.OrderRef == "" {
		return payment.ChargeResult{}, errors.New("order reference is required")
	}
	fields := map[string]string{
		FieldMerchantID: r.cfg.MerchantID,
		FieldOrderRef:   req.OrderRef,
		FieldAmount:     req.Amount.StringFixed(0),
		FieldCurrency:   r.cfg.Currency,
		FieldPayType:    "N",
	}
	if req.Source.SavedCardID != "" {
		fields[FieldMemberPay] = "T"
		fields[FieldMemberToken] = req.Source.SavedCardID
	}
	fields[FieldSecureHash] = r.sign(
		fields[FieldMerchantID],
		fields[FieldOrderRef],
		fields[FieldCurrency],
		fields[FieldAmount],
		fields[FieldPayType],
	)
	return payment.ChargeResult{
		Status: payment.StatusPending,
		Redirect: &payment.Redirect{
			URL:      r.cfg.URL,
			OrderRef: req.OrderRef,
			Fields:   fields,
		},
	}, nil
}

// VerifyCallback checks the secure hash of a provider callback.
func (r *Redirect) VerifyCallback(fields map[string]string) error {
	got := fields[CallbackSecureHash]
	if got == "" {
		return errors.Wrap(ErrSignature, "missing secure hash")
	}
	want := r.sign(
		fields[CallbackRef],
		fields[CallbackPayRef],
		fields[CallbackCode],
		fields[CallbackCurrency],
		fields[CallbackAmount],
	)
	if !hmac.Equal([]byte(strings.ToLower(got)), []byte(want)) {
		return ErrSignature
	}
	return nil
}

// SignCallback computes the secure hash the provider attaches to a callback.
func (r *Redirect) SignCallback(fields map[string]string) string {
	return r.sign(
		fields[CallbackRef],
		fields[CallbackPayRef],
		fields[CallbackCode],
		fields[CallbackCurrency],
		fields[CallbackAmount],
	)
}

func (r *Redirect) sign(parts ...string) string {
	mac := hmac.New(sha256.New, []byte(r.cfg.Secret))
	mac.Write([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(mac.Sum(nil))
}
