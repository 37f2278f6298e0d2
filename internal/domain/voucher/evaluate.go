// Package voucher evaluates voucher eligibility and discount amounts.
package voucher

import (
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/kart-checkout/internal/domain/cart"
)

// Rejection codes, in evaluation order.
const (
	CodeNotExists            = "VOUCHER_NOT_EXISTS"
	CodeNotStarted           = "VOUCHER_CAMPAIGN_INVALID_OR_NOT_STARTED"
	CodeEnded                = "VOUCHER_CAMPAIGN_INVALID_OR_ENDED"
	CodeNotAllowed           = "NOT_ALLOWED_TO_USE_VOUCHER"
	CodeRedeemed             = "VOUCHER_HAS_BEEN_REDEEMED"
	CodeAlreadyUsedByAccount = "YOU_ALREADY_USED_THIS_VOUCHER"
	CodeExceedUsage          = "EXCEED_TIME_OF_USAGE"
	CodeAlreadyUsed          = "VOUCHER_ALREADY_USED"
	CodeMinimumItems         = "NOT_MEET_MINIMUM_ITEMS"
	CodeNotToday             = "VOUCHER_NOT_APPLY_FOR_TODAY"
	CodeMinimumPurchase      = "TOTAL_VALUE_LESS_THAN_VOUCHER_MINIMUM"
	CodeRequiresCard         = "REQUIRES_CC_PAYMENT"
	CodeCardNotAcceptable    = "THIS_CC_NOT_ACCEPTABLE"
	CodeNewCustomerOnly      = "VOUCHER_ONLY_FOR_NEW_CUSTOMER"
	CodePerCampaign          = "VOUCHER_PER_CAMPAIGN"
)

var hundred = decimal.NewFromInt(100)

// Mode selects between the read-only apply inspection and checkout commit.
type Mode int

const (
	// ModeInspect evaluates without any intent to redeem.
	ModeInspect Mode = iota
	// ModeCommit evaluates immediately before redemption.
	ModeCommit
)

// RejectionError is returned when a voucher cannot be applied. Data echoes
// the voucher fields relevant to the failed check.
type RejectionError struct {
	Code string
	Data map[string]string
}

func (e *RejectionError) Error() string {
	return "voucher rejected: " + e.Code
}

func reject(code string, kv ...string) *RejectionError {
	e := &RejectionError{Code: code}
	if len(kv) > 0 {
		e.Data = make(map[string]string, len(kv)/2)
		for i := 0; i+1 < len(kv); i += 2 {
			e.Data[kv[i]] = kv[i+1]
		}
	}
	return e
}

// History summarizes the prior completed orders of a customer.
type History struct {
	CompletedOrders int
	UsedCodes       []string
	UsedCampaigns   []string
}

// Payment describes the payment the voucher would be used with. A card
// payment carries the card BIN; other methods leave it empty.
type Payment struct {
	Card bool
	BIN  string
}

// Input is everything Evaluate needs besides the voucher itself.
type Input struct {
	// Code is the submitted code, echoed when no voucher matches it.
	Code       string
	Lines      []cart.Line
	CustomerID string
	History    History
	// Payment is nil when the caller has not chosen a payment yet. The BIN
	// check is skipped in that case during inspection.
	Payment *Payment
	Now     time.Time
	Mode    Mode
}

// Evaluate validates v against in and computes the discount. A nil voucher
// is reported as not existing. Checks run in a fixed order and the first
// failure wins.
func Evaluate(v *Voucher, in Input) (Discount, error) {
	if v == nil {
		return Discount{}, reject(CodeNotExists, "code", in.Code)
	}
	if err := eligible(v, in); err != nil {
		return Discount{}, err
	}
	return Discount{
		Amount:     discountFor(v, cart.Subtotal(in.Lines)),
		Code:       v.Code,
		CampaignID: v.CampaignID,
	}, nil
}

func eligible(v *Voucher, in Input) error {
	if in.Now.Before(v.StartDate) {
		return reject(CodeNotStarted, "startDate", v.StartDate.Format(time.RFC3339))
	}
	if in.Now.After(v.Expiry) {
		return reject(CodeEnded, "expiry", v.Expiry.Format(time.RFC3339))
	}
	if v.CustomerID != "" && v.CustomerID != in.CustomerID {
		return reject(CodeNotAllowed, "customerId", v.CustomerID)
	}
	if v.Redeemed() {
		return reject(CodeRedeemed, "code", v.Code)
	}
	if v.OncePerAccount && slices.Contains(in.History.UsedCodes, v.Code) {
		return reject(CodeAlreadyUsedByAccount, "code", v.Code)
	}
	if v.NumberOfUsage > 0 && v.Used >= v.NumberOfUsage {
		code := CodeExceedUsage
		if in.Mode == ModeInspect && !v.MultipleUser {
			code = CodeAlreadyUsed
		}
		return reject(code, "numberOfUsage", strconv.Itoa(v.NumberOfUsage))
	}
	if v.NumberOfItems > 0 && distinct(in.Lines) < v.NumberOfItems {
		return reject(CodeMinimumItems, "numberOfItems", strconv.Itoa(v.NumberOfItems))
	}
	if len(v.SpecificDays) > 0 && !slices.Contains(v.SpecificDays, ISOWeekday(in.Now)) {
		return reject(CodeNotToday, "specificDays", joinDays(v.SpecificDays))
	}
	if v.MinimumPurchase.Valid && cart.Subtotal(in.Lines).LessThan(v.MinimumPurchase.Decimal) {
		return reject(CodeMinimumPurchase, "minimumPurchase", v.MinimumPurchase.Decimal.String())
	}
	if len(v.BinRange) > 0 {
		if err := checkBIN(v, in); err != nil {
			return err
		}
	}
	if v.ForNewCustomer && in.History.CompletedOrders > 0 {
		return reject(CodeNewCustomerOnly, "forNewCustomer", strconv.FormatBool(v.ForNewCustomer))
	}
	if v.CampaignID != "" && v.OncePerAccountForCampaign && slices.Contains(in.History.UsedCampaigns, v.CampaignID) {
		return reject(CodePerCampaign, "campaignId", v.CampaignID)
	}
	return nil
}

func checkBIN(v *Voucher, in Input) error {
	bins := strings.Join(v.BinRange, ",")
	if in.Payment == nil {
		if in.Mode == ModeInspect {
			return nil
		}
		return reject(CodeRequiresCard, "binRange", bins)
	}
	if !in.Payment.Card || in.Payment.BIN == "" {
		return reject(CodeRequiresCard, "binRange", bins)
	}
	for _, prefix := range v.BinRange {
		if strings.HasPrefix(in.Payment.BIN, prefix) {
			return nil
		}
	}
	return reject(CodeCardNotAcceptable, "binRange", bins)
}

// discountFor computes the discount of v over subtotal, floored to whole
// currency units.
func discountFor(v *Voucher, subtotal decimal.Decimal) decimal.Decimal {
	var amount decimal.Decimal
	switch v.DiscountType {
	case DiscountPercentage:
		amount = subtotal.Mul(v.Amount).Div(hundred).RoundFloor(cart.MoneyPlaces)
		if v.MaximumDiscountAmount.Valid {
			amount = decimal.Min(amount, v.MaximumDiscountAmount.Decimal)
		}
	default:
		amount = decimal.Min(v.Amount, subtotal)
	}
	if amount.IsNegative() {
		return decimal.Zero
	}
	return amount
}

// ISOWeekday returns the ISO 8601 weekday of t, Monday=1 through Sunday=7.
func ISOWeekday(t time.Time) int {
	wd := int(t.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}

func distinct(lines []cart.Line) int {
	seen := make(map[string]struct{}, len(lines))
	for _, l := range lines {
		seen[l.ProductID] = struct{}{}
	}
	return len(seen)
}

func joinDays(days []int) string {
	parts := make([]string, len(days))
	for i, d := range days {
		parts[i] = strconv.Itoa(d)
	}
	return strings.Join(parts, ",")
}
