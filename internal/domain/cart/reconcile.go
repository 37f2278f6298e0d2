package cart

import "fmt"

// Cart integrity error codes.
const (
	CodeMismatch         = "CART_MISMATCH"
	CodeMismatchUnknown  = "CART_MISMATCH_CANT_FIND_PRODUCT"
	CodeQuantityMismatch = "QUANTITY_SUBMITTED_NOT_MATCH_IN_THE_CART"
	CodePriceMismatch    = "PRICE_MISMATCH"
)

// IntegrityError reports a disagreement between the submitted cart and the
// server-held one.
type IntegrityError struct {
	Code      string
	ProductID string
}

func (e *IntegrityError) Error() string {
	if e.ProductID == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: product %s", e.Code, e.ProductID)
}

// Reconcile checks the submitted lines against the server-held snapshot.
// Size is compared first, then each submitted line in order. Every held
// line must be matched by exactly one submitted line.
func Reconcile(submitted []Line, held Snapshot) error {
	if len(submitted) != held.Len() {
		return &IntegrityError{Code: CodeMismatch}
	}
	byID := make(map[string]Line, held.Len())
	for _, l := range held.lines {
		byID[l.ProductID] = l
	}
	matched := make(map[string]struct{}, len(submitted))
	for _, s := range submitted {
		if _, dup := matched[s.ProductID]; dup {
			return &IntegrityError{Code: CodeMismatch, ProductID: s.ProductID}
		}
		h, ok := byID[s.ProductID]
		if !ok {
			return &IntegrityError{Code: CodeMismatchUnknown, ProductID: s.ProductID}
		}
		matched[s.ProductID] = struct{}{}
		if s.Quantity != h.Quantity {
			return &IntegrityError{Code: CodeQuantityMismatch, ProductID: s.ProductID}
		}
		if !s.SalePrice.Equal(h.SalePrice) {
			return &IntegrityError{Code: CodePriceMismatch, ProductID: s.ProductID}
		}
	}
	return nil
}
