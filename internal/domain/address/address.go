// Package address validates shipping and billing addresses.
package address

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxStreetLength is the maximum length of the street line, in characters.
const MaxStreetLength = 70

var (
	phonePattern   = regexp.MustCompile(`^(0|\+84)\d{9,10}$`)
	taxCodePattern = regexp.MustCompile(`^\d{10}(-\d{3})?$`)
)

// Address is a postal address. It is comparable so orders can be matched on
// an identical address.
type Address struct {
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	Phone       string `json:"phone"`
	Address     string `json:"address"`
	City        string `json:"city"`
	District    string `json:"district"`
	Ward        string `json:"ward,omitempty"`
	CompanyName string `json:"companyName,omitempty"`
	TaxCode     string `json:"taxCode,omitempty"`
}

// IsZero reports whether a is the empty address.
func (a Address) IsZero() bool {
	return a == Address{}
}

// FieldError tags a validation message with the offending field.
type FieldError struct {
	Field   string
	Message string
}

// Validate checks the shipping address and, when present, the billing
// address. An empty billing address means billing equals shipping.
func Validate(shipping, billing Address) []FieldError {
	errs := validate("shipping", shipping)
	if !billing.IsZero() {
		errs = append(errs, validate("billing", billing)...)
		if billing.TaxCode != "" && !taxCodePattern.MatchString(billing.TaxCode) {
			errs = append(errs, FieldError{Field: "billing.taxCode", Message: "invalid tax code format"})
		}
	}
	return errs
}

func validate(prefix string, a Address) []FieldError {
	var errs []FieldError
	required := func(field, value string) bool {
		if strings.TrimSpace(value) == "" {
			errs = append(errs, FieldError{Field: prefix + "." + field, Message: field + " is required"})
			return false
		}
		return true
	}

	required("firstName", a.FirstName)
	required("lastName", a.LastName)
	if required("phone", a.Phone) && !phonePattern.MatchString(a.Phone) {
		errs = append(errs, FieldError{Field: prefix + ".phone", Message: "invalid phone number format"})
	}
	if required("address", a.Address) && utf8.RuneCountInString(a.Address) > MaxStreetLength {
		errs = append(errs, FieldError{Field: prefix + ".address", Message: "address must be at most 70 characters"})
	}
	required("city", a.City)
	required("district", a.District)
	return errs
}
