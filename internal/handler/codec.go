package handler

import (
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-checkout/internal/domain/address"
	"github.com/xenking/kart-checkout/internal/domain/cart"
	"github.com/xenking/kart-checkout/internal/domain/checkout"
	"github.com/xenking/kart-checkout/internal/domain/order"
	"github.com/xenking/kart-checkout/internal/domain/payment"
)

// decodeBody decodes the JSON object body of r field by field. An empty
// body is accepted when optional is set.
func decodeBody(w http.ResponseWriter, r *http.Request, optional bool, fn func(d *jx.Decoder, key string) error) error {
	if optional && r.ContentLength == 0 {
		return nil
	}
	d := jx.Decode(http.MaxBytesReader(w, r.Body, maxBodyBytes), 4096)
	if err := d.Obj(fn); err != nil {
		return errors.Wrap(err, "decode body")
	}
	return nil
}

// decodeMoney accepts a JSON number or a numeric string.
func decodeMoney(d *jx.Decoder) (decimal.Decimal, error) {
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(s)
	case jx.Null:
		return decimal.Zero, d.Null()
	default:
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(string(n))
	}
}

func decodeOptStr(d *jx.Decoder) (string, error) {
	if d.Next() == jx.Null {
		return "", d.Null()
	}
	return d.Str()
}

func decodeLines(d *jx.Decoder) ([]cart.Line, error) {
	var lines []cart.Line
	err := d.Arr(func(d *jx.Decoder) error {
		var l cart.Line
		err := d.Obj(func(d *jx.Decoder, key string) error {
			var err error
			switch key {
			case "productId":
				l.ProductID, err = d.Str()
			case "nsId":
				l.NSID, err = decodeOptStr(d)
			case "name":
				l.Name, err = decodeOptStr(d)
			case "quantity":
				l.Quantity, err = d.Int()
			case "salePrice":
				l.SalePrice, err = decodeMoney(d)
			case "retailPrice":
				l.RetailPrice, err = decodeMoney(d)
			case "country":
				l.Country, err = decodeOptStr(d)
			default:
				return d.Skip()
			}
			if err != nil {
				return errors.Wrap(err, key)
			}
			return nil
		})
		lines = append(lines, l)
		return err
	})
	return lines, err
}

func decodeAddress(d *jx.Decoder) (address.Address, error) {
	var a address.Address
	if d.Next() == jx.Null {
		return a, d.Null()
	}
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var dst *string
		switch key {
		case "firstName":
			dst = &a.FirstName
		case "lastName":
			dst = &a.LastName
		case "phone":
			dst = &a.Phone
		case "address":
			dst = &a.Address
		case "city":
			dst = &a.City
		case "district":
			dst = &a.District
		case "ward":
			dst = &a.Ward
		case "companyName":
			dst = &a.CompanyName
		case "taxCode":
			dst = &a.TaxCode
		default:
			return d.Skip()
		}
		v, err := decodeOptStr(d)
		*dst = v
		if err != nil {
			return errors.Wrap(err, key)
		}
		return nil
	})
	return a, err
}

func decodeSource(d *jx.Decoder) (payment.Source, error) {
	var s payment.Source
	if d.Next() == jx.Null {
		return s, d.Null()
	}
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "token":
			s.Token, err = decodeOptStr(d)
		case "savedCardId":
			s.SavedCardID, err = decodeOptStr(d)
		case "bin":
			s.BIN, err = decodeOptStr(d)
		default:
			return d.Skip()
		}
		if err != nil {
			return errors.Wrap(err, key)
		}
		return nil
	})
	return s, err
}

func decodeCheckout(w http.ResponseWriter, r *http.Request) (checkout.Request, error) {
	var req checkout.Request
	err := decodeBody(w, r, false, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "cart":
			req.Lines, err = decodeLines(d)
		case "address":
			err = d.Obj(func(d *jx.Decoder, key string) error {
				var err error
				switch key {
				case "shipping":
					req.Shipping, err = decodeAddress(d)
				case "billing":
					req.Billing, err = decodeAddress(d)
				default:
					return d.Skip()
				}
				if err != nil {
					return errors.Wrap(err, key)
				}
				return nil
			})
		case "method":
			req.Method, err = d.Str()
		case "voucherCode":
			req.VoucherCode, err = decodeOptStr(d)
		case "credit":
			req.Credit, err = decodeMoney(d)
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
	return req, err
}

func encodeMoney(e *jx.Encoder, field string, v decimal.Decimal) {
	e.FieldStart(field)
	e.Int64(v.Round(cart.MoneyPlaces).IntPart())
}

func encodeAddress(e *jx.Encoder, a address.Address) {
	e.ObjStart()
	for _, f := range [...]struct{ name, value string }{
		{"firstName", a.FirstName},
		{"lastName", a.LastName},
		{"phone", a.Phone},
		{"address", a.Address},
		{"city", a.City},
		{"district", a.District},
		{"ward", a.Ward},
		{"companyName", a.CompanyName},
		{"taxCode", a.TaxCode},
	} {
		if f.value == "" {
			continue
		}
		e.FieldStart(f.name)
		e.Str(f.value)
	}
	e.ObjEnd()
}

func encodeLines(e *jx.Encoder, lines []cart.Line) {
	e.ArrStart()
	for _, l := range lines {
		e.ObjStart()
		e.FieldStart("productId")
		e.Str(l.ProductID)
		e.FieldStart("nsId")
		e.Str(l.NSID)
		e.FieldStart("name")
		e.Str(l.Name)
		e.FieldStart("quantity")
		e.Int(l.Quantity)
		encodeMoney(e, "salePrice", l.SalePrice)
		encodeMoney(e, "retailPrice", l.RetailPrice)
		e.FieldStart("country")
		e.Str(l.Country)
		if l.SaleEndsAt != nil {
			e.FieldStart("saleEndsAt")
			e.Str(l.SaleEndsAt.UTC().Format(time.RFC3339))
		}
		e.ObjEnd()
	}
	e.ArrEnd()
}

func encodeCart(lines []cart.Line) func(e *jx.Encoder) {
	return func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("items")
		encodeLines(e, lines)
		encodeMoney(e, "subtotal", cart.Subtotal(lines))
		e.ObjEnd()
	}
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(o.ID)
	e.FieldStart("code")
	e.Str(o.Code)
	e.FieldStart("subCode")
	e.Str(o.SubCode)
	e.FieldStart("zone")
	e.Str(o.Zone)
	e.FieldStart("status")
	e.Str(string(o.Status))
	e.FieldStart("isCrossBorder")
	e.Bool(o.IsCrossBorder)

	e.FieldStart("products")
	e.ArrStart()
	for _, p := range o.Products {
		e.ObjStart()
		e.FieldStart("productId")
		e.Str(p.ProductID)
		e.FieldStart("nsId")
		e.Str(p.NSID)
		e.FieldStart("name")
		e.Str(p.Name)
		e.FieldStart("quantity")
		e.Int(p.Quantity)
		encodeMoney(e, "salePrice", p.SalePrice)
		encodeMoney(e, "retailPrice", p.RetailPrice)
		e.FieldStart("country")
		e.Str(p.Country)
		e.ObjEnd()
	}
	e.ArrEnd()

	e.FieldStart("paymentSummary")
	e.ObjStart()
	e.FieldStart("method")
	e.Str(o.Payment.Method)
	encodeMoney(e, "subtotal", o.Payment.Subtotal)
	encodeMoney(e, "shipping", o.Payment.Shipping)
	encodeMoney(e, "voucherAmount", o.Payment.VoucherAmount)
	encodeMoney(e, "accountCredit", o.Payment.AccountCredit)
	encodeMoney(e, "total", o.Payment.Total)
	e.ObjEnd()

	e.FieldStart("shippingAddress")
	encodeAddress(e, o.ShippingAddress)
	e.FieldStart("billingAddress")
	encodeAddress(e, o.BillingAddress)
	if o.VoucherCode != "" {
		e.FieldStart("voucherCode")
		e.Str(o.VoucherCode)
	}
	if o.PaymentReference != "" {
		e.FieldStart("paymentReference")
		e.Str(o.PaymentReference)
	}
	e.FieldStart("createdAt")
	e.Str(o.CreatedAt.UTC().Format(time.RFC3339))
	e.ObjEnd()
}

func encodeOrders(e *jx.Encoder, orders []*order.Order) {
	e.ArrStart()
	for _, o := range orders {
		encodeOrder(e, o)
	}
	e.ArrEnd()
}

func encodeGatewayError(e *jx.Encoder, g *payment.GatewayError) {
	e.ObjStart()
	e.FieldStart("type")
	e.Str(g.Type)
	e.FieldStart("code")
	e.Str(g.Code)
	e.FieldStart("message")
	e.Str(g.Message)
	e.FieldStart("retryable")
	e.Bool(g.Retryable)
	e.ObjEnd()
}

func encodeResult(res *checkout.Result) func(e *jx.Encoder) {
	return func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("code")
		e.Str(res.Code)
		e.FieldStart("orders")
		encodeOrders(e, res.Orders)
		if res.Redirect != nil {
			e.FieldStart("redirect")
			e.ObjStart()
			e.FieldStart("url")
			e.Str(res.Redirect.URL)
			e.FieldStart("orderRef")
			e.Str(res.Redirect.OrderRef)
			e.FieldStart("fields")
			stringMap(res.Redirect.Fields)(e)
			e.ObjEnd()
		}
		if len(res.Holds) > 0 {
			e.FieldStart("holds")
			e.ObjStart()
			for subCode, reasons := range res.Holds {
				e.FieldStart(subCode)
				e.ArrStart()
				for _, r := range reasons {
					e.Str(string(r))
				}
				e.ArrEnd()
			}
			e.ObjEnd()
		}
		e.ObjEnd()
	}
}
