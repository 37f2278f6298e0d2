package order

import "github.com/shopspring/decimal"

// HoldReason explains why a placed order waits for manual confirmation.
type HoldReason string

const (
	HoldTotal         HoldReason = "total_over_threshold"
	HoldLineQuantity  HoldReason = "line_quantity_over_threshold"
	HoldTotalQuantity HoldReason = "total_quantity_over_threshold"
	HoldCrossBorder   HoldReason = "cross_border"
)

// Policy decides whether a placed order is confirmed automatically.
type Policy struct {
	TotalThreshold         decimal.Decimal
	LineQuantityThreshold  int
	TotalQuantityThreshold int
}

// DefaultPolicy returns the production confirmation thresholds.
func DefaultPolicy() Policy {
	return Policy{
		TotalThreshold:         decimal.NewFromInt(5_000_000),
		LineQuantityThreshold:  2,
		TotalQuantityThreshold: 5,
	}
}

// Decision is the outcome of Policy.Decide.
type Decision struct {
	Status          Status
	Holds           []HoldReason
	RegularCustomer bool
}

// Holds lists the reasons o would stay placed, if any.
func (p Policy) Holds(o *Order) []HoldReason {
	var holds []HoldReason
	if o.Payment.Total.GreaterThanOrEqual(p.TotalThreshold) {
		holds = append(holds, HoldTotal)
	}
	for _, pr := range o.Products {
		if pr.Quantity >= p.LineQuantityThreshold {
			holds = append(holds, HoldLineQuantity)
			break
		}
	}
	if o.TotalQuantity() >= p.TotalQuantityThreshold {
		holds = append(holds, HoldTotalQuantity)
	}
	if o.IsCrossBorder {
		holds = append(holds, HoldCrossBorder)
	}
	return holds
}

// Decide returns the status a freshly placed order settles in. Orders not in
// placed are returned unchanged. prior are the customer's earlier orders; a
// customer who has received an order before and ships to an address used by
// an earlier order is confirmed regardless of holds.
func (p Policy) Decide(o *Order, prior []*Order) Decision {
	if o.Status != StatusPlaced {
		return Decision{Status: o.Status}
	}
	holds := p.Holds(o)
	if len(holds) == 0 {
		return Decision{Status: StatusConfirmed}
	}
	if isRegular(o, prior) {
		return Decision{Status: StatusConfirmed, Holds: holds, RegularCustomer: true}
	}
	return Decision{Status: StatusPlaced, Holds: holds}
}

func isRegular(o *Order, prior []*Order) bool {
	var delivered, sameAddress bool
	for _, po := range prior {
		if po.Code == o.Code {
			continue
		}
		switch po.Status {
		case StatusDelivered, StatusReturnRequest, StatusReturned:
			delivered = true
		}
		if po.ShippingAddress == o.ShippingAddress {
			sameAddress = true
		}
	}
	return delivered && sameAddress
}
