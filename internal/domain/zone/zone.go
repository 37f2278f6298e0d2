// Package zone splits a cart into per-country sub-orders and apportions
// checkout level amounts across them.
package zone

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/xenking/kart-checkout/internal/domain/cart"
)

// DefaultThreshold is the per-chunk subtotal limit of non-home zones.
var DefaultThreshold = decimal.NewFromInt(1_000_000)

// Partition is one sub-order of a checkout.
type Partition struct {
	Zone string
	// Chunk numbers the partitions of a non-home zone starting at 1. The home
	// zone partition has Chunk 0.
	Chunk    int
	SubCode  string
	Lines    []cart.Line
	Subtotal decimal.Decimal
}

// SubCode formats the code of a sub-order.
func SubCode(home, zone, code string, chunk int) string {
	if zone == home {
		return fmt.Sprintf("%s-%s", home, code)
	}
	return fmt.Sprintf("%s%s-%s-%d", zone, home, code, chunk)
}

// Split groups lines by country. The home zone becomes exactly one
// partition. Every other zone is packed greedily in cart order into chunks
// whose subtotal does not exceed threshold; a chunk is closed only when the
// next line would push it above threshold. A single line above threshold
// occupies a chunk of its own. Zones are ordered home first, then by first
// appearance in the cart.
func Split(lines []cart.Line, code, home string, threshold decimal.Decimal) []Partition {
	var (
		order  []string
		byZone = make(map[string][]cart.Line)
	)
	if hasZone(lines, home) {
		order = append(order, home)
	}
	for _, l := range lines {
		if _, ok := byZone[l.Country]; !ok && l.Country != home {
			order = append(order, l.Country)
		}
		byZone[l.Country] = append(byZone[l.Country], l)
	}

	var out []Partition
	for _, z := range order {
		zl := byZone[z]
		if z == home {
			out = append(out, Partition{
				Zone:     z,
				SubCode:  SubCode(home, z, code, 0),
				Lines:    zl,
				Subtotal: cart.Subtotal(zl),
			})
			continue
		}
		out = append(out, chunk(zl, code, home, z, threshold)...)
	}
	return out
}

func chunk(lines []cart.Line, code, home, z string, threshold decimal.Decimal) []Partition {
	var (
		out     []Partition
		current []cart.Line
		running = decimal.Zero
	)
	flush := func() {
		n := len(out) + 1
		out = append(out, Partition{
			Zone:     z,
			Chunk:    n,
			SubCode:  SubCode(home, z, code, n),
			Lines:    current,
			Subtotal: running,
		})
		current = nil
		running = decimal.Zero
	}
	for _, l := range lines {
		next := running.Add(l.Total())
		if len(current) > 0 && next.GreaterThan(threshold) {
			flush()
			next = l.Total()
		}
		current = append(current, l)
		running = next
	}
	if len(current) > 0 {
		flush()
	}
	return out
}

func hasZone(lines []cart.Line, z string) bool {
	for _, l := range lines {
		if l.Country == z {
			return true
		}
	}
	return false
}

// Apportion distributes total across weights in proportion to each weight.
// Every share but the last is floored to places; the last one takes the
// remainder so the shares always sum to total. When all weights are zero the
// last share takes everything.
func Apportion(total decimal.Decimal, weights []decimal.Decimal, places int32) []decimal.Decimal {
	if len(weights) == 0 {
		return nil
	}
	shares := make([]decimal.Decimal, len(weights))
	sum := decimal.Zero
	for _, w := range weights {
		sum = sum.Add(w)
	}
	assigned := decimal.Zero
	for i := range weights[:len(weights)-1] {
		share := decimal.Zero
		if !sum.IsZero() {
			share = total.Mul(weights[i]).Div(sum).RoundFloor(places)
		}
		shares[i] = share
		assigned = assigned.Add(share)
	}
	shares[len(shares)-1] = total.Sub(assigned)
	return shares
}

// ApportionWithin is Apportion weighted by caps where no share ends above
// its cap. What a capped share cannot hold moves to the earliest shares with
// room left. When total exceeds the sum of caps the rest stays on the last
// share.
func ApportionWithin(total decimal.Decimal, caps []decimal.Decimal, places int32) []decimal.Decimal {
	shares := Apportion(total, caps, places)
	excess := decimal.Zero
	for i := range shares {
		if shares[i].GreaterThan(caps[i]) {
			excess = excess.Add(shares[i].Sub(caps[i]))
			shares[i] = caps[i]
		}
	}
	for i := range shares {
		if !excess.IsPositive() {
			break
		}
		room := caps[i].Sub(shares[i])
		if !room.IsPositive() {
			continue
		}
		moved := decimal.Min(room, excess)
		shares[i] = shares[i].Add(moved)
		excess = excess.Sub(moved)
	}
	if excess.IsPositive() {
		shares[len(shares)-1] = shares[len(shares)-1].Add(excess)
	}
	return shares
}

// Subtotals returns the subtotal of each partition, in order.
func Subtotals(parts []Partition) []decimal.Decimal {
	out := make([]decimal.Decimal, len(parts))
	for i, p := range parts {
		out[i] = p.Subtotal
	}
	return out
}
