package promo

import (
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Line is a cart line for discount proration.
type Line struct {
	ProductID int64
	Quantity  int
	Price     decimal.Decimal
}

// Total returns price * quantity for the line.
func (l Line) Total() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Compute returns the discount granted by the code against a cart total,
// rounded to whole currency units. A fixed amount never exceeds the total.
// Eligibility (dates, limits, ownership) is the Validator's job, not this
// function's: order creation calls Compute directly after re-validating, so
// the client-submitted discount value is never trusted.
func Compute(c *PromoCode, cartTotal decimal.Decimal) decimal.Decimal {
	var amount decimal.Decimal
	switch c.Type {
	case DiscountFixedAmount:
		amount = decimal.Min(c.Value, cartTotal)
	default:
		amount = cartTotal.Mul(c.Value).Div(hundred)
	}
	return floorAtZero(amount.Round(0))
}

// Prorate distributes the code's discount across cart lines, returning one
// amount per line in input order.
//
// Percentage discounts are line-local and floored per line. Fixed amounts are
// split proportionally to each line's share of the subtotal and rounded per
// line; the per-line rounding can leave the sum up to (len(lines)-1) units
// away from the single fixed value, which is accepted rather than corrected.
func Prorate(c *PromoCode, lines []Line) []decimal.Decimal {
	out := make([]decimal.Decimal, len(lines))

	subtotal := decimal.Zero
	for _, l := range lines {
		subtotal = subtotal.Add(l.Total())
	}

	for i, l := range lines {
		switch {
		case c.Type == DiscountPercentage:
			out[i] = l.Total().Mul(c.Value).Div(hundred).Floor()
		case subtotal.IsPositive():
			out[i] = l.Total().Div(subtotal).Mul(c.Value).Round(0)
		default:
			out[i] = decimal.Zero
		}
		out[i] = floorAtZero(out[i])
	}
	return out
}

func floorAtZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
