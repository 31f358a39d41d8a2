package promotion

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-checkout/internal/domain/order"
)

var hundred = decimal.NewFromInt(100)

// Calculator computes the positive discount magnitude a promotion grants on
// a target. The variant set is small and fixed per deployment, so it is a
// closed set of concrete types rather than open-ended dispatch.
type Calculator interface {
	Compute(target order.Adjustable) (decimal.Decimal, error)
}

// FlatRate grants a fixed amount off the target.
type FlatRate struct {
	Amount decimal.Decimal
}

func (c FlatRate) Compute(order.Adjustable) (decimal.Decimal, error) {
	if c.Amount.IsNegative() {
		return decimal.Zero, errors.Errorf("flat rate amount %s is negative", c.Amount)
	}
	return c.Amount, nil
}

// PercentOnItemTotal grants a percentage of the target's base amount,
// rounded to cents.
type PercentOnItemTotal struct {
	Percent decimal.Decimal
}

func (c PercentOnItemTotal) Compute(target order.Adjustable) (decimal.Decimal, error) {
	if err := checkPercent(c.Percent); err != nil {
		return decimal.Zero, err
	}
	return target.BaseAmount().Mul(c.Percent).Div(hundred).Round(2), nil
}

// PercentPerItem grants a percentage of the unit price, per unit. The
// per-unit discount is truncated toward zero at cent precision before
// multiplying by the quantity, so a 10% discount on a $0.99 unit is $0.09
// per unit, not $0.099 rounded. Only line items qualify.
type PercentPerItem struct {
	Percent decimal.Decimal
}

func (c PercentPerItem) Compute(target order.Adjustable) (decimal.Decimal, error) {
	if err := checkPercent(c.Percent); err != nil {
		return decimal.Zero, err
	}
	li, ok := target.(*order.LineItem)
	if !ok {
		return decimal.Zero, nil
	}
	perUnit := li.Price.Mul(c.Percent).Div(hundred).Truncate(2)
	return perUnit.Mul(decimal.NewFromInt(int64(li.Quantity))), nil
}

// TieredFlatRate grants the amount of the highest tier whose threshold the
// target's base amount reaches, or nothing below the lowest tier.
type TieredFlatRate struct {
	Tiers []Tier
}

// Tier pairs a base-amount threshold with the discount it grants.
type Tier struct {
	Threshold decimal.Decimal
	Amount    decimal.Decimal
}

func (c TieredFlatRate) Compute(target order.Adjustable) (decimal.Decimal, error) {
	base := target.BaseAmount()
	best := decimal.Zero
	matched := decimal.NewFromInt(-1)
	for _, t := range c.Tiers {
		if t.Amount.IsNegative() {
			return decimal.Zero, errors.Errorf("tier amount %s is negative", t.Amount)
		}
		if base.GreaterThanOrEqual(t.Threshold) && t.Threshold.GreaterThan(matched) {
			matched = t.Threshold
			best = t.Amount
		}
	}
	return best, nil
}

func checkPercent(p decimal.Decimal) error {
	if p.IsNegative() || p.GreaterThan(hundred) {
		return errors.Errorf("percent %s out of range [0, 100]", p)
	}
	return nil
}
