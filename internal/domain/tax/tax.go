package tax

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-checkout/internal/domain/order"
)

// CategoryShipping is the tax category shipments are taxed under.
const CategoryShipping = "shipping"

var one = decimal.NewFromInt(1)

// Rate is a tax rate keyed by zone and category. It is an adjustment source:
// its amount is always computed on the post-discount basis, never on the
// undiscounted price.
type Rate struct {
	ID       string
	Name     string
	Zone     string
	Category string
	// Value is the fractional rate, e.g. 0.10 for 10%.
	Value decimal.Decimal
	// IncludedInPrice marks VAT-style tax already embedded in the listed
	// price. Included tax is informational; it never changes the total.
	IncludedInPrice bool
}

func (r *Rate) Ref() order.SourceRef {
	return order.SourceRef{Kind: order.SourceTaxRate, ID: r.ID, Owner: r.Zone}
}

func (r *Rate) Label() string { return r.Name }

// Compute returns the tax amount for the target, rounded to cents.
// Additional tax is basis × rate. Included tax is the portion of the basis
// the rate already accounts for: basis − basis ÷ (1 + rate).
func (r *Rate) Compute(_ context.Context, target order.Adjustable) (decimal.Decimal, error) {
	if r.Value.IsNegative() {
		return decimal.Zero, errors.Errorf("tax rate %s is negative", r.Value)
	}
	basis := order.DiscountedAmount(target)
	if r.IncludedInPrice {
		return basis.Sub(basis.Div(one.Add(r.Value))).Round(2), nil
	}
	return basis.Mul(r.Value).Round(2), nil
}

func (r *Rate) mode() order.TaxMode {
	if r.IncludedInPrice {
		return order.TaxIncluded
	}
	return order.TaxAdditional
}

var _ order.AdjustmentSource = (*Rate)(nil)

// Repository provides the rates applicable in a tax zone.
type Repository interface {
	RatesForZone(ctx context.Context, zone string) ([]*Rate, error)
}

// Applier keeps an order's tax adjustments in line with its tax zone:
// it attaches an adjustment for every matching rate and drops adjustments
// from rates of other zones. Amounts are left for recalculation to fill in.
type Applier struct {
	rates Repository
}

// NewApplier creates an Applier.
func NewApplier(rates Repository) *Applier {
	return &Applier{rates: rates}
}

// Adjust synchronizes tax adjustments on every line item and shipment of
// the order for its current zone.
func (a *Applier) Adjust(ctx context.Context, o *order.Order) error {
	rates, err := a.rates.RatesForZone(ctx, o.TaxZone)
	if err != nil {
		return errors.Wrapf(err, "load tax rates for zone %q", o.TaxZone)
	}

	for _, li := range o.LineItems {
		a.sync(li, li.TaxCategory, rates, o.TaxZone)
	}
	for _, s := range o.Shipments {
		a.sync(s, CategoryShipping, rates, o.TaxZone)
	}
	return nil
}

func (a *Applier) sync(target order.Adjustable, category string, rates []*Rate, zone string) {
	// Stale adjustments from a previous zone no longer apply.
	target.Adjustments().RemoveIf(func(adj *order.Adjustment) bool {
		return adj.Kind == order.KindTax && adj.Source.Ref().Owner != zone
	})

	for _, r := range rates {
		if r.Category != category {
			continue
		}
		if target.Adjustments().FindBySource(r.Ref()) != nil {
			continue
		}
		target.Adjustments().Add(&order.Adjustment{
			Label:    r.Name,
			Source:   r,
			Eligible: true,
			Kind:     order.KindTax,
			TaxMode:  r.mode(),
		})
	}
}
