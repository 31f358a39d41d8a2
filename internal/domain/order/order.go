package order

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-checkout/internal/domain/catalog"
)

// Order is the aggregate root: an ordered collection of line items and
// shipments plus order-level adjustments and rolled-up totals. Totals are
// recomputed synchronously after every content mutation; they are never
// lazily stale.
type Order struct {
	ID        string
	Currency  string
	TaxZone   string
	LineItems []*LineItem
	Shipments []*Shipment
	CreatedAt time.Time

	// Order-level adjustments (from order-level promotion actions).
	adjustments AdjustmentList
	ownTotals   Totals

	ItemTotal          decimal.Decimal
	ShipTotal          decimal.Decimal
	PromoTotal         decimal.Decimal
	IncludedTaxTotal   decimal.Decimal
	AdditionalTaxTotal decimal.Decimal
	AdjustmentTotal    decimal.Decimal
	Total              decimal.Decimal
}

// New creates an empty order in the given currency and tax zone.
func New(currency, taxZone string) *Order {
	return &Order{
		ID:        uuid.New().String(),
		Currency:  currency,
		TaxZone:   taxZone,
		CreatedAt: time.Now(),
	}
}

// AddLineItem attaches a new line for the variant, merging into an existing
// non-promotional line for the same variant. The variant currency must match
// the order currency; a mismatch is a validation error, never coerced.
func (o *Order) AddLineItem(v catalog.Variant, quantity int) (*LineItem, error) {
	if v.Currency != o.Currency {
		return nil, &ValidationError{
			Field:   "currency",
			Message: "must match order currency " + o.Currency,
		}
	}

	if li := o.LineItemForVariant(v.ID); li != nil {
		li.SetQuantity(li.Quantity + quantity)
		return li, nil
	}

	li := NewLineItem(v, quantity)
	li.ID = uuid.New().String()
	o.LineItems = append(o.LineItems, li)
	return li, nil
}

// LineItemForVariant returns the non-promotional line AddLineItem would
// merge into for the variant, or nil.
func (o *Order) LineItemForVariant(variantID string) *LineItem {
	for _, li := range o.LineItems {
		if li.VariantID == variantID && li.PromotionID == "" {
			return li
		}
	}
	return nil
}

// FindLineItem returns the line with the given ID, or ErrLineItemNotFound.
func (o *Order) FindLineItem(id string) (*LineItem, error) {
	for _, li := range o.LineItems {
		if li.ID == id {
			return li, nil
		}
	}
	return nil, ErrLineItemNotFound
}

// RemoveLineItem detaches the line with the given ID.
func (o *Order) RemoveLineItem(id string) error {
	for i, li := range o.LineItems {
		if li.ID == id {
			o.LineItems = append(o.LineItems[:i], o.LineItems[i+1:]...)
			return nil
		}
	}
	return ErrLineItemNotFound
}

// AddShipment attaches a shipment with the given method and cost.
func (o *Order) AddShipment(method string, cost decimal.Decimal) *Shipment {
	s := &Shipment{
		ID:     uuid.New().String(),
		Method: method,
		Cost:   cost,
	}
	o.Shipments = append(o.Shipments, s)
	return s
}

// Adjustables returns every adjustment-carrying member of the order:
// all line items, all shipments, then the order itself.
func (o *Order) Adjustables() []Adjustable {
	out := make([]Adjustable, 0, len(o.LineItems)+len(o.Shipments)+1)
	for _, li := range o.LineItems {
		out = append(out, li)
	}
	for _, s := range o.Shipments {
		out = append(out, s)
	}
	out = append(out, o)
	return out
}

// HasPromotion reports whether any adjustment on the order originates from
// an action of the given promotion, or any line item was created by it.
// Coupon re-application is rejected based on this.
func (o *Order) HasPromotion(promotionID string) bool {
	for _, adj := range o.Adjustables() {
		for _, a := range adj.Adjustments().All() {
			if a.Source != nil && a.Source.Ref().Owner == promotionID {
				return true
			}
		}
	}
	for _, li := range o.LineItems {
		if li.PromotionID == promotionID {
			return true
		}
	}
	return false
}

// The order itself is adjustable: order-level promotion actions attach their
// adjustment here, with the item total as base amount.
func (o *Order) AdjustableID() string         { return o.ID }
func (o *Order) BaseAmount() decimal.Decimal  { return o.sumItemAmounts() }
func (o *Order) Adjustments() *AdjustmentList { return &o.adjustments }
func (o *Order) Totals() *Totals              { return &o.ownTotals }

var _ Adjustable = (*Order)(nil)

func (o *Order) sumItemAmounts() decimal.Decimal {
	sum := decimal.Zero
	for _, li := range o.LineItems {
		sum = sum.Add(li.Amount())
	}
	return sum
}

// foldTotals rolls per-line and per-shipment totals into the order-level
// sums. It is a pure fold; every member must already be recalculated.
func (o *Order) foldTotals() {
	itemTotal := o.sumItemAmounts()

	shipTotal := decimal.Zero
	promo := o.ownTotals.PromoTotal
	included := o.ownTotals.IncludedTaxTotal
	additional := o.ownTotals.AdditionalTaxTotal

	for _, li := range o.LineItems {
		t := li.Totals()
		promo = promo.Add(t.PromoTotal)
		included = included.Add(t.IncludedTaxTotal)
		additional = additional.Add(t.AdditionalTaxTotal)
	}
	for _, s := range o.Shipments {
		shipTotal = shipTotal.Add(s.Cost)
		t := s.Totals()
		promo = promo.Add(t.PromoTotal)
		included = included.Add(t.IncludedTaxTotal)
		additional = additional.Add(t.AdditionalTaxTotal)
	}

	o.ItemTotal = itemTotal
	o.ShipTotal = shipTotal
	o.PromoTotal = promo
	o.IncludedTaxTotal = included
	o.AdditionalTaxTotal = additional
	o.AdjustmentTotal = promo.Add(additional)
	o.Total = itemTotal.Add(shipTotal).Add(o.AdjustmentTotal)
}

// adjustmentState captures one adjustment's mutable fields for rollback.
type adjustmentState struct {
	adj      *Adjustment
	amount   decimal.Decimal
	eligible bool
}

// Snapshot captures everything a failed recalculation or coupon activation
// must roll back: member slices, every adjustment list, adjustment amounts
// and eligibility, per-member totals and the order sums. The returned
// function restores the captured state.
func (o *Order) Snapshot() (restore func()) {
	lines := append([]*LineItem(nil), o.LineItems...)
	ships := append([]*Shipment(nil), o.Shipments...)

	members := o.Adjustables()
	lists := make([][]*Adjustment, len(members))
	totals := make([]Totals, len(members))
	var states []adjustmentState
	for i, adj := range members {
		l := adj.Adjustments()
		lists[i] = append([]*Adjustment(nil), l.all...)
		totals[i] = *adj.Totals()
		for _, a := range l.all {
			states = append(states, adjustmentState{adj: a, amount: a.Amount, eligible: a.Eligible})
		}
	}

	sums := *o

	return func() {
		o.LineItems = lines
		o.Shipments = ships
		for i, adj := range members {
			adj.Adjustments().all = lists[i]
			*adj.Totals() = totals[i]
		}
		for _, s := range states {
			s.adj.Amount = s.amount
			s.adj.Eligible = s.eligible
		}
		o.ItemTotal = sums.ItemTotal
		o.ShipTotal = sums.ShipTotal
		o.PromoTotal = sums.PromoTotal
		o.IncludedTaxTotal = sums.IncludedTaxTotal
		o.AdditionalTaxTotal = sums.AdditionalTaxTotal
		o.AdjustmentTotal = sums.AdjustmentTotal
		o.Total = sums.Total
	}
}
