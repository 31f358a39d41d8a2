package order

import (
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-checkout/internal/domain/catalog"
)

// LineItem is one order line referencing a sellable variant. It owns its
// adjustments and the totals recalculation writes back onto it.
type LineItem struct {
	ID          string
	VariantID   string
	SKU         string
	TaxCategory string
	Quantity    int
	Price       decimal.Decimal
	Currency    string

	// ReservedUnits counts inventory already reserved for this line. A line
	// whose reservation covers its quantity stays valid even when on-hand
	// stock later drops.
	ReservedUnits int

	// PromotionID is set when the line was created by a promotion action.
	PromotionID string

	adjustments AdjustmentList
	totals      Totals
}

// NewLineItem builds a line for the given variant, copying its price,
// currency and tax category. Negative quantities are clamped to zero.
func NewLineItem(v catalog.Variant, quantity int) *LineItem {
	li := &LineItem{
		VariantID:   v.ID,
		SKU:         v.SKU,
		TaxCategory: v.TaxCategory,
		Price:       v.Price,
		Currency:    v.Currency,
	}
	li.SetQuantity(quantity)
	return li
}

// SetQuantity updates the quantity, clamping negative values to zero.
func (li *LineItem) SetQuantity(q int) {
	if q < 0 {
		q = 0
	}
	li.Quantity = q
}

// Amount is the undiscounted subtotal: price × quantity.
func (li *LineItem) Amount() decimal.Decimal {
	return li.Price.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

// DiscountedAmount is the amount after the eligible promotion discount.
func (li *LineItem) DiscountedAmount() decimal.Decimal {
	return li.Amount().Add(li.totals.PromoTotal)
}

// Total is the payable amount for this line: subtotal plus its signed
// adjustment total (discounts and additional tax).
func (li *LineItem) Total() decimal.Decimal {
	return li.Amount().Add(li.totals.AdjustmentTotal)
}

func (li *LineItem) AdjustableID() string         { return li.ID }
func (li *LineItem) BaseAmount() decimal.Decimal  { return li.Amount() }
func (li *LineItem) Adjustments() *AdjustmentList { return &li.adjustments }
func (li *LineItem) Totals() *Totals              { return &li.totals }

var _ Adjustable = (*LineItem)(nil)
