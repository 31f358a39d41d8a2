package order

import (
	"context"

	"github.com/shopspring/decimal"
)

// ItemAdjustments recalculates the adjustments of a single adjustable.
//
// Promotion adjustments are applied first, then tax adjustments, so tax
// bases always reflect post-discount pricing. This matches both VAT and
// sales-tax treatment of discounts. Tax adjustments come in two flavours:
// included tax is informational and never changes the payable amount,
// additional tax is added on top.
type ItemAdjustments struct {
	item Adjustable
}

// NewItemAdjustments wraps one adjustable for recalculation.
func NewItemAdjustments(item Adjustable) *ItemAdjustments {
	return &ItemAdjustments{item: item}
}

// Update recomputes every adjustment on the item and writes the resulting
// totals back onto it. On any compute failure the item is restored to its
// prior state and the failure is surfaced; partial totals are never kept.
func (ia *ItemAdjustments) Update(ctx context.Context) error {
	list := ia.item.Adjustments()
	promos := list.Promotion()

	// Phase one: refresh every promotion amount without touching the item,
	// so a failing source leaves nothing half-written.
	amounts := make([]decimal.Decimal, len(promos))
	for i, a := range promos {
		amt, err := a.Source.Compute(ctx, ia.item)
		if err != nil {
			return &RecalcError{Source: a.Source.Ref(), Err: err}
		}
		amounts[i] = amt
	}

	restore := snapshotItem(ia.item)

	// Eligibility is re-derived on every pass: losing one competition never
	// disqualifies an adjustment permanently, its discount may be largest
	// after the next quantity change.
	for i, a := range promos {
		a.Amount = amounts[i]
		a.Eligible = true
	}

	promoTotal := decimal.Zero
	if best := BestPromotion(promos); best != nil {
		for _, a := range promos {
			if a != best {
				a.Eligible = false
			}
		}
		promoTotal = best.Amount
	}

	// Phase two: tax on the discounted amount. The staged promotion total
	// must be visible to tax sources, so it is written before their compute
	// and rolled back if any of them fails.
	t := ia.item.Totals()
	t.PromoTotal = promoTotal

	included := decimal.Zero
	additional := decimal.Zero
	for _, a := range list.Tax() {
		amt, err := a.Source.Compute(ctx, ia.item)
		if err != nil {
			restore()
			return &RecalcError{Source: a.Source.Ref(), Err: err}
		}
		a.Amount = amt
		if a.TaxMode == TaxIncluded {
			included = included.Add(amt)
		} else {
			additional = additional.Add(amt)
		}
	}

	t.IncludedTaxTotal = included
	t.AdditionalTaxTotal = additional
	t.AdjustmentTotal = promoTotal.Add(additional)
	return nil
}

// BestPromotion picks the single winning promotion adjustment among the
// eligible ones: the largest discount wins (discounts are negative, so the
// smallest amount), ties go to the most recently created, remaining ties to
// the highest insertion sequence. The scan order of the input never affects
// the result.
func BestPromotion(promos []*Adjustment) *Adjustment {
	var best *Adjustment
	for _, a := range promos {
		if !a.Eligible {
			continue
		}
		if best == nil || promotionBefore(a, best) {
			best = a
		}
	}
	return best
}

func promotionBefore(a, b *Adjustment) bool {
	if c := a.Amount.Cmp(b.Amount); c != 0 {
		return c < 0
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.Seq > b.Seq
}

// snapshotItem captures one adjustable's totals and adjustment state,
// returning a function that restores them.
func snapshotItem(item Adjustable) func() {
	saved := *item.Totals()
	all := item.Adjustments().All()
	states := make([]adjustmentState, len(all))
	for i, a := range all {
		states[i] = adjustmentState{adj: a, amount: a.Amount, eligible: a.Eligible}
	}
	return func() {
		*item.Totals() = saved
		for _, s := range states {
			s.adj.Amount = s.amount
			s.adj.Eligible = s.eligible
		}
	}
}
