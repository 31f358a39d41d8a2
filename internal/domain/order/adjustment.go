package order

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AdjustmentKind distinguishes promotion adjustments from tax adjustments.
type AdjustmentKind string

const (
	// KindPromotion marks a discount produced by a promotion action.
	KindPromotion AdjustmentKind = "promotion"
	// KindTax marks an amount produced by a tax rate.
	KindTax AdjustmentKind = "tax"
)

// TaxMode distinguishes tax that is already part of the listed price from
// tax charged on top of it. Only meaningful on KindTax adjustments.
type TaxMode string

const (
	// TaxIncluded tax is embedded in the price and never changes the payable total.
	TaxIncluded TaxMode = "included"
	// TaxAdditional tax is charged on top of the price.
	TaxAdditional TaxMode = "additional"
)

// SourceKind identifies the type of entity an adjustment originates from.
type SourceKind string

const (
	SourcePromotionAction SourceKind = "promotion_action"
	SourceTaxRate         SourceKind = "tax_rate"
)

// SourceRef is the persistable identity of an adjustment source.
// Owner carries the promotion ID for promotion actions and the tax zone
// for tax rates.
type SourceRef struct {
	Kind  SourceKind
	ID    string
	Owner string
}

// AdjustmentSource is the capability promotion actions and tax rates share:
// given a target, compute the signed amount the source contributes to it.
// Discounts are negative, taxes positive.
type AdjustmentSource interface {
	Ref() SourceRef
	Label() string
	Compute(ctx context.Context, target Adjustable) (decimal.Decimal, error)
}

// Adjustment is a single signed monetary correction attached to exactly one
// adjustable and exactly one source. Ineligible adjustments are retained for
// audit but excluded from totals.
type Adjustment struct {
	ID        string
	Label     string
	Source    AdjustmentSource
	Amount    decimal.Decimal
	Eligible  bool
	Kind      AdjustmentKind
	TaxMode   TaxMode
	CreatedAt time.Time

	// Seq is a monotonically increasing insertion sequence per adjustable.
	// It is the final tie-breaker in best-promotion selection, so selection
	// stays deterministic regardless of storage iteration order.
	Seq int
}

// AdjustmentList holds the adjustments of one adjustable in insertion order
// and assigns each a sequence number on Add.
type AdjustmentList struct {
	next int
	all  []*Adjustment
}

// Add attaches an adjustment, stamping its ID, creation time and sequence
// number when unset, and returns it.
func (l *AdjustmentList) Add(a *Adjustment) *Adjustment {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	a.Seq = l.next
	l.next++
	l.all = append(l.all, a)
	return a
}

// Restore reloads a persisted adjustment set, keeping stored sequence numbers
// and advancing the internal counter past the highest one.
func (l *AdjustmentList) Restore(adjs []*Adjustment) {
	for _, a := range adjs {
		if a.Seq >= l.next {
			l.next = a.Seq + 1
		}
		l.all = append(l.all, a)
	}
}

// All returns every adjustment in insertion order.
func (l *AdjustmentList) All() []*Adjustment { return l.all }

// Promotion returns all promotion-kind adjustments, eligible or not.
func (l *AdjustmentList) Promotion() []*Adjustment { return l.byKind(KindPromotion) }

// Tax returns all tax-kind adjustments.
func (l *AdjustmentList) Tax() []*Adjustment { return l.byKind(KindTax) }

func (l *AdjustmentList) byKind(kind AdjustmentKind) []*Adjustment {
	var out []*Adjustment
	for _, a := range l.all {
		if a.Kind == kind {
			out = append(out, a)
		}
	}
	return out
}

// FindBySource returns the adjustment originating from the given source,
// or nil. Sources upsert through this lookup so the same source never
// double-creates an adjustment on one target.
func (l *AdjustmentList) FindBySource(ref SourceRef) *Adjustment {
	for _, a := range l.all {
		if a.Source != nil && a.Source.Ref() == ref {
			return a
		}
	}
	return nil
}

// RemoveIf drops all adjustments matching the predicate.
func (l *AdjustmentList) RemoveIf(pred func(*Adjustment) bool) {
	kept := l.all[:0]
	for _, a := range l.all {
		if !pred(a) {
			kept = append(kept, a)
		}
	}
	l.all = kept
}

// Totals is the per-adjustable block written back by recalculation.
type Totals struct {
	PromoTotal         decimal.Decimal
	IncludedTaxTotal   decimal.Decimal
	AdditionalTaxTotal decimal.Decimal
	AdjustmentTotal    decimal.Decimal
}

// Adjustable is the capability line items, shipments and the order itself
// share: a base amount plus an owned adjustment collection and totals block.
type Adjustable interface {
	AdjustableID() string
	// BaseAmount is the pre-adjustment amount: price×quantity for line
	// items, cost for shipments, item total for the order.
	BaseAmount() decimal.Decimal
	Adjustments() *AdjustmentList
	Totals() *Totals
}

// DiscountedAmount is the tax basis of an adjustable: its base amount after
// the eligible promotion discount. Tax is always computed on this, never on
// the undiscounted base.
func DiscountedAmount(a Adjustable) decimal.Decimal {
	return a.BaseAmount().Add(a.Totals().PromoTotal)
}
