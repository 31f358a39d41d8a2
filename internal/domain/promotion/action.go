package promotion

import (
	"context"
	"slices"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront-checkout/internal/domain/catalog"
	"github.com/xenking/storefront-checkout/internal/domain/order"
)

// Action is one effect of an activated promotion. Every action is an
// adjustment source: performing it attaches (or leaves in place) its
// adjustment on each target, and recalculation later re-invokes Compute to
// refresh the amounts. Perform is idempotent per target — the same source
// never double-creates an adjustment.
type Action interface {
	order.AdjustmentSource
	// Perform applies the action to the order. It reports whether it
	// changed anything.
	Perform(ctx context.Context, o *order.Order) (bool, error)
}

// CreateItemAdjustments attaches a discount adjustment to each line item,
// optionally restricted to a set of variants.
type CreateItemAdjustments struct {
	ID          string
	PromotionID string
	Name        string
	Calc        Calculator
	// VariantIDs restricts the action to lines for these variants.
	// Empty means every line qualifies.
	VariantIDs []string
}

func (a *CreateItemAdjustments) Ref() order.SourceRef {
	return order.SourceRef{Kind: order.SourcePromotionAction, ID: a.ID, Owner: a.PromotionID}
}

func (a *CreateItemAdjustments) Label() string { return a.Name }

// Compute returns the discount for the target as a negative amount, capped
// at the target's base amount so a line is never discounted below zero.
func (a *CreateItemAdjustments) Compute(_ context.Context, target order.Adjustable) (decimal.Decimal, error) {
	amt, err := a.Calc.Compute(target)
	if err != nil {
		return decimal.Zero, err
	}
	if base := target.BaseAmount(); amt.GreaterThan(base) {
		amt = base
	}
	return amt.Neg(), nil
}

func (a *CreateItemAdjustments) Perform(ctx context.Context, o *order.Order) (bool, error) {
	performed := false
	for _, li := range o.LineItems {
		if len(a.VariantIDs) > 0 && !slices.Contains(a.VariantIDs, li.VariantID) {
			continue
		}
		created, err := upsertAdjustment(ctx, a, li)
		if err != nil {
			return false, err
		}
		performed = performed || created
	}
	return performed, nil
}

// CreateAdjustment attaches a single order-level discount adjustment.
type CreateAdjustment struct {
	ID          string
	PromotionID string
	Name        string
	Calc        Calculator
}

func (a *CreateAdjustment) Ref() order.SourceRef {
	return order.SourceRef{Kind: order.SourcePromotionAction, ID: a.ID, Owner: a.PromotionID}
}

func (a *CreateAdjustment) Label() string { return a.Name }

func (a *CreateAdjustment) Compute(_ context.Context, target order.Adjustable) (decimal.Decimal, error) {
	amt, err := a.Calc.Compute(target)
	if err != nil {
		return decimal.Zero, err
	}
	if base := target.BaseAmount(); amt.GreaterThan(base) {
		amt = base
	}
	return amt.Neg(), nil
}

func (a *CreateAdjustment) Perform(ctx context.Context, o *order.Order) (bool, error) {
	return upsertAdjustment(ctx, a, o)
}

// FreeShipping negates the cost of every shipment on the order.
type FreeShipping struct {
	ID          string
	PromotionID string
	Name        string
}

func (a *FreeShipping) Ref() order.SourceRef {
	return order.SourceRef{Kind: order.SourcePromotionAction, ID: a.ID, Owner: a.PromotionID}
}

func (a *FreeShipping) Label() string { return a.Name }

func (a *FreeShipping) Compute(_ context.Context, target order.Adjustable) (decimal.Decimal, error) {
	if _, ok := target.(*order.Shipment); !ok {
		return decimal.Zero, nil
	}
	return target.BaseAmount().Neg(), nil
}

func (a *FreeShipping) Perform(ctx context.Context, o *order.Order) (bool, error) {
	performed := false
	for _, s := range o.Shipments {
		created, err := upsertAdjustment(ctx, a, s)
		if err != nil {
			return false, err
		}
		performed = performed || created
	}
	return performed, nil
}

// PromoLine configures one line item a CreateLineItems action adds.
type PromoLine struct {
	Variant  catalog.Variant
	Quantity int
}

// CreateLineItems adds configured line items to the order on activation,
// once per variant. The added lines are marked with the owning promotion so
// re-activation and re-application checks see them.
type CreateLineItems struct {
	ID          string
	PromotionID string
	Name        string
	Items       []PromoLine
}

func (a *CreateLineItems) Ref() order.SourceRef {
	return order.SourceRef{Kind: order.SourcePromotionAction, ID: a.ID, Owner: a.PromotionID}
}

func (a *CreateLineItems) Label() string { return a.Name }

// Compute never contributes an adjustment; the action's effect is the added
// lines themselves.
func (a *CreateLineItems) Compute(context.Context, order.Adjustable) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

func (a *CreateLineItems) Perform(_ context.Context, o *order.Order) (bool, error) {
	performed := false
	for _, item := range a.Items {
		if a.hasLine(o, item.Variant.ID) {
			continue
		}
		if item.Variant.Currency != o.Currency {
			return false, &order.ValidationError{
				Field:   "currency",
				Message: "must match order currency " + o.Currency,
			}
		}
		li := order.NewLineItem(item.Variant, item.Quantity)
		li.ID = uuid.New().String()
		li.PromotionID = a.PromotionID
		o.LineItems = append(o.LineItems, li)
		performed = true
	}
	return performed, nil
}

func (a *CreateLineItems) hasLine(o *order.Order, variantID string) bool {
	for _, li := range o.LineItems {
		if li.VariantID == variantID && li.PromotionID == a.PromotionID {
			return true
		}
	}
	return false
}

// upsertAdjustment attaches the source's promotion adjustment to the target
// unless one already exists or the computed amount is zero. A zero compute
// creates no adjustment at all.
func upsertAdjustment(ctx context.Context, src Action, target order.Adjustable) (bool, error) {
	amt, err := src.Compute(ctx, target)
	if err != nil {
		return false, err
	}
	if amt.IsZero() {
		return false, nil
	}
	if existing := target.Adjustments().FindBySource(src.Ref()); existing != nil {
		return false, nil
	}
	target.Adjustments().Add(&order.Adjustment{
		Label:    src.Label(),
		Source:   src,
		Amount:   amt,
		Eligible: true,
		Kind:     order.KindPromotion,
	})
	return true, nil
}
