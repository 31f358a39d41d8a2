package stock

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront-checkout/internal/domain/order"
)

// ErrItemNotFound is returned when no stock record exists for a variant.
var ErrItemNotFound = errors.New("stock item not found")

// Item is the stock record of one variant.
type Item struct {
	VariantID string
	OnHand    int
	// Backorderable items can always supply, regardless of count.
	Backorderable bool
}

// CanSupply reports whether the given quantity of new units can be
// supplied right now.
func (i Item) CanSupply(quantity int) bool {
	return i.Backorderable || i.OnHand >= quantity
}

// Repository provides stock lookups per variant.
type Repository interface {
	ItemFor(ctx context.Context, variantID string) (*Item, error)
}

// AvailabilityValidator gates line item mutations on stock availability.
// Validation is pure: it never mutates inventory.
type AvailabilityValidator struct {
	stock Repository
}

// NewAvailabilityValidator creates an AvailabilityValidator.
func NewAvailabilityValidator(stock Repository) *AvailabilityValidator {
	return &AvailabilityValidator{stock: stock}
}

// Validate passes when the line's quantity can be satisfied. A zero
// quantity is always valid. A line whose reserved units already cover the
// quantity stays valid even when stock elsewhere has since dropped —
// fulfilled lines are never retroactively invalidated. Otherwise the stock
// record must be able to supply the quantity, or a field-level validation
// error on quantity is returned.
func (v *AvailabilityValidator) Validate(ctx context.Context, li *order.LineItem) error {
	if li.Quantity == 0 {
		return nil
	}
	if li.ReservedUnits >= li.Quantity {
		return nil
	}

	item, err := v.stock.ItemFor(ctx, li.VariantID)
	if err != nil {
		return errors.Wrapf(err, "stock for variant %q", li.VariantID)
	}
	if item.CanSupply(li.Quantity) {
		return nil
	}

	return &order.ValidationError{
		Field:   "quantity",
		Message: fmt.Sprintf("of %d for %q is not available", li.Quantity, li.SKU),
	}
}
